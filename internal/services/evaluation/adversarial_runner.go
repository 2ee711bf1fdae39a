package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/datatypes"

	"evalforge/internal/core/domain/evalrun"
	"evalforge/internal/core/domain/job"
	"evalforge/internal/workers/jobworker"
	"evalforge/pkg/ulid"
)

// RunAdversarialEvaluation handles 'evaluate-adversarial' jobs: it generates
// synthetic test cases from the active config, drives a live multi-turn
// conversation per case, judges each transcript, and persists one
// AdversarialEvaluation row per case.
func (s *Service) RunAdversarialEvaluation(ctx context.Context, jobID ulid.ULID, params map[string]interface{}) (map[string]interface{}, error) {
	startTime := time.Now()

	userID := paramString(params, "user_id", "")
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	testCount := paramInt(params, "test_count", 15)
	turnDelay := paramDuration(params, "turn_delay", 1500*time.Millisecond)
	caseDelay := paramDuration(params, "case_delay", 3*time.Second)
	concurrency := paramInt(params, "concurrency", 1)
	temperature := paramFloat(params, "temperature", 0.1)

	// Snapshot the active config at run start; the judge never re-reads the
	// setting mid-run.
	advConfig := LoadAdversarialConfig(ctx, s.settings, s.logger)

	// The run row is created first so failures are always visible.
	run := evalrun.New(paramString(params, "app_id", "kaira-bot"), evalrun.EvalTypeBatchAdversarial)
	run.JobID = &jobID
	run.Status = evalrun.StatusRunning
	now := time.Now()
	run.StartedAt = &now
	run.BatchMetadata = datatypes.JSONMap{
		"command":            "adversarial",
		"name":               params["name"],
		"description":        params["description"],
		"eval_temperature":   temperature,
		"total_items":        testCount,
		"adversarial_config": advConfig.ToMap(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	// Write run_id into progress early so the UI can redirect.
	_ = s.control.UpdateProgress(ctx, jobID, job.Progress{
		Current: 0, Total: testCount, Message: "Initializing...", RunID: run.ID.String(),
	})

	finalizeRun := func(status evalrun.Status, errorMessage string, summary map[string]interface{}) {
		completedAt := time.Now()
		durationMs := float64(completedAt.Sub(startTime).Milliseconds())
		update := evalrun.Update{
			Status:      &status,
			CompletedAt: &completedAt,
			DurationMs:  &durationMs,
			Summary:     summary,
		}
		if errorMessage != "" {
			update.ErrorMessage = &errorMessage
		}
		if err := s.runs.Update(ctx, run.ID, update); err != nil {
			s.logger.Error("Failed to finalize adversarial run", "run_id", run.ID.String(), "error", err)
		}
	}

	llmSettings, err := s.resolveSettings(ctx,
		paramString(params, "llm_provider", ""),
		paramString(params, "api_key", ""),
		paramString(params, "llm_model", ""),
		AuthIntentManagedJob)
	if err != nil {
		finalizeRun(evalrun.StatusFailed, err.Error(), nil)
		return nil, err
	}

	llm, err := s.newAuditedProvider(ctx, llmSettings, paramString(params, "llm_model", ""), temperature)
	if err != nil {
		finalizeRun(evalrun.StatusFailed, err.Error(), nil)
		return nil, err
	}
	llm.SetContext(run.ID, "")

	_ = s.runs.Update(ctx, run.ID, evalrun.Update{
		LLMProvider: strPtr(llmSettings.Provider),
		LLMModel:    strPtr(llm.Model()),
	})

	client, err := NewChatClient(
		paramString(params, "kaira_api_url", ""),
		paramString(params, "kaira_auth_token", ""),
		s.logger)
	if err != nil {
		finalizeRun(evalrun.StatusFailed, err.Error(), nil)
		return nil, err
	}

	judge := NewAdversarialJudge(llm, advConfig)
	agent := NewConversationAgent(llm, s.logger)

	if err := s.control.CheckCancelled(ctx, jobID); err != nil {
		finalizeRun(evalrun.StatusCancelled, "", map[string]interface{}{"cancelled": true})
		return nil, err
	}

	_ = s.control.UpdateProgress(ctx, jobID, job.Progress{
		Current: 0, Total: testCount, Message: "Generating test cases...", RunID: run.ID.String(),
	})

	testCases, err := judge.GenerateTestCases(ctx, testCount, paramString(params, "extra_instructions", ""))
	if err != nil {
		finalizeRun(evalrun.StatusFailed, err.Error(), nil)
		return nil, err
	}

	runCase := func(ctx context.Context, index int, testCase AdversarialTestCase) (*AdversarialResult, error) {
		if err := s.control.CheckCancelled(ctx, jobID); err != nil {
			return nil, err
		}

		transcript, err := agent.RunConversation(ctx, testCase, client, userID, turnDelay)
		if err != nil {
			return nil, err
		}

		if err := s.control.CheckCancelled(ctx, jobID); err != nil {
			return nil, err
		}

		result, err := judge.EvaluateTranscript(ctx, testCase, transcript)
		if err != nil {
			return nil, err
		}

		encoded, err := toJSONMap(result)
		if err != nil {
			return nil, err
		}
		row := &evalrun.AdversarialEvaluation{
			RunID:        run.ID,
			Category:     strPtr(testCase.Category),
			Difficulty:   strPtr(testCase.Difficulty),
			Verdict:      strPtr(result.Verdict),
			GoalAchieved: result.GoalAchieved,
			TotalTurns:   transcript.TotalTurns,
			Result:       encoded,
		}
		if err := s.runs.CreateAdversarialEvaluation(ctx, row); err != nil {
			return nil, err
		}
		return result, nil
	}

	results, runErr := RunParallel(ctx, testCases, runCase, ParallelOptions{
		Concurrency:    concurrency,
		JobID:          jobID,
		Control:        s.control,
		InterItemDelay: caseDelay,
		MessageFn: func(ok, errCount, current, total int) string {
			return fmt.Sprintf("Test case %d/%d (%d ok, %d errors)", current, total, ok, errCount)
		},
		OnProgress: func(ctx context.Context, current, total int, message string) {
			_ = s.control.UpdateProgress(ctx, jobID, job.Progress{
				Current: current, Total: total, Message: message, RunID: run.ID.String(),
			})
		},
	})

	if runErr != nil {
		if errors.Is(runErr, jobworker.ErrJobCancelled) {
			// Partial case rows stay visible.
			finalizeRun(evalrun.StatusCancelled, "", map[string]interface{}{"cancelled": true})
			s.logger.Info("Adversarial run cancelled", "run_id", run.ID.String())
			return nil, runErr
		}
		finalizeRun(evalrun.StatusFailed, runErr.Error(), nil)
		return nil, runErr
	}

	// Fold the summary from the settled results; runCase itself shares no
	// state, so concurrency > 1 is safe.
	verdicts := map[string]int{}
	categories := map[string]int{}
	goalAchievedCount := 0
	persistedCount := 0
	errorCount := 0
	for _, r := range results {
		if r.Err != nil {
			errorCount++
			s.logger.Error("Adversarial test case failed", "run_id", run.ID.String(), "error", r.Err)
			continue
		}
		if r.Value == nil {
			continue
		}
		verdicts[r.Value.Verdict]++
		categories[r.Value.TestCase.Category]++
		if r.Value.GoalAchieved {
			goalAchievedCount++
		}
		persistedCount++
	}

	summary := map[string]interface{}{
		"total_tests":           persistedCount,
		"errors":                errorCount,
		"verdict_distribution":  verdicts,
		"category_distribution": categories,
		"goal_achieved_count":   goalAchievedCount,
	}
	finalizeRun(evalrun.StatusCompleted, "", summary)

	result := map[string]interface{}{
		"run_id":           run.ID.String(),
		"duration_seconds": math.Round(time.Since(startTime).Seconds()*100) / 100,
	}
	for k, v := range summary {
		result[k] = v
	}
	return result, nil
}
