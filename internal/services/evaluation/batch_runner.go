package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"gorm.io/datatypes"

	"evalforge/internal/core/domain/evalrun"
	"evalforge/internal/core/domain/job"
	"evalforge/internal/workers/jobworker"
	"evalforge/pkg/ulid"
)

// RunBatchEvaluation handles 'evaluate-batch' jobs: it loads the CSV export,
// selects threads, runs the enabled judges per thread, and persists one
// ThreadEvaluation row per thread plus an aggregate summary on the run.
func (s *Service) RunBatchEvaluation(ctx context.Context, jobID ulid.ULID, params map[string]interface{}) (map[string]interface{}, error) {
	startTime := time.Now()

	csvContent := paramString(params, "csv_content", "")
	dataPath := paramString(params, "data_path", "")
	if csvContent == "" && dataPath != "" {
		raw, err := os.ReadFile(dataPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read data file: %w", err)
		}
		csvContent = string(raw)
	}
	if csvContent == "" {
		return nil, fmt.Errorf("either csv_content or data_path is required")
	}

	loader, err := NewDataLoader(csvContent)
	if err != nil {
		return nil, err
	}

	// Resolve thread ids: explicit list, random sample, or all.
	idsToEvaluate := paramStringList(params, "thread_ids")
	if len(idsToEvaluate) == 0 {
		allIDs := loader.GetAllThreadIDs()
		if sampleSize := paramInt(params, "sample_size", 0); sampleSize > 0 && sampleSize < len(allIDs) {
			rand.Shuffle(len(allIDs), func(i, j int) { allIDs[i], allIDs[j] = allIDs[j], allIDs[i] })
			idsToEvaluate = allIDs[:sampleSize]
		} else {
			idsToEvaluate = allIDs
		}
	}
	total := len(idsToEvaluate)

	appID := paramString(params, "app_id", "kaira-bot")
	temperature := paramFloat(params, "temperature", 0.1)

	llmSettings, err := s.resolveSettings(ctx,
		paramString(params, "llm_provider", "gemini"),
		paramString(params, "api_key", ""),
		paramString(params, "llm_model", ""),
		AuthIntentManagedJob)
	if err != nil {
		return nil, err
	}

	llm, err := s.newAuditedProvider(ctx, llmSettings, paramString(params, "llm_model", ""), temperature)
	if err != nil {
		return nil, err
	}

	rules := LoadAdversarialConfig(ctx, s.settings, s.logger).Rules

	var intentJudge *IntentJudge
	var correctnessJudge *CorrectnessJudge
	var efficiencyJudge *EfficiencyJudge
	if paramBool(params, "evaluate_intent", true) {
		intentJudge = NewIntentJudge(llm, paramString(params, "intent_system_prompt", ""))
	}
	if paramBool(params, "evaluate_correctness", true) {
		correctnessJudge = NewCorrectnessJudge(llm, rules)
	}
	if paramBool(params, "evaluate_efficiency", true) {
		efficiencyJudge = NewEfficiencyJudge(llm, rules)
	}

	dataHash := ContentHash(csvContent)
	if dataPath == "" {
		dataPath = "(uploaded)"
	}

	run := evalrun.New(appID, evalrun.EvalTypeBatchThread)
	run.JobID = &jobID
	run.Status = evalrun.StatusRunning
	now := time.Now()
	run.StartedAt = &now
	run.LLMProvider = strPtr(llmSettings.Provider)
	run.LLMModel = strPtr(llm.Model())
	run.BatchMetadata = datatypes.JSONMap{
		"command":          "evaluate-batch",
		"data_path":        dataPath,
		"data_file_hash":   dataHash,
		"eval_temperature": temperature,
		"total_items":      total,
		"flags": map[string]interface{}{
			"evaluate_intent":      intentJudge != nil,
			"evaluate_correctness": correctnessJudge != nil,
			"evaluate_efficiency":  efficiencyJudge != nil,
		},
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	llm.SetContext(run.ID, "")

	summary := struct {
		completed           int
		errorCount          int
		intentAccuracySum   float64
		correctnessVerdicts map[string]int
		efficiencyVerdicts  map[string]int
	}{
		correctnessVerdicts: map[string]int{},
		efficiencyVerdicts:  map[string]int{},
	}

	evaluateThread := func(ctx context.Context, index int, threadID string) (struct{}, error) {
		llm.SetThreadID(threadID)
		defer llm.SetThreadID("")

		thread := loader.GetThread(threadID)
		if thread == nil {
			return struct{}{}, fmt.Errorf("thread %s not found", threadID)
		}

		var intentResults []IntentEvaluation
		if intentJudge != nil {
			var judgeErr error
			intentResults, judgeErr = intentJudge.EvaluateThread(ctx, thread.Messages)
			if judgeErr != nil {
				return struct{}{}, judgeErr
			}
		}

		var correctnessResults []CorrectnessEvaluation
		if correctnessJudge != nil {
			var judgeErr error
			correctnessResults, judgeErr = correctnessJudge.EvaluateThread(ctx, thread)
			if judgeErr != nil {
				return struct{}{}, judgeErr
			}
		}

		var efficiencyResult *EfficiencyEvaluation
		if efficiencyJudge != nil {
			var judgeErr error
			efficiencyResult, judgeErr = efficiencyJudge.EvaluateThread(ctx, thread)
			if judgeErr != nil {
				return struct{}{}, judgeErr
			}
		}

		intentAccuracy := 0.0
		if len(intentResults) > 0 {
			correct := 0
			for _, e := range intentResults {
				if e.IsCorrectIntent {
					correct++
				}
			}
			intentAccuracy = float64(correct) / float64(len(intentResults))
		}

		worstCorrectness := evalrun.VerdictNotApplicable
		for _, ce := range correctnessResults {
			worstCorrectness = evalrun.WorseVerdict(worstCorrectness, ce.Verdict)
		}

		effVerdict := "N/A"
		if efficiencyResult != nil {
			effVerdict = efficiencyResult.Verdict
		}

		summary.intentAccuracySum += intentAccuracy
		summary.correctnessVerdicts[worstCorrectness]++
		summary.efficiencyVerdicts[effVerdict]++

		resultData := map[string]interface{}{
			"intent_evaluations":      intentResults,
			"correctness_evaluations": correctnessResults,
			"efficiency_evaluation":   efficiencyResult,
			"success_status":          thread.IsSuccessful(),
		}
		encoded, encErr := toJSONMap(resultData)
		if encErr != nil {
			return struct{}{}, encErr
		}

		te := &evalrun.ThreadEvaluation{
			RunID:             run.ID,
			ThreadID:          threadID,
			DataFileHash:      strPtr(dataHash),
			IntentAccuracy:    float64Ptr(intentAccuracy),
			WorstCorrectness:  strPtr(worstCorrectness),
			EfficiencyVerdict: strPtr(effVerdict),
			SuccessStatus:     thread.IsSuccessful(),
			Result:            encoded,
		}
		if err := s.runs.CreateThreadEvaluation(ctx, te); err != nil {
			return struct{}{}, err
		}
		summary.completed++
		return struct{}{}, nil
	}

	finalize := func(status evalrun.Status, errorMessage string) map[string]interface{} {
		completedAt := time.Now()
		durationMs := float64(completedAt.Sub(startTime).Milliseconds())

		avgIntent := 0.0
		if summary.completed > 0 {
			avgIntent = summary.intentAccuracySum / float64(summary.completed)
		}
		runSummary := map[string]interface{}{
			"total_threads":        total,
			"completed":            summary.completed,
			"errors":               summary.errorCount,
			"avg_intent_accuracy":  math.Round(avgIntent*10000) / 10000,
			"correctness_verdicts": summary.correctnessVerdicts,
			"efficiency_verdicts":  summary.efficiencyVerdicts,
		}

		update := evalrun.Update{
			Status:      &status,
			CompletedAt: &completedAt,
			DurationMs:  &durationMs,
			Summary:     runSummary,
		}
		if errorMessage != "" {
			update.ErrorMessage = &errorMessage
		}
		if err := s.runs.Update(ctx, run.ID, update); err != nil {
			s.logger.Error("Failed to finalize batch run", "run_id", run.ID.String(), "error", err)
		}
		return runSummary
	}

	results, runErr := RunParallel(ctx, idsToEvaluate, evaluateThread, ParallelOptions{
		Concurrency: 1,
		JobID:       jobID,
		Control:     s.control,
		OnProgress: func(ctx context.Context, current, total int, message string) {
			_ = s.control.UpdateProgress(ctx, jobID, job.Progress{
				Current: current,
				Total:   total,
				Message: fmt.Sprintf("Evaluating thread %d/%d", current, total),
				RunID:   run.ID.String(),
			})
		},
	})

	for _, r := range results {
		if r.Err != nil {
			summary.errorCount++
			s.logger.Error("Thread evaluation failed", "run_id", run.ID.String(), "error", r.Err)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, jobworker.ErrJobCancelled) {
			finalize(evalrun.StatusCancelled, "")
			return nil, runErr
		}
		finalize(evalrun.StatusFailed, runErr.Error())
		return nil, runErr
	}

	runSummary := finalize(evalrun.StatusCompleted, "")

	result := map[string]interface{}{
		"run_id":           run.ID.String(),
		"duration_seconds": math.Round(time.Since(startTime).Seconds()*100) / 100,
	}
	for k, v := range runSummary {
		result[k] = v
	}
	return result, nil
}
