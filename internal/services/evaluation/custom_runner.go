package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"evalforge/internal/core/domain/chat"
	"evalforge/internal/core/domain/evalrun"
	"evalforge/internal/core/domain/evaluator"
	"evalforge/internal/core/domain/history"
	"evalforge/internal/core/domain/job"
	"evalforge/internal/core/domain/listing"
	"evalforge/internal/infrastructure/providers"
	"evalforge/internal/workers/jobworker"
	"evalforge/pkg/jsonrepair"
	"evalforge/pkg/ulid"
)

// RunCustomEvaluator handles 'evaluate-custom' jobs: it executes a
// user-defined evaluator on a voice-rx listing or a chat session, appends
// the run to the entity's evaluator_runs, and emits a history row with
// extracted scores.
func (s *Service) RunCustomEvaluator(ctx context.Context, jobID ulid.ULID, params map[string]interface{}) (map[string]interface{}, error) {
	startTime := time.Now()

	evaluatorIDStr := paramString(params, "evaluator_id", "")
	if evaluatorIDStr == "" {
		return nil, fmt.Errorf("evaluator_id is required")
	}
	evaluatorID, err := ulid.Parse(evaluatorIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid evaluator_id: %w", err)
	}

	listingIDStr := paramString(params, "listing_id", "")
	sessionIDStr := paramString(params, "session_id", "")
	isSessionFlow := sessionIDStr != ""
	appID := paramString(params, "app_id", "voice-rx")

	_ = s.control.UpdateProgress(ctx, jobID, job.Progress{
		Current: 0, Total: 2, Message: "Loading evaluator...", EvaluatorID: evaluatorIDStr,
	})

	evalDef, err := s.evaluators.GetByID(ctx, evaluatorID)
	if err != nil {
		return nil, fmt.Errorf("evaluator %s not found", evaluatorIDStr)
	}
	outputFields, err := evalDef.Fields()
	if err != nil {
		return nil, fmt.Errorf("invalid evaluator output schema: %w", err)
	}

	// Load the entity and its prompt-resolution context.
	var listingRow *listing.Listing
	var sessionRow *chat.Session
	var messages []map[string]interface{}
	var audioBytes []byte
	mimeType := "audio/mpeg"

	if isSessionFlow {
		sessionID, parseErr := ulid.Parse(sessionIDStr)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid session_id: %w", parseErr)
		}
		sessionRow, err = s.chats.GetSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("chat session %s not found", sessionIDStr)
		}
		rows, listErr := s.chats.ListMessages(ctx, sessionID)
		if listErr != nil {
			return nil, listErr
		}
		for _, m := range rows {
			messages = append(messages, map[string]interface{}{"role": m.Role, "content": m.Content})
		}
	} else {
		if listingIDStr == "" {
			return nil, fmt.Errorf("either listing_id or session_id is required")
		}
		listingID, parseErr := ulid.Parse(listingIDStr)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid listing_id: %w", parseErr)
		}
		listingRow, err = s.listings.GetByID(ctx, listingID)
		if err != nil {
			return nil, fmt.Errorf("listing %s not found", listingIDStr)
		}

		// Load audio bytes when the listing carries a file reference.
		if fileID := getString(listingRow.AudioFile, "id"); fileID != "" {
			if parsed, idErr := ulid.Parse(fileID); idErr == nil {
				if record, recErr := s.files.GetByID(ctx, parsed); recErr == nil {
					audioBytes, _ = s.store.Read(ctx, record.StoragePath)
					if record.MimeType != nil && *record.MimeType != "" {
						mimeType = *record.MimeType
					} else if m := getString(listingRow.AudioFile, "mimeType"); m != "" {
						mimeType = m
					}
				}
			}
		}
	}

	// Resolve prompt variables.
	var resolveCtx ResolveContext
	if isSessionFlow {
		resolveCtx = ResolveContext{Messages: messages}
	} else {
		resolveCtx = ResolveContext{
			Listing: map[string]interface{}{
				"id":          listingRow.ID.String(),
				"appId":       listingRow.AppID,
				"transcript":  map[string]interface{}(listingRow.Transcript),
				"sourceType":  listingRow.SourceType,
				"apiResponse": map[string]interface{}(listingRow.APIResponse),
			},
			UseSegments: true,
		}
	}
	resolved := ResolvePrompt(evalDef.Prompt, resolveCtx)

	hasAudio := strings.Contains(evalDef.Prompt, "{{audio}}") && len(audioBytes) > 0
	promptText := strings.ReplaceAll(resolved.Prompt, "{{audio}}", "[Audio file attached]")

	jsonSchema := GenerateJSONSchema(outputFields)

	llmSettings, err := s.resolveSettings(ctx, "", "", "", AuthIntentManagedJob)
	if err != nil {
		return nil, err
	}
	model := ""
	if evalDef.ModelID != nil {
		model = *evalDef.ModelID
	}
	llm, err := s.newAuditedProvider(ctx, llmSettings, model, 0.2)
	if err != nil {
		return nil, err
	}

	// One EvalRun row per custom execution.
	run := evalrun.New(appID, evalrun.EvalTypeCustom)
	run.JobID = &jobID
	run.EvaluatorID = &evaluatorID
	if isSessionFlow {
		run.SessionID = &sessionRow.ID
	} else {
		run.ListingID = &listingRow.ID
	}
	run.Status = evalrun.StatusRunning
	now := time.Now()
	run.StartedAt = &now
	run.LLMProvider = strPtr(llmSettings.Provider)
	run.LLMModel = strPtr(llm.Model())
	configSnapshot, _ := toJSONMap(map[string]interface{}{
		"prompt":             evalDef.Prompt,
		"model_id":           evalDef.ModelID,
		"output_schema":      outputFields,
		"resolved_variables": resolved.ResolvedVariables,
		"unresolved":         resolved.UnresolvedVariables,
	})
	run.Config = configSnapshot
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	llm.SetContext(run.ID, "")

	runRecord := map[string]interface{}{
		"id":          ulid.New().String(),
		"evaluatorId": evaluatorIDStr,
		"evalRunId":   run.ID.String(),
		"status":      "processing",
		"startedAt":   now.UTC().Format(time.RFC3339),
	}
	if isSessionFlow {
		runRecord["sessionId"] = sessionIDStr
	} else {
		runRecord["listingId"] = listingIDStr
	}

	var output map[string]interface{}
	var responseText string
	callErr := func() error {
		if err := s.control.CheckCancelled(ctx, jobID); err != nil {
			return err
		}
		_ = s.control.UpdateProgress(ctx, jobID, job.Progress{
			Current: 1, Total: 2, Message: "Running evaluator...", EvaluatorID: evaluatorIDStr,
		})

		if hasAudio {
			text, err := llm.GenerateWithAudio(ctx, promptText, audioBytes, mimeType, jsonSchema, providers.Options{})
			if err != nil {
				return err
			}
			responseText = text
			parsed, _, parseErr := jsonrepair.SafeParse(text)
			if parseErr != nil {
				return parseErr
			}
			output = parsed
		} else {
			parsed, err := llm.GenerateJSON(ctx, promptText, jsonSchema, providers.Options{})
			if err != nil {
				return err
			}
			output = parsed
			if encoded, encErr := json.Marshal(parsed); encErr == nil {
				responseText = string(encoded)
			}
		}
		return s.control.CheckCancelled(ctx, jobID)
	}()

	completedAt := time.Now().UTC().Format(time.RFC3339)
	runStatus := evalrun.StatusCompleted
	switch {
	case callErr == nil:
		runRecord["status"] = "completed"
		runRecord["output"] = output
		runRecord["rawRequest"] = promptText
		runRecord["rawResponse"] = responseText
		runRecord["completedAt"] = completedAt
	case errors.Is(callErr, jobworker.ErrJobCancelled):
		runRecord["status"] = "failed"
		runRecord["error"] = "Cancelled"
		runRecord["completedAt"] = completedAt
		runStatus = evalrun.StatusCancelled
		s.logger.Info("Custom evaluator cancelled", "evaluator_id", evaluatorIDStr)
	default:
		runRecord["status"] = "failed"
		runRecord["error"] = callErr.Error()
		runRecord["completedAt"] = completedAt
		runStatus = evalrun.StatusFailed
		s.logger.Error("Custom evaluator failed", "evaluator_id", evaluatorIDStr, "error", callErr)
	}

	// Append the run record to the entity.
	if isSessionFlow {
		if err := s.chats.AppendEvaluatorRun(ctx, sessionRow.ID, runRecord); err != nil {
			s.logger.Error("Failed to append evaluator run to session", "error", err)
		}
	} else {
		if err := s.listings.AppendEvaluatorRun(ctx, listingRow.ID, runRecord); err != nil {
			s.logger.Error("Failed to append evaluator run to listing", "error", err)
		}
	}

	// Finalize the run row.
	finishedAt := time.Now()
	durationMs := float64(finishedAt.Sub(startTime).Milliseconds())
	runUpdate := evalrun.Update{
		Status:      &runStatus,
		CompletedAt: &finishedAt,
		DurationMs:  &durationMs,
		Result:      map[string]interface{}{"run": runRecord},
	}
	if callErr != nil && !errors.Is(callErr, jobworker.ErrJobCancelled) {
		runUpdate.ErrorMessage = strPtr(callErr.Error())
	}
	if err := s.runs.Update(ctx, run.ID, runUpdate); err != nil {
		s.logger.Error("Failed to finalize custom run", "run_id", run.ID.String(), "error", err)
	}

	// History row; persistence failure is logged, never fatal.
	var entityID, entityType string
	if isSessionFlow {
		entityID, entityType = sessionIDStr, "session"
	} else {
		entityID, entityType = listingIDStr, "listing"
	}
	if err := s.saveEvaluatorHistory(ctx, evalDef, entityType, entityID, appID, runRecord, outputFields); err != nil {
		s.logger.Error("Failed to save evaluator run to history", "error", err)
	}

	// Re-raise the failure so the worker marks the job cancelled (for
	// ErrJobCancelled) or failed.
	if callErr != nil {
		return nil, callErr
	}

	result := map[string]interface{}{
		"evaluator_id":     evaluatorIDStr,
		"run_id":           runRecord["id"],
		"eval_run_id":      run.ID.String(),
		"status":           runRecord["status"],
		"duration_seconds": math.Round(time.Since(startTime).Seconds()*100) / 100,
	}
	if isSessionFlow {
		result["session_id"] = sessionIDStr
	} else {
		result["listing_id"] = listingIDStr
	}
	return result, nil
}

// extractScores derives the history scores payload from an evaluator
// output: main-metric field, non-hidden breakdown, a reasoning field found
// by key heuristic, and the main metric's thresholds.
func extractScores(output map[string]interface{}, fields []evaluator.OutputField) map[string]interface{} {
	if output == nil {
		return nil
	}

	var mainField *evaluator.OutputField
	for i := range fields {
		if fields[i].IsMainMetric {
			mainField = &fields[i]
			break
		}
	}

	if mainField == nil {
		return map[string]interface{}{
			"overall_score": nil,
			"max_score":     nil,
			"breakdown":     output,
			"reasoning":     nil,
			"metadata":      nil,
		}
	}

	overallScore := output[mainField.Key]

	breakdown := map[string]interface{}{}
	for _, field := range fields {
		if field.DisplayMode != "hidden" {
			if v, ok := output[field.Key]; ok {
				breakdown[field.Key] = v
			}
		}
	}

	var reasoning interface{}
	for _, field := range fields {
		keyLower := strings.ToLower(field.Key)
		if strings.Contains(keyLower, "reason") || strings.Contains(keyLower, "explanation") || strings.Contains(keyLower, "comment") {
			reasoning = fmt.Sprintf("%v", output[field.Key])
			break
		}
	}

	var maxScore interface{}
	if mainField.Type == "number" {
		if mainField.Thresholds != nil {
			maxScore = mainField.Thresholds["green"]
		} else {
			maxScore = 100
		}
	}

	var breakdownOut interface{}
	if len(breakdown) > 0 {
		breakdownOut = breakdown
	}

	return map[string]interface{}{
		"overall_score": overallScore,
		"max_score":     maxScore,
		"breakdown":     breakdownOut,
		"reasoning":     reasoning,
		"metadata": map[string]interface{}{
			"main_metric_key":  mainField.Key,
			"main_metric_type": mainField.Type,
			"thresholds":       mainField.Thresholds,
		},
	}
}

func (s *Service) saveEvaluatorHistory(
	ctx context.Context,
	evalDef *evaluator.Evaluator,
	entityType, entityID, appID string,
	runRecord map[string]interface{},
	fields []evaluator.OutputField,
) error {
	status := "error"
	if runRecord["status"] == "completed" {
		status = "success"
	}

	var durationMs *float64
	if started, ok := runRecord["startedAt"].(string); ok {
		if completed, ok := runRecord["completedAt"].(string); ok {
			startT, err1 := time.Parse(time.RFC3339, started)
			endT, err2 := time.Parse(time.RFC3339, completed)
			if err1 == nil && err2 == nil {
				durationMs = float64Ptr(float64(endT.Sub(startT).Milliseconds()))
			}
		}
	}

	output, _ := runRecord["output"].(map[string]interface{})
	scores := extractScores(output, fields)

	data := map[string]interface{}{
		"evaluator_name": evalDef.Name,
		"evaluator_type": "llm_evaluator",
		"config_snapshot": map[string]interface{}{
			"model_id":      evalDef.ModelID,
			"output_schema": fields,
			"prompt":        evalDef.Prompt,
		},
		"input_payload":  runRecord["rawRequest"],
		"output_payload": firstNonNil(runRecord["rawResponse"], runRecord["output"]),
		"scores":         scores,
	}
	if errMsg, ok := runRecord["error"].(string); ok && errMsg != "" {
		data["error_details"] = map[string]interface{}{
			"message":   errMsg,
			"failed_at": runRecord["completedAt"],
		}
	}

	historyAppID := "kaira"
	if appID == "voice-rx" {
		historyAppID = "voicerx"
	}

	entry := history.New(historyAppID, "evaluator_run", status)
	entry.EntityType = strPtr(entityType)
	entry.EntityID = strPtr(entityID)
	entry.SourceID = strPtr(evalDef.ID.String())
	entry.DurationMs = durationMs
	entry.SchemaVersion = strPtr("1.0")
	encoded, err := toJSONMap(data)
	if err != nil {
		return err
	}
	entry.Data = encoded

	return s.history.Create(ctx, entry)
}

func firstNonNil(values ...interface{}) interface{} {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
