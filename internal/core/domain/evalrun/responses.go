package evalrun

import "time"

// ToResponse serializes a run with both camelCase keys (current clients) and
// snake_case duplicates (legacy batch and adversarial pages).
func (r *EvalRun) ToResponse() map[string]interface{} {
	batch := map[string]interface{}(r.BatchMetadata)
	if batch == nil {
		batch = map[string]interface{}{}
	}

	var listingID, sessionID, evaluatorID, jobID interface{}
	if r.ListingID != nil {
		listingID = r.ListingID.String()
	}
	if r.SessionID != nil {
		sessionID = r.SessionID.String()
	}
	if r.EvaluatorID != nil {
		evaluatorID = r.EvaluatorID.String()
	}
	if r.JobID != nil {
		jobID = r.JobID.String()
	}

	startedAt := formatTime(r.StartedAt)
	completedAt := formatTime(r.CompletedAt)
	createdAt := r.CreatedAt.UTC().Format(time.RFC3339Nano)

	var durationSeconds float64
	if r.DurationMs != nil {
		durationSeconds = *r.DurationMs / 1000
	}

	command := r.EvalType
	if c, ok := batch["command"].(string); ok && c != "" {
		command = EvalType(c)
	}

	return map[string]interface{}{
		"id":      r.ID.String(),
		"status":  r.Status,
		"config":  map[string]interface{}(r.Config),
		"result":  map[string]interface{}(r.Result),
		"summary": map[string]interface{}(r.Summary),

		// camelCase
		"appId":         r.AppID,
		"evalType":      r.EvalType,
		"listingId":     listingID,
		"sessionId":     sessionID,
		"evaluatorId":   evaluatorID,
		"jobId":         jobID,
		"errorMessage":  r.ErrorMessage,
		"startedAt":     startedAt,
		"completedAt":   completedAt,
		"createdAt":     createdAt,
		"durationMs":    r.DurationMs,
		"llmProvider":   r.LLMProvider,
		"llmModel":      r.LLMModel,
		"batchMetadata": batch,

		// snake_case (legacy clients)
		"run_id":           r.ID.String(),
		"app_id":           r.AppID,
		"eval_type":        r.EvalType,
		"listing_id":       listingID,
		"session_id":       sessionID,
		"evaluator_id":     evaluatorID,
		"job_id":           jobID,
		"error_message":    r.ErrorMessage,
		"started_at":       startedAt,
		"completed_at":     completedAt,
		"duration_ms":      r.DurationMs,
		"duration_seconds": durationSeconds,
		"llm_provider":     r.LLMProvider,
		"llm_model":        r.LLMModel,
		"batch_metadata":   batch,

		// Legacy batch fields from batch_metadata
		"command":          command,
		"name":             batch["name"],
		"description":      batch["description"],
		"data_path":        batch["data_path"],
		"data_file_hash":   batch["data_file_hash"],
		"eval_temperature": orDefault(batch["eval_temperature"], 0),
		"total_items":      orDefault(batch["total_items"], 0),
		"flags":            orDefault(batch["flags"], map[string]interface{}{}),
		"created_at":       createdAt,
		"timestamp":        createdAt,
	}
}

// ToResponse serializes a per-thread evaluation row.
func (e *ThreadEvaluation) ToResponse() map[string]interface{} {
	return map[string]interface{}{
		"id":                 e.ID,
		"run_id":             e.RunID.String(),
		"thread_id":          e.ThreadID,
		"data_file_hash":     e.DataFileHash,
		"intent_accuracy":    e.IntentAccuracy,
		"worst_correctness":  e.WorstCorrectness,
		"efficiency_verdict": e.EfficiencyVerdict,
		"success_status":     e.SuccessStatus,
		"result":             map[string]interface{}(e.Result),
		"created_at":         e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ToResponse serializes a per-test-case adversarial row.
func (e *AdversarialEvaluation) ToResponse() map[string]interface{} {
	var errVal interface{}
	if e.Result != nil {
		errVal = e.Result["error"]
	}
	return map[string]interface{}{
		"id":            e.ID,
		"run_id":        e.RunID.String(),
		"category":      e.Category,
		"difficulty":    e.Difficulty,
		"verdict":       e.Verdict,
		"goal_achieved": e.GoalAchieved,
		"total_turns":   e.TotalTurns,
		"result":        map[string]interface{}(e.Result),
		"error":         errVal,
		"created_at":    e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ToResponse serializes an API log row with full prompt/response text.
func (l *APILog) ToResponse() map[string]interface{} {
	var runID interface{}
	if l.RunID != nil {
		runID = l.RunID.String()
	}
	return map[string]interface{}{
		"id":            l.ID,
		"run_id":        runID,
		"thread_id":     l.ThreadID,
		"provider":      l.Provider,
		"model":         l.Model,
		"method":        l.Method,
		"prompt":        l.Prompt,
		"system_prompt": l.SystemPrompt,
		"response":      l.Response,
		"error":         l.Error,
		"duration_ms":   l.DurationMs,
		"tokens_in":     l.TokensIn,
		"tokens_out":    l.TokensOut,
		"created_at":    l.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func formatTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func orDefault(v, def interface{}) interface{} {
	if v == nil {
		return def
	}
	return v
}
