package evaluation

import (
	"context"
	"fmt"
	"sync"

	"evalforge/internal/core/domain/job"
	"evalforge/pkg/ulid"
)

// RunCustomBatch handles 'evaluate-custom-batch' jobs: it filters the
// requested evaluator ids down to existing ones and dispatches one custom
// sub-run per evaluator, parallel by default.
func (s *Service) RunCustomBatch(ctx context.Context, jobID ulid.ULID, params map[string]interface{}) (map[string]interface{}, error) {
	evaluatorIDs := paramStringList(params, "evaluator_ids")
	if len(evaluatorIDs) == 0 {
		return nil, fmt.Errorf("evaluator_ids is required")
	}

	listingID := paramString(params, "listing_id", "")
	sessionID := paramString(params, "session_id", "")
	appID := paramString(params, "app_id", "voice-rx")
	parallel := paramBool(params, "parallel", true)

	// Keep only evaluators that exist.
	var validIDs []string
	for _, idStr := range evaluatorIDs {
		id, err := ulid.Parse(idStr)
		if err != nil {
			s.logger.Warn("Invalid evaluator id, skipping", "evaluator_id", idStr)
			continue
		}
		if _, err := s.evaluators.GetByID(ctx, id); err != nil {
			s.logger.Warn("Evaluator not found, skipping", "evaluator_id", idStr)
			continue
		}
		validIDs = append(validIDs, idStr)
	}
	if len(validIDs) == 0 {
		return nil, fmt.Errorf("no valid evaluators found")
	}

	total := len(validIDs)
	concurrency := 1
	if parallel {
		concurrency = total
	}

	_ = s.control.UpdateProgress(ctx, jobID, job.Progress{
		Current: 0, Total: total, Message: fmt.Sprintf("Starting %d evaluators...", total),
	})

	var mu sync.Mutex
	completed := 0
	errorCount := 0
	var evalRunIDs []interface{}

	runOne := func(ctx context.Context, index int, evaluatorID string) (map[string]interface{}, error) {
		subParams := map[string]interface{}{
			"evaluator_id": evaluatorID,
			"app_id":       appID,
		}
		if listingID != "" {
			subParams["listing_id"] = listingID
		}
		if sessionID != "" {
			subParams["session_id"] = sessionID
		}

		result, err := s.RunCustomEvaluator(ctx, jobID, subParams)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errorCount++
			s.logger.Error("Batch custom evaluator failed", "evaluator_id", evaluatorID, "error", err)
			return nil, err
		}
		completed++
		if runID, ok := result["eval_run_id"]; ok {
			evalRunIDs = append(evalRunIDs, runID)
		}
		return result, nil
	}

	_, runErr := RunParallel(ctx, validIDs, runOne, ParallelOptions{
		Concurrency: concurrency,
		JobID:       jobID,
		Control:     s.control,
		MessageFn: func(ok, errCount, current, total int) string {
			return fmt.Sprintf("Evaluator %d/%d (%d ok, %d errors)", current, total, ok, errCount)
		},
		OnProgress: func(ctx context.Context, current, total int, message string) {
			_ = s.control.UpdateProgress(ctx, jobID, job.Progress{
				Current: current, Total: total, Message: message,
			})
		},
	})
	if runErr != nil {
		s.logger.Info("Batch custom eval stopped", "completed", completed, "total", total)
		return nil, runErr
	}

	_ = s.control.UpdateProgress(ctx, jobID, job.Progress{
		Current: total, Total: total,
		Message: fmt.Sprintf("Completed: %d success, %d failed", completed, errorCount),
	})

	return map[string]interface{}{
		"total":        total,
		"completed":    completed,
		"errors":       errorCount,
		"eval_run_ids": evalRunIDs,
	}, nil
}
