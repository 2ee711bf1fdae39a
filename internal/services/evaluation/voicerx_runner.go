package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"

	"evalforge/internal/core/domain/evalrun"
	"evalforge/internal/core/domain/job"
	"evalforge/internal/core/domain/listing"
	"evalforge/internal/infrastructure/providers"
	"evalforge/internal/workers/jobworker"
	"evalforge/pkg/jsonrepair"
	"evalforge/pkg/ulid"
)

// RunVoiceRxEvaluation handles 'evaluate-voice-rx' jobs. Two variants are
// selected by listing.source_type: the upload flow (transcribe, optionally
// normalize, then a text-only critique over a server-built segment table)
// and the API flow (audio to {input, rx}, then a deep-comparison critique).
func (s *Service) RunVoiceRxEvaluation(ctx context.Context, jobID ulid.ULID, params map[string]interface{}) (map[string]interface{}, error) {
	startTime := time.Now()

	listingIDStr := paramString(params, "listing_id", "")
	if listingIDStr == "" {
		return nil, fmt.Errorf("listing_id is required")
	}
	listingID, err := ulid.Parse(listingIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid listing_id: %w", err)
	}

	updateProgress := func(current, total int, message string) {
		_ = s.control.UpdateProgress(ctx, jobID, job.Progress{
			Current: current, Total: total, Message: message, ListingID: listingIDStr,
		})
	}
	updateProgress(0, 3, "Initializing...")

	listingRow, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("listing %s not found", listingIDStr)
	}
	if len(listingRow.AudioFile) == 0 {
		return nil, fmt.Errorf("listing %s has no audio file", listingIDStr)
	}

	fileIDStr := getString(listingRow.AudioFile, "id")
	fileID, err := ulid.Parse(fileIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid audio file reference: %w", err)
	}
	record, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("file record %s not found", fileIDStr)
	}
	audioBytes, err := s.store.Read(ctx, record.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	mimeType := "audio/mpeg"
	if record.MimeType != nil && *record.MimeType != "" {
		mimeType = *record.MimeType
	} else if m := getString(listingRow.AudioFile, "mimeType"); m != "" {
		mimeType = m
	}

	llmSettings, err := s.resolveSettings(ctx, "", "", "", AuthIntentManagedJob)
	if err != nil {
		return nil, err
	}

	transcriptionModel := paramString(params, "transcription_model", llmSettings.SelectedModel)
	evaluationModel := paramString(params, "evaluation_model", llmSettings.SelectedModel)

	sourceType := listingRow.SourceType
	if sourceType == "" {
		sourceType = listing.SourceTypeUpload
	}
	isAPIFlow := sourceType == listing.SourceTypeAPI

	skipTranscription := paramBool(params, "skip_transcription", false)
	normalizeOriginal := paramBool(params, "normalize_original", false)
	prerequisites := paramMap(params, "prerequisites")
	transcriptionPrompt := paramString(params, "transcription_prompt", "")
	transcriptionSchema := paramMap(params, "transcription_schema")
	evaluationSchema := paramMap(params, "evaluation_schema")

	totalSteps := 1 // critique always runs
	if !skipTranscription {
		totalSteps++
	}
	if normalizeOriginal && !isAPIFlow {
		totalSteps++
	}

	// One run row anchors the audit logs and the run listing.
	run := evalrun.New(listingRow.AppID, evalrun.EvalTypeCustom)
	run.JobID = &jobID
	run.ListingID = &listingID
	run.Status = evalrun.StatusRunning
	now := time.Now()
	run.StartedAt = &now
	run.LLMProvider = strPtr(llmSettings.Provider)
	run.LLMModel = strPtr(evaluationModel)
	run.BatchMetadata = datatypes.JSONMap{"command": "evaluate-voice-rx", "source_type": sourceType}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	newLLM := func(model string) (*providers.AuditWrapper, error) {
		llm, err := s.newAuditedProvider(ctx, llmSettings, model, 0.3)
		if err != nil {
			return nil, err
		}
		llm.SetContext(run.ID, "")
		return llm, nil
	}

	evaluation := map[string]interface{}{
		"id":        fmt.Sprintf("eval-%d", time.Now().UnixMilli()),
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"model":     transcriptionModel,
		"status":    "processing",
		"prompts": map[string]interface{}{
			"transcription": transcriptionPrompt,
			"evaluation":    "(server-built)",
		},
	}

	saveEvaluation := func() {
		encoded, encErr := toJSONMap(evaluation)
		if encErr != nil {
			s.logger.Error("Failed to encode ai_eval snapshot", "error", encErr)
			return
		}
		if err := s.listings.UpdateFields(ctx, listingID, map[string]interface{}{"ai_eval": encoded}); err != nil {
			s.logger.Error("Failed to persist ai_eval snapshot", "listing_id", listingIDStr, "error", err)
		}
	}

	finalizeRun := func(status evalrun.Status, errMsg string) {
		completedAt := time.Now()
		durationMs := float64(completedAt.Sub(startTime).Milliseconds())
		resultMap, _ := toJSONMap(evaluation)
		update := evalrun.Update{
			Status:      &status,
			CompletedAt: &completedAt,
			DurationMs:  &durationMs,
			Result:      resultMap,
		}
		if errMsg != "" {
			update.ErrorMessage = &errMsg
		}
		if err := s.runs.Update(ctx, run.ID, update); err != nil {
			s.logger.Error("Failed to finalize voice-rx run", "run_id", run.ID.String(), "error", err)
		}
	}

	checkCancel := func() error {
		return s.control.CheckCancelled(ctx, jobID)
	}

	pipelineErr := func() error {
		currentStep := 0

		if isAPIFlow {
			return s.runVoiceRxAPIFlow(ctx, apiFlowInput{
				listingRow:          listingRow,
				audioBytes:          audioBytes,
				mimeType:            mimeType,
				transcriptionPrompt: transcriptionPrompt,
				transcriptionSchema: transcriptionSchema,
				evaluationSchema:    evaluationSchema,
				transcriptionModel:  transcriptionModel,
				evaluationModel:     evaluationModel,
				newLLM:              newLLM,
				checkCancel:         checkCancel,
				updateProgress: func(step int, message string) {
					updateProgress(step, 2, message)
				},
				evaluation: evaluation,
			})
		}

		// Upload flow.
		var llmTranscript map[string]interface{}
		originalForCritique := map[string]interface{}(listingRow.Transcript)

		if skipTranscription {
			existing := map[string]interface{}(listingRow.AIEval)
			llmTranscript = asMap(existing["llmTranscript"])
			if llmTranscript == nil {
				return fmt.Errorf("cannot skip transcription: no existing AI transcript available")
			}
			evaluation["llmTranscript"] = llmTranscript
			if prompts := asMap(existing["prompts"]); prompts != nil {
				if prior := getString(prompts, "transcription"); prior != "" {
					asMap(evaluation["prompts"])["transcription"] = prior
				}
			}
		} else {
			currentStep++
			updateProgress(currentStep, totalSteps, "Transcribing audio...")
			if err := checkCancel(); err != nil {
				return err
			}

			llmTranscription, err := newLLM(transcriptionModel)
			if err != nil {
				return err
			}

			resolved := ResolvePrompt(transcriptionPrompt, ResolveContext{
				Listing: map[string]interface{}{
					"transcript":  originalForCritique,
					"sourceType":  sourceType,
					"apiResponse": map[string]interface{}(listingRow.APIResponse),
				},
				Prerequisites: prerequisites,
				UseSegments:   true,
			})
			promptText := strings.ReplaceAll(resolved.Prompt, "{{audio}}", "[Audio file attached]")

			responseText, err := llmTranscription.GenerateWithAudio(ctx, promptText, audioBytes, mimeType, transcriptionSchema, providers.Options{})
			if err != nil {
				return err
			}
			if err := checkCancel(); err != nil {
				return err
			}

			llmTranscript, err = ParseTranscriptResponse(responseText)
			if err != nil {
				return err
			}
			evaluation["llmTranscript"] = llmTranscript
		}

		// Optional normalization of the original transcript: transliterate
		// into the target script, preserving segment count and original
		// time anchors.
		if normalizeOriginal && originalForCritique != nil {
			currentStep++
			updateProgress(currentStep, totalSteps, "Normalizing transcript...")
			if err := checkCancel(); err != nil {
				return err
			}

			normalized, err := s.normalizeTranscript(ctx, normalizeInput{
				original:      originalForCritique,
				prerequisites: prerequisites,
				defaultModel:  transcriptionModel,
				newLLM:        newLLM,
			})
			if err != nil {
				return err
			}
			if normalized != nil {
				originalForCritique = normalized
				evaluation["normalizedOriginal"] = normalized
				evaluation["normalizationMeta"] = map[string]interface{}{
					"enabled":      true,
					"sourceScript": paramString(prerequisites, "sourceScript", "auto"),
					"targetScript": paramString(prerequisites, "targetScript", "latin"),
					"normalizedAt": time.Now().UTC().Format(time.RFC3339),
				}
			}
		}

		if llmTranscript == nil {
			return fmt.Errorf("no valid transcription data for critique step")
		}

		// Critique: text-only over the server-built segment table.
		currentStep++
		updateProgress(currentStep, totalSteps, "Generating critique...")
		if err := checkCancel(); err != nil {
			return err
		}

		llmEvaluation, err := newLLM(evaluationModel)
		if err != nil {
			return err
		}

		var originalSegments []interface{}
		if originalForCritique != nil {
			originalSegments = asList(originalForCritique["segments"])
		}
		llmSegments := asList(llmTranscript["segments"])

		totalSegments := len(originalSegments)
		if len(llmSegments) > totalSegments {
			totalSegments = len(llmSegments)
		}

		critiquePrompt := BuildUploadEvaluationPrompt(totalSegments, BuildSegmentComparisonTable(originalSegments, llmSegments))
		critiqueSchema := evaluationSchema
		if critiqueSchema == nil {
			critiqueSchema = UploadEvaluationSchema
		}

		critiqueResult, err := llmEvaluation.GenerateJSON(ctx, critiquePrompt, critiqueSchema, providers.Options{})
		if err != nil {
			return err
		}
		if err := checkCancel(); err != nil {
			return err
		}

		critiqueText, _ := json.Marshal(critiqueResult)
		critique, err := ParseCritiqueResponse(string(critiqueText), originalSegments, llmSegments, evaluationModel, totalSegments)
		if err != nil {
			return err
		}
		evaluation["critique"] = critique
		evaluation["status"] = "completed"
		return nil
	}()

	switch {
	case pipelineErr == nil:
		evaluation["status"] = "completed"
		saveEvaluation()
		finalizeRun(evalrun.StatusCompleted, "")
		return map[string]interface{}{
			"listing_id":       listingIDStr,
			"run_id":           run.ID.String(),
			"status":           "completed",
			"duration_seconds": math.Round(time.Since(startTime).Seconds()*100) / 100,
		}, nil

	case errors.Is(pipelineErr, jobworker.ErrJobCancelled):
		evaluation["status"] = "cancelled"
		saveEvaluation()
		finalizeRun(evalrun.StatusCancelled, "")
		s.logger.Info("Voice-RX evaluation cancelled", "listing_id", listingIDStr)
		return nil, pipelineErr

	default:
		evaluation["status"] = "failed"
		evaluation["error"] = pipelineErr.Error()
		saveEvaluation()
		finalizeRun(evalrun.StatusFailed, pipelineErr.Error())
		return nil, pipelineErr
	}
}

type normalizeInput struct {
	original      map[string]interface{}
	prerequisites map[string]interface{}
	defaultModel  string
	newLLM        func(model string) (*providers.AuditWrapper, error)
}

// normalizeTranscript transliterates the original transcript and grafts the
// original time anchors back onto the normalized segments.
func (s *Service) normalizeTranscript(ctx context.Context, in normalizeInput) (map[string]interface{}, error) {
	targetScript := paramString(in.prerequisites, "targetScript", paramString(in.prerequisites, "target_script", "latin"))
	sourceScript := paramString(in.prerequisites, "sourceScript", paramString(in.prerequisites, "source_script", "auto"))
	language := paramString(in.prerequisites, "language", "")

	targetName := ResolveScriptName(targetScript)
	if targetName == "" {
		targetName = targetScript
	}

	transcriptJSON, err := json.MarshalIndent(in.original, "", "  ")
	if err != nil {
		return nil, err
	}

	normModel := paramString(in.prerequisites, "normalizationModel", in.defaultModel)
	llm, err := in.newLLM(normModel)
	if err != nil {
		return nil, err
	}

	normPrompt := BuildNormalizationPrompt(targetName, sourceScript, language, string(transcriptJSON))
	normResult, err := llm.GenerateJSON(ctx, normPrompt, BuildNormalizationSchema(targetName), providers.Options{})
	if err != nil {
		return nil, err
	}

	normSegments := asList(normResult["segments"])
	if len(normSegments) == 0 {
		return nil, nil
	}

	origSegments := asList(in.original["segments"])
	var normalizedSegments []interface{}
	var transcriptLines []string
	for idx, raw := range normSegments {
		seg := asMap(raw)
		speaker := stringOrDefault(seg["speaker"], "Unknown")
		text := stringOrDefault(seg["text"], "")
		segOut := map[string]interface{}{
			"speaker":   speaker,
			"text":      text,
			"startTime": stringOrDefault(seg["startTime"], "00:00:00"),
			"endTime":   stringOrDefault(seg["endTime"], "00:00:00"),
		}
		if idx < len(origSegments) {
			orig := asMap(origSegments[idx])
			segOut["startSeconds"] = orig["startSeconds"]
			segOut["endSeconds"] = orig["endSeconds"]
		}
		normalizedSegments = append(normalizedSegments, segOut)
		transcriptLines = append(transcriptLines, fmt.Sprintf("[%s]: %s", speaker, text))
	}

	normalized := map[string]interface{}{}
	for k, v := range in.original {
		normalized[k] = v
	}
	normalized["segments"] = normalizedSegments
	normalized["fullTranscript"] = strings.Join(transcriptLines, "\n")
	normalized["generatedAt"] = time.Now().UTC().Format(time.RFC3339)
	return normalized, nil
}

type apiFlowInput struct {
	listingRow          *listing.Listing
	audioBytes          []byte
	mimeType            string
	transcriptionPrompt string
	transcriptionSchema map[string]interface{}
	evaluationSchema    map[string]interface{}
	transcriptionModel  string
	evaluationModel     string
	newLLM              func(model string) (*providers.AuditWrapper, error)
	checkCancel         func() error
	updateProgress      func(step int, message string)
	evaluation          map[string]interface{}
}

// runVoiceRxAPIFlow transcribes audio into {input, rx}, builds the deep
// field comparison against the recorded API response, and judges clinical
// equivalence.
func (s *Service) runVoiceRxAPIFlow(ctx context.Context, in apiFlowInput) error {
	if in.transcriptionSchema == nil {
		return fmt.Errorf("no API response schema configured for transcription")
	}

	// Call 1: audio -> {input, rx}.
	in.updateProgress(1, "Judge is transcribing audio...")
	if err := in.checkCancel(); err != nil {
		return err
	}

	llmTranscription, err := in.newLLM(in.transcriptionModel)
	if err != nil {
		return err
	}

	responseText, err := llmTranscription.GenerateWithAudio(ctx, in.transcriptionPrompt, in.audioBytes, in.mimeType, in.transcriptionSchema, providers.Options{})
	if err != nil {
		return err
	}
	if err := in.checkCancel(); err != nil {
		return err
	}

	parsed, _, err := jsonrepair.SafeParse(responseText)
	if err != nil {
		return err
	}
	judgeTranscript := stringOrDefault(parsed["input"], "")
	judgeStructured := asMap(parsed["rx"])
	if judgeStructured == nil {
		judgeStructured = map[string]interface{}{}
	}

	in.evaluation["judgeOutput"] = map[string]interface{}{
		"transcript":     judgeTranscript,
		"structuredData": judgeStructured,
	}

	// Call 2: judge the pre-aligned comparison, text only.
	in.updateProgress(2, "Comparing outputs...")
	if err := in.checkCancel(); err != nil {
		return err
	}

	apiResponse := map[string]interface{}(in.listingRow.APIResponse)
	apiTranscript := stringOrDefault(apiResponse["input"], "")
	apiRx := asMap(apiResponse["rx"])
	if apiRx == nil {
		apiRx = map[string]interface{}{}
	}

	entries := BuildDeepComparison(apiRx, judgeStructured)
	comparison := fmt.Sprintf(
		"=== SECTION 1: TRANSCRIPTS ===\n\nAPI TRANSCRIPT:\n%s\n\nJUDGE TRANSCRIPT:\n%s\n\n"+
			"=== SECTION 2: STRUCTURED FIELD COMPARISONS ===\n\n%s",
		apiTranscript, judgeTranscript, FormatComparisonForPrompt(entries))

	critiqueSchema := in.evaluationSchema
	if critiqueSchema == nil {
		critiqueSchema = APIEvaluationSchema
	}

	llmEvaluation, err := in.newLLM(in.evaluationModel)
	if err != nil {
		return err
	}

	critiqueResult, err := llmEvaluation.GenerateJSON(ctx, BuildAPIEvaluationPrompt(comparison), critiqueSchema, providers.Options{})
	if err != nil {
		return err
	}
	if err := in.checkCancel(); err != nil {
		return err
	}

	critiqueText, _ := json.Marshal(critiqueResult)
	apiCritique, err := ParseAPICritiqueResponse(string(critiqueText), in.evaluationModel)
	if err != nil {
		return err
	}
	in.evaluation["apiCritique"] = apiCritique
	in.evaluation["status"] = "completed"
	return nil
}
