package evalrun

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorseVerdictFollowsSeverityRanking(t *testing.T) {
	assert.Equal(t, VerdictPass, WorseVerdict(VerdictNotApplicable, VerdictPass))
	assert.Equal(t, VerdictSoftFail, WorseVerdict(VerdictSoftFail, VerdictPass))
	assert.Equal(t, VerdictHardFail, WorseVerdict(VerdictSoftFail, VerdictHardFail))
	assert.Equal(t, VerdictCritical, WorseVerdict(VerdictCritical, VerdictHardFail))
	assert.Equal(t, VerdictCritical, WorseVerdict(VerdictHardFail, VerdictCritical))
}

func TestWorstVerdictOverList(t *testing.T) {
	verdicts := []string{VerdictPass, VerdictNotApplicable, VerdictHardFail, VerdictSoftFail}
	worst := VerdictNotApplicable
	for _, v := range verdicts {
		worst = WorseVerdict(worst, v)
	}
	assert.Equal(t, VerdictHardFail, worst)
}

func TestMapLegacyCommand(t *testing.T) {
	assert.Equal(t, EvalTypeBatchThread, MapLegacyCommand("evaluate-batch"))
	assert.Equal(t, EvalTypeBatchAdversarial, MapLegacyCommand("adversarial"))
	assert.Equal(t, EvalTypeCustom, MapLegacyCommand("evaluate-voice-rx"))
	assert.Equal(t, EvalType("batch_thread"), MapLegacyCommand("batch_thread"))
}

func TestAPILogTruncate(t *testing.T) {
	longPrompt := strings.Repeat("p", MaxPromptChars+100)
	longSystem := strings.Repeat("s", MaxSystemPromptChars+100)
	longResponse := strings.Repeat("r", MaxResponseChars+100)

	log := &APILog{
		Prompt:       longPrompt,
		SystemPrompt: &longSystem,
		Response:     &longResponse,
	}
	log.Truncate()

	assert.Len(t, log.Prompt, MaxPromptChars)
	assert.Len(t, *log.SystemPrompt, MaxSystemPromptChars)
	assert.Len(t, *log.Response, MaxResponseChars)
}

func TestRunResponseEmitsBothCases(t *testing.T) {
	run := New("kaira-bot", EvalTypeBatchThread)
	run.BatchMetadata = map[string]interface{}{
		"command":   "evaluate-batch",
		"data_path": "(uploaded)",
	}

	resp := run.ToResponse()
	assert.Equal(t, run.ID.String(), resp["id"])
	assert.Equal(t, run.ID.String(), resp["run_id"])
	assert.Equal(t, "kaira-bot", resp["appId"])
	assert.Equal(t, "kaira-bot", resp["app_id"])
	assert.Equal(t, EvalTypeBatchThread, resp["evalType"])
	assert.Equal(t, EvalType("evaluate-batch"), resp["command"])
	assert.Equal(t, "(uploaded)", resp["data_path"])
	assert.Equal(t, 0, resp["eval_temperature"])
}
