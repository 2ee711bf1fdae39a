package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"evalforge/internal/core/domain/evaluator"
	"evalforge/internal/core/domain/promptlib"
	evaluatorRepo "evalforge/internal/infrastructure/repository/evaluator"
	promptlibRepo "evalforge/internal/infrastructure/repository/promptlib"
)

const seedPrompts = `
- app_id: voice-rx
  prompt_type: transcription
  source_type: upload
  name: "Upload: Transcription"
  is_default: true
  description: test prompt
  prompt: |
    Transcribe {{segment_count}} segments.
`

const seedSchemas = `
- app_id: voice-rx
  prompt_type: transcription
  name: "Upload: Transcript Schema"
  is_default: true
  description: test schema
  schema:
    type: object
    properties:
      segments: {type: array}
    required: [segments]
`

const seedEvaluators = `
- app_id: kaira-bot
  name: Chat Quality Analysis
  is_global: true
  prompt: |
    Evaluate {{chat_transcript}}
  output_schema:
    - key: overall_score
      type: number
      isMainMetric: true
`

func newTestSeeder(t *testing.T) (*Seeder, promptlib.Repository, evaluator.Repository) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&promptlib.Prompt{}, &promptlib.Schema{}, &evaluator.Evaluator{}))

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "prompts.yaml"), []byte(seedPrompts), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "schemas.yaml"), []byte(seedSchemas), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "evaluators.yaml"), []byte(seedEvaluators), 0o644))

	prompts := promptlibRepo.NewRepository(db)
	evaluators := evaluatorRepo.NewRepository(db)
	return New(prompts, evaluators, slog.Default(), dataDir), prompts, evaluators
}

func TestSeedAllInsertsDefaults(t *testing.T) {
	s, prompts, evaluators := newTestSeeder(t)
	ctx := context.Background()

	result, err := s.SeedAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PromptsInserted)
	assert.Equal(t, 1, result.SchemasInserted)
	assert.Equal(t, 1, result.EvaluatorsInserted)

	p, err := prompts.FindPromptByName(ctx, "voice-rx", "Upload: Transcription")
	require.NoError(t, err)
	assert.True(t, p.IsDefault)
	assert.Contains(t, p.Prompt, "{{segment_count}}")

	rows, _, err := evaluators.List(ctx, "kaira-bot", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	fields, err := rows[0].Fields()
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.True(t, fields[0].IsMainMetric)
}

func TestSeedAllIsIdempotent(t *testing.T) {
	s, _, _ := newTestSeeder(t)
	ctx := context.Background()

	first, err := s.SeedAll(ctx)
	require.NoError(t, err)
	assert.True(t, first.Changed())

	second, err := s.SeedAll(ctx)
	require.NoError(t, err)
	assert.False(t, second.Changed(), "re-running a fully seeded store makes zero changes")
}

func TestSeedAllSyncsDriftedDefaultPrompt(t *testing.T) {
	s, prompts, _ := newTestSeeder(t)
	ctx := context.Background()

	_, err := s.SeedAll(ctx)
	require.NoError(t, err)

	p, err := prompts.FindPromptByName(ctx, "voice-rx", "Upload: Transcription")
	require.NoError(t, err)
	p.Prompt = "locally edited"
	require.NoError(t, prompts.UpdatePrompt(ctx, p))

	result, err := s.SeedAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PromptsUpdated)

	restored, err := prompts.FindPromptByName(ctx, "voice-rx", "Upload: Transcription")
	require.NoError(t, err)
	assert.Contains(t, restored.Prompt, "{{segment_count}}")
}
