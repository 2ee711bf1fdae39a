// Package seeder performs idempotent insertion of default prompts, schemas,
// and evaluators from the YAML corpora in data/seed. Re-running against a
// fully seeded store makes zero changes.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"evalforge/internal/core/domain/evaluator"
	"evalforge/internal/core/domain/promptlib"
)

// Result counts the seeding outcome.
type Result struct {
	PromptsInserted    int
	PromptsUpdated     int
	SchemasInserted    int
	SchemasUpdated     int
	EvaluatorsInserted int
	EvaluatorsUpdated  int
}

// Changed reports whether the run made any writes.
func (r Result) Changed() bool {
	return r.PromptsInserted+r.PromptsUpdated+r.SchemasInserted+r.SchemasUpdated+r.EvaluatorsInserted+r.EvaluatorsUpdated > 0
}

type promptSeed struct {
	AppID       string `yaml:"app_id"`
	PromptType  string `yaml:"prompt_type"`
	SourceType  string `yaml:"source_type"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	IsDefault   bool   `yaml:"is_default"`
	Prompt      string `yaml:"prompt"`
}

type schemaSeed struct {
	AppID       string                 `yaml:"app_id"`
	PromptType  string                 `yaml:"prompt_type"`
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	IsDefault   bool                   `yaml:"is_default"`
	Schema      map[string]interface{} `yaml:"schema"`
}

type evaluatorSeed struct {
	AppID        string                  `yaml:"app_id"`
	Name         string                  `yaml:"name"`
	ModelID      string                  `yaml:"model_id"`
	IsGlobal     bool                    `yaml:"is_global"`
	ShowInHeader bool                    `yaml:"show_in_header"`
	Prompt       string                  `yaml:"prompt"`
	OutputSchema []evaluator.OutputField `yaml:"output_schema"`
}

// Seeder loads the seed corpora and applies them.
type Seeder struct {
	prompts    promptlib.Repository
	evaluators evaluator.Repository
	logger     *slog.Logger
	dataDir    string
}

// New creates a seeder reading from dataDir (default data/seed).
func New(prompts promptlib.Repository, evaluators evaluator.Repository, logger *slog.Logger, dataDir string) *Seeder {
	if dataDir == "" {
		dataDir = filepath.Join("data", "seed")
	}
	return &Seeder{prompts: prompts, evaluators: evaluators, logger: logger, dataDir: dataDir}
}

// SeedAll applies prompts, schemas, and evaluators.
func (s *Seeder) SeedAll(ctx context.Context) (*Result, error) {
	result := &Result{}

	if err := s.seedPrompts(ctx, result); err != nil {
		return result, fmt.Errorf("failed to seed prompts: %w", err)
	}
	if err := s.seedSchemas(ctx, result); err != nil {
		return result, fmt.Errorf("failed to seed schemas: %w", err)
	}
	if err := s.seedEvaluators(ctx, result); err != nil {
		return result, fmt.Errorf("failed to seed evaluators: %w", err)
	}

	if result.Changed() {
		s.logger.Info("Seed defaults applied",
			"prompts_inserted", result.PromptsInserted,
			"prompts_updated", result.PromptsUpdated,
			"schemas_inserted", result.SchemasInserted,
			"schemas_updated", result.SchemasUpdated,
			"evaluators_inserted", result.EvaluatorsInserted,
			"evaluators_updated", result.EvaluatorsUpdated,
		)
	} else {
		s.logger.Info("Seed defaults already up to date")
	}
	return result, nil
}

func loadYAML[T any](path string) ([]T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var items []T
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

func (s *Seeder) seedPrompts(ctx context.Context, result *Result) error {
	seeds, err := loadYAML[promptSeed](filepath.Join(s.dataDir, "prompts.yaml"))
	if err != nil {
		return err
	}

	for _, seed := range seeds {
		existing, err := s.prompts.FindPromptByName(ctx, seed.AppID, seed.Name)
		if err == promptlib.ErrPromptNotFound {
			p := &promptlib.Prompt{
				AppID:       seed.AppID,
				PromptType:  seed.PromptType,
				Version:     1,
				Name:        seed.Name,
				Prompt:      seed.Prompt,
				Description: seed.Description,
				IsDefault:   seed.IsDefault,
				UserID:      "default",
			}
			if seed.SourceType != "" {
				st := seed.SourceType
				p.SourceType = &st
			}
			if err := s.prompts.CreatePrompt(ctx, p); err != nil {
				return err
			}
			result.PromptsInserted++
			continue
		}
		if err != nil {
			return err
		}

		// Only default prompts are kept in sync with the seed corpus; user
		// edits to non-default rows are left alone.
		if existing.IsDefault && existing.Prompt != seed.Prompt {
			existing.Prompt = seed.Prompt
			existing.Description = seed.Description
			if err := s.prompts.UpdatePrompt(ctx, existing); err != nil {
				return err
			}
			result.PromptsUpdated++
		}
	}
	return nil
}

func (s *Seeder) seedSchemas(ctx context.Context, result *Result) error {
	seeds, err := loadYAML[schemaSeed](filepath.Join(s.dataDir, "schemas.yaml"))
	if err != nil {
		return err
	}

	for _, seed := range seeds {
		normalized := normalizeYAMLMap(seed.Schema)
		// Round-trip through JSON so YAML integers compare equal to stored
		// JSON numbers.
		encoded, err := json.Marshal(normalized)
		if err != nil {
			return err
		}
		normalized = map[string]interface{}{}
		if err := json.Unmarshal(encoded, &normalized); err != nil {
			return err
		}

		existing, err := s.prompts.FindSchemaByName(ctx, seed.AppID, seed.Name)
		if err == promptlib.ErrSchemaNotFound {
			row := &promptlib.Schema{
				AppID:       seed.AppID,
				PromptType:  seed.PromptType,
				Version:     1,
				Name:        seed.Name,
				SchemaData:  datatypes.JSONMap(normalized),
				Description: seed.Description,
				IsDefault:   seed.IsDefault,
				UserID:      "default",
			}
			if err := s.prompts.CreateSchema(ctx, row); err != nil {
				return err
			}
			result.SchemasInserted++
			continue
		}
		if err != nil {
			return err
		}

		if existing.IsDefault && !reflect.DeepEqual(map[string]interface{}(existing.SchemaData), normalized) {
			existing.SchemaData = datatypes.JSONMap(normalized)
			existing.Description = seed.Description
			if err := s.prompts.UpdateSchema(ctx, existing); err != nil {
				return err
			}
			result.SchemasUpdated++
		}
	}
	return nil
}

func (s *Seeder) seedEvaluators(ctx context.Context, result *Result) error {
	seeds, err := loadYAML[evaluatorSeed](filepath.Join(s.dataDir, "evaluators.yaml"))
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		return nil
	}

	// Name-indexed lookup over existing evaluators per app.
	existingByName := map[string]*evaluator.Evaluator{}
	for _, seed := range seeds {
		rows, _, err := s.evaluators.List(ctx, seed.AppID, 200, 0)
		if err != nil {
			return err
		}
		for _, row := range rows {
			existingByName[row.AppID+"/"+row.Name] = row
		}
	}

	for _, seed := range seeds {
		encoded, err := evaluator.EncodeFields(seed.OutputSchema)
		if err != nil {
			return err
		}
		// Round-trip through JSON so YAML integers compare equal to stored
		// JSON numbers.
		var seedFields []evaluator.OutputField
		if err := json.Unmarshal(encoded, &seedFields); err != nil {
			return err
		}

		existing := existingByName[seed.AppID+"/"+seed.Name]
		if existing == nil {
			e := evaluator.New(seed.AppID, seed.Name, seed.Prompt)
			e.IsGlobal = seed.IsGlobal
			e.ShowInHeader = seed.ShowInHeader
			if seed.ModelID != "" {
				m := seed.ModelID
				e.ModelID = &m
			}
			e.OutputSchema = encoded
			if err := s.evaluators.Create(ctx, e); err != nil {
				return err
			}
			result.EvaluatorsInserted++
			continue
		}

		existingFields, err := existing.Fields()
		if err != nil {
			existingFields = nil
		}
		if existing.Prompt != seed.Prompt || !reflect.DeepEqual(existingFields, seedFields) {
			existing.Prompt = seed.Prompt
			existing.OutputSchema = encoded
			if err := s.evaluators.Update(ctx, existing); err != nil {
				return err
			}
			result.EvaluatorsUpdated++
		}
	}
	return nil
}

// normalizeYAMLMap converts yaml's map[interface{}]interface{} values into
// JSON-compatible map[string]interface{} trees.
func normalizeYAMLMap(in map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range in {
		out[k] = normalizeYAMLValue(v)
	}
	return out
}

func normalizeYAMLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return normalizeYAMLMap(val)
	case map[interface{}]interface{}:
		out := map[string]interface{}{}
		for k, inner := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = normalizeYAMLValue(inner)
		}
		return out
	default:
		return v
	}
}
