package evaluation

import (
	"context"
	"fmt"
	"os"

	"evalforge/internal/core/domain/settings"
)

// LLMSettingsKey is the settings key holding provider credentials.
const LLMSettingsKey = "llm-settings"

// AuthIntent selects credential preference when both are configured.
type AuthIntent string

const (
	// AuthIntentInteractive prefers the API key.
	AuthIntentInteractive AuthIntent = "interactive"
	// AuthIntentManagedJob prefers the service account strictly.
	AuthIntentManagedJob AuthIntent = "managed_job"
)

// LLMSettings is the resolved credential bundle for a run.
type LLMSettings struct {
	APIKey             string
	Provider           string
	SelectedModel      string
	AuthMethod         string
	ServiceAccountPath string
}

// ResolveLLMSettings reads the llm-settings document and resolves
// credentials: per-provider keys first, then legacy single-key formats, with
// service-account auto-detection from the ambient path. It errors only when
// neither credential source exists.
func ResolveLLMSettings(ctx context.Context, repo settings.Repository, serviceAccountPath string, intent AuthIntent) (*LLMSettings, error) {
	row, err := repo.Get(ctx, "", LLMSettingsKey)
	if err != nil || row == nil || len(row.Value) == 0 {
		return nil, fmt.Errorf("no LLM settings found in database; go to Settings to configure your API key")
	}
	value := map[string]interface{}(row.Value)

	provider := getString(value, "provider")
	if provider == "" {
		provider = "gemini"
	}

	var apiKey, selectedModel string
	switch {
	case value["geminiApiKey"] != nil || value["openaiApiKey"] != nil:
		// Current format: per-provider API keys.
		if provider == "openai" {
			apiKey = getString(value, "openaiApiKey")
		} else {
			apiKey = getString(value, "geminiApiKey")
			if apiKey == "" {
				apiKey = getString(value, "apiKey")
			}
		}
		selectedModel = getString(value, "selectedModel")
	case value["apiKey"] != nil:
		// Legacy format: single top-level apiKey.
		apiKey = getString(value, "apiKey")
		selectedModel = getString(value, "selectedModel")
	default:
		// Pre-migration nested format.
		llm := getMap(value, "llm")
		apiKey = getString(llm, "apiKey")
		if p := getString(llm, "provider"); p != "" {
			provider = p
		}
		selectedModel = getString(llm, "selectedModel")
	}

	resolved := &LLMSettings{
		APIKey:        apiKey,
		Provider:      provider,
		SelectedModel: selectedModel,
		AuthMethod:    "api_key",
	}

	if provider == "gemini" {
		saPath := detectServiceAccountPath(serviceAccountPath)
		resolved.ServiceAccountPath = saPath

		if intent == AuthIntentManagedJob {
			switch {
			case saPath != "":
				// Strict SA-only for managed jobs.
				resolved.AuthMethod = "service_account"
				resolved.APIKey = ""
			case apiKey != "":
				resolved.AuthMethod = "api_key"
			default:
				return nil, fmt.Errorf("no credentials for managed job; configure a service account on the server or add an API key in Settings")
			}
		} else {
			switch {
			case apiKey != "":
				resolved.AuthMethod = "api_key"
			case saPath != "":
				resolved.AuthMethod = "service_account"
			}
		}
	}

	if resolved.APIKey == "" && resolved.ServiceAccountPath == "" {
		return nil, fmt.Errorf("no credentials configured for %s; add an API key in Settings or configure a service account on the server", provider)
	}
	return resolved, nil
}

func detectServiceAccountPath(path string) string {
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
