// Package catalog ships the gateway's default contracts.CatalogSource: a
// LiteLLM-backed fetcher for the Control Plane's Catalog Refresher (§4.I).
// It is deliberately the only concrete CatalogSource shipped — a vendor API
// client or a static feed implements the same small interface and is a
// single wiring change.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/routegate/gateway/pkg/contracts"
	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// litellmURL is the MIT-licensed model pricing/context-window feed
// maintained by BerriAI, reused here as a live catalog source.
const litellmURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

// LiteLLMSource implements contracts.CatalogSource against the LiteLLM
// feed, falling back to a small built-in default set when the fetch fails
// so the Catalog Refresher always has something to diff against.
type LiteLLMSource struct {
	client *http.Client
}

// NewLiteLLMSource creates a source using the given HTTP client, or a
// 30s-timeout default if client is nil.
func NewLiteLLMSource(client *http.Client) *LiteLLMSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &LiteLLMSource{client: client}
}

var _ contracts.CatalogSource = (*LiteLLMSource)(nil)

func (s *LiteLLMSource) Kind() string { return "litellm" }

// litellmEntry is the structure from LiteLLM's model_prices_and_context_window.json.
type litellmEntry struct {
	MaxTokens               int     `json:"max_tokens"`
	MaxInputTokens          int     `json:"max_input_tokens"`
	MaxOutputTokens         int     `json:"max_output_tokens"`
	InputCostPerToken       float64 `json:"input_cost_per_token"`
	OutputCostPerToken      float64 `json:"output_cost_per_token"`
	LitellmProvider         string  `json:"litellm_provider"`
	Mode                    string  `json:"mode"`
	SupportsReasoning       bool    `json:"supports_reasoning"`
	SupportsResponseSchema  bool    `json:"supports_response_schema"`
	SupportsFunctionCalling bool    `json:"supports_function_calling"`
}

// FetchCatalog pulls the LiteLLM feed and maps each chat-capable entry into
// a models.ModelCatalogEntry, restricted to the four provider kinds this
// gateway routes to. On fetch or parse failure it returns the built-in
// default set rather than an error, matching the degrade-to-last-known-good
// idiom the rest of the gateway follows.
func (s *LiteLLMSource) FetchCatalog(ctx context.Context) ([]models.ModelCatalogEntry, error) {
	entries, err := s.fetchLiteLLM(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("litellm catalog fetch failed, using built-in defaults")
		return builtinDefaults(), nil
	}
	return entries, nil
}

func (s *LiteLLMSource) fetchLiteLLM(ctx context.Context) ([]models.ModelCatalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, litellmURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch litellm data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("litellm returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal litellm data: %w", err)
	}

	now := time.Now()
	var out []models.ModelCatalogEntry
	for modelKey, data := range raw {
		if modelKey == "sample_spec" {
			continue
		}

		var entry litellmEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.Mode != "" && entry.Mode != "chat" && entry.Mode != "completion" {
			continue
		}

		provider, ok := mapLiteLLMProvider(entry.LitellmProvider)
		if !ok {
			continue
		}

		modelName := modelKey
		if parts := strings.SplitN(modelKey, "/", 2); len(parts) == 2 {
			modelName = parts[1]
		}

		contextWindow := entry.MaxInputTokens
		if contextWindow == 0 {
			contextWindow = entry.MaxTokens
		}

		out = append(out, models.ModelCatalogEntry{
			Slug:              string(provider) + "/" + modelName,
			Provider:          provider,
			InputPricePer1K:   entry.InputCostPerToken * 1000,
			OutputPricePer1K:  entry.OutputCostPerToken * 1000,
			ContextWindow:     contextWindow,
			SupportsReasoning: entry.SupportsReasoning || entry.SupportsFunctionCalling,
			UpdatedAt:         now,
		})
	}

	return out, nil
}

// mapLiteLLMProvider maps a LiteLLM provider tag to one of the four
// provider kinds this gateway actually routes to; everything else is
// dropped since the executor has no caller for it.
func mapLiteLLMProvider(litellmProvider string) (models.ProviderKind, bool) {
	switch strings.ToLower(litellmProvider) {
	case "openai":
		return models.ProviderOpenAI, true
	case "anthropic":
		return models.ProviderAnthropic, true
	case "vertex_ai", "vertex_ai_beta", "gemini":
		return models.ProviderGoogle, true
	case "openrouter":
		return models.ProviderOpenRouter, true
	default:
		return "", false
	}
}

// builtinDefaults covers the same six models the Artifact Store's
// emergency artifact references, so a catalog-less gateway still has a
// coherent degraded-mode story across both components.
func builtinDefaults() []models.ModelCatalogEntry {
	now := time.Now()
	return []models.ModelCatalogEntry{
		{Slug: "openai/gpt-4o-mini", Provider: models.ProviderOpenAI, InputPricePer1K: 0.00015, OutputPricePer1K: 0.0006, ContextWindow: 128_000, UpdatedAt: now},
		{Slug: "openai/gpt-5", Provider: models.ProviderOpenAI, InputPricePer1K: 0.005, OutputPricePer1K: 0.015, ContextWindow: 128_000, SupportsReasoning: true, UpdatedAt: now},
		{Slug: "anthropic/claude-3-5-haiku-20241022", Provider: models.ProviderAnthropic, InputPricePer1K: 0.001, OutputPricePer1K: 0.005, ContextWindow: 200_000, UpdatedAt: now},
		{Slug: "anthropic/claude-opus-4-20250514", Provider: models.ProviderAnthropic, InputPricePer1K: 0.015, OutputPricePer1K: 0.075, ContextWindow: 200_000, SupportsReasoning: true, UpdatedAt: now},
		{Slug: "google/gemini-2.5-flash", Provider: models.ProviderGoogle, InputPricePer1K: 0.0003, OutputPricePer1K: 0.0025, ContextWindow: 1_048_576, UpdatedAt: now},
		{Slug: "google/gemini-2.5-pro", Provider: models.ProviderGoogle, InputPricePer1K: 0.00125, OutputPricePer1K: 0.01, ContextWindow: 1_048_576, SupportsReasoning: true, UpdatedAt: now},
	}
}
