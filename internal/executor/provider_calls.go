package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/routegate/gateway/pkg/models"
)

// applyAuth sets the outbound credential header/query param for the given
// provider, mirroring gatewayauth's adapter Apply logic without requiring
// the caller to hold an Adapter instance (callers only ever carry a
// models.AuthInfo, not the adapter that produced it).
func applyAuth(req *http.Request, provider models.ProviderKind, auth *models.AuthInfo) {
	req.Header.Set("Content-Type", "application/json")
	switch provider {
	case models.ProviderAnthropic:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
		req.Header.Set("anthropic-version", "2023-06-01")
	case models.ProviderGoogle:
		q := req.URL.Query()
		q.Set("key", auth.Token)
		req.URL.RawQuery = q.Encode()
	default:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	}
}

func retryAfterFrom(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// ── OpenAI ──────────────────────────────────────────────────────

type openAICaller struct{ client *http.Client }

func NewOpenAICaller(timeout time.Duration) ProviderCaller {
	return &openAICaller{client: &http.Client{Timeout: timeout}}
}

type openAIChatRequest struct {
	Model          string              `json:"model"`
	Messages       []models.ChatMessage `json:"messages"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Temperature    *float64            `json:"temperature,omitempty"`
	ReasoningEffort string             `json:"reasoning_effort,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *openAICaller) Call(ctx context.Context, decision models.RoutingDecision, req models.ChatRequest, auth *models.AuthInfo) (*ProviderResponse, error) {
	effort, _ := decision.Params["reasoning_effort"].(string)
	body, _ := json.Marshal(openAIChatRequest{
		Model:           decision.Model,
		Messages:        req.Messages,
		MaxTokens:       req.MaxTokens,
		Temperature:     req.Temperature,
		ReasoningEffort: effort,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	applyAuth(httpReq, models.ProviderOpenAI, auth)

	return doCall(c.client, httpReq, func(b []byte) (int, int) {
		var parsed openAIChatResponse
		if json.Unmarshal(b, &parsed) != nil {
			return 0, 0
		}
		return parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens
	})
}

// ── Anthropic ───────────────────────────────────────────────────

type anthropicCaller struct{ client *http.Client }

func NewAnthropicCaller(timeout time.Duration) ProviderCaller {
	return &anthropicCaller{client: &http.Client{Timeout: timeout}}
}

type anthropicChatRequest struct {
	Model     string               `json:"model"`
	Messages  []models.ChatMessage `json:"messages"`
	MaxTokens int                  `json:"max_tokens"`
}

type anthropicChatResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *anthropicCaller) Call(ctx context.Context, decision models.RoutingDecision, req models.ChatRequest, auth *models.AuthInfo) (*ProviderResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	body, _ := json.Marshal(anthropicChatRequest{Model: decision.Model, Messages: req.Messages, MaxTokens: maxTokens})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	applyAuth(httpReq, models.ProviderAnthropic, auth)

	return doCall(c.client, httpReq, func(b []byte) (int, int) {
		var parsed anthropicChatResponse
		if json.Unmarshal(b, &parsed) != nil {
			return 0, 0
		}
		return parsed.Usage.InputTokens, parsed.Usage.OutputTokens
	})
}

// ── Google ──────────────────────────────────────────────────────

type googleCaller struct{ client *http.Client }

func NewGoogleCaller(timeout time.Duration) ProviderCaller {
	return &googleCaller{client: &http.Client{Timeout: timeout}}
}

type googleContent struct {
	Role  string             `json:"role,omitempty"`
	Parts []map[string]string `json:"parts"`
}

type googleChatRequest struct {
	Contents         []googleContent        `json:"contents"`
	GenerationConfig map[string]any         `json:"generationConfig,omitempty"`
}

type googleChatResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (c *googleCaller) Call(ctx context.Context, decision models.RoutingDecision, req models.ChatRequest, auth *models.AuthInfo) (*ProviderResponse, error) {
	contents := make([]googleContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, googleContent{Role: role, Parts: []map[string]string{{"text": m.Content}}})
	}

	genCfg := map[string]any{}
	if budget, ok := decision.Params["thinking_budget"]; ok {
		genCfg["thinkingConfig"] = map[string]any{"thinkingBudget": budget}
	}

	body, _ := json.Marshal(googleChatRequest{Contents: contents, GenerationConfig: genCfg})

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", decision.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("google: create request: %w", err)
	}
	applyAuth(httpReq, models.ProviderGoogle, auth)

	return doCall(c.client, httpReq, func(b []byte) (int, int) {
		var parsed googleChatResponse
		if json.Unmarshal(b, &parsed) != nil {
			return 0, 0
		}
		return parsed.UsageMetadata.PromptTokenCount, parsed.UsageMetadata.CandidatesTokenCount
	})
}

// ── OpenRouter ──────────────────────────────────────────────────

type openRouterCaller struct{ client *http.Client }

func NewOpenRouterCaller(timeout time.Duration) ProviderCaller {
	return &openRouterCaller{client: &http.Client{Timeout: timeout}}
}

func (c *openRouterCaller) Call(ctx context.Context, decision models.RoutingDecision, req models.ChatRequest, auth *models.AuthInfo) (*ProviderResponse, error) {
	body, _ := json.Marshal(openAIChatRequest{Model: decision.Model, Messages: req.Messages, MaxTokens: req.MaxTokens, Temperature: req.Temperature})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://openrouter.ai/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: create request: %w", err)
	}
	applyAuth(httpReq, models.ProviderOpenRouter, auth)

	return doCall(c.client, httpReq, func(b []byte) (int, int) {
		var parsed openAIChatResponse
		if json.Unmarshal(b, &parsed) != nil {
			return 0, 0
		}
		return parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens
	})
}

// doCall performs the request and builds a ProviderResponse regardless of
// status code, leaving classification of error statuses to the executor.
func doCall(client *http.Client, httpReq *http.Request, extractUsage func([]byte) (int, int)) (*ProviderResponse, error) {
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	promptTokens, completionTokens := 0, 0
	if httpResp.StatusCode < 300 {
		promptTokens, completionTokens = extractUsage(respBody)
	}

	return &ProviderResponse{
		StatusCode:       httpResp.StatusCode,
		Body:             respBody,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		RetryAfter:       retryAfterFrom(httpResp.Header),
	}, nil
}
