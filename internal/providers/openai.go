package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bashclaw/bashclaw/internal/util"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider implements Provider over any OpenAI-compatible endpoint.
// A custom base URL covers compatible vendors (OpenRouter, Groq, DeepSeek...).
type OpenAIProvider struct {
	client       *openai.Client
	name         string
	defaultModel string
	retry        util.RetryConfig
}

// NewOpenAIProvider creates an OpenAI-compatible provider. baseURL and model
// may be empty for the upstream defaults.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(cfg),
		name:         "openai",
		defaultModel: model,
		retry:        util.DefaultRetryConfig(),
	}
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	oaReq := openai.ChatCompletionRequest{Model: model}
	if req.System != "" {
		oaReq.Messages = append(oaReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		m := openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
		if msg.Role == "tool" {
			m.ToolCallID = msg.ToolCallID
		}
		for _, tc := range msg.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		oaReq.Messages = append(oaReq.Messages, m)
	}
	for _, t := range req.Tools {
		oaReq.Tools = append(oaReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	if v, ok := req.Options["temperature"].(float64); ok {
		oaReq.Temperature = float32(v)
	}

	return util.Retry(ctx, p.retry, func() (*ChatResponse, error) {
		resp, err := p.client.CreateChatCompletion(ctx, oaReq)
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				body, _ := json.Marshal(map[string]any{"error": map[string]any{"message": apiErr.Message}})
				return nil, &HTTPError{Status: apiErr.HTTPStatusCode, Body: string(body)}
			}
			return nil, fmt.Errorf("openai: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("openai: empty choices")
		}
		return p.parseChoice(resp), nil
	})
}

func (p *OpenAIProvider) parseChoice(resp openai.ChatCompletionResponse) *ChatResponse {
	choice := resp.Choices[0]
	out := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		args := make(map[string]any)
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}
	return out
}
