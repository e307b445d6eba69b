package llmadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	chatCompletionsPath  = "/chat/completions"
)

// OpenAIClient calls the chat completions endpoint with a json_schema
// response format, passing the compiled schema verbatim.
type OpenAIClient struct {
	http   *resty.Client
	model  string
	parser *ErrorParser
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
			Refusal *string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// NewOpenAIClient creates a client for the OpenAI compatible API at
// cfg.BaseURL.
func NewOpenAIClient(cfg *ProviderConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai provider requires an API key (OPENAI_API_KEY)")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai provider requires a model")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Organization != "" {
		client.SetHeader("OpenAI-Organization", cfg.Organization)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &OpenAIClient{
		http:   client,
		model:  cfg.Model,
		parser: NewErrorParser(string(ProviderOpenAI)),
	}, nil
}

// GenerateContent implements Client.
func (c *OpenAIClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	body := c.buildRequest(req)
	var out chatResponse
	var apiErr apiErrorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post(chatCompletionsPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, ctxErr
		}
		return nil, c.parser.Classify(err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		llmErr := NewError(resp.StatusCode(), msg, string(ProviderOpenAI), nil)
		if code, ok := apiErr.Error.Code.(string); ok && code == "insufficient_quota" {
			llmErr.Code = ErrCodeQuotaExceeded
		}
		llmErr.RetryAfter = parseRetryAfter(resp.Header().Get("Retry-After"), time.Now())
		return nil, llmErr
	}
	return c.convertResponse(&out)
}

func (c *OpenAIClient) buildRequest(req *Request) *chatRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	body := &chatRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: req.Options.MaxTokens,
	}
	if req.Options.Temperature > 0 {
		temp := req.Options.Temperature
		body.Temperature = &temp
	}
	if len(req.Schema) > 0 {
		body.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   req.SchemaName,
				Strict: req.Strict,
				Schema: req.Schema,
			},
		}
	} else {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return body
}

func (c *OpenAIClient) convertResponse(out *chatResponse) (*Response, error) {
	if len(out.Choices) == 0 {
		return nil, NewErrorWithCode(ErrCodeMalformed, "response has no choices", string(ProviderOpenAI), nil)
	}
	choice := out.Choices[0]
	if choice.Message.Refusal != nil && *choice.Message.Refusal != "" {
		return nil, NewErrorWithCode(ErrCodeRefused, *choice.Message.Refusal, string(ProviderOpenAI), nil)
	}
	if choice.Message.Content == nil {
		return nil, NewErrorWithCode(ErrCodeMalformed, "response has no content", string(ProviderOpenAI), nil)
	}
	resp := &Response{Content: *choice.Message.Content, FinishReason: choice.FinishReason}
	if out.Usage != nil {
		resp.Usage = &Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
	}
	return resp, nil
}

// Close implements Client.
func (c *OpenAIClient) Close() error {
	return nil
}

// parseRetryAfter accepts delay seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
