package llmadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// LangChainAdapter adapts a langchaingo model running in JSON mode to the
// Client interface. The schema travels in the system prompt because these
// backends cannot enforce it.
type LangChainAdapter struct {
	model    llms.Model
	provider ProviderName
	parser   *ErrorParser
}

// NewLangChainAdapter wraps model.
func NewLangChainAdapter(model llms.Model, provider ProviderName) *LangChainAdapter {
	return &LangChainAdapter{
		model:    model,
		provider: provider,
		parser:   NewErrorParser(string(provider)),
	}
}

// GenerateContent implements Client.
func (a *LangChainAdapter) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	messages := a.convertMessages(req)
	response, err := a.model.GenerateContent(ctx, messages, a.buildCallOptions(req)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, ctxErr
		}
		return nil, a.parser.Classify(fmt.Errorf("langchain GenerateContent failed: %w", err))
	}
	return a.convertResponse(response)
}

// convertMessages converts our Message format to langchain MessageContent
func (a *LangChainAdapter) convertMessages(req *Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if system := systemWithSchema(req); system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, msg := range req.Messages {
		messages = append(messages, llms.TextParts(mapMessageRole(msg.Role), msg.Content))
	}
	return messages
}

func systemWithSchema(req *Request) string {
	if len(req.Schema) == 0 {
		return req.SystemPrompt
	}
	var b strings.Builder
	if req.SystemPrompt != "" {
		b.WriteString(req.SystemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("Respond with a single JSON object that conforms to this JSON Schema")
	if req.Strict {
		b.WriteString(". Include every property; use null for values that are absent")
	}
	b.WriteString(":\n")
	b.Write(req.Schema)
	return b.String()
}

// mapMessageRole maps our role to langchain ChatMessageType
func mapMessageRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// buildCallOptions builds langchain call options from our request
func (a *LangChainAdapter) buildCallOptions(req *Request) []llms.CallOption {
	options := []llms.CallOption{llms.WithJSONMode()}
	if req.Options.Temperature > 0 {
		options = append(options, llms.WithTemperature(req.Options.Temperature))
	}
	if req.Options.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(req.Options.MaxTokens))
	}
	return options
}

// convertResponse converts langchain response to our format
func (a *LangChainAdapter) convertResponse(resp *llms.ContentResponse) (*Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, NewErrorWithCode(ErrCodeMalformed, "empty response from LLM", string(a.provider), nil)
	}
	choice := resp.Choices[0]
	out := &Response{Content: choice.Content, FinishReason: choice.StopReason}
	if info := choice.GenerationInfo; info != nil {
		prompt, completion := intInfo(info, "PromptTokens"), intInfo(info, "CompletionTokens")
		if prompt > 0 || completion > 0 {
			total := intInfo(info, "TotalTokens")
			if total == 0 {
				total = prompt + completion
			}
			out.Usage = &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
		}
	}
	return out, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Close implements Client.
func (a *LangChainAdapter) Close() error {
	return nil
}
