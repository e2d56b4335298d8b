package analysis

import (
	"context"
	"strings"
)

// LLMClient abstracts the completion backend so the analyzer can run on
// Groq, Bedrock or Gemini without caring which.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// Chat roles as they appear on the wire. Providers map them onto their
// own role vocabulary.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn handed to the model, system prompts included.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest is a provider-neutral completion request. System blocks stay
// separate from Messages because Bedrock and Gemini take them out of band.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// systemText flattens the system blocks for providers that accept a
// single instruction string.
func (r LLMRequest) systemText() string {
	return strings.TrimSpace(strings.Join(r.System, "\n\n"))
}

// LLMResponse carries the completion text plus whatever usage accounting
// the provider reported.
type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// TokenUsage mirrors the provider's token accounting. Fields are int32,
// matching the Bedrock SDK.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}
