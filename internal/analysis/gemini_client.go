package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiLLMClient implements LLMClient on the Gemini chat API.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient dials Gemini. An empty modelID picks the default.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if apiKey = strings.TrimSpace(apiKey); apiKey == "" {
		return nil, errors.New("analysis: gemini api key is required")
	}
	if modelID = strings.TrimSpace(modelID); modelID == "" {
		modelID = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("analysis: failed to create gemini client: %w", err)
	}
	return &GeminiLLMClient{client: client, modelID: modelID}, nil
}

// Complete runs the request as one Gemini chat turn. The final message is
// the active turn; everything before it becomes chat history.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if len(req.Messages) == 0 {
		return LLMResponse{}, errors.New("analysis: gemini requires at least one message")
	}

	model := c.client.GenerativeModel(c.modelID)
	applyModelParams(model, req)

	cs := model.StartChat()
	cs.History = chatHistory(req.Messages[:len(req.Messages)-1])

	last := req.Messages[len(req.Messages)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("analysis: gemini completion failed: %w", err)
	}

	text, candidate, err := geminiOutput(resp)
	if err != nil {
		return LLMResponse{}, err
	}

	out := LLMResponse{
		Text:       text,
		StopReason: fmt.Sprint(candidate.FinishReason),
	}
	if md := resp.UsageMetadata; md != nil {
		out.Usage = TokenUsage{
			InputTokens:  md.PromptTokenCount,
			OutputTokens: md.CandidatesTokenCount,
			TotalTokens:  md.TotalTokenCount,
		}
	}
	return out, nil
}

func applyModelParams(model *genai.GenerativeModel, req LLMRequest) {
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if system := req.systemText(); system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
}

// chatHistory converts prior turns to Gemini content. System messages are
// dropped here since they ride on SystemInstruction instead.
func chatHistory(msgs []ChatMessage) []*genai.Content {
	history := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		content := strings.TrimSpace(msg.Content)
		if content == "" || msg.Role == ChatRoleSystem {
			continue
		}
		history = append(history, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(content)},
		})
	}
	return history
}

func geminiRole(role string) string {
	if role == ChatRoleAssistant {
		return "model"
	}
	return "user"
}

// geminiOutput pulls the text out of the first candidate.
func geminiOutput(resp *genai.GenerateContentResponse) (string, *genai.Candidate, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", nil, errors.New("analysis: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", nil, errors.New("analysis: gemini returned empty content")
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", nil, errors.New("analysis: gemini returned empty content")
	}
	return text, candidate, nil
}

// Close tears down the underlying API connection.
func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
