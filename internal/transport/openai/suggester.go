package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const suggestPrompt = `You are a system designed to classify written descriptions of happy moments.
I will give you the text of a happy moment, and you should classify it into one of the following categories: %s
Return your response as a JSON object with a "label" field holding exactly one category and an "explanation" field.
Do not return anything else except the JSON object.

Input: %s
Output:`

// Suggester proposes one label per item via an OpenAI-compatible chat model.
// Used by the generative ordering strategy.
type Suggester struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewSuggester creates a chat-based label suggester.
func NewSuggester(cfg *Config, chatModel string) *Suggester {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Suggester{
		client: openai.NewClientWithConfig(clientCfg),
		model:  chatModel,
		logger: cfg.Logger,
	}
}

// SuggestLabel asks the chat model to classify the text into the vocabulary.
func (s *Suggester) SuggestLabel(ctx context.Context, text string, vocab []string) (string, error) {
	prompt := fmt.Sprintf(suggestPrompt, strings.Join(vocab, ", "), text)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion response")
	}

	label, err := parseSuggestion(resp.Choices[0].Message.Content, vocab)
	if err != nil {
		s.logger.Warn("Failed to parse label suggestion",
			zap.String("content", resp.Choices[0].Message.Content),
			zap.Error(err),
		)
		return "", err
	}
	return label, nil
}

// parseSuggestion extracts the label from the model's JSON reply. Code fences
// around the object are tolerated; the label must be in the vocabulary.
func parseSuggestion(content string, vocab []string) (string, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var parsed struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return "", fmt.Errorf("parse suggestion JSON: %w", err)
	}

	for _, label := range vocab {
		if strings.EqualFold(parsed.Label, label) {
			return label, nil
		}
	}
	return "", fmt.Errorf("suggested label %q is outside the vocabulary", parsed.Label)
}
