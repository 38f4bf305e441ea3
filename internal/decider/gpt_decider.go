package decider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var errNoChoices = errors.New("decision response contained no choices")

type GPTDecider struct {
	client         *openai.Client
	model          string
	maxTokens      int
	temperature    float64
	promptMessages int
	logger         *zap.Logger
}

func NewGPTDecider(client *openai.Client, model string, maxTokens int, temperature float64, promptMessages int, logger *zap.Logger) *GPTDecider {
	return &GPTDecider{
		client:         client,
		model:          model,
		maxTokens:      maxTokens,
		temperature:    temperature,
		promptMessages: promptMessages,
		logger:         logger,
	}
}

func (d *GPTDecider) Decide(ctx context.Context, req Request) ([]byte, error) {
	prompt := BuildPrompt(req, d.promptMessages)

	resp, err := d.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: d.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			MaxTokens:   d.maxTokens,
			Temperature: float32(d.temperature),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("decision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errNoChoices
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	d.logger.Debug("Received routing decision",
		zap.String("message_id", req.Message.ID),
		zap.String("response", content))
	return []byte(stripCodeFence(content)), nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add even in
// JSON mode.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
