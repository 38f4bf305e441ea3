package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/thread-router/internal/models"
	"go.uber.org/zap"
)

type GPTSummarizer struct {
	client    *openai.Client
	model     string
	maxTokens int
	fallback  *ExtractiveSummarizer
	logger    *zap.Logger
}

func NewGPTSummarizer(client *openai.Client, model string, maxTokens int, logger *zap.Logger) *GPTSummarizer {
	return &GPTSummarizer{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		fallback:  NewExtractiveSummarizer(0),
		logger:    logger,
	}
}

func (s *GPTSummarizer) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.DisplayAuthor(), m.Content)
	}
	prompt := fmt.Sprintf(`Summarize the subject of the following chat conversation in one short sentence.
Name the topic, not the people.

Conversation:
%s`, transcript.String())

	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: s.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   s.maxTokens,
			Temperature: 0.2,
		},
	)
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("summary response contained no choices")
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Warn("Failed to get topic summary, using extractive fallback", zap.Error(err))
		return s.fallback.Summarize(ctx, messages)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
