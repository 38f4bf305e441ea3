package responder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Executor produces a reply in a responder's voice.
type Executor interface {
	Respond(ctx context.Context, req Request) (string, error)
}

var errEmptyReply = errors.New("responder produced an empty reply")

type GPTResponder struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewGPTResponder(client *openai.Client, model string, maxTokens int, temperature float64, logger *zap.Logger) *GPTResponder {
	return &GPTResponder{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

func (r *GPTResponder) Respond(ctx context.Context, req Request) (string, error) {
	system := r.systemPrompt(req)

	resp, err := r.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: r.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: system,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: BuildQuery(req),
				},
			},
			MaxTokens:   r.maxTokens,
			Temperature: float32(r.temperature),
		},
	)
	if err != nil {
		return "", fmt.Errorf("reply completion for %s: %w", req.Responder.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyReply
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errEmptyReply
	}
	return reply, nil
}

// systemPrompt combines the responder's persona prompt with its knowledge
// base. A missing knowledge base is logged and skipped.
func (r *GPTResponder) systemPrompt(req Request) string {
	p := req.Responder
	prompt := p.SystemPrompt
	if prompt == "" {
		prompt = fmt.Sprintf("You are %s, the team's %s.", p.Label(), p.Role)
	}
	if p.KnowledgeBasePath == "" {
		return prompt
	}

	kb, err := os.ReadFile(p.KnowledgeBasePath)
	if err != nil {
		r.logger.Warn("Failed to read knowledge base",
			zap.String("responder", p.Name),
			zap.String("path", p.KnowledgeBasePath),
			zap.Error(err))
		return prompt
	}
	return prompt + "\n\nAnswer using the following knowledge base where relevant:\n<knowledge_base>\n" +
		strings.TrimSpace(string(kb)) + "\n</knowledge_base>"
}
