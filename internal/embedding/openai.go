package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var errEmptyEmbedding = errors.New("embedding response contained no vectors")

type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIEmbedder(client *openai.Client, model string, logger *zap.Logger) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{
		client: client,
		model:  model,
		logger: logger,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		e.logger.Error("Empty embedding response", zap.String("model", e.model))
		return nil, errEmptyEmbedding
	}
	return resp.Data[0].Embedding, nil
}
