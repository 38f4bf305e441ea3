package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/thread-router/internal/similarity"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "What's the deadline for Q1?")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "What's the deadline for Q1?")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashEmbedder_SimilarTextScoresHigher(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "the database migration failed on staging")
	near, _ := e.Embed(ctx, "Database migration failed again on staging!")
	far, _ := e.Embed(ctx, "who wants pizza for lunch")

	nearScore, err := similarity.Cosine(base, near)
	require.NoError(t, err)
	farScore, err := similarity.Cosine(base, far)
	require.NoError(t, err)

	assert.Greater(t, nearScore, farScore)
	assert.Greater(t, nearScore, 0.5)
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	vec, err := NewHashEmbedder(8).Embed(context.Background(), "  ?! ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), vec)
}
