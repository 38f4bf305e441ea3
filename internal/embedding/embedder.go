// Package embedding maps text to fixed-length vectors.
package embedding

import "context"

// Embedder produces vector representations for text. Implementations must
// return the same vector for the same text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
