// Package similarity scores how closely a message embedding matches a
// conversation thread.
package similarity

import (
	"errors"
	"fmt"
	"math"

	"github.com/xaenox/thread-router/internal/models"
)

// ErrDimensionMismatch is returned when two vectors have different lengths.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Default composite weights. Recency outweighs topic so that short replies
// ("yes", "got it") follow the message they answer.
const (
	DefaultTopicWeight   = 0.4
	DefaultRecencyWeight = 0.6
)

// Cosine returns the cosine similarity of a and b in [-1, 1]. A zero-magnitude
// vector scores 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		aMag += x * x
		bMag += y * y
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}

	score := dot / (math.Sqrt(aMag) * math.Sqrt(bMag))
	// Rounding can push identical vectors slightly past 1.
	return math.Max(-1, math.Min(1, score)), nil
}

// TopicScore compares the message embedding with the thread topic embedding.
func TopicScore(embedding []float32, thread models.ThreadSnapshot) (float64, error) {
	if len(thread.TopicEmbedding) == 0 {
		return 0, nil
	}
	return Cosine(embedding, thread.TopicEmbedding)
}

// RecencyScore is the best match against any of the thread's recent message
// embeddings.
func RecencyScore(embedding []float32, thread models.ThreadSnapshot) (float64, error) {
	if len(thread.RecentEmbeddings) == 0 {
		return 0, nil
	}
	best := math.Inf(-1)
	for _, recent := range thread.RecentEmbeddings {
		score, err := Cosine(embedding, recent)
		if err != nil {
			return 0, err
		}
		best = math.Max(best, score)
	}
	return best, nil
}

// Scorer combines topic and recency scores with fixed weights.
type Scorer struct {
	TopicWeight   float64
	RecencyWeight float64
}

// NewScorer returns a scorer with the given weights.
func NewScorer(topicWeight, recencyWeight float64) Scorer {
	return Scorer{TopicWeight: topicWeight, RecencyWeight: recencyWeight}
}

// DefaultScorer uses the 0.4 topic / 0.6 recency split.
func DefaultScorer() Scorer {
	return NewScorer(DefaultTopicWeight, DefaultRecencyWeight)
}

// Relevance returns the weighted composite score of embedding against thread.
func (s Scorer) Relevance(embedding []float32, thread models.ThreadSnapshot) (float64, error) {
	topic, err := TopicScore(embedding, thread)
	if err != nil {
		return 0, fmt.Errorf("topic score for thread %s: %w", thread.ID, err)
	}
	recency, err := RecencyScore(embedding, thread)
	if err != nil {
		return 0, fmt.Errorf("recency score for thread %s: %w", thread.ID, err)
	}
	return s.TopicWeight*topic + s.RecencyWeight*recency, nil
}
