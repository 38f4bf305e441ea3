// Package summarizer condenses a conversation window into a short topic
// description used to compute the thread's topic embedding.
package summarizer

import (
	"context"
	"strings"

	"github.com/xaenox/thread-router/internal/models"
)

type Summarizer interface {
	Summarize(ctx context.Context, messages []models.Message) (string, error)
}

const defaultExtractiveLength = 400

// ExtractiveSummarizer joins the newest message texts until maxLen runes are
// used. It is the offline fallback for GPTSummarizer.
type ExtractiveSummarizer struct {
	maxLen int
}

func NewExtractiveSummarizer(maxLen int) *ExtractiveSummarizer {
	if maxLen <= 0 {
		maxLen = defaultExtractiveLength
	}
	return &ExtractiveSummarizer{maxLen: maxLen}
}

func (s *ExtractiveSummarizer) Summarize(_ context.Context, messages []models.Message) (string, error) {
	var parts []string
	used := 0
	for i := len(messages) - 1; i >= 0 && used < s.maxLen; i-- {
		text := strings.TrimSpace(messages[i].Content)
		if text == "" {
			continue
		}
		r := []rune(text)
		if room := s.maxLen - used; len(r) > room {
			r = r[:room]
		}
		parts = append(parts, string(r))
		used += len(r)
	}
	// Restore chronological order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " "), nil
}
