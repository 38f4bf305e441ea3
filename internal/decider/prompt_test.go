package decider

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xaenox/thread-router/internal/models"
)

func TestBuildPrompt_NoActiveThreads(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)
	req := Request{
		Message: models.Message{
			ID: "m1", AuthorName: "alice", Content: "What's the deadline for Q1?",
			Timestamp: now.Add(-5 * time.Second),
		},
		Responders: []models.Responder{{Name: "JohnPM", Role: "Project Manager"}},
		Now:        now,
	}

	prompt := BuildPrompt(req, 0)

	assert.Contains(t, prompt, "Content: What's the deadline for Q1?")
	assert.Contains(t, prompt, "Time since message: 5.0s")
	assert.Contains(t, prompt, "No active conversations")
	assert.Contains(t, prompt, "- JohnPM: Project Manager")
	assert.Contains(t, prompt, `"context_message_ids"`)
}

func TestBuildPrompt_ListsThreadsWithoutCurrentMessage(t *testing.T) {
	current := models.Message{ID: "m3", AuthorName: "alice", Content: "yes"}
	thread := models.ThreadSnapshot{
		ID:           "t1",
		TopicSummary: "Q1 deadline",
		Messages: []models.Message{
			{ID: "m1", AuthorName: "alice", Content: strings.Repeat("x", 400)},
			{ID: "m2", AuthorName: "bot", IsBot: true, ResponderName: "JohnPM", Content: "Is March 31 ok?", ReplyToID: "m1"},
			current,
		},
	}
	req := Request{
		Message:           current,
		ThreadID:          "t1",
		ActiveThreads:     []models.ThreadSnapshot{thread},
		ExplicitResponder: "JohnPM",
	}

	prompt := BuildPrompt(req, 20)

	assert.Contains(t, prompt, "### Conversation: t1")
	assert.Contains(t, prompt, "Topic: Q1 deadline")
	assert.Contains(t, prompt, "  - ID:m2 | JohnPM (bot): Is March 31 ok? [reply]")
	assert.NotContains(t, prompt, "ID:m3 |")
	assert.NotContains(t, prompt, strings.Repeat("x", 151))
	assert.Contains(t, prompt, "explicitly mentioned JohnPM")
	assert.Contains(t, prompt, "Attached by similarity to conversation: t1")
}

func TestBuildPrompt_LimitsMessagesPerThread(t *testing.T) {
	var msgs []models.Message
	for _, id := range []string{"a", "b", "c", "d"} {
		msgs = append(msgs, models.Message{ID: id, Content: id})
	}
	req := Request{
		Message:       models.Message{ID: "z"},
		ActiveThreads: []models.ThreadSnapshot{{ID: "t1", Messages: msgs}},
	}

	prompt := BuildPrompt(req, 2)

	assert.NotContains(t, prompt, "ID:b |")
	assert.Contains(t, prompt, "ID:c |")
	assert.Contains(t, prompt, "ID:d |")
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
