package responder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/thread-router/internal/models"
	"go.uber.org/zap"
)

func TestFormatContext(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	got := FormatContext([]models.Message{
		{AuthorName: "alice", Content: "What's the deadline?", Timestamp: at},
		{AuthorName: "TeamBot", IsBot: true, ResponderName: "JohnPM", Content: "March 31", ReplyToID: "1", Timestamp: at},
	})

	assert.Equal(t,
		"[2024-03-01 09:30] alice: What's the deadline?\n[2024-03-01 09:30] TeamBot [JohnPM]: March 31 (reply)",
		got)
	assert.Equal(t, "No prior context available.", FormatContext(nil))
}

func TestBuildQuery(t *testing.T) {
	query := BuildQuery(Request{
		Message:   models.Message{Content: "yes"},
		Context:   []models.Message{{AuthorName: "alice", Content: "Ship on Friday?"}},
		Reasoning: "follow-up to release planning",
		Selection: SelectedByRouter,
	})

	assert.Contains(t, query, "<router_reasoning>")
	assert.Contains(t, query, "Selection type: router")
	assert.Contains(t, query, "alice: Ship on Friday?")
	assert.Contains(t, query, "<current_message>\nyes\n</current_message>")
	assert.Contains(t, query, "using the conversation context")

	bare := BuildQuery(Request{Message: models.Message{Content: "hi"}})
	assert.NotContains(t, bare, "<router_reasoning>")
	assert.NotContains(t, bare, "<conversation_context>")
	assert.Contains(t, bare, "Respond to the current message.")
}

func TestSystemPrompt_IncludesKnowledgeBase(t *testing.T) {
	dir := t.TempDir()
	kb := filepath.Join(dir, "pm.txt")
	require.NoError(t, os.WriteFile(kb, []byte("Q1 ends March 31.\n"), 0o600))

	r := NewGPTResponder(nil, "gpt-4o-mini", 200, 0.7, zap.NewNop())

	prompt := r.systemPrompt(Request{Responder: models.Responder{Name: "JohnPM", Role: "PM", KnowledgeBasePath: kb}})
	assert.Contains(t, prompt, "You are JohnPM, the team's PM.")
	assert.Contains(t, prompt, "<knowledge_base>\nQ1 ends March 31.\n</knowledge_base>")

	missing := r.systemPrompt(Request{Responder: models.Responder{Name: "JohnPM", SystemPrompt: "Be brief.", KnowledgeBasePath: filepath.Join(dir, "nope")}})
	assert.Equal(t, "Be brief.", missing)
}
