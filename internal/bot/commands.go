package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/thread-router/internal/models"
	"go.uber.org/zap"
)

const historyLimit = 10

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "threads":
		b.handleThreads(message)
	case "responders":
		b.handleResponders(message)
	case "history":
		b.handleHistory(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Hi! I follow the conversations in this chat and bring in the right teammate when one is needed.

Talk as usual, or mention someone directly with @Name.
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/threads - Show the conversations I'm tracking here
/responders - Show who can answer
/history - Show recent messages and routing decisions

Mention a responder with @Name to ask them directly.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleThreads(message *tgbotapi.Message) {
	threads := b.store.ActiveThreads(strconv.FormatInt(message.Chat.ID, 10))
	if len(threads) == 0 {
		b.sendMessage(message.Chat.ID, "No active conversations yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("*Active conversations:*\n\n")
	for i, th := range threads {
		topic := th.TopicSummary
		if topic == "" {
			topic = "(no topic yet)"
		}
		line := fmt.Sprintf("%d. %s, %d messages, last active %s",
			i+1, topic, len(th.Messages), th.LastUpdated.Format("15:04"))
		sb.WriteString(escapeMarkdown(line) + "\n")
	}

	b.sendMarkdown(message.Chat.ID, 0, sb.String())
}

func (b *Bot) handleResponders(message *tgbotapi.Message) {
	all := b.roster.All()
	if len(all) == 0 {
		b.sendMessage(message.Chat.ID, "No responders are configured.")
		return
	}

	var sb strings.Builder
	sb.WriteString("*Responders:*\n")
	for _, p := range all {
		sb.WriteString(escapeMarkdown(fmt.Sprintf("@%s - %s", p.Name, p.Role)) + "\n")
	}

	b.sendMarkdown(message.Chat.ID, 0, sb.String())
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	messages, err := b.storage.GetChannelMessages(ctx, strconv.FormatInt(message.Chat.ID, 10), historyLimit)
	if err != nil {
		b.logger.Error("Failed to get channel messages",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendMessage(message.Chat.ID, "Sorry, I couldn't retrieve the message history.")
		return
	}

	if len(messages) == 0 {
		b.sendMessage(message.Chat.ID, "No messages yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("*Recent messages:*\n\n")
	// Stored newest first; print oldest first.
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		sb.WriteString(fmt.Sprintf("*%s*: %s\n", escapeMarkdown(msg.DisplayAuthor()), escapeMarkdown(preview(msg.Content, 120))))
		if msg.IsBot {
			continue
		}
		record, err := b.storage.GetDecision(ctx, msg.ID)
		if err != nil {
			continue
		}
		sb.WriteString("_" + escapeMarkdown(describeDecision(record)) + "_\n")
	}

	b.sendMarkdown(message.Chat.ID, 0, sb.String())
}

func describeDecision(record *models.DecisionRecord) string {
	switch {
	case record.FailedStage != "":
		return "routing failed at " + record.FailedStage
	case record.Rejection != "":
		return "decision rejected: " + record.Rejection
	case record.ShouldRespond:
		return fmt.Sprintf("routed to %s (%.2f)", record.ResponderName, record.Confidence)
	default:
		return "no response needed"
	}
}

func preview(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}

func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, replyTo int, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.ReplyToMessageID = replyTo

	sent, err := b.sender.Send(msg)
	if err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
	return sent, err
}

// sendReply posts a responder's answer as a reply to the routed message.
func (b *Bot) sendReply(chatID int64, replyTo int, p models.Responder, reply string) (tgbotapi.Message, error) {
	text := fmt.Sprintf("*%s*: %s", escapeMarkdown(p.Label()), escapeMarkdown(reply))
	return b.sendMarkdown(chatID, replyTo, text)
}
