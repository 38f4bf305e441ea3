package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/xaenox/thread-router/internal/conversation"
	"github.com/xaenox/thread-router/internal/models"
	"github.com/xaenox/thread-router/internal/responder"
	"github.com/xaenox/thread-router/internal/router"
	"github.com/xaenox/thread-router/internal/storage"
	"go.uber.org/zap"
)

// Sender delivers text to a chat. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Options struct {
	RespondTimeout time.Duration
	PollTimeout    int
}

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   Sender
	engine   *router.Engine
	store    *conversation.Store
	roster   *responder.Roster
	executor responder.Executor
	storage  storage.Storage
	opts     Options
	logger   *zap.Logger
}

func New(token string, engine *router.Engine, store *conversation.Store, roster *responder.Roster, executor responder.Executor, archive storage.Storage, opts Options, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, engine, store, roster, executor, archive, opts, logger)
	b.api = api
	return b, nil
}

func newBot(sender Sender, engine *router.Engine, store *conversation.Store, roster *responder.Roster, executor responder.Executor, archive storage.Storage, opts Options, logger *zap.Logger) *Bot {
	if opts.RespondTimeout <= 0 {
		opts.RespondTimeout = time.Minute
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60
	}
	return &Bot{
		sender:   sender,
		engine:   engine,
		store:    store,
		roster:   roster,
		executor: executor,
		storage:  archive,
		opts:     opts,
		logger:   logger,
	}
}

// Start polls for updates until ctx is cancelled. Each message is handled on
// its own goroutine; per-channel ordering is enforced by the store.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot has no telegram client")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.opts.PollTimeout

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.From.IsBot {
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	msg := toMessage(message)
	if strings.TrimSpace(msg.Content) == "" {
		return
	}
	b.route(ctx, msg, message.MessageID)
}

// route runs msg through the engine and answers it when the decision says so.
// Failures are logged and otherwise silent.
func (b *Bot) route(ctx context.Context, msg models.Message, replyTo int) {
	out, routeErr := b.engine.Route(ctx, msg)

	b.archive(ctx, msg, out, routeErr)

	// A failed stage still answers when the sender mentioned a responder.
	if !out.Decision.ShouldRespond {
		return
	}

	p, ok := b.roster.Lookup(out.Decision.ResponderName)
	if !ok {
		return
	}

	selection := responder.SelectedByRouter
	if out.Explicit {
		selection = responder.SelectedByMention
	}
	req := responder.Request{
		Responder: p,
		Message:   msg,
		Context:   b.contextMessages(msg.ChannelID, out.Decision),
		Reasoning: out.Decision.Reasoning,
		Selection: selection,
	}

	respondCtx, cancel := context.WithTimeout(ctx, b.opts.RespondTimeout)
	defer cancel()
	reply, err := b.executor.Respond(respondCtx, req)
	if err != nil {
		b.logger.Warn("Failed to generate reply",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("responder", p.Name))
		return
	}

	chatID, err := strconv.ParseInt(msg.ChannelID, 10, 64)
	if err != nil {
		b.logger.Error("Invalid chat id", zap.String("channel_id", msg.ChannelID), zap.Error(err))
		return
	}
	sent, err := b.sendReply(chatID, replyTo, p, reply)
	if err != nil {
		return
	}

	botMsg := models.Message{
		ID:            messageID(chatID, sent.MessageID),
		ChannelID:     msg.ChannelID,
		AuthorID:      "bot",
		AuthorName:    p.Label(),
		Content:       reply,
		IsBot:         true,
		ResponderName: p.Name,
		ReplyToID:     msg.ID,
		Timestamp:     time.Now(),
	}
	threadID, err := b.engine.Observe(ctx, botMsg, out.ThreadID)
	if err != nil {
		b.logger.Warn("Failed to record reply in thread", zap.String("message_id", botMsg.ID), zap.Error(err))
	}
	if err := b.storage.SaveMessage(ctx, &botMsg, threadID); err != nil {
		b.logger.Error("Failed to archive reply", zap.Error(err), zap.String("message_id", botMsg.ID))
	}
}

// contextMessages resolves the decision's context ids against the current
// thread snapshot, keeping thread order.
func (b *Bot) contextMessages(channelID string, d models.ValidatedDecision) []models.Message {
	if d.ConversationID == "" || len(d.ContextMessageIDs) == 0 {
		return nil
	}
	snap, ok := b.store.Thread(channelID, d.ConversationID)
	if !ok {
		return nil
	}
	wanted := make(map[string]struct{}, len(d.ContextMessageIDs))
	for _, id := range d.ContextMessageIDs {
		wanted[id] = struct{}{}
	}
	var out []models.Message
	for _, m := range snap.Messages {
		if _, ok := wanted[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (b *Bot) archive(ctx context.Context, msg models.Message, out router.Outcome, routeErr error) {
	if err := b.storage.SaveMessage(ctx, &msg, out.ThreadID); err != nil {
		b.logger.Error("Failed to archive message", zap.Error(err), zap.String("message_id", msg.ID))
	}

	record := &models.DecisionRecord{
		ID:                uuid.New().String(),
		MessageID:         msg.ID,
		ChannelID:         msg.ChannelID,
		ThreadID:          out.ThreadID,
		ShouldRespond:     out.Decision.ShouldRespond,
		ResponderName:     out.Decision.ResponderName,
		Confidence:        out.Decision.Confidence,
		ContextMessageIDs: out.Decision.ContextMessageIDs,
		Reasoning:         out.Decision.Reasoning,
		CreatedAt:         time.Now(),
	}
	if record.ContextMessageIDs == nil {
		record.ContextMessageIDs = []string{}
	}
	if out.Rejection != nil {
		record.Rejection = out.Rejection.Error()
	}
	var stageErr *router.StageError
	if errors.As(routeErr, &stageErr) {
		record.FailedStage = string(stageErr.Stage)
	}
	if err := b.storage.SaveDecision(ctx, record); err != nil {
		b.logger.Error("Failed to archive decision", zap.Error(err), zap.String("message_id", msg.ID))
	}
}

func toMessage(message *tgbotapi.Message) models.Message {
	// Get content from message
	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}

	chatID := message.Chat.ID
	msg := models.Message{
		ID:         messageID(chatID, message.MessageID),
		ChannelID:  strconv.FormatInt(chatID, 10),
		AuthorID:   strconv.FormatInt(message.From.ID, 10),
		AuthorName: authorName(message.From),
		Content:    content,
		Timestamp:  message.Time(),
	}
	if message.ReplyToMessage != nil {
		msg.ReplyToID = messageID(chatID, message.ReplyToMessage.MessageID)
	}
	return msg
}

// messageID qualifies a Telegram message id, which is only unique per chat.
func messageID(chatID int64, id int) string {
	return fmt.Sprintf("%d:%d", chatID, id)
}

func authorName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return strconv.FormatInt(u.ID, 10)
	}
	return name
}
