package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/xaenox/thread-router/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	s.logger.Info("Database schema ready")
	return nil
}

func (s *PostgresStorage) SaveMessage(ctx context.Context, msg *models.Message, threadID string) error {
	query := `
		INSERT INTO messages (id, channel_id, thread_id, author_id, author_name, content, is_bot, responder_name, reply_to_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET thread_id = EXCLUDED.thread_id`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ChannelID,
		threadID,
		msg.AuthorID,
		msg.AuthorName,
		msg.Content,
		msg.IsBot,
		msg.ResponderName,
		msg.ReplyToID,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("error saving message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SaveDecision(ctx context.Context, record *models.DecisionRecord) error {
	query := `
		INSERT INTO routing_decisions (id, message_id, channel_id, thread_id, should_respond, responder_name,
			confidence, context_message_ids, reasoning, rejection, failed_stage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.MessageID,
		record.ChannelID,
		record.ThreadID,
		record.ShouldRespond,
		record.ResponderName,
		record.Confidence,
		pq.Array(record.ContextMessageIDs),
		record.Reasoning,
		record.Rejection,
		record.FailedStage,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving decision: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetChannelMessages(ctx context.Context, channelID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, channel_id, author_id, author_name, content, is_bot, responder_name, reply_to_id, sent_at
		FROM messages
		WHERE channel_id = $1
		ORDER BY sent_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.ChannelID,
			&msg.AuthorID,
			&msg.AuthorName,
			&msg.Content,
			&msg.IsBot,
			&msg.ResponderName,
			&msg.ReplyToID,
			&msg.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

func (s *PostgresStorage) GetDecision(ctx context.Context, messageID string) (*models.DecisionRecord, error) {
	query := `
		SELECT id, message_id, channel_id, thread_id, should_respond, responder_name, confidence,
			context_message_ids, reasoning, rejection, failed_stage, created_at
		FROM routing_decisions
		WHERE message_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	record := &models.DecisionRecord{}
	err := s.db.QueryRowContext(ctx, query, messageID).Scan(
		&record.ID,
		&record.MessageID,
		&record.ChannelID,
		&record.ThreadID,
		&record.ShouldRespond,
		&record.ResponderName,
		&record.Confidence,
		pq.Array(&record.ContextMessageIDs),
		&record.Reasoning,
		&record.Rejection,
		&record.FailedStage,
		&record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying decision: %w", err)
	}
	return record, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
