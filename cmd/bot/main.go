package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/thread-router/internal/bot"
	"github.com/xaenox/thread-router/internal/conversation"
	"github.com/xaenox/thread-router/internal/decider"
	"github.com/xaenox/thread-router/internal/embedding"
	"github.com/xaenox/thread-router/internal/maintenance"
	"github.com/xaenox/thread-router/internal/responder"
	"github.com/xaenox/thread-router/internal/router"
	"github.com/xaenox/thread-router/internal/similarity"
	"github.com/xaenox/thread-router/internal/storage"
	"github.com/xaenox/thread-router/internal/summarizer"
	"github.com/xaenox/thread-router/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const hashEmbeddingModel = "hash"

func main() {
	configPath := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}

	// Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	if cfg.OpenAI.APIKey == "" {
		logger.Fatal("OpenAI API key is required", zap.String("env", "OPENAI_API_KEY"))
	}
	if cfg.Telegram.Token == "" {
		logger.Fatal("Telegram token is required", zap.String("env", "TELEGRAM_TOKEN"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var archive storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		archive = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}
		archive, err = storage.NewPostgresStorage(ctx, dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer archive.Close()

	roster, err := responder.NewRoster(cfg.Responders)
	if err != nil {
		logger.Fatal("Invalid responder roster", zap.Error(err))
	}
	logger.Info("Loaded responders", zap.Strings("names", roster.Names()))

	clientConfig := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAI.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	var embedder embedding.Embedder
	if cfg.OpenAI.EmbeddingModel == hashEmbeddingModel {
		logger.Info("Using local hash embeddings")
		embedder = embedding.NewHashEmbedder(0)
	} else {
		embedder = embedding.NewOpenAIEmbedder(client, cfg.OpenAI.EmbeddingModel, logger)
	}

	rc := cfg.Routing
	store := conversation.NewStore(conversation.Options{
		Threshold:            rc.AttachmentThreshold,
		WindowSize:           rc.WindowSize,
		IdleExpiry:           rc.IdleExpiry,
		MaxThreadsPerChannel: rc.MaxThreadsPerChannel,
		Scorer:               similarity.NewScorer(rc.TopicWeight, rc.RecencyWeight),
	}, logger)

	routerDecider := decider.NewGPTDecider(client, cfg.OpenAI.RouterModel, cfg.OpenAI.MaxTokens, cfg.OpenAI.RouterTemperature, rc.PromptMessages, logger)
	engine := router.NewEngine(store, embedder, routerDecider, roster, router.Options{
		EmbedTimeout:  rc.EmbedTimeout,
		DecideTimeout: rc.DecideTimeout,
	}, logger)

	scheduler := maintenance.NewScheduler(store,
		summarizer.NewGPTSummarizer(client, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens, logger),
		embedder,
		maintenance.Options{
			SweepInterval:   rc.SweepInterval,
			RefreshInterval: rc.TopicRefreshInterval,
			RefreshEvery:    rc.TopicRefreshEvery,
		}, logger)

	executor := responder.NewGPTResponder(client, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens, cfg.OpenAI.Temperature, logger)

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, engine, store, roster, executor, archive, bot.Options{
		RespondTimeout: rc.RespondTimeout,
		PollTimeout:    cfg.Telegram.Timeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return b.Start(ctx) })

	if err := g.Wait(); err != nil {
		logger.Error("Bot stopped with error", zap.Error(err))
		return
	}
	logger.Info("Bot stopped")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	return zc.Build()
}
