package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xaenox/thread-router/internal/models"
)

type Config struct {
	Telegram   TelegramConfig     `mapstructure:"telegram"`
	Database   DatabaseConfig     `mapstructure:"database"`
	OpenAI     OpenAIConfig       `mapstructure:"openai"`
	Routing    RoutingConfig      `mapstructure:"routing"`
	Log        LogConfig          `mapstructure:"log"`
	Responders []models.Responder `mapstructure:"responders"`
}

type TelegramConfig struct {
	Token   string `mapstructure:"token"`
	Timeout int    `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type OpenAIConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	Model             string  `mapstructure:"model"`
	RouterModel       string  `mapstructure:"router_model"`
	EmbeddingModel    string  `mapstructure:"embedding_model"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature"`
	RouterTemperature float64 `mapstructure:"router_temperature"`
}

// RoutingConfig holds the routing policy. None of these values are derived;
// they are starting points to be tuned against real traffic.
type RoutingConfig struct {
	AttachmentThreshold  float64       `mapstructure:"attachment_threshold"`
	TopicWeight          float64       `mapstructure:"topic_weight"`
	RecencyWeight        float64       `mapstructure:"recency_weight"`
	WindowSize           int           `mapstructure:"window_size"`
	PromptMessages       int           `mapstructure:"prompt_messages"`
	IdleExpiry           time.Duration `mapstructure:"idle_expiry"`
	MaxThreadsPerChannel int           `mapstructure:"max_threads_per_channel"`
	EmbedTimeout         time.Duration `mapstructure:"embed_timeout"`
	DecideTimeout        time.Duration `mapstructure:"decide_timeout"`
	RespondTimeout       time.Duration `mapstructure:"respond_timeout"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	TopicRefreshInterval time.Duration `mapstructure:"topic_refresh_interval"`
	TopicRefreshEvery    int           `mapstructure:"topic_refresh_every"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.timeout", 60)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", true)

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.router_model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.max_tokens", 500)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.router_temperature", 0.1)

	v.SetDefault("routing.attachment_threshold", 0.6)
	v.SetDefault("routing.topic_weight", 0.4)
	v.SetDefault("routing.recency_weight", 0.6)
	v.SetDefault("routing.window_size", 20)
	v.SetDefault("routing.prompt_messages", 20)
	v.SetDefault("routing.idle_expiry", "30m")
	v.SetDefault("routing.max_threads_per_channel", 5)
	v.SetDefault("routing.embed_timeout", "10s")
	v.SetDefault("routing.decide_timeout", "30s")
	v.SetDefault("routing.respond_timeout", "60s")
	v.SetDefault("routing.sweep_interval", "1m")
	v.SetDefault("routing.topic_refresh_interval", "30s")
	v.SetDefault("routing.topic_refresh_every", 5)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads the config file at path, applies defaults and environment
// overrides, and validates the result. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the router cannot run with.
func (c *Config) Validate() error {
	var errs []error
	r := c.Routing

	if r.AttachmentThreshold <= 0 || r.AttachmentThreshold > 1 {
		errs = append(errs, fmt.Errorf("routing.attachment_threshold %v outside (0, 1]", r.AttachmentThreshold))
	}
	if r.TopicWeight < 0 || r.RecencyWeight < 0 || r.TopicWeight+r.RecencyWeight <= 0 {
		errs = append(errs, fmt.Errorf("routing weights must be non-negative with a positive sum, got topic=%v recency=%v", r.TopicWeight, r.RecencyWeight))
	}
	if r.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("routing.window_size must be positive, got %d", r.WindowSize))
	}
	if r.IdleExpiry <= 0 {
		errs = append(errs, fmt.Errorf("routing.idle_expiry must be positive, got %s", r.IdleExpiry))
	}
	if r.MaxThreadsPerChannel <= 0 {
		errs = append(errs, fmt.Errorf("routing.max_threads_per_channel must be positive, got %d", r.MaxThreadsPerChannel))
	}
	if r.EmbedTimeout <= 0 || r.DecideTimeout <= 0 {
		errs = append(errs, errors.New("routing timeouts must be positive"))
	}
	if !c.Database.UseInMemory && c.Database.DBName == "" {
		errs = append(errs, errors.New("database.dbname is required unless database.use_in_memory is set"))
	}

	return errors.Join(errs...)
}
