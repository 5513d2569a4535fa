package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/lvhr/airea/internal/domain"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8000"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Knowledge-base snapshot bootstrap
	SnapshotSourceURL string        `envconfig:"SNAPSHOT_SOURCE_URL" required:"true"`
	SnapshotToken     string        `envconfig:"SNAPSHOT_TOKEN"`
	InstallPath       string        `envconfig:"INSTALL_PATH" default:"/var/lib/airea/knowledge"`
	ScratchDir        string        `envconfig:"SCRATCH_DIR" default:"/tmp/airea"`
	RefreshPolicy     string        `envconfig:"REFRESH_POLICY" default:"fetch_if_missing"`
	RefreshInterval   time.Duration `envconfig:"REFRESH_INTERVAL"`
	FetchRetries      uint64        `envconfig:"FETCH_RETRIES" default:"3"`

	// S3-hosted snapshot sources (s3:// URLs)
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY" required:"true"`

	// APIKey guards chat routes when set
	APIKey string `envconfig:"API_KEY"`

	// Retrieval tuning
	RetrievalTopK  int     `envconfig:"RETRIEVAL_TOP_K" default:"10"`
	RelevanceFloor float32 `envconfig:"RELEVANCE_FLOOR" default:"0.15"`
	HistoryTurns   int     `envconfig:"HISTORY_TURNS" default:"5"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("AIREA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if _, err := domain.ParseRefreshPolicy(cfg.RefreshPolicy); err != nil {
		return nil, fmt.Errorf("invalid AIREA_REFRESH_POLICY %q: %w", cfg.RefreshPolicy, err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) Policy() domain.RefreshPolicy {
	policy, _ := domain.ParseRefreshPolicy(c.RefreshPolicy)
	return policy
}
