package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr           string   `env:"HTTP_ADDR"              envDefault:":8080"`
	DBPath             string   `env:"DB_PATH"                envDefault:"db.sqlite"`
	Token              string   `env:"TOKEN"`
	AllowedUsers       []int64  `env:"ALLOWED_USERS"`
	OpenAIAPIKey       string   `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string   `env:"OPENAI_BASE_URL"`
	OpenAIModel        string   `env:"OPENAI_MODEL"           envDefault:"gpt-4o-mini"`
	MaxOutputTokens    int64    `env:"MAX_OUTPUT_TOKENS"      envDefault:"1024"`
	ChunkSize          int      `env:"CHUNK_SIZE"             envDefault:"4000"`
	ChunkOverlap       int      `env:"CHUNK_OVERLAP"          envDefault:"200"`
	MaxPageBytes       int64    `env:"MAX_PAGE_BYTES"         envDefault:"5242880"`
	MapReduceParallel  int      `env:"MAP_REDUCE_PARALLELISM" envDefault:"4"`
	StatsRetentionDays int      `env:"STATS_RETENTION_DAYS"   envDefault:"30"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)

	if err = cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// BotEnabled reports whether the Telegram front end has what it needs.
func (c Config) BotEnabled() bool {
	return c.Token != "" && c.OpenAIAPIKey != ""
}

func (c Config) validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("CHUNK_SIZE must be positive (got %d)", c.ChunkSize)
	case c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize:
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE) (got %d)", c.ChunkOverlap)
	case c.MaxPageBytes <= 0:
		return fmt.Errorf("MAX_PAGE_BYTES must be positive (got %d)", c.MaxPageBytes)
	case c.MapReduceParallel <= 0:
		return fmt.Errorf("MAP_REDUCE_PARALLELISM must be positive (got %d)", c.MapReduceParallel)
	case c.StatsRetentionDays <= 0:
		return fmt.Errorf("STATS_RETENTION_DAYS must be positive (got %d)", c.StatsRetentionDays)
	}

	return nil
}
