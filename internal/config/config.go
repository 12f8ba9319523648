package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	// EmbeddingDimensions must match the vector(N) column width of
	// chunk_vectors in the migrations. Changing it requires a schema
	// migration and a re-embed of every stored chunk.
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	CompletionModel     string `envconfig:"COMPLETION_MODEL" default:"gpt-4o-mini"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"doctalk-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Ingestion worker pool
	WorkerCount      int `envconfig:"WORKER_COUNT" default:"4"`
	PollIntervalSecs int `envconfig:"POLL_INTERVAL_SECS" default:"5"`

	// Retrieval defaults
	RetrievalTopK      int     `envconfig:"RETRIEVAL_TOP_K" default:"5"`
	ScoreThreshold     float32 `envconfig:"SCORE_THRESHOLD" default:"0.35"`
	HistoryTurns       int     `envconfig:"HISTORY_TURNS" default:"6"`
	CompletionTimeoutS int     `envconfig:"COMPLETION_TIMEOUT_SECS" default:"30"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DOCTALK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
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
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
