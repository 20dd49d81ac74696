package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Vector     VectorConfig
	Milvus     MilvusConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Embedding  EmbeddingConfig
	Synthesis  SynthesisConfig
	Retrieval  RetrievalConfig
	Classifier ClassifierConfig
	Ingestion  IngestionConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	RateLimit    int
}

// VectorConfig selects the vector index backend. "memory" keeps the index
// in-process; "milvus" uses a remote collection per corpus.
type VectorConfig struct {
	Provider string
	Dim      int
}

type MilvusConfig struct {
	Endpoint string
	APIKey   string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

// EmbeddingConfig selects the embedding backend. "openai" calls the remote
// model; "hashing" is the deterministic local vectorizer used for offline
// runs and tests.
type EmbeddingConfig struct {
	Provider string
	APIKey   string
	Model    string
	Dim      int
}

type SynthesisConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type RetrievalConfig struct {
	TopK   int
	Mode   string
	Rerank bool
}

type ClassifierConfig struct {
	Categories []string
	Threshold  float64
}

type IngestionConfig struct {
	Strategy      string
	MaxChunkWords int
	OverlapWords  int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/askdesk")

	viper.SetEnvPrefix("ASKDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Embedding.Provider == "openai" && config.Embedding.Dim != config.Vector.Dim {
		return nil, fmt.Errorf("embedding dim %d does not match vector index dim %d",
			config.Embedding.Dim, config.Vector.Dim)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)
	viper.SetDefault("server.rateLimit", 60)

	viper.SetDefault("vector.provider", "memory")
	viper.SetDefault("vector.dim", 1536)

	viper.SetDefault("milvus.endpoint", "localhost:19530")

	viper.SetDefault("sqlite.path", "./data/askdesk.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 3600)

	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dim", 1536)

	viper.SetDefault("synthesis.model", "gpt-4")
	viper.SetDefault("synthesis.temperature", 0.3)
	viper.SetDefault("synthesis.maxTokens", 2048)
	viper.SetDefault("synthesis.timeoutSec", 60)

	viper.SetDefault("retrieval.topK", 5)
	viper.SetDefault("retrieval.mode", "hybrid")
	viper.SetDefault("retrieval.rerank", true)

	viper.SetDefault("classifier.categories", []string{
		"Shipping Issue", "Return Request", "Payment Problem",
		"Product Quality", "Account/Login", "Technical Support", "General Inquiry",
	})
	viper.SetDefault("classifier.threshold", 0.75)

	viper.SetDefault("ingestion.strategy", "words")
	viper.SetDefault("ingestion.maxChunkWords", 100)
	viper.SetDefault("ingestion.overlapWords", 20)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
