package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"vexa/crawler"
	"vexa/pkg/chunking"
)

type Config struct {
	AppPort           int
	BoltPath          string
	QdrantHost        string
	QdrantPort        int
	EmbedderURL       string
	EmbedderModel     string
	EmbedderDimension int
	Chunking          chunking.Config
	Crawler           *crawler.Config
}

// Load reads configuration from the environment. EMBEDDER_URL is required;
// everything else has a default. CRAWL_PROFILE may point at a YAML file
// overriding the crawler defaults.
func Load() (*Config, error) {
	embedderURL := os.Getenv("EMBEDDER_URL")
	if embedderURL == "" {
		return nil, fmt.Errorf("environment variable EMBEDDER_URL is required but not set")
	}

	appPort, err := getEnvInt("APP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	qdrantPort, err := getEnvInt("QDRANT_PORT", 6334)
	if err != nil {
		return nil, err
	}
	dimension, err := getEnvInt("EMBEDDER_DIMENSION", 384)
	if err != nil {
		return nil, err
	}
	targetTokens, err := getEnvInt("CHUNK_TARGET_TOKENS", chunking.DefaultTargetTokens)
	if err != nil {
		return nil, err
	}
	overlapTokens, err := getEnvInt("CHUNK_OVERLAP_TOKENS", chunking.DefaultOverlapTokens)
	if err != nil {
		return nil, err
	}

	crawlerCfg, err := loadCrawlProfile(os.Getenv("CRAWL_PROFILE"))
	if err != nil {
		return nil, err
	}

	return &Config{
		AppPort:           appPort,
		BoltPath:          getEnvDefault("BOLT_PATH", "data/content.db"),
		QdrantHost:        getEnvDefault("QDRANT_HOST", "localhost"),
		QdrantPort:        qdrantPort,
		EmbedderURL:       embedderURL,
		EmbedderModel:     getEnvDefault("EMBEDDER_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		EmbedderDimension: dimension,
		Chunking: chunking.Config{
			TargetTokens:  targetTokens,
			OverlapTokens: overlapTokens,
		},
		Crawler: crawlerCfg,
	}, nil
}

// crawlProfile is the YAML shape of an optional crawler override file.
// Pointer fields distinguish "absent" from zero; durations are strings in
// time.ParseDuration syntax.
type crawlProfile struct {
	MaxPagesCeiling *int    `yaml:"max_pages_ceiling"`
	DefaultMaxPages *int    `yaml:"default_max_pages"`
	Concurrency     *int    `yaml:"concurrency"`
	RequestTimeout  *string `yaml:"request_timeout"`
	UserAgent       *string `yaml:"user_agent"`
	MaxBodyBytes    *int64  `yaml:"max_body_bytes"`
}

// loadCrawlProfile overlays a YAML profile on the crawler defaults. An empty
// path means defaults only.
func loadCrawlProfile(path string) (*crawler.Config, error) {
	cfg := crawler.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crawl profile %s: %w", path, err)
	}
	var profile crawlProfile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("parse crawl profile %s: %w", path, err)
	}

	if profile.MaxPagesCeiling != nil {
		cfg.MaxPagesCeiling = *profile.MaxPagesCeiling
	}
	if profile.DefaultMaxPages != nil {
		cfg.DefaultMaxPages = *profile.DefaultMaxPages
	}
	if profile.Concurrency != nil {
		cfg.Concurrency = *profile.Concurrency
	}
	if profile.RequestTimeout != nil {
		timeout, err := time.ParseDuration(*profile.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse crawl profile %s: request_timeout: %w", path, err)
		}
		cfg.RequestTimeout = timeout
	}
	if profile.UserAgent != nil {
		cfg.UserAgent = *profile.UserAgent
	}
	if profile.MaxBodyBytes != nil {
		cfg.MaxBodyBytes = *profile.MaxBodyBytes
	}
	return cfg, nil
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return n, nil
}
