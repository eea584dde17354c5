package crawler

import (
	"time"
)

type Config struct {
	// MaxPagesCeiling is the process-wide hard cap on pages per run;
	// per-request max_pages values above it are clamped.
	MaxPagesCeiling int
	DefaultMaxPages int
	Concurrency     int
	RequestTimeout  time.Duration
	UserAgent       string
	MaxBodyBytes    int64
}

// DefaultConfig returns the crawler defaults used when no profile overrides
// them.
func DefaultConfig() *Config {
	return &Config{
		MaxPagesCeiling: 500,
		DefaultMaxPages: 10,
		Concurrency:     5,
		RequestTimeout:  10 * time.Second,
		UserAgent:       "Vexa-Crawler/1.0",
		MaxBodyBytes:    5 << 20,
	}
}
