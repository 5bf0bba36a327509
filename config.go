package hypercron

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/twlite/hypercron/errs"
)

// Default tunables applied by NewConfig before any Option runs.
const (
	DefaultChunkSize               = 1000
	DefaultRefreshInterval         = 24 * time.Hour
	DefaultLookAheadWindow         = 25 * time.Hour
	DefaultAutoCleanupEnabled      = true
	DefaultCleanupInterval         = 24 * time.Hour
	DefaultCompletedRetentionDays  = 7
	DefaultCancelledRetentionDays  = 30
	DefaultRetryMaxAttempts        = 3
	DefaultRetryBaseDelay          = time.Second
	DefaultRetryMaxDelay           = 30 * time.Second
	DefaultMaxConcurrentExecutions = 50
)

// Config holds every tunable the engine reads at construction time. Build one with
// NewConfig plus With* options.
type Config struct {
	// Path is the SQLite DSN/file path the store opens. Use ":memory:" for an
	// ephemeral, process-local store.
	Path string

	ChunkSize       int
	RefreshInterval time.Duration
	LookAheadWindow time.Duration

	AutoCleanupEnabled     bool
	CleanupInterval        time.Duration
	CompletedRetentionDays int
	CancelledRetentionDays int

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	MaxConcurrentExecutions int64

	OnError func(identifier string, err error)
	Logger  zerolog.Logger
}

// Option configures a Config during NewConfig.
type Option func(*Config) error

// NewConfig builds a Config with every default applied, then layers opts on top.
// Only path is required; every other tunable falls back to its documented default.
func NewConfig(path string, opts ...Option) (*Config, error) {
	cfg := &Config{
		Path:                    path,
		ChunkSize:               DefaultChunkSize,
		RefreshInterval:         DefaultRefreshInterval,
		LookAheadWindow:         DefaultLookAheadWindow,
		AutoCleanupEnabled:      DefaultAutoCleanupEnabled,
		CleanupInterval:         DefaultCleanupInterval,
		CompletedRetentionDays:  DefaultCompletedRetentionDays,
		CancelledRetentionDays:  DefaultCancelledRetentionDays,
		RetryMaxAttempts:        DefaultRetryMaxAttempts,
		RetryBaseDelay:          DefaultRetryBaseDelay,
		RetryMaxDelay:           DefaultRetryMaxDelay,
		MaxConcurrentExecutions: DefaultMaxConcurrentExecutions,
		Logger:                  zerolog.Nop(),
	}

	validation := &errs.ValidationError{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			validation.Add(err)
		}
	}
	if validation.HasError() {
		return nil, validation
	}

	if cfg.Path == "" {
		return nil, errors.New("hypercron: db path is required")
	}
	if cfg.RefreshInterval >= cfg.LookAheadWindow {
		return nil, errors.New("hypercron: refreshInterval must be strictly less than lookAheadWindow")
	}
	return cfg, nil
}

func WithChunkSize(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return errors.New("hypercron: chunkSize must be positive")
		}
		c.ChunkSize = n
		return nil
	}
}

func WithRefreshInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return errors.New("hypercron: refreshInterval must be positive")
		}
		c.RefreshInterval = d
		return nil
	}
}

func WithLookAheadWindow(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return errors.New("hypercron: lookAheadWindow must be positive")
		}
		c.LookAheadWindow = d
		return nil
	}
}

func WithAutoCleanup(enabled bool, interval time.Duration, completedRetentionDays, cancelledRetentionDays int) Option {
	return func(c *Config) error {
		if enabled && interval <= 0 {
			return errors.New("hypercron: cleanup interval must be positive when enabled")
		}
		c.AutoCleanupEnabled = enabled
		c.CleanupInterval = interval
		c.CompletedRetentionDays = completedRetentionDays
		c.CancelledRetentionDays = cancelledRetentionDays
		return nil
	}
}

func WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Config) error {
		if maxAttempts < 1 {
			return errors.New("hypercron: retry.maxAttempts must be at least 1")
		}
		if baseDelay <= 0 || maxDelay <= 0 {
			return errors.New("hypercron: retry delays must be positive")
		}
		c.RetryMaxAttempts = maxAttempts
		c.RetryBaseDelay = baseDelay
		c.RetryMaxDelay = maxDelay
		return nil
	}
}

func WithMaxConcurrentExecutions(n int64) Option {
	return func(c *Config) error {
		if n < 1 {
			return errors.New("hypercron: maxConcurrentExecutions must be positive")
		}
		c.MaxConcurrentExecutions = n
		return nil
	}
}

func WithOnError(fn func(identifier string, err error)) Option {
	return func(c *Config) error {
		c.OnError = fn
		return nil
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}
