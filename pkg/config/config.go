package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marbledata/marble/pkg/telemetry"
	"github.com/marbledata/marble/pkg/transport"
)

// Duration wraps time.Duration so values like "30s" parse from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// APIConfig holds the platform API connection settings.
type APIConfig struct {
	// BaseURL is the platform API base URL.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// Token authenticates requests. TokenFile takes precedence when set.
	Token string `yaml:"token,omitempty"`

	// TokenFile reads the token from a file at startup.
	TokenFile string `yaml:"token_file,omitempty"`

	// UserAgent overrides the default User-Agent header.
	UserAgent string `yaml:"user_agent,omitempty"`
}

// TransportConfig tunes the batch transport's retry and split behavior.
type TransportConfig struct {
	// MaxRetries bounds per-request retry attempts for HTTP status retries.
	MaxRetries int `yaml:"max_retries" validate:"min=0"`

	// MaxConnectRetries bounds retries of connection-phase failures.
	MaxConnectRetries int `yaml:"max_connect_retries" validate:"min=0"`

	// MaxReadRetries bounds retries of failures after the request was sent.
	MaxReadRetries int `yaml:"max_read_retries" validate:"min=0"`

	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff Duration `yaml:"max_backoff"`

	// RequestTimeout bounds a single HTTP attempt.
	RequestTimeout Duration `yaml:"request_timeout"`

	// MaxFailedSplits aborts a batch tree once this many splits have been
	// recorded across all its fragments.
	MaxFailedSplits int `yaml:"max_failed_splits" validate:"min=1"`

	// Compress gzips request bodies above the size threshold.
	Compress bool `yaml:"compress"`

	// Workers is the batch pool size.
	Workers int `yaml:"workers" validate:"min=0"`

	// QueueSize bounds the pending batch queue.
	QueueSize int `yaml:"queue_size" validate:"min=0"`

	// RetryableStatuses overrides the statuses retried at batch size one.
	RetryableStatuses []int `yaml:"retryable_statuses,omitempty" validate:"omitempty,dive,min=100,max=599"`

	// SplittableStatuses overrides the statuses that bisect a batch.
	SplittableStatuses []int `yaml:"splittable_statuses,omitempty" validate:"omitempty,dive,min=100,max=599"`
}

// EngineConfig tunes plan computation and execution.
type EngineConfig struct {
	// BestEffortOrdering prunes dependency cycles instead of failing.
	BestEffortOrdering bool `yaml:"best_effort_ordering"`

	// Prune plans deletion of remote resources with no definition.
	Prune bool `yaml:"prune"`
}

// Config is the root marble configuration.
type Config struct {
	API       APIConfig        `yaml:"api" validate:"required"`
	Transport TransportConfig  `yaml:"transport"`
	Engine    EngineConfig     `yaml:"engine"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns the configuration defaults. The API base URL has no
// default and must come from the file or flags.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			MaxRetries:        transport.DefaultMaxRetries,
			MaxConnectRetries: transport.DefaultMaxRetries,
			MaxReadRetries:    transport.DefaultMaxRetries,
			MaxBackoff:        Duration(transport.DefaultMaxBackoff),
			RequestTimeout:    Duration(transport.DefaultRequestTimeout),
			MaxFailedSplits:   transport.DefaultMaxFailedSplits,
			Compress:          true,
			Workers:           transport.DefaultWorkers,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// TransportOptions renders the configuration as transport client options.
func (c *Config) TransportOptions() transport.Options {
	opts := transport.Options{
		BaseURL:            c.API.BaseURL,
		UserAgent:          c.API.UserAgent,
		MaxRetries:         c.Transport.MaxRetries,
		MaxConnectRetries:  c.Transport.MaxConnectRetries,
		MaxReadRetries:     c.Transport.MaxReadRetries,
		MaxBackoff:         c.Transport.MaxBackoff.Std(),
		RequestTimeout:     c.Transport.RequestTimeout.Std(),
		MaxFailedSplits:    c.Transport.MaxFailedSplits,
		Compress:           c.Transport.Compress,
		RetryableStatuses:  c.Transport.RetryableStatuses,
		SplittableStatuses: c.Transport.SplittableStatuses,
	}
	if c.API.Token != "" {
		opts.Credentials = transport.StaticToken(c.API.Token)
	}
	return opts
}
