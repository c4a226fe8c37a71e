package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Cache    CacheConfig
	Fetch    FetchConfig
	Observe  ObserveConfig
	Rewrite  RewriteConfig
	Server   ServerConfig
	Sign     SignConfig
	Template TemplateConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// CacheConfig specifies the response cache bounds and freshness limits.
type CacheConfig struct {
	// MaxEntries bounds the number of cached responses held in memory.
	MaxEntries int `env:"CACHE_MAX_ENTRIES, default=10000"`

	// MaxLifetimeSeconds caps how long any entry may remain cached,
	// independent of its own freshness metadata.
	MaxLifetimeSeconds int `env:"CACHE_MAX_LIFETIME_SECS, default=86400"`

	// DefaultTTLSeconds applies when a response carries no cache metadata.
	DefaultTTLSeconds int `env:"CACHE_DEFAULT_TTL_SECS, default=300"`

	// MinTTLSeconds / MaxTTLSeconds clamp the TTL derived from response
	// metadata.
	MinTTLSeconds int `env:"CACHE_MIN_TTL_SECS, default=0"`
	MaxTTLSeconds int `env:"CACHE_MAX_TTL_SECS, default=86400"`
}

// FetchConfig specifies outgoing content fetch behaviour.
type FetchConfig struct {
	TimeoutSeconds int    `env:"FETCH_TIMEOUT_SECS, default=20"`
	MaxBodyBytes   int64  `env:"FETCH_MAX_BODY_BYTES, default=1048576"`
	UserAgent      string `env:"FETCH_USER_AGENT, default=gadget-bridge"`
}

// RewriteConfig locates the rewriter chain configuration.
type RewriteConfig struct {
	// ChainFile is the path to the YAML file naming the stages of each
	// chain role. Empty selects the built-in default chains.
	ChainFile string `env:"REWRITE_CHAIN_FILE"`
}

// TemplateConfig specifies template library loading.
type TemplateConfig struct {
	// Libraries is the list of library document paths to load at startup.
	Libraries []string `env:"TEMPLATE_LIBRARIES"`

	// WatchEnabled reloads library documents when they change on disk.
	WatchEnabled bool `env:"TEMPLATE_WATCH_ENABLED, default=false"`
}

// SignConfig specifies how proxy URL signatures are produced and verified.
type SignConfig struct {
	// Type selects the signer: "none" (signatures not required), "hmac"
	// or "kms".
	Type string `env:"SIGN_TYPE, default=none"`

	// HMACKey is the shared secret for the hmac signer.
	HMACKey string `env:"SIGN_HMAC_KEY"`

	// KMSKeyARN is the AWS KMS signing key for the kms signer.
	KMSKeyARN string `env:"SIGN_KMS_KEY_ARN"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=gadget-bridge"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Sign.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid signing configuration: %w", err)
	}

	err = cfg.Cache.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the signing configuration is valid.
func (c *SignConfig) Validate() error {
	switch c.Type {
	case "none":
		return nil
	case "hmac":
		if c.HMACKey == "" {
			return fmt.Errorf("SIGN_HMAC_KEY required when SIGN_TYPE=hmac")
		}
		return nil
	case "kms":
		if c.KMSKeyARN == "" {
			return fmt.Errorf("SIGN_KMS_KEY_ARN required when SIGN_TYPE=kms")
		}
		return nil
	default:
		return fmt.Errorf("invalid sign type %q: must be \"none\", \"hmac\" or \"kms\"", c.Type)
	}
}

// Validate checks that the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if c.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}

	if c.MaxTTLSeconds > 0 && c.MinTTLSeconds > c.MaxTTLSeconds {
		return fmt.Errorf("CACHE_MIN_TTL_SECS must not exceed CACHE_MAX_TTL_SECS")
	}

	return nil
}
