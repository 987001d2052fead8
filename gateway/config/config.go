package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"shardgate/core/types"
	"shardgate/crypto"
)

// Environment variables that override file values.
const (
	EnvListen = "SHARDGATE_LISTEN"
	EnvHRP    = "SHARDGATE_HRP"
	EnvEnv    = "SHARDGATE_ENV"
)

type ShardConfig struct {
	Num uint16   `yaml:"num" toml:"num"`
	RPC []string `yaml:"rpc" toml:"rpc"`
}

type UpstreamConfig struct {
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
	CacheSize int           `yaml:"cacheSize" toml:"cacheSize"`
	// CacheDir, when set, persists hash-addressed responses in LevelDB.
	CacheDir string `yaml:"cacheDir" toml:"cacheDir"`
}

type RPCConfig struct {
	RequestTimeout time.Duration `yaml:"requestTimeout" toml:"requestTimeout"`
	MaxBatch       int           `yaml:"maxBatch" toml:"maxBatch"`
}

// CORSConfig lists the browser origins granted cross-origin access to the HTTP and
// WebSocket endpoints. Outside dev nothing is granted unless configured.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins" toml:"allowedOrigins"`
	AllowedHeaders   []string `yaml:"allowedHeaders" toml:"allowedHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials" toml:"allowCredentials"`
}

type RateLimitConfig struct {
	ID                string   `yaml:"id" toml:"id"`
	RequestsPerMinute float64  `yaml:"requestsPerMinute" toml:"requestsPerMinute"`
	RatePerSecond     float64  `yaml:"ratePerSecond" toml:"ratePerSecond"`
	Burst             int      `yaml:"burst" toml:"burst"`
	Paths             []string `yaml:"paths" toml:"paths"`
}

type ObservabilityConfig struct {
	ServiceName   string  `yaml:"serviceName" toml:"serviceName"`
	Metrics       bool    `yaml:"metrics" toml:"metrics"`
	Tracing       bool    `yaml:"tracing" toml:"tracing"`
	LogRequests   bool    `yaml:"logRequests" toml:"logRequests"`
	OTLPEndpoint  string  `yaml:"otlpEndpoint" toml:"otlpEndpoint"`
	OTLPInsecure  bool    `yaml:"otlpInsecure" toml:"otlpInsecure"`
	SampleRatio   float64 `yaml:"sampleRatio" toml:"sampleRatio"`
	MetricsPrefix string  `yaml:"metricsPrefix" toml:"metricsPrefix"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB" toml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays"`
}

// AuthConfig guards the write methods of the JSON-RPC surface with HMAC-signed JWTs.
type AuthConfig struct {
	Enabled        bool          `yaml:"enabled" toml:"enabled"`
	HMACSecret     string        `yaml:"hmacSecret" toml:"hmacSecret"`
	HMACSecretEnv  string        `yaml:"hmacSecretEnv" toml:"hmacSecretEnv"`
	Issuer         string        `yaml:"issuer" toml:"issuer"`
	Audience       string        `yaml:"audience" toml:"audience"`
	ScopeClaim     string        `yaml:"scopeClaim" toml:"scopeClaim"`
	SubmitScope    string        `yaml:"submitScope" toml:"submitScope"`
	GuardedMethods []string      `yaml:"guardedMethods" toml:"guardedMethods"`
	ClockSkew      time.Duration `yaml:"clockSkew" toml:"clockSkew"`
	enabledSet     bool          `yaml:"-" toml:"-"`
}

func (a *AuthConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawAuthConfig struct {
		Enabled        *bool         `yaml:"enabled"`
		HMACSecret     string        `yaml:"hmacSecret"`
		HMACSecretEnv  string        `yaml:"hmacSecretEnv"`
		Issuer         string        `yaml:"issuer"`
		Audience       string        `yaml:"audience"`
		ScopeClaim     string        `yaml:"scopeClaim"`
		SubmitScope    string        `yaml:"submitScope"`
		GuardedMethods []string      `yaml:"guardedMethods"`
		ClockSkew      time.Duration `yaml:"clockSkew"`
	}
	var raw rawAuthConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		a.Enabled = *raw.Enabled
		a.enabledSet = true
	} else {
		a.Enabled = false
		a.enabledSet = false
	}
	a.HMACSecret = raw.HMACSecret
	a.HMACSecretEnv = raw.HMACSecretEnv
	a.Issuer = raw.Issuer
	a.Audience = raw.Audience
	a.ScopeClaim = raw.ScopeClaim
	a.SubmitScope = raw.SubmitScope
	a.GuardedMethods = raw.GuardedMethods
	a.ClockSkew = raw.ClockSkew
	return nil
}

// Secret resolves the HMAC secret, preferring the named environment variable.
func (a AuthConfig) Secret() string {
	if name := strings.TrimSpace(a.HMACSecretEnv); name != "" {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(a.HMACSecret)
}

type SecurityConfig struct {
	AllowInsecure   bool   `yaml:"allowInsecure" toml:"allowInsecure"`
	TLSCertFile     string `yaml:"tlsCertFile" toml:"tlsCertFile"`
	TLSKeyFile      string `yaml:"tlsKeyFile" toml:"tlsKeyFile"`
	TLSClientCAFile string `yaml:"tlsClientCAFile" toml:"tlsClientCAFile"`
}

type Config struct {
	Env           string              `yaml:"env" toml:"env"`
	ListenAddress string              `yaml:"listen" toml:"listen"`
	ReadTimeout   time.Duration       `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout  time.Duration       `yaml:"writeTimeout" toml:"writeTimeout"`
	IdleTimeout   time.Duration       `yaml:"idleTimeout" toml:"idleTimeout"`
	HRP           string              `yaml:"hrp" toml:"hrp"`
	Shards        []ShardConfig       `yaml:"shards" toml:"shards"`
	Upstream      UpstreamConfig      `yaml:"upstream" toml:"upstream"`
	RPC           RPCConfig           `yaml:"rpc" toml:"rpc"`
	RateLimits    []RateLimitConfig   `yaml:"rateLimits" toml:"rateLimits"`
	CORS          CORSConfig          `yaml:"cors" toml:"cors"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	Security      SecurityConfig      `yaml:"security" toml:"security"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
}

func defaults() Config {
	return Config{
		Env:           "dev",
		ListenAddress: "127.0.0.1:9033",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  60 * time.Second,
		IdleTimeout:   120 * time.Second,
		Upstream: UpstreamConfig{
			Timeout:   10 * time.Second,
			CacheSize: 4096,
		},
		RPC: RPCConfig{
			RequestTimeout: 30 * time.Second,
			MaxBatch:       100,
		},
		Observability: ObservabilityConfig{
			ServiceName:   "shardgate",
			Metrics:       true,
			LogRequests:   true,
			MetricsPrefix: "shardgate",
		},
		Auth: AuthConfig{
			ScopeClaim:     "scope",
			SubmitScope:    "submit",
			GuardedMethods: []string{"author_submitExtrinsic"},
			ClockSkew:      2 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the gateway configuration from path. Files ending in .toml are decoded as
// TOML, anything else as YAML. A .env file next to the config, when present, seeds the
// process environment before overrides are applied. An empty path yields defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
			return Config{}, err
		}
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	// variables already set in the process win
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func decodeFile(path string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("decode config: unknown key %s", undecoded[0])
		}
		cfg.Auth.enabledSet = meta.IsDefined("auth", "enabled")
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (cfg *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHRP)); v != "" {
		cfg.HRP = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvEnv)); v != "" {
		cfg.Env = v
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = 10 * time.Second
	}
	if cfg.RPC.RequestTimeout <= 0 {
		cfg.RPC.RequestTimeout = 30 * time.Second
	}
	if cfg.RPC.MaxBatch <= 0 {
		cfg.RPC.MaxBatch = 100
	}
	if len(cfg.CORS.AllowedOrigins) == 0 && strings.EqualFold(strings.TrimSpace(cfg.Env), "dev") {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
	sort.Slice(cfg.Shards, func(i, j int) bool { return cfg.Shards[i].Num < cfg.Shards[j].Num })
}

var (
	ErrAuthEnabledNotConfigured = errors.New("auth.enabled must be explicitly set for TLS deployments")
	ErrNoShards                 = errors.New("at least one shard must be configured")
)

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.HRP) == "" {
		return fmt.Errorf("hrp is required")
	}
	if len(cfg.Shards) == 0 {
		return ErrNoShards
	}
	for i, shard := range cfg.Shards {
		if int(shard.Num) != i {
			return fmt.Errorf("shards must be numbered contiguously from 0: found %d at position %d", shard.Num, i)
		}
		if len(shard.RPC) == 0 {
			return fmt.Errorf("shards[%d].rpc must list at least one endpoint", i)
		}
		for j, endpoint := range shard.RPC {
			if err := validateEndpoint(cfg.Env, endpoint); err != nil {
				return fmt.Errorf("shards[%d].rpc[%d]: %w", i, j, err)
			}
		}
	}
	if cfg.Upstream.CacheSize < 0 {
		return fmt.Errorf("upstream.cacheSize cannot be negative")
	}
	if strings.TrimSpace(cfg.Upstream.CacheDir) != "" && cfg.Upstream.CacheSize == 0 {
		return fmt.Errorf("upstream.cacheDir requires a positive upstream.cacheSize")
	}
	if cfg.isSensitiveDeployment() && !cfg.Auth.enabledSet {
		return ErrAuthEnabledNotConfigured
	}
	if cfg.Auth.Enabled && cfg.Auth.Secret() == "" {
		return fmt.Errorf("auth.hmacSecret or auth.hmacSecretEnv is required when auth is enabled")
	}
	if (cfg.Security.TLSCertFile == "") != (cfg.Security.TLSKeyFile == "") {
		return fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must be set together")
	}
	for i, limit := range cfg.RateLimits {
		if limit.RatePerSecond <= 0 && limit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rateLimits[%d] needs ratePerSecond or requestsPerMinute", i)
		}
	}
	for i, origin := range cfg.CORS.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("cors.allowedOrigins[%d] is empty", i)
		}
		if origin == "*" && cfg.CORS.AllowCredentials {
			return fmt.Errorf("cors.allowCredentials cannot be combined with a wildcard origin")
		}
	}
	if r := cfg.Observability.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("observability.sampleRatio must be within [0, 1]")
	}
	return nil
}

// Network is the immutable snapshot handed to the query layer.
func (cfg Config) Network() types.Network {
	return types.Network{HRP: crypto.HRP(cfg.HRP), ShardCount: uint16(len(cfg.Shards))}
}

// Endpoints maps each shard number to its node URLs.
func (cfg Config) Endpoints() map[uint16][]string {
	out := make(map[uint16][]string, len(cfg.Shards))
	for _, shard := range cfg.Shards {
		out[shard.Num] = append([]string(nil), shard.RPC...)
	}
	return out
}

func (cfg *Config) isSensitiveDeployment() bool {
	if cfg == nil {
		return false
	}
	if strings.TrimSpace(cfg.Security.TLSCertFile) != "" {
		return true
	}
	if strings.TrimSpace(cfg.Security.TLSKeyFile) != "" {
		return true
	}
	if strings.TrimSpace(cfg.Security.TLSClientCAFile) != "" {
		return true
	}
	return false
}

func validateEndpoint(env, endpoint string) error {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("endpoint %q has no host", endpoint)
	}
	return EnforceSecureScheme(env, parsed)
}

// EnforceSecureScheme rejects plaintext node endpoints outside of the dev environment.
func EnforceSecureScheme(env string, target *url.URL) error {
	if target == nil {
		return fmt.Errorf("target URL is nil")
	}
	switch strings.ToLower(strings.TrimSpace(target.Scheme)) {
	case "https", "wss":
		return nil
	case "http", "ws":
		if isDevEnv(env) {
			return nil
		}
		if strings.TrimSpace(env) == "" {
			env = "(unset)"
		}
		return fmt.Errorf("plaintext endpoints are not permitted for environment %s", env)
	case "":
		return fmt.Errorf("URL scheme is required")
	default:
		return fmt.Errorf("unsupported URL scheme %q", target.Scheme)
	}
}

func isDevEnv(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "dev")
}
