// Package config loads the cdpview daemon and CLI configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"cdpview/feeds"
)

// Environment overrides.
const (
	EnvRPCURL  = "CDPVIEW_RPC_URL"
	EnvAccount = "CDPVIEW_ACCOUNT"
	EnvEnv     = "CDPVIEW_ENV"
)

const (
	defaultListen       = ":8080"
	defaultFeedInterval = 30 * time.Second
	defaultHistoryDSN   = "file:cdpview-history.db"
	defaultMaxCalls     = 50
	defaultParallelism  = 4
)

// ErrRPCURLRequired is returned when no node endpoint is configured.
var ErrRPCURLRequired = errors.New("rpc_url must be configured")

// Contracts are the MCD deployments the CDP reads go to.
type Contracts struct {
	CDPManager string `yaml:"cdp_manager" toml:"cdp_manager"`
	Vat        string `yaml:"vat" toml:"vat"`
	Spotter    string `yaml:"spotter" toml:"spotter"`
}

// RateLimitConfig limits one route class per client.
type RateLimitConfig struct {
	ID                string  `yaml:"id" toml:"id"`
	RequestsPerMinute float64 `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// ObservabilityConfig toggles telemetry.
type ObservabilityConfig struct {
	ServiceName   string `yaml:"service_name" toml:"service_name"`
	Metrics       bool   `yaml:"metrics" toml:"metrics"`
	Tracing       bool   `yaml:"tracing" toml:"tracing"`
	LogRequests   bool   `yaml:"log_requests" toml:"log_requests"`
	MetricsPrefix string `yaml:"metrics_prefix" toml:"metrics_prefix"`
	OTLPEndpoint  string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure" toml:"otlp_insecure"`
}

// CORSConfig lists the origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// Config is the full configuration.
type Config struct {
	Environment   string              `yaml:"env" toml:"env"`
	ListenAddress string              `yaml:"listen" toml:"listen"`
	ReadTimeout   time.Duration       `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout  time.Duration       `yaml:"write_timeout" toml:"write_timeout"`
	IdleTimeout   time.Duration       `yaml:"idle_timeout" toml:"idle_timeout"`
	RPCURL        string              `yaml:"rpc_url" toml:"rpc_url"`
	Multicall     string              `yaml:"multicall" toml:"multicall"`
	MaxCalls      int                 `yaml:"max_calls" toml:"max_calls"`
	Parallelism   int                 `yaml:"parallelism" toml:"parallelism"`
	Account       string              `yaml:"account" toml:"account"`
	DaiToken      string              `yaml:"dai_token" toml:"dai_token"`
	Contracts     Contracts           `yaml:"contracts" toml:"contracts"`
	Addresses     map[string]string   `yaml:"addresses" toml:"addresses"`
	Ilks          []feeds.Ilk         `yaml:"ilks" toml:"ilks"`
	FeedInterval  time.Duration       `yaml:"feed_interval" toml:"feed_interval"`
	HistoryDSN    string              `yaml:"history_dsn" toml:"history_dsn"`
	FeedCacheDir  string              `yaml:"feed_cache_dir" toml:"feed_cache_dir"`
	RateLimits    []RateLimitConfig   `yaml:"rate_limits" toml:"rate_limits"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
	CORS          CORSConfig          `yaml:"cors" toml:"cors"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Environment:   "dev",
		ListenAddress: defaultListen,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		MaxCalls:      defaultMaxCalls,
		Parallelism:   defaultParallelism,
		FeedInterval:  defaultFeedInterval,
		HistoryDSN:    defaultHistoryDSN,
		Observability: ObservabilityConfig{
			ServiceName:   "cdpviewd",
			Metrics:       true,
			Tracing:       true,
			LogRequests:   true,
			MetricsPrefix: "cdpview",
		},
	}
}

// Load reads path (YAML, or TOML when it ends in .toml), applies the
// environment overrides, then normalises and validates the result. An empty
// path yields the defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("decode config: unknown key %s", undecoded[0].String())
		}
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

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRPCURL); ok && strings.TrimSpace(v) != "" {
		cfg.RPCURL = v
	}
	if v, ok := lookup(EnvAccount); ok {
		cfg.Account = v
	}
	if v, ok := lookup(EnvEnv); ok && strings.TrimSpace(v) != "" {
		cfg.Environment = v
	}
}

func (cfg *Config) normalize() {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.RPCURL = strings.TrimSpace(cfg.RPCURL)
	cfg.Account = strings.TrimSpace(cfg.Account)
	cfg.HistoryDSN = strings.TrimSpace(cfg.HistoryDSN)
	cfg.FeedCacheDir = strings.TrimSpace(cfg.FeedCacheDir)
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaultListen
	}
	if cfg.FeedInterval <= 0 {
		cfg.FeedInterval = defaultFeedInterval
	}
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = defaultMaxCalls
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.HistoryDSN == "" {
		cfg.HistoryDSN = defaultHistoryDSN
	}
	normalized := make(map[string]string, len(cfg.Addresses))
	for key, value := range cfg.Addresses {
		normalized[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	cfg.Addresses = normalized
	for i := range cfg.Ilks {
		cfg.Ilks[i].Key = strings.ToUpper(strings.TrimSpace(cfg.Ilks[i].Key))
		cfg.Ilks[i].Gem = strings.ToUpper(strings.TrimSpace(cfg.Ilks[i].Gem))
		if cfg.Ilks[i].Decimals <= 0 {
			cfg.Ilks[i].Decimals = feeds.DefaultDecimals
		}
	}
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.RPCURL == "" {
		return ErrRPCURLRequired
	}
	target, err := url.Parse(cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("parse rpc_url: %w", err)
	}
	if _, err := EnforceSecureScheme(cfg.Environment, target); err != nil {
		return fmt.Errorf("rpc_url: %w", err)
	}
	checks := map[string]string{
		"contracts.cdp_manager": cfg.Contracts.CDPManager,
		"contracts.vat":         cfg.Contracts.Vat,
		"contracts.spotter":     cfg.Contracts.Spotter,
	}
	for field, value := range checks {
		if err := requireAddress(field, value); err != nil {
			return err
		}
	}
	for field, value := range map[string]string{"multicall": cfg.Multicall, "dai_token": cfg.DaiToken, "account": cfg.Account} {
		if value == "" {
			continue
		}
		if err := requireAddress(field, value); err != nil {
			return err
		}
	}
	for key, value := range cfg.Addresses {
		if key == "" {
			return fmt.Errorf("addresses: empty key")
		}
		if err := requireAddress("addresses."+key, value); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(cfg.Ilks))
	for i, ilk := range cfg.Ilks {
		if ilk.Key == "" {
			return fmt.Errorf("ilks[%d].key cannot be empty", i)
		}
		if _, dup := seen[ilk.Key]; dup {
			return fmt.Errorf("ilks[%d]: duplicate ilk %s", i, ilk.Key)
		}
		seen[ilk.Key] = struct{}{}
		if ilk.Decimals > 36 {
			return fmt.Errorf("ilks[%d].decimals must be at most 36", i)
		}
	}
	for i, limit := range cfg.RateLimits {
		if strings.TrimSpace(limit.ID) == "" {
			return fmt.Errorf("rate_limits[%d].id cannot be empty", i)
		}
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate_limits[%d] must not be negative", i)
		}
	}
	return nil
}

func requireAddress(field, value string) error {
	if !common.IsHexAddress(value) {
		return fmt.Errorf("%s: invalid address %q", field, value)
	}
	return nil
}

// FeedAddresses returns the parsed feed address book.
func (cfg Config) FeedAddresses() feeds.Addresses {
	out := make(feeds.Addresses, len(cfg.Addresses))
	for key, value := range cfg.Addresses {
		out[key] = common.HexToAddress(value)
	}
	return out
}

// AccountAddress returns the configured account, zero when unset.
func (cfg Config) AccountAddress() common.Address {
	if cfg.Account == "" {
		return common.Address{}
	}
	return common.HexToAddress(cfg.Account)
}

// RateLimit returns the limit with id.
func (cfg Config) RateLimit(id string) (RateLimitConfig, bool) {
	for _, limit := range cfg.RateLimits {
		if limit.ID == id {
			return limit, true
		}
	}
	return RateLimitConfig{}, false
}

// EnforceSecureScheme requires HTTPS or WSS outside of the dev environment.
func EnforceSecureScheme(env string, target *url.URL) (*url.URL, error) {
	if target == nil {
		return nil, fmt.Errorf("target URL is nil")
	}
	scheme := strings.ToLower(strings.TrimSpace(target.Scheme))
	switch scheme {
	case "https", "wss":
		return target, nil
	case "http", "ws":
		if isDevEnv(env) {
			return target, nil
		}
		if strings.TrimSpace(env) == "" {
			env = "(unset)"
		}
		return nil, fmt.Errorf("plaintext endpoints are not permitted for environment %s", env)
	case "":
		return nil, fmt.Errorf("URL scheme is required")
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", target.Scheme)
	}
}

func isDevEnv(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "dev")
}
