package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bybitflow/models"
)

// Realtime stream endpoints, selected by the testnet flag.
const (
	MainnetEndpoint = "wss://stream.bybit.com/realtime"
	TestnetEndpoint = "wss://stream-testnet.bybit.com/realtime"
)

// Environment variables holding the API credentials. Secrets never live in
// the YAML file.
const (
	EnvAPIKey    = "BYBIT_API_KEY"
	EnvAPISecret = "BYBIT_API_SECRET"
)

type Config struct {
	Bybitflow BybitflowConfig `yaml:"bybitflow"`
	Stream    StreamConfig    `yaml:"stream"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type BybitflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// StreamConfig drives the websocket session: which network, which symbol,
// which channels, and the session timing knobs.
type StreamConfig struct {
	Testnet          bool          `yaml:"testnet"`
	Symbol           string        `yaml:"symbol"`
	KlinePeriod      string        `yaml:"kline_period"`
	Channels         []string      `yaml:"channels"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
	ReconnectAfter   time.Duration `yaml:"reconnect_after"`
}

type DispatchConfig struct {
	Buffer int `yaml:"buffer"`
}

// ConsumerConfig configures the example consumer loop in main: which topics
// get a callback and how often the last price is printed.
type ConsumerConfig struct {
	Topics        []string      `yaml:"topics"`
	PrintInterval time.Duration `yaml:"print_interval"`
}

type LoggingConfig struct {
	Level          string        `yaml:"level"`
	Format         string        `yaml:"format"`
	Output         string        `yaml:"output"`
	MaxAge         int           `yaml:"max_age"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// Endpoint returns the websocket URL for the configured network.
func (c *StreamConfig) Endpoint() string {
	if c.Testnet {
		return TestnetEndpoint
	}
	return MainnetEndpoint
}

// ChannelList returns the explicit channel override when present, otherwise
// the default full set for the configured symbol and period.
func (c *StreamConfig) ChannelList() []string {
	if len(c.Channels) > 0 {
		out := make([]string, len(c.Channels))
		copy(out, c.Channels)
		return out
	}
	return models.DefaultChannels(c.Symbol, c.KlinePeriod)
}

// HasPrivateChannel reports whether any subscribed channel requires
// authentication.
func (c *StreamConfig) HasPrivateChannel() bool {
	for _, ch := range c.ChannelList() {
		if models.IsPrivateChannel(ch) {
			return true
		}
	}
	return false
}

// Credentials reads the API key and secret from the environment.
func Credentials() (key, secret string) {
	return strings.TrimSpace(os.Getenv(EnvAPIKey)), strings.TrimSpace(os.Getenv(EnvAPISecret))
}

// Per-environment configuration files picked up when APP_ENV is set and the
// caller did not ask for a specific path.
const defaultConfigPath = "config/config.yml"

var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

// ResolveConfigPath maps an empty or default path to the APP_ENV specific
// configuration file when one is defined for the current environment.
func ResolveConfigPath(path string) string {
	return resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(ResolveConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Stream: StreamConfig{
			Symbol:           "BTCUSD",
			KlinePeriod:      "1",
			PingInterval:     30 * time.Second,
			ReconnectBackoff: 5 * time.Second,
			ReadyTimeout:     60 * time.Second,
		},
		Dispatch: DispatchConfig{Buffer: 256},
		Consumer: ConsumerConfig{PrintInterval: 5 * time.Minute},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Bybitflow.Name == "" {
		return fmt.Errorf("bybitflow.name is required")
	}

	if cfg.Bybitflow.Version == "" {
		return fmt.Errorf("bybitflow.version is required")
	}

	if cfg.Stream.Symbol == "" {
		return fmt.Errorf("stream.symbol is required")
	}

	if !models.ValidKlinePeriod(cfg.Stream.KlinePeriod) {
		return fmt.Errorf("stream.kline_period '%s' is not a valid interval", cfg.Stream.KlinePeriod)
	}

	if cfg.Stream.PingInterval <= 0 {
		return fmt.Errorf("stream.ping_interval must be greater than 0")
	}

	if cfg.Stream.ReconnectBackoff <= 0 {
		return fmt.Errorf("stream.reconnect_backoff must be greater than 0")
	}

	if cfg.Dispatch.Buffer <= 0 {
		return fmt.Errorf("dispatch.buffer must be greater than 0")
	}

	for _, topic := range cfg.Consumer.Topics {
		if !isKnownTopic(topic) {
			return fmt.Errorf("consumer.topics contains unknown topic '%s'", topic)
		}
	}

	// Production-like deployments subscribing to private channels must have
	// credentials in place before connecting.
	if IsProductionLike(AppEnvironment()) && cfg.Stream.HasPrivateChannel() {
		key, secret := Credentials()
		if key == "" || secret == "" {
			return fmt.Errorf("%s and %s are required for private channels", EnvAPIKey, EnvAPISecret)
		}
	}

	return nil
}

func isKnownTopic(name string) bool {
	for _, t := range models.Topics() {
		if string(t) == name {
			return true
		}
	}
	return false
}
