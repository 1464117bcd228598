package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalConfig = `bybitflow:
  name: "TestApp"
  version: "1.0"
stream:
  symbol: BTCUSD
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Bybitflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Bybitflow.Name)
	}
	if cfg.Stream.KlinePeriod != "1" {
		t.Errorf("expected default kline period, got %s", cfg.Stream.KlinePeriod)
	}
	if cfg.Stream.PingInterval != 30*time.Second {
		t.Errorf("expected default ping interval, got %s", cfg.Stream.PingInterval)
	}
	if cfg.Dispatch.Buffer != 256 {
		t.Errorf("expected default dispatch buffer, got %d", cfg.Dispatch.Buffer)
	}
}

func TestLoadConfigInvalidPeriod(t *testing.T) {
	path := writeTempConfig(t, `bybitflow:
  name: "TestApp"
  version: "1.0"
stream:
  symbol: BTCUSD
  kline_period: "7"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for invalid kline period")
	}
}

func TestLoadConfigUnknownTopic(t *testing.T) {
	path := writeTempConfig(t, `bybitflow:
  name: "TestApp"
  version: "1.0"
stream:
  symbol: BTCUSD
consumer:
  topics: ["trade", "nope"]
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for unknown consumer topic")
	}
}

func TestEndpointSelection(t *testing.T) {
	sc := StreamConfig{}
	if sc.Endpoint() != MainnetEndpoint {
		t.Errorf("unexpected mainnet endpoint: %s", sc.Endpoint())
	}
	sc.Testnet = true
	if sc.Endpoint() != TestnetEndpoint {
		t.Errorf("unexpected testnet endpoint: %s", sc.Endpoint())
	}
}

func TestChannelListDefaultsAndOverride(t *testing.T) {
	sc := StreamConfig{Symbol: "BTCUSD", KlinePeriod: "1"}
	defaults := sc.ChannelList()
	if len(defaults) != 7 {
		t.Fatalf("expected 7 default channels, got %d: %v", len(defaults), defaults)
	}
	if defaults[0] != "trade.BTCUSD" || defaults[3] != "klineV2.1.BTCUSD" {
		t.Errorf("unexpected default channels: %v", defaults)
	}
	if !sc.HasPrivateChannel() {
		t.Errorf("default set should include private channels")
	}

	sc.Channels = []string{"trade.BTCUSD"}
	if got := sc.ChannelList(); len(got) != 1 || got[0] != "trade.BTCUSD" {
		t.Errorf("override not honored: %v", got)
	}
	if sc.HasPrivateChannel() {
		t.Errorf("public-only override should not report private channels")
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, " key ")
	t.Setenv(EnvAPISecret, "secret")
	key, secret := Credentials()
	if key != "key" || secret != "secret" {
		t.Errorf("unexpected credentials: %q %q", key, secret)
	}
}
