package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
chain:
  rpc_url: https://rpc.example.org
  wallet_address: "0x1111111111111111111111111111111111111111"
schedule:
  tick_stale_minutes: 30
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.DailyTradeCap != 5 {
		t.Errorf("expected default trade cap 5, got %d", cfg.Agent.DailyTradeCap)
	}
	if cfg.Agent.MaxSpendEthPerTrade != 0.5 {
		t.Errorf("expected default max spend 0.5, got %f", cfg.Agent.MaxSpendEthPerTrade)
	}
	if cfg.Agent.SellFractionBps != 5000 {
		t.Errorf("expected default sell fraction 5000 bps, got %d", cfg.Agent.SellFractionBps)
	}
	if cfg.Schedule.TickCron == "" {
		t.Error("expected default tick cron")
	}
	if cfg.Breaker.FailureThreshold != 3 {
		t.Errorf("expected default threshold 3, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.State.FilePath == "" {
		t.Error("expected default state file path")
	}
}

func TestValidate_RequiresTickStaleMinutes(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
chain:
  rpc_url: https://rpc.example.org
  wallet_address: "0x1111111111111111111111111111111111111111"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing tick_stale_minutes")
	}
}

func TestValidate_RequiresTokenWhenTrading(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML+`
agent:
  trading_enabled: true
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error: trading enabled without token address")
	}
}

func TestValidate_Passes(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KILL_SWITCH", "true")
	t.Setenv("DAILY_TRADE_CAP", "2")
	t.Setenv("RPC_URL", "https://other.example.org")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Agent.KillSwitch {
		t.Error("KILL_SWITCH env should override")
	}
	if cfg.Agent.DailyTradeCap != 2 {
		t.Errorf("DAILY_TRADE_CAP env should override, got %d", cfg.Agent.DailyTradeCap)
	}
	if cfg.Chain.RPCURL != "https://other.example.org" {
		t.Errorf("RPC_URL env should override, got %q", cfg.Chain.RPCURL)
	}
}

func TestEthToWei(t *testing.T) {
	cases := []struct {
		eth  float64
		want string
	}{
		{1, "1000000000000000000"},
		{0.5, "500000000000000000"},
		{0.01, "10000000000000000"},
		{0, "0"},
	}
	for _, c := range cases {
		want, _ := new(big.Int).SetString(c.want, 10)
		if got := EthToWei(c.eth); got.Cmp(want) != 0 {
			t.Errorf("EthToWei(%v): expected %s, got %s", c.eth, c.want, got)
		}
	}
}

func TestGuardrailLimits_RouterConfigured(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GuardrailLimits().RouterConfigured {
		t.Error("router must not count as configured without router and pool addresses")
	}

	cfg.Chain.RouterAddress = "0x2222222222222222222222222222222222222222"
	cfg.Chain.PoolAddress = "0x3333333333333333333333333333333333333333"
	if !cfg.GuardrailLimits().RouterConfigured {
		t.Error("router should count as configured with both addresses set")
	}
}
