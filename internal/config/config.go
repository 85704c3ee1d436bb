package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/params"
	"gopkg.in/yaml.v3"

	"InternAgent/internal/guardrail"
)

// Config holds all application configuration.
type Config struct {
	Agent struct {
		KillSwitch              bool    `yaml:"kill_switch"`
		TradingEnabled          bool    `yaml:"trading_enabled"`
		DryRun                  bool    `yaml:"dry_run"`
		DailyTradeCap           int     `yaml:"daily_trade_cap"`
		MinTradeIntervalMinutes int     `yaml:"min_trade_interval_minutes"`
		MaxSpendEthPerTrade     float64 `yaml:"max_spend_eth_per_trade"`
		SellFractionBps         int64   `yaml:"sell_fraction_bps"`
		GasReserveEth           float64 `yaml:"gas_reserve_eth"`
		DailyNewsPostCap        int     `yaml:"daily_news_post_cap"`
		DailyDiscussionPostCap  int     `yaml:"daily_discussion_post_cap"`
		DailyCampaignPostCap    int     `yaml:"daily_campaign_post_cap"`
		SeenNewsMax             int     `yaml:"seen_news_max"`
		RepliedCommentsMax      int     `yaml:"replied_comments_max"`
	} `yaml:"agent"`
	Chain struct {
		RPCURL        string `yaml:"rpc_url"`
		WalletAddress string `yaml:"wallet_address"`
		TokenAddress  string `yaml:"token_address"`
		RouterAddress string `yaml:"router_address"`
		PoolAddress   string `yaml:"pool_address"`
	} `yaml:"chain"`
	Schedule struct {
		TickCron            string `yaml:"tick_cron"`
		LoopIntervalMinutes int    `yaml:"loop_interval_minutes"`
		TickStaleMinutes    int    `yaml:"tick_stale_minutes"`
	} `yaml:"schedule"`
	Breaker struct {
		FailureThreshold int `yaml:"failure_threshold"`
		CooldownMinutes  int `yaml:"cooldown_minutes"`
	} `yaml:"breaker"`
	State struct {
		FilePath string `yaml:"file_path"`
	} `yaml:"state"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("KILL_SWITCH"); v != "" {
		cfg.Agent.KillSwitch = v == "true"
	}
	if v := os.Getenv("TRADING_ENABLED"); v != "" {
		cfg.Agent.TradingEnabled = v == "true"
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.Agent.DryRun = v == "true"
	}
	if v := os.Getenv("DAILY_TRADE_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.DailyTradeCap = n
		}
	}
	if v := os.Getenv("MAX_SPEND_ETH_PER_TRADE"); v != "" {
		if spend, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Agent.MaxSpendEthPerTrade = spend
		}
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("WALLET_ADDRESS"); v != "" {
		cfg.Chain.WalletAddress = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("STATE_FILE"); v != "" {
		cfg.State.FilePath = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Agent.DailyTradeCap == 0 {
		cfg.Agent.DailyTradeCap = 5
	}
	if cfg.Agent.MinTradeIntervalMinutes == 0 {
		cfg.Agent.MinTradeIntervalMinutes = 15
	}
	if cfg.Agent.MaxSpendEthPerTrade == 0 {
		cfg.Agent.MaxSpendEthPerTrade = 0.5
	}
	if cfg.Agent.SellFractionBps == 0 {
		cfg.Agent.SellFractionBps = 5000
	}
	if cfg.Agent.GasReserveEth == 0 {
		cfg.Agent.GasReserveEth = 0.01
	}
	if cfg.Agent.DailyNewsPostCap == 0 {
		cfg.Agent.DailyNewsPostCap = 3
	}
	if cfg.Agent.DailyDiscussionPostCap == 0 {
		cfg.Agent.DailyDiscussionPostCap = 4
	}
	if cfg.Agent.DailyCampaignPostCap == 0 {
		cfg.Agent.DailyCampaignPostCap = 2
	}
	if cfg.Agent.SeenNewsMax == 0 {
		cfg.Agent.SeenNewsMax = 50
	}
	if cfg.Agent.RepliedCommentsMax == 0 {
		cfg.Agent.RepliedCommentsMax = 200
	}
	if cfg.Schedule.TickCron == "" {
		cfg.Schedule.TickCron = "0 */10 * * * *"
	}
	if cfg.Schedule.LoopIntervalMinutes == 0 {
		cfg.Schedule.LoopIntervalMinutes = 10
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 3
	}
	if cfg.Breaker.CooldownMinutes == 0 {
		cfg.Breaker.CooldownMinutes = 30
	}
	if cfg.State.FilePath == "" {
		cfg.State.FilePath = "data/agent_state.json"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/intern_agent.db"
	}

	return cfg, nil
}

// Validate checks that all required fields are set. The tick staleness
// threshold has no safe default and must be configured explicitly.
func (c *Config) Validate() error {
	if c.Schedule.TickStaleMinutes <= 0 {
		return fmt.Errorf("schedule.tick_stale_minutes is required and must be positive")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.WalletAddress == "" {
		return fmt.Errorf("chain.wallet_address is required")
	}
	if c.Agent.TradingEnabled && c.Chain.TokenAddress == "" {
		return fmt.Errorf("chain.token_address is required when trading is enabled")
	}
	if c.Agent.SellFractionBps < 0 || c.Agent.SellFractionBps > 10000 {
		return fmt.Errorf("agent.sell_fraction_bps must be within [0, 10000]")
	}
	return nil
}

// LoopInterval returns the scheduling loop period.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.Schedule.LoopIntervalMinutes) * time.Minute
}

// TickStaleAfter returns the tick-in-flight staleness threshold.
func (c *Config) TickStaleAfter() time.Duration {
	return time.Duration(c.Schedule.TickStaleMinutes) * time.Minute
}

// BreakerCooldown returns the default breaker cooldown window.
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.Breaker.CooldownMinutes) * time.Minute
}

// GuardrailLimits converts the configured bounds into the guardrail
// engine's input, with ETH amounts converted to wei.
func (c *Config) GuardrailLimits() guardrail.Limits {
	return guardrail.Limits{
		KillSwitch:          c.Agent.KillSwitch,
		TradingEnabled:      c.Agent.TradingEnabled,
		DryRun:              c.Agent.DryRun,
		RouterConfigured:    c.Chain.RouterAddress != "" && c.Chain.PoolAddress != "",
		DailyTradeCap:       c.Agent.DailyTradeCap,
		MinTradeInterval:    time.Duration(c.Agent.MinTradeIntervalMinutes) * time.Minute,
		MaxSpendPerTradeWei: EthToWei(c.Agent.MaxSpendEthPerTrade),
		SellFractionBps:     c.Agent.SellFractionBps,
		GasReserveWei:       EthToWei(c.Agent.GasReserveEth),
	}
}

// EthToWei converts a fractional ETH amount to wei, truncating any
// sub-wei remainder.
func EthToWei(eth float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(eth), big.NewFloat(params.Ether)).Int(nil)
	return wei
}
