// Package config loads TradeNova's runtime configuration via viper: a
// config file (YAML/JSON/TOML, auto-detected), overridden by TRADENOVA_
// environment variables, overridden by explicit CLI flags bound in
// cmd/tradenova. Every key in spec.md §6 "Configuration (recognized
// options)" has a default registered here, so a config-less run still
// boots with spec-correct behavior.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// TPLevel is one rung of the tiered take-profit ladder:
// (threshold pnl_pct, fraction of remaining qty to close).
type TPLevel struct {
	ThresholdPct   decimal.Decimal
	CloseFraction  decimal.Decimal
}

// Config is the fully resolved, typed configuration for one TradeNova
// process.
type Config struct {
	Universe []string

	MinBars       int
	MaxChainSize  int
	MinDTE        int
	MaxDTE        int
	PreferredDTE  [2]int

	PriceFloor decimal.Decimal

	MaxPositions      int
	PositionSizePct   decimal.Decimal
	PortfolioHeatCap  decimal.Decimal

	StopLossPct  decimal.Decimal
	TPLadder     []TPLevel
	TrailingArmTP int

	ConfidenceThreshold decimal.Decimal
	DailyTradeLimit     int

	MaxDelta        decimal.Decimal
	MaxGamma        decimal.Decimal
	MaxThetaPerDay  decimal.Decimal
	MaxVega         decimal.Decimal
	MaxUVaRPct      decimal.Decimal

	CyclePeriod time.Duration

	SessionOpen   string
	SessionClose  string
	FlattenTime   string
	WarmupTime    string
	ReportBudget  time.Duration
	Timezone      string

	DataFetchTimeout   time.Duration
	QuoteTimeout       time.Duration
	OrderTimeout       time.Duration
	CycleTimeout       time.Duration

	BrokerRetryAttempts int
	BrokerRetryBaseDelay time.Duration

	MaxWorkers int

	PaperTrading bool
	LogLevel     string
	LogFormat    string
}

// Load resolves configuration from an optional file path, environment
// variables prefixed TRADENOVA_, and viper-registered defaults, in that
// increasing order of precedence reversed: file < env, with defaults as
// the floor. configPath may be empty, in which case only defaults and
// environment apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRADENOVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		Universe:     parseUniverse(v),
		MinBars:      v.GetInt("min_bars"),
		MaxChainSize: v.GetInt("max_chain_size"),
		MinDTE:       v.GetInt("min_dte"),
		MaxDTE:       v.GetInt("max_dte"),
		PreferredDTE: [2]int{v.GetInt("preferred_dte_low"), v.GetInt("preferred_dte_high")},

		PriceFloor: decimalFromString(v.GetString("price_floor")),

		MaxPositions:     v.GetInt("max_positions"),
		PositionSizePct:  decimalFromString(v.GetString("position_size_pct")),
		PortfolioHeatCap: decimalFromString(v.GetString("portfolio_heat_cap")),

		StopLossPct:   decimalFromString(v.GetString("stop_loss_pct")),
		TrailingArmTP: v.GetInt("trailing_arm_tp"),

		ConfidenceThreshold: decimalFromString(v.GetString("confidence_threshold")),
		DailyTradeLimit:     v.GetInt("daily_trade_limit"),

		MaxDelta:       decimalFromString(v.GetString("max_delta")),
		MaxGamma:       decimalFromString(v.GetString("max_gamma")),
		MaxThetaPerDay: decimalFromString(v.GetString("max_theta_per_day")),
		MaxVega:        decimalFromString(v.GetString("max_vega")),
		MaxUVaRPct:     decimalFromString(v.GetString("max_uvar_pct")),

		CyclePeriod: v.GetDuration("cycle_period"),

		SessionOpen:  v.GetString("session_open"),
		SessionClose: v.GetString("session_close"),
		FlattenTime:  v.GetString("flatten_time"),
		WarmupTime:   v.GetString("warmup_time"),
		ReportBudget: v.GetDuration("report_budget"),
		Timezone:     v.GetString("timezone"),

		DataFetchTimeout: v.GetDuration("data_fetch_timeout"),
		QuoteTimeout:     v.GetDuration("quote_timeout"),
		OrderTimeout:     v.GetDuration("order_timeout"),
		CycleTimeout:     v.GetDuration("cycle_timeout"),

		BrokerRetryAttempts:  v.GetInt("broker_retry_attempts"),
		BrokerRetryBaseDelay: v.GetDuration("broker_retry_base_delay"),

		MaxWorkers: v.GetInt("max_workers"),

		PaperTrading: v.GetBool("paper_trading"),
		LogLevel:     v.GetString("log_level"),
		LogFormat:    v.GetString("log_format"),
	}

	cfg.TPLadder = []TPLevel{
		{ThresholdPct: decimal.NewFromFloat(0.40), CloseFraction: decimal.NewFromFloat(0.50)},
		{ThresholdPct: decimal.NewFromFloat(0.60), CloseFraction: decimal.NewFromFloat(0.20)},
		{ThresholdPct: decimal.NewFromFloat(1.00), CloseFraction: decimal.NewFromFloat(0.10)},
		{ThresholdPct: decimal.NewFromFloat(1.50), CloseFraction: decimal.NewFromFloat(0.10)},
		{ThresholdPct: decimal.NewFromFloat(2.00), CloseFraction: decimal.NewFromFloat(1.00)},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MinDTE > c.MaxDTE {
		return fmt.Errorf("config: min_dte (%d) exceeds max_dte (%d)", c.MinDTE, c.MaxDTE)
	}
	if len(c.Universe) == 0 {
		return fmt.Errorf("config: universe must not be empty")
	}
	return nil
}

// parseUniverse accepts either a YAML/JSON list (config file) or a single
// comma-separated string (environment variable / flag), since viper's
// string->[]string cast does not split on commas.
func parseUniverse(v *viper.Viper) []string {
	raw := v.Get("universe")
	switch val := raw.(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func decimalFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("universe", []string{})
	v.SetDefault("min_bars", 30)
	v.SetDefault("max_chain_size", 2000)
	v.SetDefault("min_dte", 0)
	v.SetDefault("max_dte", 30)
	v.SetDefault("preferred_dte_low", 0)
	v.SetDefault("preferred_dte_high", 7)
	v.SetDefault("price_floor", "0.10")
	v.SetDefault("max_positions", 10)
	v.SetDefault("position_size_pct", "0.10")
	v.SetDefault("portfolio_heat_cap", "0.35")
	v.SetDefault("stop_loss_pct", "0.20")
	v.SetDefault("trailing_arm_tp", 4)
	v.SetDefault("confidence_threshold", "0.70")
	v.SetDefault("daily_trade_limit", 5)
	v.SetDefault("max_delta", "500")
	v.SetDefault("max_gamma", "25")
	v.SetDefault("max_theta_per_day", "-300")
	v.SetDefault("max_vega", "300")
	v.SetDefault("max_uvar_pct", "0.05")
	v.SetDefault("cycle_period", "5m")
	v.SetDefault("session_open", "09:30")
	v.SetDefault("session_close", "16:00")
	v.SetDefault("flatten_time", "15:50")
	v.SetDefault("warmup_time", "08:00")
	v.SetDefault("report_budget", "10m")
	v.SetDefault("timezone", "America/New_York")
	v.SetDefault("data_fetch_timeout", "10s")
	v.SetDefault("quote_timeout", "3s")
	v.SetDefault("order_timeout", "15s")
	v.SetDefault("cycle_timeout", "120s")
	v.SetDefault("broker_retry_attempts", 3)
	v.SetDefault("broker_retry_base_delay", "1s")
	v.SetDefault("max_workers", 8)
	v.SetDefault("paper_trading", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}
