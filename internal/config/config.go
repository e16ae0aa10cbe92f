package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Compliance ComplianceConfig `mapstructure:"compliance"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// BrokerConfig holds TradeStation API credentials and endpoints. Sim and
// live base URLs are both configured up front; the account mode resolved
// at decision time selects between them.
type BrokerConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RefreshToken string        `mapstructure:"refresh_token"`
	TokenURL     string        `mapstructure:"token_url"`
	SimBaseURL   string        `mapstructure:"sim_base_url"`
	LiveBaseURL  string        `mapstructure:"live_base_url"`
	SimAccount   string        `mapstructure:"sim_account"`
	LiveAccount  string        `mapstructure:"live_account"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type MarketDataConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	VIXSymbol string        `mapstructure:"vix_symbol"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ScheduleConfig fixes the two daily trigger times in the exchange
// timezone.
type ScheduleConfig struct {
	Timezone    string `mapstructure:"timezone"`
	EntryHour   int    `mapstructure:"entry_hour"`
	EntryMinute int    `mapstructure:"entry_minute"`
	ExitHour    int    `mapstructure:"exit_hour"`
	ExitMinute  int    `mapstructure:"exit_minute"`
}

type StrategyConfig struct {
	UnderlyingSymbol   string  `mapstructure:"underlying_symbol"`
	DeltaTarget        float64 `mapstructure:"delta_target"`
	WingWidth          int     `mapstructure:"wing_width"`
	TakeProfitFraction float64 `mapstructure:"take_profit_fraction"`
	StrikeProximity    int     `mapstructure:"strike_proximity"`
	Quantity           int     `mapstructure:"quantity"`
}

type ComplianceConfig struct {
	MaxDayTrades int `mapstructure:"max_day_trades"`
	RollingDays  int `mapstructure:"rolling_days"`
	LookbackDays int `mapstructure:"lookback_days"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("log.output_path", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("broker.token_url", "https://signin.tradestation.com/oauth/token")
	v.SetDefault("broker.sim_base_url", "https://sim-api.tradestation.com")
	v.SetDefault("broker.live_base_url", "https://api.tradestation.com")
	v.SetDefault("broker.timeout", "30s")
	v.SetDefault("market_data.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market_data.vix_symbol", "^VIX")
	v.SetDefault("market_data.timeout", "15s")
	v.SetDefault("schedule.timezone", "America/New_York")
	v.SetDefault("schedule.entry_hour", 9)
	v.SetDefault("schedule.entry_minute", 32)
	v.SetDefault("schedule.exit_hour", 11)
	v.SetDefault("schedule.exit_minute", 30)
	v.SetDefault("strategy.underlying_symbol", "SPY")
	v.SetDefault("strategy.delta_target", 0.3)
	v.SetDefault("strategy.wing_width", 10)
	v.SetDefault("strategy.take_profit_fraction", 0.25)
	v.SetDefault("strategy.strike_proximity", 20)
	v.SetDefault("strategy.quantity", 1)
	v.SetDefault("compliance.max_day_trades", 3)
	v.SetDefault("compliance.rolling_days", 5)
	v.SetDefault("compliance.lookback_days", 7)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
