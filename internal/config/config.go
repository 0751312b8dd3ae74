package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"mabot/internal/exchange"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

const (
	ExchangeCoinbase = "coinbase"
	ExchangeAlpaca   = "alpaca"

	// Advanced Trade answers at most this many candles per request.
	coinbaseMaxCandles = 350
)

type Config struct {
	Exchange string
	Mode     Mode
	Product  string

	FastWindow      int
	SlowWindow      int
	Window          time.Duration
	SyntheticPoints int
	FailClosed      bool

	BuySizing    string
	TradeSize    decimal.Decimal
	QuoteAmount  decimal.Decimal
	SellSizing   string
	MinTradeSize decimal.Decimal
	MaxNotional  decimal.Decimal
	KillSwitch   bool
	OrderPrefix  string

	PollInterval   time.Duration
	RequestTimeout time.Duration
	MaxCycles      int

	DecisionsPath string
	LogFile       string
	LogLevel      string
	StatusAddr    string

	AlpacaBaseURL   string
	AlpacaDataURL   string
	CoinbaseBaseURL string

	APIKey     string
	APISecret  string
	Passphrase string

	ConfigPath string
}

// Assets splits the configured product into base and quote currencies.
func (c Config) Assets() (base, quote string, err error) {
	return exchange.SplitProduct(c.Product)
}

func Defaults() Config {
	return Config{
		Exchange:        ExchangeCoinbase,
		Mode:            ModePaper,
		Product:         "SOL-USD",
		FastWindow:      20,
		SlowWindow:      50,
		Window:          2 * time.Hour,
		SyntheticPoints: 30,
		BuySizing:       "base",
		TradeSize:       decimal.RequireFromString("0.1"),
		QuoteAmount:     decimal.Zero,
		SellSizing:      "all",
		MinTradeSize:    decimal.RequireFromString("0.006"),
		MaxNotional:     decimal.Zero,
		PollInterval:    60 * time.Second,
		RequestTimeout:  15 * time.Second,
		DecisionsPath:   "decisions.ndjson",
		LogLevel:        "info",
		AlpacaBaseURL:   "https://paper-api.alpaca.markets",
	}
}

func Load() (Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs resolves configuration with precedence defaults < YAML file <
// environment < flags given on the command line.
func LoadArgs(args []string) (Config, error) {
	loadDotEnvIfPresent(".env")

	early := Defaults()
	if err := newFlagSet(&early).Parse(args); err != nil {
		return early, err
	}

	cfg := Defaults()
	cfg.ConfigPath = early.ConfigPath
	if cfg.ConfigPath != "" {
		if err := loadFile(cfg.ConfigPath, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	if err := newFlagSet(&cfg).Parse(args); err != nil {
		return cfg, err
	}
	cfg.Exchange = strings.ToLower(cfg.Exchange)
	cfg.Mode = Mode(strings.ToLower(string(cfg.Mode)))
	cfg.Product = strings.ToUpper(cfg.Product)
	applySecrets(&cfg)

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newFlagSet binds flags to cfg using its current values as defaults, so
// only flags present on the command line override earlier sources.
func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("bot", flag.ContinueOnError)
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "path to YAML config file")
	fs.StringVar(&cfg.Exchange, "exchange", cfg.Exchange, "exchange: coinbase or alpaca")
	fs.Func("mode", "run mode: paper or live (default "+string(cfg.Mode)+")", func(v string) error {
		cfg.Mode = Mode(v)
		return nil
	})
	fs.StringVar(&cfg.Product, "product", cfg.Product, "product id, BASE-QUOTE")
	fs.IntVar(&cfg.FastWindow, "fast-window", cfg.FastWindow, "fast SMA period in candles")
	fs.IntVar(&cfg.SlowWindow, "slow-window", cfg.SlowWindow, "slow SMA period in candles")
	fs.DurationVar(&cfg.Window, "window", cfg.Window, "candle lookback window")
	fs.IntVar(&cfg.SyntheticPoints, "synthetic-points", cfg.SyntheticPoints, "candles synthesized from the spot price")
	fs.BoolVar(&cfg.FailClosed, "fail-closed", cfg.FailClosed, "disable synthetic and basic candle fallbacks")
	fs.StringVar(&cfg.BuySizing, "buy-sizing", cfg.BuySizing, "buy sizing: base or quote")
	fs.Var(decimalValue{&cfg.TradeSize}, "trade-size", "base quantity per order")
	fs.Var(decimalValue{&cfg.QuoteAmount}, "quote-amount", "quote amount spent per buy with quote sizing")
	fs.StringVar(&cfg.SellSizing, "sell-sizing", cfg.SellSizing, "sell sizing: fixed or all")
	fs.Var(decimalValue{&cfg.MinTradeSize}, "min-trade-size", "minimum tradable base quantity")
	fs.Var(decimalValue{&cfg.MaxNotional}, "max-notional", "max quote notional per buy, 0 disables")
	fs.BoolVar(&cfg.KillSwitch, "kill-switch", cfg.KillSwitch, "if true, never place orders")
	fs.StringVar(&cfg.OrderPrefix, "order-prefix", cfg.OrderPrefix, "client order id prefix")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "delay between cycles")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "timeout for each exchange call")
	fs.IntVar(&cfg.MaxCycles, "max-cycles", cfg.MaxCycles, "stop after n cycles, 0 runs until interrupted")
	fs.StringVar(&cfg.DecisionsPath, "decisions-path", cfg.DecisionsPath, "path to decisions log")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "rotated log file, empty logs to stderr only")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "status HTTP listen address, empty disables")
	fs.StringVar(&cfg.AlpacaBaseURL, "alpaca-base-url", cfg.AlpacaBaseURL, "alpaca trading base URL")
	fs.StringVar(&cfg.AlpacaDataURL, "alpaca-data-url", cfg.AlpacaDataURL, "alpaca market data base URL")
	fs.StringVar(&cfg.CoinbaseBaseURL, "coinbase-base-url", cfg.CoinbaseBaseURL, "coinbase API base URL")
	return fs
}

type decimalValue struct {
	d *decimal.Decimal
}

func (v decimalValue) String() string {
	if v.d == nil {
		return ""
	}
	return v.d.String()
}

func (v decimalValue) Set(s string) error {
	parsed, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid decimal %q", s)
	}
	*v.d = parsed
	return nil
}

// fileConfig mirrors Config for the YAML file. Absent keys leave the
// current value untouched.
type fileConfig struct {
	Exchange        *string `yaml:"exchange"`
	Mode            *string `yaml:"mode"`
	Product         *string `yaml:"product"`
	FastWindow      *int    `yaml:"fastWindow"`
	SlowWindow      *int    `yaml:"slowWindow"`
	Window          *string `yaml:"window"`
	SyntheticPoints *int    `yaml:"syntheticPoints"`
	FailClosed      *bool   `yaml:"failClosed"`
	BuySizing       *string `yaml:"buySizing"`
	TradeSize       *string `yaml:"tradeSize"`
	QuoteAmount     *string `yaml:"quoteAmount"`
	SellSizing      *string `yaml:"sellSizing"`
	MinTradeSize    *string `yaml:"minTradeSize"`
	MaxNotional     *string `yaml:"maxNotional"`
	KillSwitch      *bool   `yaml:"killSwitch"`
	OrderPrefix     *string `yaml:"orderPrefix"`
	PollInterval    *string `yaml:"pollInterval"`
	RequestTimeout  *string `yaml:"requestTimeout"`
	MaxCycles       *int    `yaml:"maxCycles"`
	DecisionsPath   *string `yaml:"decisionsPath"`
	LogFile         *string `yaml:"logFile"`
	LogLevel        *string `yaml:"logLevel"`
	StatusAddr      *string `yaml:"statusAddr"`
	AlpacaBaseURL   *string `yaml:"alpacaBaseURL"`
	AlpacaDataURL   *string `yaml:"alpacaDataURL"`
	CoinbaseBaseURL *string `yaml:"coinbaseBaseURL"`
	APIKey          *string `yaml:"apiKey"`
	APISecret       *string `yaml:"apiSecret"`
	Passphrase      *string `yaml:"passphrase"`
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.Exchange, fc.Exchange)
	if fc.Mode != nil {
		cfg.Mode = Mode(*fc.Mode)
	}
	setString(&cfg.Product, fc.Product)
	setInt(&cfg.FastWindow, fc.FastWindow)
	setInt(&cfg.SlowWindow, fc.SlowWindow)
	setInt(&cfg.SyntheticPoints, fc.SyntheticPoints)
	setInt(&cfg.MaxCycles, fc.MaxCycles)
	setBool(&cfg.FailClosed, fc.FailClosed)
	setBool(&cfg.KillSwitch, fc.KillSwitch)
	setString(&cfg.BuySizing, fc.BuySizing)
	setString(&cfg.SellSizing, fc.SellSizing)
	setString(&cfg.OrderPrefix, fc.OrderPrefix)
	setString(&cfg.DecisionsPath, fc.DecisionsPath)
	setString(&cfg.LogFile, fc.LogFile)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.StatusAddr, fc.StatusAddr)
	setString(&cfg.AlpacaBaseURL, fc.AlpacaBaseURL)
	setString(&cfg.AlpacaDataURL, fc.AlpacaDataURL)
	setString(&cfg.CoinbaseBaseURL, fc.CoinbaseBaseURL)
	setString(&cfg.APIKey, fc.APIKey)
	setString(&cfg.APISecret, fc.APISecret)
	setString(&cfg.Passphrase, fc.Passphrase)

	durations := []struct {
		key string
		raw *string
		dst *time.Duration
	}{
		{"window", fc.Window, &cfg.Window},
		{"pollInterval", fc.PollInterval, &cfg.PollInterval},
		{"requestTimeout", fc.RequestTimeout, &cfg.RequestTimeout},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("config %s: invalid duration %q", d.key, *d.raw)
		}
		*d.dst = parsed
	}

	decimals := []struct {
		key string
		raw *string
		dst *decimal.Decimal
	}{
		{"tradeSize", fc.TradeSize, &cfg.TradeSize},
		{"quoteAmount", fc.QuoteAmount, &cfg.QuoteAmount},
		{"minTradeSize", fc.MinTradeSize, &cfg.MinTradeSize},
		{"maxNotional", fc.MaxNotional, &cfg.MaxNotional},
	}
	for _, d := range decimals {
		if d.raw == nil {
			continue
		}
		if err := (decimalValue{d.dst}).Set(*d.raw); err != nil {
			return fmt.Errorf("config %s: %w", d.key, err)
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BOT_EXCHANGE"); v != "" {
		cfg.Exchange = v
	}
	if v := os.Getenv("BOT_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("BOT_PRODUCT"); v != "" {
		cfg.Product = v
	}
	if v := os.Getenv("BOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// applySecrets reads credentials for the selected exchange. Secrets come
// from the environment or the config file, never from flags.
func applySecrets(cfg *Config) {
	switch cfg.Exchange {
	case ExchangeAlpaca:
		setEnv(&cfg.APIKey, "APCA_API_KEY_ID")
		setEnv(&cfg.APISecret, "APCA_API_SECRET_KEY")
	default:
		setEnv(&cfg.APIKey, "COINBASE_API_KEY")
		setEnv(&cfg.APISecret, "COINBASE_API_SECRET")
		setEnv(&cfg.Passphrase, "COINBASE_API_PASSPHRASE")
	}
}

func setEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func loadDotEnvIfPresent(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := loadDotEnv(path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", path, err)
	}
}

// loadDotEnv never overrides variables already set in the environment.
func loadDotEnv(path string) error {
	return godotenv.Load(path)
}

func validate(cfg Config) error {
	if cfg.Mode != ModePaper && cfg.Mode != ModeLive {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	if cfg.Exchange != ExchangeCoinbase && cfg.Exchange != ExchangeAlpaca {
		return fmt.Errorf("invalid exchange: %s", cfg.Exchange)
	}
	if _, _, err := cfg.Assets(); err != nil {
		return err
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		if cfg.Exchange == ExchangeAlpaca {
			return errors.New("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required")
		}
		return errors.New("COINBASE_API_KEY and COINBASE_API_SECRET are required")
	}
	if cfg.FastWindow <= 0 || cfg.SlowWindow <= 0 {
		return fmt.Errorf("fast-window and slow-window must be > 0")
	}
	if cfg.FastWindow >= cfg.SlowWindow {
		return fmt.Errorf("fast-window must be < slow-window")
	}
	if cfg.Window < time.Duration(cfg.SlowWindow)*time.Minute {
		return fmt.Errorf("window %s is shorter than %d one-minute candles", cfg.Window, cfg.SlowWindow)
	}
	if cfg.Exchange == ExchangeCoinbase && cfg.Window > coinbaseMaxCandles*time.Minute {
		return fmt.Errorf("window %s exceeds the %d candles coinbase returns per request", cfg.Window, coinbaseMaxCandles)
	}
	if cfg.SyntheticPoints < 0 {
		return fmt.Errorf("synthetic-points must be >= 0")
	}
	switch cfg.BuySizing {
	case "base":
		if !cfg.TradeSize.IsPositive() {
			return fmt.Errorf("trade-size must be > 0 with base buy sizing")
		}
	case "quote":
		if !cfg.QuoteAmount.IsPositive() {
			return fmt.Errorf("quote-amount must be > 0 with quote buy sizing")
		}
	default:
		return fmt.Errorf("invalid buy-sizing: %s", cfg.BuySizing)
	}
	switch cfg.SellSizing {
	case "all":
	case "fixed":
		if !cfg.TradeSize.IsPositive() {
			return fmt.Errorf("trade-size must be > 0 with fixed sell sizing")
		}
	default:
		return fmt.Errorf("invalid sell-sizing: %s", cfg.SellSizing)
	}
	if !cfg.MinTradeSize.IsPositive() {
		return fmt.Errorf("min-trade-size must be > 0")
	}
	if cfg.MaxNotional.IsNegative() {
		return fmt.Errorf("max-notional must be >= 0")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be > 0")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be > 0")
	}
	if cfg.MaxCycles < 0 {
		return fmt.Errorf("max-cycles must be >= 0")
	}
	return nil
}
