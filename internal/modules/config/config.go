package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	defaultConfigFile = "configs/values_local.yaml"

	redacted = "******"
)

// Config ...
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Trading  Trading  `mapstructure:"trading"`
	Log      Log      `mapstructure:"log"`
	Service  Service  `mapstructure:"service"`
	Telegram Telegram `mapstructure:"telegram"`
	Tracing  Tracing  `mapstructure:"tracing"`

	PrintConfig bool `mapstructure:"-"`

	quantity     decimal.Decimal
	paperBalance decimal.Decimal
	settings     map[string]any
}

type Binance struct {
	APIKey        string `mapstructure:"api_key"`
	APISecret     string `mapstructure:"api_secret"`
	APIURL        string `mapstructure:"api_url"`
	WSURL         string `mapstructure:"ws_url"`
	Testnet       bool   `mapstructure:"testnet"`
	MaxReconnects int    `mapstructure:"max_reconnects"`
}

type Trading struct {
	Symbol       string        `mapstructure:"symbol"`
	QuoteAsset   string        `mapstructure:"quote_asset"`
	Quantity     string        `mapstructure:"quantity"`
	ProfitPct    float64       `mapstructure:"profit"`
	LossPct      float64       `mapstructure:"loss"`
	WaitSec      int           `mapstructure:"wait"`
	CooldownSec  int           `mapstructure:"cooldown"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	WarmupDelay  time.Duration `mapstructure:"warmup_delay"`
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`
	QueueSize    int           `mapstructure:"queue_size"`
	Paper        bool          `mapstructure:"paper"`
	PaperBalance string        `mapstructure:"paper_balance"`
}

type Log struct {
	Dir   string `mapstructure:"dir"`
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

type Service struct {
	AdminAddr string `mapstructure:"admin_addr"`
}

type Telegram struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type Tracing struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

var defaults = map[string]any{
	"binance.api_url":        "https://api.binance.com",
	"binance.ws_url":         "wss://stream.binance.com:9443/ws",
	"binance.testnet":        false,
	"binance.max_reconnects": 5,
	"binance.api_key":        "",
	"binance.api_secret":     "",

	"trading.symbol":        "BTCUSDT",
	"trading.quote_asset":   "USDT",
	"trading.quantity":      "0.0001",
	"trading.profit":        0.25,
	"trading.loss":          0.25,
	"trading.wait":          60,
	"trading.cooldown":      30,
	"trading.poll_interval": "100ms",
	"trading.warmup_delay":  "5s",
	"trading.stale_timeout": "30s",
	"trading.queue_size":    1024,
	"trading.paper":         false,
	"trading.paper_balance": "1000",

	"log.dir":   "logs",
	"log.file":  "bot.log",
	"log.level": "info",

	"service.admin_addr": ":8080",

	"telegram.token":   "",
	"telegram.chat_id": 0,

	"tracing.host": "",
	"tracing.port": 6831,
}

// flag name -> config key
var flagKeys = map[string]string{
	"symbol":        "trading.symbol",
	"quantity":      "trading.quantity",
	"profit":        "trading.profit",
	"loss":          "trading.loss",
	"wait":          "trading.wait",
	"cooldown":      "trading.cooldown",
	"paper":         "trading.paper",
	"paper-balance": "trading.paper_balance",
	"log-level":     "log.level",
}

// env aliases that do not follow the SECTION_KEY scheme
var envAliases = map[string]string{
	"tracing.host":       "JAEGER_HOST",
	"tracing.port":       "JAEGER_PORT",
	"service.admin_addr": "ADMIN_ADDR",
}

// NewFlagSet declares the command line surface.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("symbol", "BTCUSDT", "Trading symbol (e.g., BTCUSDT)")
	fs.String("quantity", "0.0001", "Quantity to trade, base asset units")
	fs.Float64("profit", 0.25, "Profit threshold in percentage")
	fs.Float64("loss", 0.25, "Loss threshold in percentage")
	fs.Int("wait", 60, "Max wait time in seconds")
	fs.Int("cooldown", 30, "Cooldown time in seconds")
	fs.Bool("paper", false, "Trade against the in-memory paper exchange")
	fs.String("paper-balance", "1000", "Initial quote balance of the paper exchange")
	fs.String("log-level", "info", "Log level: debug|info|warn|error")
	fs.String("config", "", "Path to a YAML config file")
	fs.Bool("print-config", false, "Print the effective config and exit")
	return fs
}

// Load merges defaults, the YAML file, the environment and fs (already parsed).
func Load(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "bind env %s", env)
		}
	}

	path := os.Getenv(configFilePathENV)
	if fs != nil {
		if p, _ := fs.GetString("config"); p != "" {
			path = p
		}
	}
	if path == "" {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat config file %s", path)
	}

	cfg := &Config{}
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind flag %s", name)
				}
			}
		}
		cfg.PrintConfig, _ = fs.GetBool("print-config")
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.settings = v.AllSettings()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks trading parameters and credentials.
func (c *Config) Validate() error {
	t := &c.Trading
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	t.QuoteAsset = strings.ToUpper(strings.TrimSpace(t.QuoteAsset))

	if t.QuoteAsset == "" {
		return errors.New("quote asset is empty")
	}
	if !strings.HasSuffix(t.Symbol, t.QuoteAsset) || t.Symbol == t.QuoteAsset {
		return errors.Errorf("symbol %q must be <BASE>%s", t.Symbol, t.QuoteAsset)
	}

	qty, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		return errors.Wrapf(err, "parse quantity %q", t.Quantity)
	}
	if !qty.IsPositive() {
		return errors.Errorf("quantity must be > 0, got %s", qty)
	}
	c.quantity = qty

	if t.ProfitPct <= 0 {
		return errors.Errorf("profit must be > 0, got %v", t.ProfitPct)
	}
	if t.LossPct <= 0 {
		return errors.Errorf("loss must be > 0, got %v", t.LossPct)
	}
	if t.WaitSec <= 0 {
		return errors.Errorf("wait must be > 0, got %d", t.WaitSec)
	}
	if t.CooldownSec < 0 {
		return errors.Errorf("cooldown must be >= 0, got %d", t.CooldownSec)
	}
	if t.PollInterval <= 0 || t.WarmupDelay <= 0 || t.StaleTimeout <= 0 {
		return errors.New("poll_interval, warmup_delay and stale_timeout must be > 0")
	}
	if t.QueueSize <= 0 {
		return errors.Errorf("queue_size must be > 0, got %d", t.QueueSize)
	}

	if t.Paper {
		bal, err := decimal.NewFromString(t.PaperBalance)
		if err != nil {
			return errors.Wrapf(err, "parse paper balance %q", t.PaperBalance)
		}
		if bal.IsNegative() {
			return errors.Errorf("paper balance must be >= 0, got %s", bal)
		}
		c.paperBalance = bal
	} else if c.Binance.APIKey == "" || c.Binance.APISecret == "" {
		return errors.New("BINANCE_API_KEY and BINANCE_API_SECRET are required outside paper mode")
	}
	return nil
}

// QuantityDecimal is the validated trade quantity.
func (c *Config) QuantityDecimal() decimal.Decimal { return c.quantity }

// PaperBalanceDecimal is the validated initial paper quote balance.
func (c *Config) PaperBalanceDecimal() decimal.Decimal { return c.paperBalance }

// BaseAsset strips the quote suffix from the symbol: BTCUSDT -> BTC.
func (c *Config) BaseAsset() string {
	return strings.TrimSuffix(c.Trading.Symbol, c.Trading.QuoteAsset)
}

func (c *Config) PositionTimeout() time.Duration {
	return time.Duration(c.Trading.WaitSec) * time.Second
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Trading.CooldownSec) * time.Second
}

// WriteYAML dumps the effective settings with secrets masked.
func (c *Config) WriteYAML(w io.Writer) error {
	settings := make(map[string]any, len(c.settings))
	for k, val := range c.settings {
		settings[k] = val
	}
	for _, section := range []string{"binance", "telegram"} {
		sub, ok := settings[section].(map[string]any)
		if !ok {
			continue
		}
		masked := make(map[string]any, len(sub))
		for k, val := range sub {
			if isSecret(k) && fmt.Sprint(val) != "" {
				val = redacted
			}
			masked[k] = val
		}
		settings[section] = masked
	}

	bs, err := yaml.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "marshal config to yaml")
	}
	_, err = w.Write(bs)
	return err
}

func isSecret(key string) bool {
	return key == "api_key" || key == "api_secret" || key == "token"
}
