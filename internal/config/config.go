package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the credentials section.
const (
	EnvAPIKey   = "EXCHANGE_API_KEY"
	EnvSecret   = "EXCHANGE_SECRET"
	EnvPassword = "EXCHANGE_PASSWORD"
	EnvUID      = "EXCHANGE_UID"
	EnvTwoFA    = "EXCHANGE_TWOFA"
)

type Config struct {
	Adapter           string               `yaml:"adapter" validate:"required"`
	RestBaseURL       string               `yaml:"rest_base_url"`
	Credentials       CredentialsConfig    `yaml:"credentials"`
	RateLimitMs       int64                `yaml:"rate_limit_ms" validate:"gte=0,lte=60000"`
	HTTPTimeoutSec    int64                `yaml:"http_timeout_sec" validate:"gte=1,lte=120"`
	RecvWindowMs      int64                `yaml:"recv_window_ms" validate:"gte=1,lte=60000"`
	AutoAuthenticate  *bool                `yaml:"auto_authenticate"`
	ClientOrderPrefix string               `yaml:"client_order_prefix" validate:"lte=16"`
	Fees              FeesConfig           `yaml:"fees"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
	Log               LogConfig            `yaml:"log"`
	Alerts            AlertsConfig         `yaml:"alerts"`
}

type CredentialsConfig struct {
	APIKey   string `yaml:"api_key"`
	Secret   string `yaml:"secret"`
	Password string `yaml:"password"`
	UID      string `yaml:"uid"`
	TwoFA    string `yaml:"twofa"`
}

// FeesConfig seeds market fee rates until the venue reports its own.
type FeesConfig struct {
	MakerRate Decimal `yaml:"maker_rate"`
	TakerRate Decimal `yaml:"taker_rate"`
}

type CircuitBreakerConfig struct {
	Enabled     bool  `yaml:"enabled"`
	MaxFailures int   `yaml:"max_failures" validate:"gte=0,lte=1000"`
	CooldownSec int64 `yaml:"cooldown_sec" validate:"gte=0,lte=3600"`
	TrialPasses int   `yaml:"trial_passes" validate:"gte=0,lte=20"`
}

type LogConfig struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Console bool   `yaml:"console"`
}

type AlertsConfig struct {
	Telegram        TelegramConfig `yaml:"telegram"`
	DropReportSec   int64          `yaml:"drop_report_sec" validate:"gte=0,lte=3600"`
	RepeatWindowSec int64          `yaml:"repeat_window_sec" validate:"gte=0,lte=86400"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec" validate:"gte=0,lte=120"`
}

var validate = validator.New()

// Load reads a single YAML document, overlays credentials from the
// environment, fills defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value files into the process environment without
// overriding variables already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for name, dst := range map[string]*string{
		EnvAPIKey:   &c.Credentials.APIKey,
		EnvSecret:   &c.Credentials.Secret,
		EnvPassword: &c.Credentials.Password,
		EnvUID:      &c.Credentials.UID,
		EnvTwoFA:    &c.Credentials.TwoFA,
	} {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
}

func (c *Config) normalize() {
	c.Adapter = strings.ToLower(strings.TrimSpace(c.Adapter))
	c.RestBaseURL = strings.TrimSpace(c.RestBaseURL)
	c.ClientOrderPrefix = strings.TrimSpace(c.ClientOrderPrefix)
	c.Credentials.APIKey = strings.TrimSpace(c.Credentials.APIKey)
	c.Credentials.Secret = strings.TrimSpace(c.Credentials.Secret)
	c.Credentials.Password = strings.TrimSpace(c.Credentials.Password)
	c.Credentials.UID = strings.TrimSpace(c.Credentials.UID)
	c.Credentials.TwoFA = strings.TrimSpace(c.Credentials.TwoFA)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Alerts.Telegram.BotToken = strings.TrimSpace(c.Alerts.Telegram.BotToken)
	c.Alerts.Telegram.ChatID = strings.TrimSpace(c.Alerts.Telegram.ChatID)
	c.Alerts.Telegram.APIBaseURL = strings.TrimSpace(c.Alerts.Telegram.APIBaseURL)
}

func (c *Config) applyDefaults() {
	if c.HTTPTimeoutSec == 0 {
		c.HTTPTimeoutSec = 15
	}
	if c.RecvWindowMs == 0 {
		c.RecvWindowMs = 5000
	}
	if c.AutoAuthenticate == nil {
		enabled := true
		c.AutoAuthenticate = &enabled
	}
	if c.CircuitBreaker.MaxFailures == 0 {
		c.CircuitBreaker.MaxFailures = 5
	}
	if c.CircuitBreaker.CooldownSec == 0 {
		c.CircuitBreaker.CooldownSec = 30
	}
	if c.CircuitBreaker.TrialPasses == 0 {
		c.CircuitBreaker.TrialPasses = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Alerts.DropReportSec == 0 {
		c.Alerts.DropReportSec = 60
	}
	if c.Alerts.RepeatWindowSec == 0 {
		c.Alerts.RepeatWindowSec = 300
	}
	if c.Alerts.Telegram.APIBaseURL == "" {
		c.Alerts.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Alerts.Telegram.TimeoutSec == 0 {
		c.Alerts.Telegram.TimeoutSec = 10
	}
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			f := fields[0]
			return fmt.Errorf("%s failed %s validation", f.Namespace(), f.Tag())
		}
		return err
	}
	if c.RestBaseURL != "" {
		if err := validateURL(c.RestBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("rest_base_url %v", err)
		}
	}
	if c.Fees.MakerRate.IsNegative() {
		return fmt.Errorf("fees.maker_rate must be >= 0")
	}
	if c.Fees.TakerRate.IsNegative() {
		return fmt.Errorf("fees.taker_rate must be >= 0")
	}
	if c.Credentials.Secret != "" && c.Credentials.APIKey == "" {
		return fmt.Errorf("credentials.api_key is required when a secret is set")
	}
	if c.Alerts.Telegram.Enabled {
		if c.Alerts.Telegram.BotToken == "" {
			return fmt.Errorf("alerts.telegram.bot_token is required when telegram enabled")
		}
		if c.Alerts.Telegram.ChatID == "" {
			return fmt.Errorf("alerts.telegram.chat_id is required when telegram enabled")
		}
		if c.Alerts.Telegram.TimeoutSec < 1 {
			return fmt.Errorf("alerts.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Alerts.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("alerts.telegram.api_base_url %v", err)
		}
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
