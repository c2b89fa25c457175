package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"scalping-bot/internal/retry"
)

type Config struct {
	Mode        string   `yaml:"mode" validate:"oneof=DRY_RUN LIVE"`
	Symbols     []string `yaml:"symbols" validate:"min=1,dive,required"`
	PollSeconds int      `yaml:"poll_seconds" validate:"gt=0"`
	// Window is the candle lookback fetched per snapshot.
	Window        int     `yaml:"window" validate:"gt=0"`
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`

	Lot struct {
		Volume float64 `yaml:"volume" validate:"gt=0"`
		Min    float64 `yaml:"min" validate:"gt=0"`
		Max    float64 `yaml:"max" validate:"gt=0"`
		Step   float64 `yaml:"step" validate:"gt=0"`
	} `yaml:"lot"`

	Stop struct {
		SLPips           float64 `yaml:"sl_pips" validate:"gte=0"`
		TPPips           float64 `yaml:"tp_pips" validate:"gte=0"`
		AllowUnprotected bool    `yaml:"allow_unprotected"`
	} `yaml:"stop"`

	Risk struct {
		MaxConcurrentPerSymbol int `yaml:"max_concurrent_per_symbol" validate:"gt=0"`
	} `yaml:"risk"`

	SnapshotTimeoutSeconds int `yaml:"snapshot_timeout_seconds" validate:"gt=0"`

	Retry struct {
		MaxAttempts      int     `yaml:"max_attempts" validate:"gt=0"`
		InitialBackoffMs int     `yaml:"initial_backoff_ms" validate:"gt=0"`
		MaxBackoffMs     int     `yaml:"max_backoff_ms" validate:"gt=0"`
		Multiplier       float64 `yaml:"multiplier" validate:"gte=1"`
	} `yaml:"retry"`

	Model struct {
		Path     string `yaml:"path"`
		Metadata string `yaml:"metadata"`
	} `yaml:"model"`

	Bridge struct {
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gt=0"`
	} `yaml:"bridge"`

	Session struct {
		Open     string `yaml:"open"`  // "HH:MM", empty means always open
		Close    string `yaml:"close"` // "HH:MM"
		Timezone string `yaml:"timezone"`
	} `yaml:"session"`

	Monitor struct {
		Addr string `yaml:"addr"` // empty disables the publisher endpoint
	} `yaml:"monitor"`
}

// Validate covers the cross-field rules the struct tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Stop.SLPips <= 0 && !c.Stop.AllowUnprotected {
		return errors.New("stop.sl_pips is zero but stop.allow_unprotected is false: refusing to run unprotected")
	}
	if c.Lot.Min > c.Lot.Max {
		return fmt.Errorf("lot.min %.2f exceeds lot.max %.2f", c.Lot.Min, c.Lot.Max)
	}
	if c.Mode == "LIVE" && c.Bridge.URL == "" {
		return errors.New("bridge.url is required in LIVE mode")
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if (c.Session.Open == "") != (c.Session.Close == "") {
		return errors.New("session.open and session.close must be set together")
	}
	if c.Session.Open != "" {
		if _, err := c.sessionLocation(); err != nil {
			return err
		}
		for _, v := range []string{c.Session.Open, c.Session.Close} {
			if _, err := time.Parse("15:04", v); err != nil {
				return fmt.Errorf("invalid session time %q: %w", v, err)
			}
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 30
	}
	if c.Window == 0 {
		c.Window = 50
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.85
	}
	if c.Lot.Volume == 0 {
		c.Lot.Volume = 0.01
	}
	if c.Lot.Min == 0 {
		c.Lot.Min = 0.01
	}
	if c.Lot.Max == 0 {
		c.Lot.Max = 0.05
	}
	if c.Lot.Step == 0 {
		c.Lot.Step = 0.01
	}
	if c.Stop.SLPips == 0 && !c.Stop.AllowUnprotected {
		c.Stop.SLPips = 8
	}
	if c.Stop.TPPips == 0 {
		c.Stop.TPPips = 12
	}
	if c.Risk.MaxConcurrentPerSymbol == 0 {
		c.Risk.MaxConcurrentPerSymbol = 1
	}
	if c.SnapshotTimeoutSeconds == 0 {
		c.SnapshotTimeoutSeconds = 10
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.InitialBackoffMs == 0 {
		c.Retry.InitialBackoffMs = 200
	}
	if c.Retry.MaxBackoffMs == 0 {
		c.Retry.MaxBackoffMs = 5000
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2.0
	}
	if c.Bridge.TimeoutSeconds == 0 {
		c.Bridge.TimeoutSeconds = 10
	}
	if c.Session.Timezone == "" {
		c.Session.Timezone = "UTC"
	}
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

func (c *Config) SnapshotTimeout() time.Duration {
	return time.Duration(c.SnapshotTimeoutSeconds) * time.Second
}

func (c *Config) BridgeTimeout() time.Duration {
	return time.Duration(c.Bridge.TimeoutSeconds) * time.Second
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     c.Retry.MaxAttempts,
		InitialInterval: time.Duration(c.Retry.InitialBackoffMs) * time.Millisecond,
		MaxInterval:     time.Duration(c.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:      c.Retry.Multiplier,
	}
}

func (c *Config) sessionLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid session.timezone %q: %w", c.Session.Timezone, err)
	}
	return loc, nil
}

// WithinSession reports whether t falls inside the configured trading
// session window. An unset window means the session is always open.
// Windows crossing midnight (open > close) are supported.
func (c *Config) WithinSession(t time.Time) bool {
	if c.Session.Open == "" {
		return true
	}
	loc, err := c.sessionLocation()
	if err != nil {
		return true
	}
	local := t.In(loc)
	minutes := local.Hour()*60 + local.Minute()

	open, _ := time.Parse("15:04", c.Session.Open)
	close_, _ := time.Parse("15:04", c.Session.Close)
	openMin := open.Hour()*60 + open.Minute()
	closeMin := close_.Hour()*60 + close_.Minute()

	if openMin <= closeMin {
		return minutes >= openMin && minutes < closeMin
	}
	return minutes >= openMin || minutes < closeMin
}
