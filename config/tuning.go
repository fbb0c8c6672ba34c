package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning holds the game constants. Zero values in a YAML file fall back
// to DefaultTuning.
type Tuning struct {
	WorldSeed         int64   `yaml:"world_seed"`
	CitySize          int     `yaml:"city_size"`
	BlockSize         float64 `yaml:"block_size"`
	StreetWidth       float64 `yaml:"street_width"`
	BasePlotPrice     int     `yaml:"base_plot_price"`
	StartingWallet    int     `yaml:"starting_wallet"`
	StartingBalance   int     `yaml:"starting_balance"`
	PublishIntervalMs int     `yaml:"publish_interval_ms"`
	Interpolation     float64 `yaml:"interpolation"`
	StaleAfterMs      int     `yaml:"stale_after_ms"`
	ExpiryIntervalSec int     `yaml:"expiry_interval_sec"`
	AutosaveSec       int     `yaml:"autosave_sec"`
	TickRateHz        int     `yaml:"tick_rate_hz"`
	ChatHistory       int     `yaml:"chat_history"`
	ChatPerSecond     float64 `yaml:"chat_per_second"`
	SessionIdleSec    int     `yaml:"session_idle_sec"`
}

func DefaultTuning() Tuning {
	return Tuning{
		WorldSeed:         42,
		CitySize:          3,
		BlockSize:         30,
		StreetWidth:       10,
		BasePlotPrice:     5000,
		StartingWallet:    50000,
		StartingBalance:   1000,
		PublishIntervalMs: 100,
		Interpolation:     10,
		ExpiryIntervalSec: 60,
		AutosaveSec:       10,
		TickRateHz:        20,
		ChatHistory:       50,
		ChatPerSecond:     1,
		SessionIdleSec:    300,
	}
}

// LoadTuning reads path over the defaults. An empty path returns the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	var file Tuning
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	t.merge(file)
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	return t, nil
}

func (t *Tuning) merge(o Tuning) {
	if o.WorldSeed != 0 {
		t.WorldSeed = o.WorldSeed
	}
	if o.CitySize != 0 {
		t.CitySize = o.CitySize
	}
	if o.BlockSize != 0 {
		t.BlockSize = o.BlockSize
	}
	if o.StreetWidth != 0 {
		t.StreetWidth = o.StreetWidth
	}
	if o.BasePlotPrice != 0 {
		t.BasePlotPrice = o.BasePlotPrice
	}
	if o.StartingWallet != 0 {
		t.StartingWallet = o.StartingWallet
	}
	if o.StartingBalance != 0 {
		t.StartingBalance = o.StartingBalance
	}
	if o.PublishIntervalMs != 0 {
		t.PublishIntervalMs = o.PublishIntervalMs
	}
	if o.Interpolation != 0 {
		t.Interpolation = o.Interpolation
	}
	if o.StaleAfterMs != 0 {
		t.StaleAfterMs = o.StaleAfterMs
	}
	if o.ExpiryIntervalSec != 0 {
		t.ExpiryIntervalSec = o.ExpiryIntervalSec
	}
	if o.AutosaveSec != 0 {
		t.AutosaveSec = o.AutosaveSec
	}
	if o.TickRateHz != 0 {
		t.TickRateHz = o.TickRateHz
	}
	if o.ChatHistory != 0 {
		t.ChatHistory = o.ChatHistory
	}
	if o.ChatPerSecond != 0 {
		t.ChatPerSecond = o.ChatPerSecond
	}
	if o.SessionIdleSec != 0 {
		t.SessionIdleSec = o.SessionIdleSec
	}
}

func (t Tuning) Validate() error {
	switch {
	case t.CitySize <= 0:
		return fmt.Errorf("city_size must be positive")
	case t.BlockSize <= 0 || t.StreetWidth < 0:
		return fmt.Errorf("block_size must be positive and street_width non-negative")
	case t.StartingWallet < 0 || t.StartingBalance < 0:
		return fmt.Errorf("starting funds must be non-negative")
	case t.PublishIntervalMs <= 0 || t.TickRateHz <= 0:
		return fmt.Errorf("publish_interval_ms and tick_rate_hz must be positive")
	case t.Interpolation <= 0:
		return fmt.Errorf("interpolation must be positive")
	case t.SessionIdleSec < 0:
		return fmt.Errorf("session_idle_sec must be non-negative")
	}
	return nil
}

func (t Tuning) PublishInterval() time.Duration {
	return time.Duration(t.PublishIntervalMs) * time.Millisecond
}

func (t Tuning) StaleAfter() time.Duration {
	return time.Duration(t.StaleAfterMs) * time.Millisecond
}

func (t Tuning) ExpiryInterval() time.Duration {
	return time.Duration(t.ExpiryIntervalSec) * time.Second
}

func (t Tuning) AutosaveInterval() time.Duration {
	return time.Duration(t.AutosaveSec) * time.Second
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

// SessionIdle is how long a session without a live connection stays open
// after its last request.
func (t Tuning) SessionIdle() time.Duration {
	return time.Duration(t.SessionIdleSec) * time.Second
}
