// Package sim holds the live simulation settings shared by every simulated operation.
package sim

import (
	"sync"
	"time"
)

// Settings is a snapshot of the simulation parameters.
// Rates are meant to be in [0,1] but are never clamped.
type Settings struct {
	FailureRate    float64 `json:"failureRate"`
	DuplicateRate  float64 `json:"duplicateRate"`
	OutOfOrderRate float64 `json:"outOfOrderRate"`
	DelayMaxMs     int     `json:"delayMaxMs"`
}

// DelayMax returns the exclusive upper bound of the injected send latency.
func (s Settings) DelayMax() time.Duration {
	return time.Duration(s.DelayMaxMs) * time.Millisecond
}

// Patch is a partial update; nil fields keep their current value.
type Patch struct {
	FailureRate    *float64 `json:"failureRate"`
	DuplicateRate  *float64 `json:"duplicateRate"`
	OutOfOrderRate *float64 `json:"outOfOrderRate"`
	DelayMaxMs     *int     `json:"delayMaxMs"`
}

// Config owns the current Settings.
type Config struct {
	mu sync.RWMutex
	s  Settings
}

// NewConfig returns a Config starting from initial.
func NewConfig(initial Settings) *Config {
	return &Config{s: initial}
}

// Get returns the current settings.
func (c *Config) Get() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s
}

// Update applies p field by field and returns the resulting settings.
func (c *Config) Update(p Patch) Settings {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.FailureRate != nil {
		c.s.FailureRate = *p.FailureRate
	}
	if p.DuplicateRate != nil {
		c.s.DuplicateRate = *p.DuplicateRate
	}
	if p.OutOfOrderRate != nil {
		c.s.OutOfOrderRate = *p.OutOfOrderRate
	}
	if p.DelayMaxMs != nil {
		c.s.DelayMaxMs = *p.DelayMaxMs
	}
	return c.s
}
