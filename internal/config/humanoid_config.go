// File: internal/config/humanoid_config.go
// This file defines PacingConfig, the tunable parameters for the humanoid pacing
// layer: inter-action delays, the generic human delay, incidental scrolling,
// keystroke timing and idle cursor motion.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// PacingConfig controls how long the automation waits between actions and how it
// fills those waits.
type PacingConfig struct {
	// Inter-action pacing window in milliseconds (inclusive).
	ActionMinMs int `mapstructure:"action_min_ms" yaml:"action_min_ms"`
	ActionMaxMs int `mapstructure:"action_max_ms" yaml:"action_max_ms"`
	// Generic "human delay" window in milliseconds (inclusive).
	HumanMinMs int `mapstructure:"human_min_ms" yaml:"human_min_ms"`
	HumanMaxMs int `mapstructure:"human_max_ms" yaml:"human_max_ms"`

	// Random scroll magnitude is uniform in [ScrollMinPx, max(ScrollFloorPx, fraction*innerHeight)].
	ScrollMinPx            int     `mapstructure:"scroll_min_px" yaml:"scroll_min_px"`
	ScrollFloorPx          int     `mapstructure:"scroll_floor_px" yaml:"scroll_floor_px"`
	ScrollViewportFraction float64 `mapstructure:"scroll_viewport_fraction" yaml:"scroll_viewport_fraction"`

	// Keystroke timing (gaussian).
	TypeMeanMs   float64 `mapstructure:"type_mean_ms" yaml:"type_mean_ms"`
	TypeStdDevMs float64 `mapstructure:"type_stddev_ms" yaml:"type_stddev_ms"`

	// Idle cursor motion while waiting.
	HesitateEnabled   bool    `mapstructure:"hesitate_enabled" yaml:"hesitate_enabled"`
	HesitateAmplitude float64 `mapstructure:"hesitate_amplitude" yaml:"hesitate_amplitude"`

	// Hard ceiling on dispatches, independent of the randomized delays.
	MaxSendsPerMinute float64 `mapstructure:"max_sends_per_minute" yaml:"max_sends_per_minute"`
}

func setPacingDefaults(v *viper.Viper) {
	v.SetDefault("pacing.action_min_ms", 1000)
	v.SetDefault("pacing.action_max_ms", 6000)
	v.SetDefault("pacing.human_min_ms", 3000)
	v.SetDefault("pacing.human_max_ms", 8000)
	v.SetDefault("pacing.scroll_min_px", 60)
	v.SetDefault("pacing.scroll_floor_px", 120)
	v.SetDefault("pacing.scroll_viewport_fraction", 0.45)
	v.SetDefault("pacing.type_mean_ms", 85.0)
	v.SetDefault("pacing.type_stddev_ms", 30.0)
	v.SetDefault("pacing.hesitate_enabled", true)
	v.SetDefault("pacing.hesitate_amplitude", 4.0)
	v.SetDefault("pacing.max_sends_per_minute", 6.0)
}

// Validate checks the pacing windows.
func (p PacingConfig) Validate() error {
	if p.ActionMinMs < 0 || p.ActionMaxMs < p.ActionMinMs {
		return fmt.Errorf("action window [%d, %d] is invalid", p.ActionMinMs, p.ActionMaxMs)
	}
	if p.HumanMinMs < 0 || p.HumanMaxMs < p.HumanMinMs {
		return fmt.Errorf("human window [%d, %d] is invalid", p.HumanMinMs, p.HumanMaxMs)
	}
	if p.ScrollMinPx < 0 || p.ScrollFloorPx < p.ScrollMinPx {
		return fmt.Errorf("scroll_floor_px must be >= scroll_min_px")
	}
	if p.MaxSendsPerMinute <= 0 {
		return fmt.Errorf("max_sends_per_minute must be positive")
	}
	return nil
}
