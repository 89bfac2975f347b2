package game

import (
	"fmt"
	"time"

	"github.com/mcdev12/econgame/go/internal/economy"
)

// AutoStartConfig controls when a waiting game starts by itself.
type AutoStartConfig struct {
	Enabled     bool `yaml:"enabled"`
	Threshold   int  `yaml:"threshold"`
	ManualStart bool `yaml:"manual_start"`
}

// Config holds the rules of a game.
type Config struct {
	TotalRounds            int             `yaml:"total_rounds"`
	RoundDuration          time.Duration   `yaml:"round_duration"`
	TickInterval           time.Duration   `yaml:"tick_interval"`
	AutoSubmitAt           time.Duration   `yaml:"auto_submit_at"`
	AllSubmittedGrace      time.Duration   `yaml:"all_submitted_grace"`
	BackupSlack            time.Duration   `yaml:"backup_slack"`
	DefaultInvestment      float64         `yaml:"default_investment"`
	MinInvestment          float64         `yaml:"min_investment"`
	RequireRegisteredTeams bool            `yaml:"require_registered_teams"`
	AutoStart              AutoStartConfig `yaml:"auto_start"`
	Economy                economy.Params  `yaml:"economy"`
}

// DefaultConfig returns the settings used for a standard class session.
func DefaultConfig() Config {
	return Config{
		TotalRounds:       10,
		RoundDuration:     60 * time.Second,
		TickInterval:      time.Second,
		AutoSubmitAt:      5 * time.Second,
		AllSubmittedGrace: 2 * time.Second,
		BackupSlack:       time.Second,
		DefaultInvestment: 0,
		MinInvestment:     0,
		AutoStart: AutoStartConfig{
			Enabled:     true,
			Threshold:   3,
			ManualStart: true,
		},
		Economy: economy.DefaultParams(),
	}
}

// Validate rejects settings the scheduler cannot run with.
func (c Config) Validate() error {
	if c.TotalRounds < 1 {
		return fmt.Errorf("total_rounds must be at least 1, got %d", c.TotalRounds)
	}
	if c.RoundDuration <= 0 {
		return fmt.Errorf("round_duration must be positive, got %s", c.RoundDuration)
	}
	if c.TickInterval <= 0 || c.TickInterval > c.RoundDuration {
		return fmt.Errorf("tick_interval must be in (0, round_duration], got %s", c.TickInterval)
	}
	if c.AutoSubmitAt < 0 || c.AutoSubmitAt >= c.RoundDuration {
		return fmt.Errorf("auto_submit_at must be in [0, round_duration), got %s", c.AutoSubmitAt)
	}
	if c.AllSubmittedGrace < 0 {
		return fmt.Errorf("all_submitted_grace cannot be negative, got %s", c.AllSubmittedGrace)
	}
	if c.BackupSlack <= 0 {
		return fmt.Errorf("backup_slack must be positive, got %s", c.BackupSlack)
	}
	if c.DefaultInvestment < 0 || c.MinInvestment < 0 {
		return fmt.Errorf("default investments cannot be negative")
	}
	if c.AutoStart.Enabled && c.AutoStart.Threshold < 1 {
		return fmt.Errorf("auto_start.threshold must be at least 1, got %d", c.AutoStart.Threshold)
	}
	if err := c.Economy.Validate(); err != nil {
		return fmt.Errorf("economy: %w", err)
	}
	return nil
}
