package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/econgame/go/internal/eventbus"
	"github.com/mcdev12/econgame/go/internal/game"
	"github.com/mcdev12/econgame/go/internal/gateway"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     string          `yaml:"port"`
	LogLevel string          `yaml:"log_level"`
	Game     game.Config     `yaml:"game"`
	Gateway  gateway.Config  `yaml:"gateway"`
	NATS     eventbus.Config `yaml:"nats"`
}

func defaultConfig() Config {
	return Config{
		Port:     "8080",
		LogLevel: "info",
		Game:     game.DefaultConfig(),
		Gateway:  gateway.DefaultConfig(),
		NATS:     eventbus.DefaultConfig(),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// loadConfig reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func loadConfig(path string) (Config, error) {
	config := defaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

// applyEnv lets environment variables override the file.
func applyEnv(config *Config) {
	config.Port = getEnv("PORT", config.Port)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)
	config.Gateway.InstructorKey = getEnv("INSTRUCTOR_KEY", config.Gateway.InstructorKey)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)

	g := &config.Game
	g.TotalRounds = getEnvAsInt("TOTAL_ROUNDS", g.TotalRounds)
	g.RoundDuration = getEnvAsSeconds("ROUND_SECONDS", g.RoundDuration)
	g.AutoSubmitAt = getEnvAsSeconds("AUTO_SUBMIT_SECONDS", g.AutoSubmitAt)
	g.AutoStart.Threshold = getEnvAsInt("AUTO_START_THRESHOLD", g.AutoStart.Threshold)
	g.AutoStart.ManualStart = getEnvAsBool("MANUAL_START", g.AutoStart.ManualStart)
	g.RequireRegisteredTeams = getEnvAsBool("REQUIRE_REGISTERED_TEAMS", g.RequireRegisteredTeams)
}

func (c Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.Game.Validate(); err != nil {
		return fmt.Errorf("game: %w", err)
	}
	return nil
}

func parseLogLevel(level string) (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		return zerolog.InfoLevel, nil
	}
	return lvl, nil
}
