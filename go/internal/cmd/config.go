package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/echoplay/echoplay/go/clients/authapi"
	"github.com/echoplay/echoplay/go/clients/liveaudio"
	"github.com/echoplay/echoplay/go/internal/match"
	"github.com/echoplay/echoplay/go/internal/match/events"
)

// Config is the service configuration file shape. Environment variables
// override the file for secrets and per-host settings.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Match struct {
		DefaultRoundSec    int `yaml:"default_round_sec"`
		MinRoundSec        int `yaml:"min_round_sec"`
		TickIntervalMS     int `yaml:"tick_interval_ms"`
		SessionGraceSec    int `yaml:"session_grace_sec"`
		EvaluateTimeoutSec int `yaml:"evaluate_timeout_sec"`
	} `yaml:"match"`

	NATS struct {
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	LiveAudio liveaudio.Config `yaml:"live_audio"`
	Auth      authapi.Config   `yaml:"auth"`
}

func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if config.Server.Port == "" {
		config.Server.Port = getEnv("PORT", "8080")
	}
	if config.NATS.URL == "" {
		config.NATS.URL = getEnv("NATS_URL", "")
	}
	if config.LiveAudio.BaseURL == "" {
		config.LiveAudio.BaseURL = getEnv("LIVE_AUDIO_URL", "")
	}
	if config.LiveAudio.APIKey == "" {
		config.LiveAudio.APIKey = getEnv("LIVE_AUDIO_API_KEY", "")
	}
	if config.Auth.BaseURL == "" {
		config.Auth.BaseURL = getEnv("AUTH_API_URL", "http://localhost:9000")
	}

	return &config, nil
}

// matchSettings folds file values over the defaults.
func (c *Config) matchSettings() match.Settings {
	s := match.DefaultSettings()
	if c.Match.DefaultRoundSec > 0 {
		s.DefaultRoundSec = c.Match.DefaultRoundSec
	}
	if c.Match.MinRoundSec > 0 {
		s.MinRoundSec = c.Match.MinRoundSec
	}
	if c.Match.TickIntervalMS > 0 {
		s.TickInterval = time.Duration(c.Match.TickIntervalMS) * time.Millisecond
	}
	if c.Match.SessionGraceSec > 0 {
		s.SessionGrace = time.Duration(c.Match.SessionGraceSec) * time.Second
	}
	if c.Match.EvaluateTimeoutSec > 0 {
		s.EvaluateTimeout = time.Duration(c.Match.EvaluateTimeoutSec) * time.Second
	}
	return s
}

// natsConfig folds file values over the defaults.
func (c *Config) natsConfig() events.NATSConfig {
	nc := events.DefaultNATSConfig()
	nc.URL = c.NATS.URL
	if c.NATS.StreamName != "" {
		nc.StreamName = c.NATS.StreamName
	}
	if c.NATS.SubjectPrefix != "" {
		nc.SubjectPrefix = c.NATS.SubjectPrefix
	}
	return nc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
