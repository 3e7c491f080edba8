// Package config loads and validates the discussion configuration: the
// global discussion parameters plus the list of participating bots.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxRounds       = 10
	DefaultTimeoutSeconds  = 30
	DefaultContextTurns    = 10
	DefaultTurnDelaySecond = 1
	DefaultLogDir          = "chat_logs"
)

// API selects the wire protocol a bot's endpoint speaks.
type API string

const (
	// APIOllama targets the native Ollama /api/chat endpoint.
	APIOllama API = "ollama"
	// APIOpenAI targets an OpenAI-compatible chat-completions endpoint
	// (Ollama, llama.cpp and LM Studio all expose one).
	APIOpenAI API = "openai"
)

// Bot is one configured participant. Immutable after load.
type Bot struct {
	Name           string `yaml:"name" json:"name"`
	Personality    string `yaml:"personality" json:"personality"`
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	API            API    `yaml:"api" json:"api"`
	Model          string `yaml:"model" json:"model"`
	TimeoutSeconds int    `yaml:"timeout" json:"timeout"`
}

// Timeout is the per-call response deadline for this bot.
func (b Bot) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Config holds the global discussion parameters and all participants.
type Config struct {
	SystemPrompt     string `yaml:"system_prompt" json:"system_prompt"`
	MaxRounds        int    `yaml:"max_rounds" json:"max_rounds"`
	TimeoutSeconds   int    `yaml:"response_timeout" json:"response_timeout"`
	ContextTurns     int    `yaml:"context_turns" json:"context_turns"`
	TurnDelaySeconds int    `yaml:"turn_delay" json:"turn_delay"`
	LogDir           string `yaml:"log_dir" json:"log_dir"`
	Bots             []Bot  `yaml:"bots" json:"bots"`
}

// TurnDelay is the pause inserted between consecutive turns.
func (c *Config) TurnDelay() time.Duration {
	return time.Duration(c.TurnDelaySeconds) * time.Second
}

// Load reads, decodes and validates a configuration file. YAML is the
// primary format; files ending in .json are decoded as JSON. Any failure
// here is fatal for the session: there is nothing to retry.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxRounds == 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.ContextTurns == 0 {
		c.ContextTurns = DefaultContextTurns
	}
	if c.TurnDelaySeconds == 0 {
		c.TurnDelaySeconds = DefaultTurnDelaySecond
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	for i := range c.Bots {
		if c.Bots[i].API == "" {
			c.Bots[i].API = APIOllama
		}
		if c.Bots[i].TimeoutSeconds == 0 {
			c.Bots[i].TimeoutSeconds = c.TimeoutSeconds
		}
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.SystemPrompt) == "" {
		return fmt.Errorf("system_prompt must not be empty")
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("max_rounds must not be negative")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("response_timeout must not be negative")
	}
	if len(c.Bots) == 0 {
		return fmt.Errorf("at least one bot is required")
	}

	seen := make(map[string]bool, len(c.Bots))
	for i, bot := range c.Bots {
		if strings.TrimSpace(bot.Name) == "" {
			return fmt.Errorf("bot %d: name must not be empty", i)
		}
		if seen[bot.Name] {
			return fmt.Errorf("bot %q: duplicate name", bot.Name)
		}
		seen[bot.Name] = true

		if bot.Model == "" {
			return fmt.Errorf("bot %q: model must not be empty", bot.Name)
		}
		if bot.TimeoutSeconds <= 0 {
			return fmt.Errorf("bot %q: timeout must be positive", bot.Name)
		}
		switch bot.API {
		case APIOllama, APIOpenAI:
		default:
			return fmt.Errorf("bot %q: unknown api %q", bot.Name, bot.API)
		}
		u, err := url.Parse(bot.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("bot %q: endpoint %q is not a valid URL", bot.Name, bot.Endpoint)
		}
	}
	return nil
}
