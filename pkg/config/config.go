// Package config loads the bot configuration from YAML, with environment
// fallbacks for credentials. Each deployment "variant" of the bot is just a
// different configuration profile over the same orchestrator.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/duskmoth/replybot/pkg/engine"
	"github.com/duskmoth/replybot/pkg/filter"
	"github.com/duskmoth/replybot/pkg/generate"
	"github.com/duskmoth/replybot/pkg/knowledge"
	"github.com/duskmoth/replybot/pkg/search"
)

// Config is the root configuration.
type Config struct {
	// Handle is the bot's own handle, without the @ prefix.
	Handle string `yaml:"handle"`

	Source    SourceConfig     `yaml:"source"`
	Platform  PlatformConfig   `yaml:"platform"`
	Filter    filter.Config    `yaml:"filter"`
	Tracking  TrackingConfig   `yaml:"tracking"`
	Knowledge knowledge.Config `yaml:"knowledge"`
	Search    search.Config    `yaml:"search"`
	Research  ResearchConfig   `yaml:"research"`
	Generate  generate.Config  `yaml:"generate"`
	Engine    engine.Config    `yaml:"engine"`
	Health    HealthConfig     `yaml:"health"`
}

type SourceConfig struct {
	// Mode selects poll, webhook, or stream ingestion.
	Mode string `yaml:"mode"`
	// Schedule is the poll interval in cron syntax (poll mode).
	Schedule string `yaml:"schedule"`
	// Listen is the webhook HTTP listen address (webhook mode).
	Listen string `yaml:"listen"`
	// Path is the webhook endpoint path (webhook mode).
	Path string `yaml:"path"`
	// StreamURL is the websocket firehose URL (stream mode).
	StreamURL string `yaml:"stream_url"`
}

type PlatformConfig struct {
	BaseURL     string `yaml:"base_url"`
	BearerToken string `yaml:"bearer_token"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
}

type TrackingConfig struct {
	Path string `yaml:"path"`
	// RetentionDays evicts throttle bookkeeping older than this at
	// startup. 0 keeps everything forever.
	RetentionDays int `yaml:"retention_days"`
	// FollowUpWindowMins bounds the follow-up detection window.
	FollowUpWindowMins int `yaml:"follow_up_window_minutes"`
}

type ResearchConfig struct {
	CachePath    string `yaml:"cache_path"`
	CacheTTLSecs int    `yaml:"cache_ttl_seconds"`
}

type HealthConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads the config file, applies defaults and environment fallbacks,
// and validates the parts that would otherwise fail at first use.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Mode == "" {
		c.Source.Mode = "poll"
	}
	if c.Source.Schedule == "" {
		c.Source.Schedule = "@every 90s"
	}
	if c.Source.Listen == "" {
		c.Source.Listen = ":8080"
	}
	if c.Source.Path == "" {
		c.Source.Path = "/webhooks/platform"
	}
	if c.Tracking.FollowUpWindowMins <= 0 {
		c.Tracking.FollowUpWindowMins = 30
	}
	if c.Filter.Handle == "" {
		c.Filter.Handle = c.Handle
	}
	c.Filter = c.Filter.WithDefaults()
	c.Knowledge = c.Knowledge.WithDefaults()
	c.Generate = c.Generate.WithDefaults()
	c.Engine.FollowUpWindowMins = c.Tracking.FollowUpWindowMins
	c.Engine = c.Engine.WithDefaults()
	c.Search = *c.Search.WithDefaults()
}

func (c *Config) applyEnv() {
	if c.Platform.BearerToken == "" {
		c.Platform.BearerToken = os.Getenv("PLATFORM_BEARER_TOKEN")
	}
	if c.Generate.APIKey == "" {
		c.Generate.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Search.Brave.APIKey == "" {
		c.Search.Brave.APIKey = os.Getenv("BRAVE_API_KEY")
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Handle) == "" {
		return fmt.Errorf("handle is required")
	}
	switch c.Source.Mode {
	case "poll", "webhook", "stream":
	default:
		return fmt.Errorf("unknown source mode %q", c.Source.Mode)
	}
	if c.Source.Mode == "stream" && c.Source.StreamURL == "" {
		return fmt.Errorf("stream mode requires source.stream_url")
	}
	switch c.Generate.QuestionPolicy {
	case generate.QuestionReject, generate.QuestionRewrite:
	default:
		return fmt.Errorf("unknown generate.question_policy %q", c.Generate.QuestionPolicy)
	}
	if c.Platform.BearerToken == "" {
		return fmt.Errorf("platform bearer token is required (config or PLATFORM_BEARER_TOKEN)")
	}
	if c.Generate.APIKey == "" {
		return fmt.Errorf("generation API key is required (config or OPENAI_API_KEY)")
	}
	return nil
}
