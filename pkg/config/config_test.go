package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
handle: bot
platform:
  bearer_token: token
generate:
  api_key: key
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Mode != "poll" || cfg.Source.Schedule != "@every 90s" {
		t.Fatalf("poll defaults not applied: %+v", cfg.Source)
	}
	if cfg.Filter.Handle != "bot" {
		t.Fatalf("filter handle must default to the bot handle, got %q", cfg.Filter.Handle)
	}
	if cfg.Engine.CooldownSecs != 60 {
		t.Fatalf("engine cooldown default = %d", cfg.Engine.CooldownSecs)
	}
	if cfg.Tracking.FollowUpWindowMins != 30 {
		t.Fatalf("follow-up window default = %d", cfg.Tracking.FollowUpWindowMins)
	}
	if cfg.Engine.FollowUpWindowMins != 30 {
		t.Fatalf("follow-up window not mirrored into the engine config: %d", cfg.Engine.FollowUpWindowMins)
	}
	if cfg.Generate.QuestionPolicy != "reject" {
		t.Fatalf("question policy default = %q", cfg.Generate.QuestionPolicy)
	}
}

func TestLoadEnvFallbacks(t *testing.T) {
	t.Setenv("PLATFORM_BEARER_TOKEN", "env-token")
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("BRAVE_API_KEY", "env-brave")

	cfg, err := Load(writeConfig(t, "handle: bot\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform.BearerToken != "env-token" || cfg.Generate.APIKey != "env-key" {
		t.Fatalf("credentials not read from env: %+v", cfg.Platform)
	}
	if cfg.Search.Brave.APIKey != "env-brave" {
		t.Fatalf("brave key not read from env")
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("PLATFORM_BEARER_TOKEN", "token")
	t.Setenv("OPENAI_API_KEY", "key")

	tests := []struct {
		name string
		body string
	}{
		{"missing handle", "source:\n  mode: poll\n"},
		{"unknown mode", "handle: bot\nsource:\n  mode: carrier-pigeon\n"},
		{"stream without url", "handle: bot\nsource:\n  mode: stream\n"},
		{"unknown question policy", "handle: bot\ngenerate:\n  question_policy: rewrtie\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("PLATFORM_BEARER_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := Load(writeConfig(t, "handle: bot\n")); err == nil {
		t.Fatalf("expected error without credentials")
	}
}
