package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if !cfg.Twitter.Simulate {
		t.Error("Twitter.Simulate should default to true")
	}
	if cfg.AI.ClassificationEnabled || cfg.Email.Enabled {
		t.Error("classification and email should default to disabled")
	}
	if cfg.AI.DailyLimit != DefaultAIDailyLimit {
		t.Errorf("AI.DailyLimit = %d, want %d", cfg.AI.DailyLimit, DefaultAIDailyLimit)
	}
	if cfg.Email.Host != "localhost" || cfg.Email.Port != 1025 {
		t.Errorf("SMTP = %s:%d, want localhost:1025", cfg.Email.Host, cfg.Email.Port)
	}
	if cfg.Monitor.ReplyDelay != 2*time.Minute || cfg.Monitor.MaxRepliesPerRun != 5 {
		t.Errorf("monitor defaults = %+v", cfg.Monitor)
	}
	if len(cfg.Monitor.Handles) != 2 {
		t.Errorf("Monitor.Handles = %v, want 2 defaults", cfg.Monitor.Handles)
	}
	if task, ok := cfg.Scheduler.Tasks["monitor_twitter"]; !ok || task.Enabled {
		t.Errorf("monitor_twitter task = %+v (present %v), want present and disabled", task, ok)
	}
	if cfg.LLM.Provider != "none" {
		t.Errorf("LLM.Provider = %q, want none", cfg.LLM.Provider)
	}
}

func TestLoadConfigLegacyEnv(t *testing.T) {
	t.Setenv("SIMULATE_TWITTER", "false")
	t.Setenv("PORT", "8080")
	t.Setenv("MONITORED_TWITTER_HANDLES", "@one, @two,@three")
	t.Setenv("MCP_BASE_URL", "http://localhost:8008/")
	t.Setenv("ENABLE_EMAIL", "true")
	t.Setenv("NOTIFY_TO", "roads@city.gov.in")
	t.Setenv("AI_DAILY_LIMIT", "12")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Twitter.Simulate {
		t.Error("SIMULATE_TWITTER=false should disable simulation")
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if got := cfg.Monitor.Handles; len(got) != 3 || got[1] != "@two" {
		t.Errorf("Monitor.Handles = %v", got)
	}
	if cfg.LLM.Provider != "gateway" || cfg.LLM.GatewayURL != "http://localhost:8008" {
		t.Errorf("LLM = %s %s, want gateway at trimmed URL", cfg.LLM.Provider, cfg.LLM.GatewayURL)
	}
	if !cfg.Email.Enabled || len(cfg.Email.To) != 1 {
		t.Errorf("Email = %+v", cfg.Email)
	}
	if cfg.AI.DailyLimit != 12 {
		t.Errorf("AI.DailyLimit = %d, want 12", cfg.AI.DailyLimit)
	}
}

func TestLoadConfigSimulateTwitter(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{value: "false", want: false},
		{value: "FALSE", want: false},
		{value: " false ", want: false},
		{value: "0", want: true},
		{value: "no", want: true},
		{value: "off", want: true},
		{value: "true", want: true},
		{value: "", want: true},
	}

	for _, tt := range tests {
		t.Run("value "+strconv.Quote(tt.value), func(t *testing.T) {
			t.Setenv("SIMULATE_TWITTER", tt.value)
			cfg, err := LoadConfig("")
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if cfg.Twitter.Simulate != tt.want {
				t.Errorf("Twitter.Simulate = %v, want %v", cfg.Twitter.Simulate, tt.want)
			}
		})
	}

	t.Run("yaml false", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("twitter:\n  simulate: false\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Twitter.Simulate {
			t.Error("simulate: false in YAML should disable simulation")
		}
	})
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
logger:
  level: debug
  json: true
twitter:
  civic_handle: "@CityOffice"
  daily_limit: 3
scheduler:
  tasks:
    monitor_twitter:
      enabled: true
      schedule: "0 */5 * * * *"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Logger.Level != "debug" || !cfg.Logger.JSON {
		t.Errorf("Logger = %+v", cfg.Logger)
	}
	if cfg.Twitter.CivicHandle != "@CityOffice" || cfg.Twitter.DailyLimit != 3 {
		t.Errorf("Twitter = %+v", cfg.Twitter)
	}
	if task := cfg.Scheduler.Tasks["monitor_twitter"]; !task.Enabled || task.Schedule != "0 */5 * * * *" {
		t.Errorf("monitor_twitter task = %+v", task)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "email enabled without recipients", env: map[string]string{"ENABLE_EMAIL": "true"}},
		{name: "bad log level", env: map[string]string{"CIVICBOT_LOGGER_LEVEL": "verbose"}},
		{name: "openai without key", env: map[string]string{"CIVICBOT_LLM_PROVIDER": "openai"}},
		{name: "handle without at sign", env: map[string]string{"MONITORED_TWITTER_HANDLES": "GBA_office"}},
		{name: "unknown timezone", env: map[string]string{"CIVICBOT_AI_TIMEZONE": "Mars/Olympus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			if !errors.Is(err, ErrValidation) {
				t.Errorf("LoadConfig() error = %v, want ErrValidation", err)
			}
		})
	}
}
