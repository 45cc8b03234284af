// Package config loads, normalizes and validates civicbot configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable derived from a config key,
// e.g. CIVICBOT_EMAIL_HOST for email.host.
const EnvPrefix = "CIVICBOT"

// envFiles are loaded, if present, before the environment is read. Variables
// that are already set are never overridden.
var envFiles = []string{".env.local", ".env"}

// LoadConfig reads configuration in order of increasing precedence:
// defaults, the YAML file at path (optional), then environment variables.
func LoadConfig(path string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to load env file", "file", f, "error", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}
	if err := v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "CEREBRAS_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind llm api key env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			slog.Info("Config file not found, using defaults and environment", "path", path)
		}
	}

	cfg := &Config{}
	decodeHooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHooks); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	normalize(cfg)
	cfg.Twitter.Simulate = simulateFlag(v.GetString("twitter.simulate"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize fixes up values that legacy environment variables provide in a looser form.
func normalize(cfg *Config) {
	if cfg.Server.Addr != "" && !strings.Contains(cfg.Server.Addr, ":") {
		cfg.Server.Addr = ":" + cfg.Server.Addr
	}
	if cfg.LLM.Provider == "none" && cfg.LLM.GatewayURL != "" {
		cfg.LLM.Provider = "gateway"
	}
	cfg.LLM.GatewayURL = strings.TrimRight(cfg.LLM.GatewayURL, "/")
	cfg.Email.To = trimAll(cfg.Email.To)
	cfg.Monitor.Handles = trimAll(cfg.Monitor.Handles)
	cfg.Twitter.StaleHandles = trimAll(cfg.Twitter.StaleHandles)
}

// simulateFlag keeps simulation on for any value other than "false".
func simulateFlag(v string) bool {
	return !strings.EqualFold(strings.TrimSpace(v), "false")
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
