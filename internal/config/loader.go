package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":   {"openai"},
	"tts":   {"openai"},
	"image": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
// Credential fields of the form ${VAR} are expanded from the environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandSecrets(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandSecrets resolves ${VAR} references in credential fields so that keys
// never have to live in the config file itself.
func expandSecrets(cfg *Config) {
	cfg.Providers.LLM.APIKey = os.ExpandEnv(cfg.Providers.LLM.APIKey)
	cfg.Providers.STT.APIKey = os.ExpandEnv(cfg.Providers.STT.APIKey)
	cfg.Providers.TTS.APIKey = os.ExpandEnv(cfg.Providers.TTS.APIKey)
	cfg.Providers.Image.APIKey = os.ExpandEnv(cfg.Providers.Image.APIKey)
	cfg.Database.PostgresDSN = os.ExpandEnv(cfg.Database.PostgresDSN)
	cfg.Payment.APIKey = os.ExpandEnv(cfg.Payment.APIKey)
	if cfg.Auth.Google != nil {
		cfg.Auth.Google.ClientSecret = os.ExpandEnv(cfg.Auth.Google.ClientSecret)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("image", cfg.Providers.Image.Name)

	// The dialogue loop needs all three voice-pipeline providers.
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required"))
	}
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required"))
	}
	if cfg.Providers.Image.Name == "" {
		slog.Warn("providers.image is not configured; character avatar generation will be unavailable")
	}

	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; falling back to in-memory stores, data will not survive restarts")
	}

	// Auth
	if cfg.Auth.SessionTTLHours < 0 {
		errs = append(errs, fmt.Errorf("auth.session_ttl_hours %d must not be negative", cfg.Auth.SessionTTLHours))
	}
	if g := cfg.Auth.Google; g != nil {
		if g.ClientID == "" {
			errs = append(errs, errors.New("auth.google.client_id is required when google auth is set"))
		}
		if g.ClientSecret == "" {
			errs = append(errs, errors.New("auth.google.client_secret is required when google auth is set"))
		}
		if g.RedirectURL == "" {
			errs = append(errs, errors.New("auth.google.redirect_url is required when google auth is set"))
		}
	}

	// Payment
	if cfg.Payment.BaseURL != "" && cfg.Payment.APIKey == "" {
		slog.Warn("payment.base_url is set but payment.api_key is empty; subscription lookups will likely fail")
	}

	// Dialogue tuning
	if cfg.Dialogue.TurnTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("dialogue.turn_timeout_seconds %d must not be negative", cfg.Dialogue.TurnTimeoutSeconds))
	}
	if cfg.Dialogue.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("dialogue.history_window %d must not be negative", cfg.Dialogue.HistoryWindow))
	}
	if cfg.Dialogue.RelistenDelayMillis < 0 {
		errs = append(errs, fmt.Errorf("dialogue.relisten_delay_millis %d must not be negative", cfg.Dialogue.RelistenDelayMillis))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
