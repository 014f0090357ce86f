package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/talkscene/talkscene/internal/config"
	"github.com/talkscene/talkscene/pkg/provider/llm"
	llmmock "github.com/talkscene/talkscene/pkg/provider/llm/mock"
)

const minimalYAML = `
providers:
  llm:
    name: openai
    model: gpt-4o-mini
  stt:
    name: openai
    model: whisper-1
  tts:
    name: openai
    model: tts-1
`

func TestLoadFromReader_Minimal(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm model = %q, want gpt-4o-mini", cfg.Providers.LLM.Model)
	}
	if cfg.Providers.TTS.Name != "openai" {
		t.Errorf("tts name = %q, want openai", cfg.Providers.TTS.Name)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
serverr:
  listen_addr: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_MissingPipelineProviders(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing providers, got nil")
	}
	for _, want := range []string{"providers.llm", "providers.stt", "providers.tts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_GoogleAuthIncomplete(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
auth:
  google:
    client_id: abc123
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for incomplete google auth, got nil")
	}
	if !strings.Contains(err.Error(), "client_secret") {
		t.Errorf("error should mention client_secret, got: %v", err)
	}
	if !strings.Contains(err.Error(), "redirect_url") {
		t.Errorf("error should mention redirect_url, got: %v", err)
	}
}

func TestValidate_NegativeDialogueTuning(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
dialogue:
  turn_timeout_seconds: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative turn timeout, got nil")
	}
}

func TestLoadFromReader_ExpandsSecretEnvRefs(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test-123")
	yaml := `
providers:
  llm:
    name: openai
    api_key: ${TEST_OPENAI_KEY}
  stt:
    name: openai
  tts:
    name: openai
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-test-123" {
		t.Errorf("api_key = %q, want sk-test-123", cfg.Providers.LLM.APIKey)
	}
}

func TestRegistry_CreateUnregistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	_, err := r.CreateLLM(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("want ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	want := &llmmock.Provider{}
	r.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return want, nil
	})
	got, err := r.CreateLLM(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if got != want {
		t.Error("CreateLLM returned a different provider than the factory produced")
	}
}
