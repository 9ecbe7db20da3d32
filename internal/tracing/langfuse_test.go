package tracing

import (
	"testing"

	"github.com/54b3r/estoque-rag/internal/version"
)

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-lf-123")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	h, flush, ok := Setup()
	if ok || h != nil || flush != nil {
		t.Errorf("expected tracing disabled, got ok=%v", ok)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-lf-123")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk-lf-456")
	t.Setenv("LANGFUSE_HOST", "")

	cfg, ok := configFromEnv()
	if !ok {
		t.Fatal("expected tracing enabled")
	}
	if cfg.Host != "https://cloud.langfuse.com" {
		t.Errorf("default host: got %q", cfg.Host)
	}
	if cfg.Name != traceName || cfg.Release != version.Version {
		t.Errorf("name/release: got %q/%q", cfg.Name, cfg.Release)
	}

	t.Setenv("LANGFUSE_HOST", "http://langfuse:3000")
	if cfg, _ := configFromEnv(); cfg.Host != "http://langfuse:3000" {
		t.Errorf("host override: got %q", cfg.Host)
	}
}
