// Package tracing wires Langfuse into eino's global callbacks so every ask
// chain run (retrieve, classify, synthesize) is traced when keys are set.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/estoque-rag/internal/version"
)

// traceName labels every trace emitted by this service.
const traceName = "erag-ask"

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. Returns a flush function that must be called
// before process exit to ensure all traces are sent. If Langfuse is not
// configured, both return values are nil and tracing is silently disabled.
func Setup() (callbacks.Handler, func(), bool) {
	cfg, ok := configFromEnv()
	if !ok {
		return nil, nil, false
	}
	handler, flusher := langfuse.NewLangfuseHandler(cfg)
	return handler, flusher, true
}

// configFromEnv resolves the Langfuse configuration. ok is false when either
// key is missing.
func configFromEnv() (*langfuse.Config, bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, false
	}
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = "https://cloud.langfuse.com"
	}
	return &langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      traceName,
		Release:   version.Version,
	}, true
}
