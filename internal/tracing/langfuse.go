// Package tracing wires the two observability back ends: Langfuse receives
// every LLM call through eino's global callback handlers, and OpenTelemetry
// receives one span per query run with a child span per agent phase.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultLangfuseHost is used when LANGFUSE_HOST is unset.
const defaultLangfuseHost = "http://localhost:3000"

// LangfuseConfig reads the Langfuse connection settings from the
// environment. ok is false when either key is missing.
func LangfuseConfig() (cfg *langfuse.Config, ok bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, false
	}
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultLangfuseHost
	}
	return &langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
	}, true
}

// SetupLangfuse registers the Langfuse handler as a global eino callback
// when LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY are set. The returned
// flush function must be called before process exit so buffered traces are
// sent; it is a no-op when Langfuse is not configured.
func SetupLangfuse() (flush func(), enabled bool) {
	cfg, ok := LangfuseConfig()
	if !ok {
		return func() {}, false
	}
	handler, flusher := langfuse.NewLangfuseHandler(cfg)
	callbacks.AppendGlobalHandlers(handler)
	return flusher, true
}
