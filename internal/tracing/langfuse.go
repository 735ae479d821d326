// Package tracing wires Langfuse into eino's callback system so every chat
// model call made while answering a question is traced.
package tracing

import (
	"log/slog"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/version"
)

// Setup initialises the Langfuse callback handler when both keys are set.
// It returns the handler, a flush function that must be called before process
// exit so buffered traces are sent, and whether tracing is enabled. When
// Langfuse is not configured the handler and flush function are nil.
func Setup(s config.TracingSettings) (callbacks.Handler, func(), bool) {
	if !s.Enabled() {
		return nil, nil, false
	}
	host := s.Host
	if host == "" {
		host = "https://cloud.langfuse.com"
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: s.PublicKey,
		SecretKey: s.SecretKey,
		Name:      "docqa",
		Release:   version.Version,
	})
	return handler, flusher, true
}

// Install registers the Langfuse handler globally and returns the flush
// function. It returns a no-op when tracing is disabled.
func Install(s config.TracingSettings, log *slog.Logger) func() {
	handler, flush, ok := Setup(s)
	if !ok {
		log.Debug("tracing: langfuse disabled")
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("tracing: langfuse enabled", slog.String("host", s.Host))
	return flush
}
