package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chadiek/maternal-support/internal/config"
	"github.com/chadiek/maternal-support/internal/history"
	httpserver "github.com/chadiek/maternal-support/internal/httpserver"
	"github.com/chadiek/maternal-support/internal/llm"
	"github.com/chadiek/maternal-support/internal/relay"
	"github.com/chadiek/maternal-support/internal/storage"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	model, err := llm.New(context.Background(), llm.Options{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.APIKey(),
		Model:    modelName(cfg),
		BaseURL:  cfg.OpenAIBaseURL,
	})
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		// the relay endpoint answers 500 until a key is configured
		log.Printf("warning: no API key for provider %q; /api/generate will report it", cfg.LLMProvider)
		model = nil
	case err != nil:
		log.Fatalf("model client: %v", err)
	}
	if c, ok := model.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}

	store, err := history.Open(history.Options{
		Backend:     cfg.HistoryBackend,
		DSN:         cfg.HistoryDSN,
		SupabaseURL: cfg.SupabaseURL,
		SupabaseKey: cfg.SupabaseServiceRoleKey,
	})
	if err != nil {
		log.Fatalf("history store: %v", err)
	}
	defer func() { _ = store.Close() }()

	objects, err := storage.Open(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseBucket, cfg.StorageDir)
	if err != nil {
		log.Fatalf("object storage: %v", err)
	}

	srv := httpserver.New(cfg, httpserver.Deps{
		Relay:   relay.NewService(model, cfg.PersonaPrompt),
		History: store,
		Storage: objects,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s (model=%s history=%s)", cfg.HTTPAddress, cfg.LLMProvider, cfg.HistoryBackend)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
	srv.Close()
}

func modelName(cfg config.Config) string {
	if cfg.LLMProvider == "openai" {
		return cfg.OpenAIModel
	}
	return cfg.GeminiModel
}
