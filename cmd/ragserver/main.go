// Command ragserver runs the RAG Service (C11, Stage R): an HTTP API
// answering document-specific and corpus-specific questions over the
// indexed chunk and cluster stores.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/config"
	"github.com/achouhan93/clusterchat-go/internal/llmgateway"
	"github.com/achouhan93/clusterchat-go/internal/observability"
	"github.com/achouhan93/clusterchat-go/internal/rag"
	"github.com/achouhan93/clusterchat-go/internal/rag/obs"
	"github.com/achouhan93/clusterchat-go/internal/ragcache"
	"github.com/achouhan93/clusterchat-go/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("ragserver: load config")
	}
	observability.InitLogger("ragserver", cfg.ExecLogPath, cfg.LogLevel)

	ctx := context.Background()
	s, err := store.Open(ctx, cfg.Store.DSN(), cfg.Store.QdrantDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("ragserver: open store")
	}
	defer s.Close()

	gw, err := llmgateway.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("ragserver: build llm gateway")
	}

	shutdownOTel := func(context.Context) error { return nil }
	if cfg.Obs.OTLP != "" {
		shutdownOTel, err = observability.InitOTel(ctx, cfg.Obs)
		if err != nil {
			log.Fatal().Err(err).Msg("ragserver: init otel")
		}
	}

	cache, err := ragcache.New(cfg.Redis, cfg.RAGCacheTTLSeconds)
	if err != nil {
		log.Fatal().Err(err).Msg("ragserver: build answer cache")
	}
	if cache != nil {
		defer cache.Close()
	}

	processor := rag.NewProcessor(cfg, s, gw)
	processor.Metrics = obs.NewOtelMetrics()
	processor.Cache = cache

	handler := otelhttp.NewHandler(rag.NewServer(processor), "ragserver")
	srv := &http.Server{Addr: cfg.RAGListenAddr, Handler: handler}

	go func() {
		log.Info().Str("addr", cfg.RAGListenAddr).Msg("ragserver: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ragserver: listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ragserver: shutdown error")
	} else {
		log.Info().Msg("ragserver: stopped")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ragserver: otel shutdown error")
	}
}
