// Command topic runs the Slice Topic Modeler (C7) followed by the Topic
// Consolidator (C8): fits per-window topic models over the chunk index and
// folds the resulting slices into one deduplicated, labeled topic set.
//
// Usage:
//
//	topic --clusterchatbackend 2024-01-01 2024-01-30
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
	"github.com/achouhan93/clusterchat-go/internal/config"
	"github.com/achouhan93/clusterchat-go/internal/consolidate"
	"github.com/achouhan93/clusterchat-go/internal/llmgateway"
	"github.com/achouhan93/clusterchat-go/internal/observability"
	"github.com/achouhan93/clusterchat-go/internal/store"
	"github.com/achouhan93/clusterchat-go/internal/topicstage"
)

const dateLayout = "2006-01-02"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	observability.InitLogger("topic", cfg.ExecLogPath, cfg.LogLevel)

	start, end, err := parseRange(os.Args[1:])
	if err != nil {
		log.Error().Err(err).Msg("topic: invalid arguments")
		os.Exit(1)
	}

	ctx := context.Background()
	s, err := store.Open(ctx, cfg.Store.DSN(), cfg.Store.QdrantDSN)
	if err != nil {
		log.Error().Err(err).Msg("topic: open store")
		os.Exit(1)
	}
	defer s.Close()

	artifacts, err := artifact.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("topic: open artifact store")
		os.Exit(1)
	}

	gw, err := llmgateway.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("topic: build llm gateway")
		os.Exit(1)
	}

	slicer := topicstage.New(s, artifacts, cfg.Store.ChunkCompleteIndex)
	sliceResult, err := slicer.Run(ctx, start, end)
	if err != nil {
		log.Error().Err(err).Msg("topic: slice modeling failed")
		os.Exit(1)
	}
	log.Info().Interface("result", sliceResult).Msg("topic: slice modeling done")

	consolidator := consolidate.New(artifacts, gw)
	consolidateResult, err := consolidator.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("topic: consolidation failed")
		os.Exit(1)
	}
	log.Info().Interface("result", consolidateResult).Msg("topic: consolidation done")
}

func parseRange(raw []string) (start, end time.Time, err error) {
	if len(raw) != 3 || raw[0] != "--clusterchatbackend" {
		return time.Time{}, time.Time{}, fmt.Errorf("usage: topic --clusterchatbackend START END")
	}
	start, err = time.Parse(dateLayout, raw[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse start date: %w", err)
	}
	end, err = time.Parse(dateLayout, raw[2])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse end date: %w", err)
	}
	return start, end, nil
}
