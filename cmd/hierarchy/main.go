// Command hierarchy runs the Hierarchy Builder (C9) followed by the
// Cluster/Document Indexer (C10): builds the binary topic hierarchy from
// the consolidated topic set, then indexes it and assigns every chunk in
// the given date window to its nearest leaf cluster.
//
// Usage:
//
//	hierarchy --clusterinformation 2024-01-01 2024-01-30
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
	"github.com/achouhan93/clusterchat-go/internal/config"
	"github.com/achouhan93/clusterchat-go/internal/hierarchy"
	"github.com/achouhan93/clusterchat-go/internal/indexstage"
	"github.com/achouhan93/clusterchat-go/internal/llmgateway"
	"github.com/achouhan93/clusterchat-go/internal/observability"
	"github.com/achouhan93/clusterchat-go/internal/store"
)

const dateLayout = "2006-01-02"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	observability.InitLogger("hierarchy", cfg.ExecLogPath, cfg.LogLevel)

	start, end, err := parseRange(os.Args[1:])
	if err != nil {
		log.Error().Err(err).Msg("hierarchy: invalid arguments")
		os.Exit(1)
	}

	ctx := context.Background()
	s, err := store.Open(ctx, cfg.Store.DSN(), cfg.Store.QdrantDSN)
	if err != nil {
		log.Error().Err(err).Msg("hierarchy: open store")
		os.Exit(1)
	}
	defer s.Close()

	artifacts, err := artifact.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("hierarchy: open artifact store")
		os.Exit(1)
	}

	gw, err := llmgateway.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("hierarchy: build llm gateway")
		os.Exit(1)
	}

	builder := hierarchy.New(artifacts, gw)
	buildResult, err := builder.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("hierarchy: build failed")
		os.Exit(1)
	}
	log.Info().Interface("result", buildResult).Msg("hierarchy: build done")

	indexer := indexstage.New(s, artifacts, cfg.Store.ClusterIndex, cfg.Store.ChunkCompleteIndex, cfg.Store.DocProjectionIndex)
	indexResult, err := indexer.Run(ctx, start, end)
	if err != nil {
		log.Error().Err(err).Msg("hierarchy: indexing failed")
		os.Exit(1)
	}
	log.Info().Interface("result", indexResult).Msg("hierarchy: indexing done")
}

func parseRange(raw []string) (start, end time.Time, err error) {
	if len(raw) != 3 || raw[0] != "--clusterinformation" {
		return time.Time{}, time.Time{}, fmt.Errorf("usage: hierarchy --clusterinformation START END")
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
