// Command ingest runs the Ingest Orchestrator (C5, Stage I): fetches new
// PubMed article ids for a date range and writes parsed articles to the
// article index.
//
// Usage:
//
//	ingest --range 1900/01/01 2026/07/30
//	ingest            # interactive: prompts to confirm a full 1900-to-today run
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
	"github.com/achouhan93/clusterchat-go/internal/config"
	"github.com/achouhan93/clusterchat-go/internal/ingest"
	"github.com/achouhan93/clusterchat-go/internal/observability"
	"github.com/achouhan93/clusterchat-go/internal/pubmedclient"
	"github.com/achouhan93/clusterchat-go/internal/store"
)

const dateLayout = "2006/01/02"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	observability.InitLogger("ingest", cfg.ExecLogPath, cfg.LogLevel)

	start, end, err := resolveRange(os.Args[1:], os.Stdin)
	if err != nil {
		log.Error().Err(err).Msg("ingest: invalid arguments")
		os.Exit(1)
	}

	ctx := context.Background()
	s, err := store.Open(ctx, cfg.Store.DSN(), cfg.Store.QdrantDSN)
	if err != nil {
		log.Error().Err(err).Msg("ingest: open store")
		os.Exit(1)
	}
	defer s.Close()

	if err := s.EnsureIndex(ctx, cfg.Store.ArticleIndex, store.Mapping{SearchText: true}); err != nil {
		log.Error().Err(err).Msg("ingest: ensure article index")
		os.Exit(1)
	}

	artifacts, err := artifact.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("ingest: open artifact store")
		os.Exit(1)
	}

	pm := pubmedclient.New(cfg.External)
	o := ingest.New(s, pm, artifacts, cfg.Store.ArticleIndex)

	result, err := o.Run(ctx, start, end)
	if err != nil {
		log.Error().Err(err).Msg("ingest: run failed")
		os.Exit(1)
	}
	log.Info().Int("days_processed", result.DaysProcessed).Strs("stuck_days", result.StuckDays).Msg("ingest: done")
	if len(result.StuckDays) > 0 {
		os.Exit(1)
	}
}

// resolveRange implements §6's CLI contract: `--range START END` runs that
// window; no arguments at all prompts for confirmation of a full
// 1900-to-today backfill.
func resolveRange(args []string, stdin *os.File) (start, end time.Time, err error) {
	if len(args) == 0 {
		return confirmFullRange(stdin)
	}
	if len(args) != 3 || args[0] != "--range" {
		return time.Time{}, time.Time{}, fmt.Errorf("usage: ingest --range YYYY/MM/DD YYYY/MM/DD")
	}
	start, err = time.Parse(dateLayout, args[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse start date: %w", err)
	}
	end, err = time.Parse(dateLayout, args[2])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse end date: %w", err)
	}
	return start, end, nil
}

func confirmFullRange(stdin *os.File) (start, end time.Time, err error) {
	start = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	end = time.Now().UTC()
	fmt.Printf("insert from %s to %s? (y/n) ", start.Format(dateLayout), end.Format(dateLayout))

	reader := bufio.NewReader(stdin)
	answer, readErr := reader.ReadString('\n')
	if readErr != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("read confirmation: %w", readErr)
	}
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		return time.Time{}, time.Time{}, fmt.Errorf("aborted by user")
	}
	return start, end, nil
}
