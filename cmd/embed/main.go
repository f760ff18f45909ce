// Command embed runs the Embedding Orchestrator (C6, Stage E): chunks and
// embeds article abstracts into a chunk index, either over a date window or
// over an explicit list of article ids.
//
// Usage:
//
//	embed --vectorcreation 2024-01-01 2024-01-31 --chunking sentence
//	embed --json_file ids.json --chunking complete
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/chunk"
	"github.com/achouhan93/clusterchat-go/internal/config"
	"github.com/achouhan93/clusterchat-go/internal/embedding"
	"github.com/achouhan93/clusterchat-go/internal/embedstage"
	"github.com/achouhan93/clusterchat-go/internal/model"
	"github.com/achouhan93/clusterchat-go/internal/observability"
	"github.com/achouhan93/clusterchat-go/internal/store"
)

const dateLayout = "2006-01-02"

type args struct {
	start, end time.Time
	hasRange   bool
	strategy   chunk.Strategy
	jsonFile   string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	observability.InitLogger("embed", cfg.ExecLogPath, cfg.LogLevel)

	a, err := parseArgs(os.Args[1:])
	if err != nil {
		log.Error().Err(err).Msg("embed: invalid arguments")
		os.Exit(1)
	}

	ctx := context.Background()
	s, err := store.Open(ctx, cfg.Store.DSN(), cfg.Store.QdrantDSN)
	if err != nil {
		log.Error().Err(err).Msg("embed: open store")
		os.Exit(1)
	}
	defer s.Close()

	chunkIndex := cfg.Store.ChunkCompleteIndex
	if a.strategy == chunk.Sentence {
		chunkIndex = cfg.Store.ChunkSentenceIndex
	}
	if err := s.EnsureIndex(ctx, chunkIndex, store.Mapping{
		SearchText: true,
		Vector:     &store.VectorMapping{Dimension: model.ChunkDimension, Metric: "cosine"},
	}); err != nil {
		log.Error().Err(err).Msg("embed: ensure chunk index")
		os.Exit(1)
	}

	embedder := func(ctx context.Context, texts []string) ([][]float32, error) {
		return embedding.EmbedText(ctx, cfg.Embedding, texts)
	}
	o := embedstage.New(s, embedder, cfg.Store.ArticleIndex, chunkIndex, 0)

	var (
		result embedstage.Result
		runErr error
	)
	if a.jsonFile != "" {
		ids, idsErr := loadIDs(a.jsonFile)
		if idsErr != nil {
			log.Error().Err(idsErr).Str("path", a.jsonFile).Msg("embed: load id list")
			os.Exit(1)
		}
		result, runErr = o.RunIDs(ctx, a.strategy, ids)
	} else {
		result, runErr = o.Run(ctx, a.strategy, a.start, a.end)
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("embed: run failed")
		os.Exit(1)
	}
	log.Info().
		Int("days_processed", result.DaysProcessed).
		Int("chunks_written", result.ChunksWritten).
		Int("failed_batches", result.FailedBatches).
		Msg("embed: done")
	if result.FailedBatches > 0 {
		os.Exit(1)
	}
}

func parseArgs(raw []string) (args, error) {
	a := args{strategy: chunk.Complete}
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case "--vectorcreation":
			if i+2 >= len(raw) {
				return args{}, fmt.Errorf("--vectorcreation requires START and END dates")
			}
			start, err := time.Parse(dateLayout, raw[i+1])
			if err != nil {
				return args{}, fmt.Errorf("parse start date: %w", err)
			}
			end, err := time.Parse(dateLayout, raw[i+2])
			if err != nil {
				return args{}, fmt.Errorf("parse end date: %w", err)
			}
			a.start, a.end, a.hasRange = start, end, true
			i += 2
		case "--chunking":
			if i+1 >= len(raw) {
				return args{}, fmt.Errorf("--chunking requires a value")
			}
			switch chunk.Strategy(raw[i+1]) {
			case chunk.Complete, chunk.Sentence:
				a.strategy = chunk.Strategy(raw[i+1])
			default:
				return args{}, fmt.Errorf("--chunking must be %q or %q", chunk.Complete, chunk.Sentence)
			}
			i++
		case "--json_file":
			if i+1 >= len(raw) {
				return args{}, fmt.Errorf("--json_file requires a path")
			}
			a.jsonFile = raw[i+1]
			i++
		default:
			return args{}, fmt.Errorf("unrecognized argument: %s", raw[i])
		}
	}
	if !a.hasRange && a.jsonFile == "" {
		return args{}, fmt.Errorf("usage: embed --vectorcreation START END | --json_file PATH")
	}
	return a, nil
}

func loadIDs(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, fmt.Errorf("decode id list: %w", err)
	}
	return ids, nil
}
