// Package ingest is the Ingest Orchestrator (C5, Stage I): walks a date
// range strictly descending, fetches new article ids per day from the
// external service, and bulk-upserts parsed articles into the article
// index, skipping ids already present.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
	"github.com/achouhan93/clusterchat-go/internal/docmap"
	"github.com/achouhan93/clusterchat-go/internal/pipeline"
	"github.com/achouhan93/clusterchat-go/internal/pubmedclient"
	"github.com/achouhan93/clusterchat-go/internal/store"
	"github.com/achouhan93/clusterchat-go/internal/xmlparse"
)

const (
	idGroupSize      = 100
	eutilsDateLayout = "2006/01/02"
	// maxDayRetries bounds the O2 stuck-day risk: a day that still has
	// failures after this many passes is reported, not retried forever.
	maxDayRetries = 3
	// groupConcurrency bounds how many id-groups within a single day are
	// fetched and upserted at once; each group is an independent efetch
	// call plus bulk upsert, so the only shared state is per-day bookkeeping.
	groupConcurrency = 4
)

// Checkpoint is the resumable state for a `--range` run: the last fully
// clean day processed and any days that remained stuck after maxDayRetries.
type Checkpoint struct {
	LastCleanDay string   `json:"last_clean_day"`
	StuckDays    []string `json:"stuck_days"`
}

// Result summarizes one orchestrator run.
type Result struct {
	DaysProcessed int
	StuckDays     []string
}

// Orchestrator drives Stage I.
type Orchestrator struct {
	Store     store.Client
	PubMed    *pubmedclient.Client
	Artifacts artifact.Store
	Index     string
}

// New builds an Orchestrator.
func New(s store.Client, p *pubmedclient.Client, a artifact.Store, articleIndex string) *Orchestrator {
	return &Orchestrator{Store: s, PubMed: p, Artifacts: a, Index: articleIndex}
}

const checkpointName = "ingest/checkpoint.json"

// Run processes every date in [start, end] strictly descending (§5), per
// §4.5. On an empty range it still emits the single info log required by
// §8 B1 before returning a zero Result.
func (o *Orchestrator) Run(ctx context.Context, start, end time.Time) (Result, error) {
	if end.Before(start) {
		log.Info().Msg("ingest: empty date range, no writes")
		return Result{}, nil
	}

	var result Result
	for d := end; !d.Before(start); d = d.AddDate(0, 0, -1) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ok, err := o.processDayWithRetries(ctx, d)
		if err != nil {
			return result, fmt.Errorf("ingest: day %s: %w", d.Format(eutilsDateLayout), err)
		}
		if ok {
			result.DaysProcessed++
			cp := Checkpoint{LastCleanDay: d.Format("2006-01-02")}
			if cerr := pipeline.SaveCheckpoint(ctx, o.Artifacts, checkpointName, cp); cerr != nil {
				return result, cerr
			}
		} else {
			day := d.Format("2006-01-02")
			result.StuckDays = append(result.StuckDays, day)
			log.Error().Str("day", day).Msg("ingest: day still has failures after max retries")
		}
	}
	return result, nil
}

// processDayWithRetries re-attempts a day up to maxDayRetries times,
// bounding the O2 risk of looping forever on a persistently failing day.
func (o *Orchestrator) processDayWithRetries(ctx context.Context, d time.Time) (clean bool, err error) {
	for attempt := 1; attempt <= maxDayRetries; attempt++ {
		clean, err = o.processDay(ctx, d)
		if err != nil {
			return false, err
		}
		if clean {
			return true, nil
		}
		log.Warn().Str("day", d.Format("2006-01-02")).Int("attempt", attempt).
			Msg("ingest: day had per-item failures, retrying")
	}
	return false, nil
}

// processDay fetches ids for one day, filters to ids missing from the
// article index, and bulk-upserts parsed articles in groups of 100 (with
// C1's own internal sub-batching at 50). It returns clean=true only if
// every group upserted with zero per-item failures (§4.5).
func (o *Orchestrator) processDay(ctx context.Context, d time.Time) (clean bool, err error) {
	dateStr := d.Format(eutilsDateLayout)

	ids, err := o.PubMed.SearchIDs(ctx, dateStr, dateStr)
	if err != nil {
		log.Error().Err(err).Str("day", dateStr).Msg("ingest: id search failed")
		return false, nil
	}
	if len(ids) == 0 {
		log.Info().Str("day", dateStr).Msg("ingest: no ids for day")
		return true, nil
	}

	missing, err := o.Store.MGetMissing(ctx, o.Index, ids)
	if err != nil {
		return false, fmt.Errorf("mget_missing: %w", err)
	}
	if len(missing) == 0 {
		log.Info().Str("day", dateStr).Msg("ingest: all ids already present")
		return true, nil
	}

	groups := pipeline.Batches(missing, idGroupSize)
	cleanFlags := make([]bool, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(groupConcurrency)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			ok, err := o.upsertGroup(gctx, group)
			cleanFlags[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	clean = true
	for _, ok := range cleanFlags {
		if !ok {
			clean = false
		}
	}
	return clean, nil
}

func (o *Orchestrator) upsertGroup(ctx context.Context, ids []string) (clean bool, err error) {
	xml, err := o.PubMed.FetchArticlesXML(ctx, ids)
	if err != nil {
		log.Error().Err(err).Strs("ids", ids).Msg("ingest: efetch failed for group")
		return false, nil
	}

	articles, err := xmlparse.Parse(xml)
	if err != nil {
		// §4.4: a parse failure is fatal to the whole batch, not a
		// retryable per-item failure — it aborts Run rather than being
		// folded into day-retry/stuck-day bookkeeping.
		log.Error().Err(err).Strs("ids", ids).Msg("ingest: parse failed for group")
		return false, fmt.Errorf("parse failed for ids %v: %w", ids, err)
	}

	docs := make([]store.Document, len(articles))
	for i, a := range articles {
		docs[i] = store.Document{ID: a.ID, Body: docmap.ArticleToBody(a)}
	}

	results, err := o.Store.BulkUpsert(ctx, o.Index, docs)
	if err != nil {
		return false, fmt.Errorf("bulk_upsert: %w", err)
	}

	clean = true
	for _, r := range results {
		if r.Error != nil {
			clean = false
			log.Error().Err(r.Error).Str("id", r.ID).Msg("ingest: bulk upsert item failed")
		}
	}
	return clean, nil
}
