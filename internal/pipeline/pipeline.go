// Package pipeline drives the incremental catalog enrichment loop:
// fetch a batch, annotate it, write the annotations back, advance the
// checkpoint, repeat until the time window is exhausted.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Bloop-Tech/users-also-buy/internal/checkpoint"
	"github.com/Bloop-Tech/users-also-buy/internal/enrich"
	"github.com/Bloop-Tech/users-also-buy/internal/model"
	"github.com/Bloop-Tech/users-also-buy/pkg/anthropic"
)

// watermarkStep is added to the stored watermark to compute the next run's
// start bound. The catalog window filter is inclusive, so starting exactly
// at the watermark would re-fetch the last processed record.
const watermarkStep = time.Second

// Enricher annotates a batch of products, preserving input order.
type Enricher interface {
	Enrich(ctx context.Context, batch []model.Product) []enrich.Result
}

// Options are per-run knobs supplied by the command line.
type Options struct {
	// Since overrides the checkpoint-derived start bound when non-nil.
	Since *time.Time
	// Limit caps the number of products processed this run; meaningful only
	// when Limited is true.
	Limit   int
	Limited bool
	// DryRun enriches but skips writeback and checkpoint advancement.
	DryRun bool
}

// Pipeline orchestrates sequential batches. Batches are the unit of retry:
// the checkpoint only ever advances after a batch has fully completed
// fetch, enrichment, and writeback.
type Pipeline struct {
	ckpt      checkpoint.Store
	paginator *Paginator
	enricher  Enricher
	applier   *Applier
	epoch     time.Time
	aiModel   string
}

// New assembles a Pipeline. epoch is the start bound used when no checkpoint
// exists yet.
func New(ckpt checkpoint.Store, paginator *Paginator, enricher Enricher, applier *Applier, epoch time.Time, aiModel string) *Pipeline {
	return &Pipeline{
		ckpt:      ckpt,
		paginator: paginator,
		enricher:  enricher,
		applier:   applier,
		epoch:     epoch,
		aiModel:   aiModel,
	}
}

// Run executes one pipeline pass over [start bound, now). It returns a
// summary even on failure, with the summary's Outcome reflecting how the run
// ended. Writeback and infrastructure errors abort the run without advancing
// past the last confirmed checkpoint; mapping and annotation failures skip
// individual records and keep going.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.RunSummary, error) {
	startedAt := time.Now().UTC()
	summary := &model.RunSummary{
		StartedAt: startedAt,
		DryRun:    opts.DryRun,
	}

	start, err := p.resolveStartBound(ctx, opts)
	if err != nil {
		summary.Outcome = model.OutcomeAborted
		return summary, err
	}
	// The end bound is captured once: records created mid-run wait for the
	// next run instead of widening the window underneath us.
	end := startedAt

	summary.WindowStart = start
	summary.WindowEnd = end

	log := zap.L().With(
		zap.Time("window_start", start),
		zap.Time("window_end", end),
	)
	log.Info("pipeline: starting run")

	var totalUsage anthropic.TokenUsage
	iter := p.paginator.Fetch(start, end, opts.Limit, opts.Limited)
	for iter.Next(ctx) {
		batch := iter.Batch()
		mapErrs := iter.MappingErrors()

		bs := model.BatchSummary{
			Fetched:      len(batch) + len(mapErrs),
			MappingSkips: len(mapErrs),
		}
		for _, me := range mapErrs {
			zap.L().Warn("pipeline: record dropped, unmappable",
				zap.String("product_id", me.ProductID),
				zap.Error(me.Err),
			)
		}
		if len(batch) == 0 {
			// Entire page was unmappable: nothing to enrich and no ordering
			// key to advance to. Count the skips and keep walking.
			summary.AddBatch(bs)
			continue
		}

		bs.WindowStart = batch[0].CreatedAt
		bs.WindowEnd = batch[len(batch)-1].CreatedAt
		log.Info("pipeline: processing batch",
			zap.Int("products", len(batch)),
			zap.Time("batch_start", bs.WindowStart),
			zap.Time("batch_end", bs.WindowEnd),
		)

		results := p.enricher.Enrich(ctx, batch)
		for _, r := range results {
			totalUsage.InputTokens += r.Usage.InputTokens
			totalUsage.OutputTokens += r.Usage.OutputTokens
			totalUsage.CacheCreationInputTokens += r.Usage.CacheCreationInputTokens
			totalUsage.CacheReadInputTokens += r.Usage.CacheReadInputTokens
			if r.Err == nil {
				bs.Enriched++
			}
		}

		for _, r := range results {
			if r.Err != nil {
				// Permanently skipped: the checkpoint will advance past this
				// record, so it is never revisited.
				zap.L().Warn("pipeline: skipping writeback, annotation failed",
					zap.String("product_id", r.Product.ID),
					zap.Error(r.Err),
				)
				bs.AnnotationSkips++
				continue
			}
			if opts.DryRun {
				bs.Written++
				continue
			}
			if err := p.applier.Apply(ctx, r.Product, r.Suggestion); err != nil {
				// Partial writeback with checkpoint advance would silently
				// lose the remaining updates; abort instead and let the next
				// run re-fetch this window (writeback is idempotent).
				summary.AddBatch(bs)
				summary.Outcome = model.OutcomeAborted
				return summary, eris.Wrapf(err, "pipeline: writeback for %s", r.Product.ID)
			}
			bs.Written++
		}

		if !opts.DryRun {
			cp := model.Checkpoint{
				// The last fetched record's key, not the last written one:
				// batches are fully attempted, then left behind.
				LatestProductCreatedAt: batch[len(batch)-1].CreatedAt,
				LastRunStartedAt:       startedAt,
			}
			if err := p.ckpt.Save(ctx, cp); err != nil {
				summary.AddBatch(bs)
				summary.Outcome = model.OutcomeAborted
				return summary, eris.Wrap(err, "pipeline: save checkpoint")
			}
		}

		summary.AddBatch(bs)
	}
	if err := iter.Err(); err != nil {
		summary.Outcome = model.OutcomeAborted
		return summary, eris.Wrap(err, "pipeline: fetch batch")
	}

	summary.TokenUsage = model.TokenUsage{
		InputTokens:  int(totalUsage.InputTokens),
		OutputTokens: int(totalUsage.OutputTokens),
	}
	totalUsage.LogCost(p.aiModel, "enrich")

	if summary.Skipped() {
		summary.Outcome = model.OutcomeSkips
	} else {
		summary.Outcome = model.OutcomeClean
	}

	log.Info("pipeline: run complete",
		zap.Int("batches", len(summary.Batches)),
		zap.Int("fetched", summary.Fetched),
		zap.Int("enriched", summary.Enriched),
		zap.Int("written", summary.Written),
		zap.Int("mapping_skips", summary.MappingSkips),
		zap.Int("annotation_skips", summary.AnnotationSkips),
		zap.String("outcome", string(summary.Outcome)),
	)
	return summary, nil
}

// resolveStartBound computes where this run's window opens: an explicit
// override, the stored watermark plus one step, or the fixed epoch.
func (p *Pipeline) resolveStartBound(ctx context.Context, opts Options) (time.Time, error) {
	if opts.Since != nil {
		return opts.Since.UTC(), nil
	}

	cp, err := p.ckpt.Load(ctx)
	if err != nil {
		return time.Time{}, eris.Wrap(err, "pipeline: load checkpoint")
	}
	if cp == nil {
		zap.L().Info("pipeline: no checkpoint, starting from epoch",
			zap.Time("epoch", p.epoch),
		)
		return p.epoch, nil
	}

	zap.L().Info("pipeline: resuming from checkpoint",
		zap.Time("watermark", cp.LatestProductCreatedAt),
		zap.Time("last_run_started_at", cp.LastRunStartedAt),
	)
	return cp.LatestProductCreatedAt.Add(watermarkStep).UTC(), nil
}
