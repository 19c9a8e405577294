package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bloop-Tech/users-also-buy/internal/checkpoint"
	"github.com/Bloop-Tech/users-also-buy/internal/model"
	"github.com/Bloop-Tech/users-also-buy/pkg/marketplacer"
)

var testEpoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// sevenNodes returns p1..p7 with ascending creation times one minute apart.
func sevenNodes() ([]marketplacer.ProductNode, []time.Time) {
	base := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	nodes := make([]marketplacer.ProductNode, 7)
	times := make([]time.Time, 7)
	for i := range nodes {
		times[i] = base.Add(time.Duration(i) * time.Minute)
		nodes[i] = node(ids[i], times[i])
	}
	return nodes, times
}

var ids = []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}

func newTestPipeline(store checkpoint.Store, catalog marketplacer.Client, enr Enricher, pageSize int) *Pipeline {
	return New(
		store,
		NewPaginator(catalog, pageSize),
		enr,
		NewApplier(catalog, fastRetry(1)),
		testEpoch,
		"claude-haiku-4-5-20251001",
	)
}

func TestRun_CheckpointWalkAcrossRuns(t *testing.T) {
	nodes, times := sevenNodes()
	catalog := &fakeCatalog{nodes: nodes}
	store := &memStore{}
	ctx := context.Background()

	// First run: limit 5 with page size 2 processes p1..p5 across three
	// pages and leaves the watermark at p5.
	p := newTestPipeline(store, catalog, okEnricher(), 2)
	summary, err := p.Run(ctx, Options{Limit: 5, Limited: true})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeClean, summary.Outcome)
	assert.Equal(t, 5, summary.Fetched)
	assert.Equal(t, 5, summary.Enriched)
	assert.Equal(t, 5, summary.Written)
	assert.Len(t, summary.Batches, 3)
	assert.Equal(t, 3, catalog.fetchCalls)
	require.Len(t, catalog.updates, 5)
	for i, u := range catalog.updates {
		assert.Equal(t, ids[i], u.ProductID)
	}
	assert.True(t, store.watermark().Equal(times[4]), "watermark must be p5's creation time")
	// One save per completed batch: p2, p4, p5.
	require.Len(t, store.saves, 3)
	assert.True(t, store.saves[0].LatestProductCreatedAt.Equal(times[1]))
	assert.True(t, store.saves[1].LatestProductCreatedAt.Equal(times[3]))
	assert.True(t, store.saves[2].LatestProductCreatedAt.Equal(times[4]))
	assert.Equal(t, model.TokenUsage{InputTokens: 50, OutputTokens: 25}, summary.TokenUsage)

	// Second run: no limit picks up p6 and p7 only.
	catalog.fetchCalls = 0
	catalog.updates = nil
	summary, err = p.Run(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeClean, summary.Outcome)
	assert.Equal(t, 2, summary.Fetched)
	require.Len(t, catalog.updates, 2)
	assert.Equal(t, "p6", catalog.updates[0].ProductID)
	assert.Equal(t, "p7", catalog.updates[1].ProductID)
	assert.True(t, catalog.lastReq.CreatedSince.Equal(times[4].Add(time.Second)),
		"resumption starts strictly after the watermark")
	assert.True(t, store.watermark().Equal(times[6]))

	// Third run: nothing new; the watermark stays put.
	catalog.updates = nil
	summary, err = p.Run(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeClean, summary.Outcome)
	assert.Equal(t, 0, summary.Fetched)
	assert.Empty(t, catalog.updates)
	assert.True(t, store.watermark().Equal(times[6]))
	assert.Equal(t, 0, summary.Outcome.ExitCode())
}

func TestRun_SinceOverridesCheckpoint(t *testing.T) {
	nodes, times := sevenNodes()
	catalog := &fakeCatalog{nodes: nodes}
	store := &memStore{cp: &model.Checkpoint{LatestProductCreatedAt: times[6]}}

	p := newTestPipeline(store, catalog, okEnricher(), 10)
	since := times[0]
	summary, err := p.Run(context.Background(), Options{Since: &since})
	require.NoError(t, err)

	// The stored watermark says everything is done; --since rewinds anyway.
	assert.Equal(t, 7, summary.Fetched)
	assert.True(t, catalog.lastReq.CreatedSince.Equal(times[0]))
}

func TestRun_WritebackFailureAbortsWithoutAdvancing(t *testing.T) {
	nodes, times := sevenNodes()
	catalog := &fakeCatalog{
		nodes: nodes[:4],
		updateErr: func(req marketplacer.UpdateRequest) error {
			if req.ProductID == "p3" {
				return eris.New("rejected: taxonId is invalid")
			}
			return nil
		},
	}
	store := &memStore{}

	p := newTestPipeline(store, catalog, okEnricher(), 2)
	summary, err := p.Run(context.Background(), Options{})
	require.Error(t, err)

	assert.Equal(t, model.OutcomeAborted, summary.Outcome)
	assert.Equal(t, 1, summary.Outcome.ExitCode())
	// The first batch completed; the failed one must not move the watermark.
	assert.True(t, store.watermark().Equal(times[1]), "watermark must stay at p2")
	require.Len(t, catalog.updates, 2)
	assert.Equal(t, 4, summary.Fetched)
	assert.Equal(t, 2, summary.Written)
}

func TestRun_WritebackFailureResumesFromLastBatch(t *testing.T) {
	nodes, times := sevenNodes()
	failing := true
	catalog := &fakeCatalog{
		nodes: nodes[:4],
		updateErr: func(req marketplacer.UpdateRequest) error {
			if failing && req.ProductID == "p3" {
				return eris.New("rejected")
			}
			return nil
		},
	}
	store := &memStore{}
	ctx := context.Background()

	p := newTestPipeline(store, catalog, okEnricher(), 2)
	_, err := p.Run(ctx, Options{})
	require.Error(t, err)

	// The failure clears; the next run re-fetches only the aborted window.
	failing = false
	catalog.updates = nil
	summary, err := p.Run(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Fetched)
	require.Len(t, catalog.updates, 2)
	assert.Equal(t, "p3", catalog.updates[0].ProductID)
	assert.Equal(t, "p4", catalog.updates[1].ProductID)
	assert.True(t, store.watermark().Equal(times[3]))
}

func TestRun_AnnotationFailureSkipsAndAdvances(t *testing.T) {
	nodes, times := sevenNodes()
	catalog := &fakeCatalog{nodes: nodes[:2]}
	store := &memStore{}

	p := newTestPipeline(store, catalog, failEnricher("p1"), 2)
	summary, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSkips, summary.Outcome)
	assert.Equal(t, 3, summary.Outcome.ExitCode())
	assert.Equal(t, 1, summary.AnnotationSkips)
	assert.Equal(t, 1, summary.Enriched)
	assert.Equal(t, 1, summary.Written)
	require.Len(t, catalog.updates, 1)
	assert.Equal(t, "p2", catalog.updates[0].ProductID)
	// The skip is permanent: the watermark moves past p1.
	assert.True(t, store.watermark().Equal(times[1]))
}

func TestRun_UnmappableRecordsAreSkipped(t *testing.T) {
	nodes, times := sevenNodes()
	nodes[1].Title = "" // p2 unmappable
	catalog := &fakeCatalog{nodes: nodes[:3]}
	store := &memStore{}

	p := newTestPipeline(store, catalog, okEnricher(), 10)
	summary, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSkips, summary.Outcome)
	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 1, summary.MappingSkips)
	assert.Equal(t, 2, summary.Written)
	assert.True(t, store.watermark().Equal(times[2]))
}

func TestRun_AllUnmappableBatchDoesNotAdvance(t *testing.T) {
	nodes, _ := sevenNodes()
	nodes[0].Title = ""
	catalog := &fakeCatalog{nodes: nodes[:1]}
	store := &memStore{}

	p := newTestPipeline(store, catalog, okEnricher(), 10)
	summary, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSkips, summary.Outcome)
	assert.Equal(t, 1, summary.MappingSkips)
	// Nothing mapped, so there is no ordering key to advance to.
	assert.Empty(t, store.saves)
}

func TestRun_CheckpointSaveFailureAborts(t *testing.T) {
	nodes, _ := sevenNodes()
	catalog := &fakeCatalog{nodes: nodes[:2]}
	store := &memStore{saveErr: eris.New("disk full")}

	p := newTestPipeline(store, catalog, okEnricher(), 2)
	summary, err := p.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Equal(t, model.OutcomeAborted, summary.Outcome)
}

func TestRun_CheckpointLoadFailureAborts(t *testing.T) {
	catalog := &fakeCatalog{}
	store := &memStore{loadErr: eris.New("corrupt checkpoint")}

	p := newTestPipeline(store, catalog, okEnricher(), 2)
	summary, err := p.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Equal(t, model.OutcomeAborted, summary.Outcome)
	assert.Equal(t, 0, catalog.fetchCalls, "a bad checkpoint must never silently restart from the epoch")
}

func TestRun_FetchFailureMidRunAborts(t *testing.T) {
	nodes, times := sevenNodes()
	catalog := &fakeCatalog{
		nodes: nodes[:4],
		fetchErr: func(call int) error {
			if call == 2 {
				return eris.New("upstream unavailable")
			}
			return nil
		},
	}
	store := &memStore{}

	p := newTestPipeline(store, catalog, okEnricher(), 2)
	summary, err := p.Run(context.Background(), Options{})
	require.Error(t, err)

	assert.Equal(t, model.OutcomeAborted, summary.Outcome)
	// The completed first batch keeps its checkpoint.
	assert.True(t, store.watermark().Equal(times[1]))
	assert.Equal(t, 2, summary.Fetched)
}

func TestRun_DryRun(t *testing.T) {
	nodes, _ := sevenNodes()
	catalog := &fakeCatalog{nodes: nodes[:2]}
	store := &memStore{}

	p := newTestPipeline(store, catalog, okEnricher(), 2)
	summary, err := p.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, model.OutcomeClean, summary.Outcome)
	assert.Equal(t, 2, summary.Written)
	assert.Empty(t, catalog.updates, "dry run must not write back")
	assert.Empty(t, store.saves, "dry run must not advance the checkpoint")
}

func TestRun_FirstRunStartsFromEpoch(t *testing.T) {
	nodes, _ := sevenNodes()
	catalog := &fakeCatalog{nodes: nodes[:1]}
	store := &memStore{}

	p := newTestPipeline(store, catalog, okEnricher(), 10)
	_, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.True(t, catalog.lastReq.CreatedSince.Equal(testEpoch))
}

func TestRun_WatermarkIsMonotonic(t *testing.T) {
	nodes, times := sevenNodes()
	catalog := &fakeCatalog{nodes: nodes}
	store := &memStore{}
	ctx := context.Background()

	p := newTestPipeline(store, catalog, okEnricher(), 3)
	_, err := p.Run(ctx, Options{})
	require.NoError(t, err)

	prev := time.Time{}
	for _, cp := range store.saves {
		assert.True(t, cp.LatestProductCreatedAt.After(prev), "watermark must only move forward")
		prev = cp.LatestProductCreatedAt
	}
	assert.True(t, prev.Equal(times[6]))
}
