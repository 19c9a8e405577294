package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Bloop-Tech/users-also-buy/internal/checkpoint"
	"github.com/Bloop-Tech/users-also-buy/internal/enrich"
	"github.com/Bloop-Tech/users-also-buy/internal/model"
	"github.com/Bloop-Tech/users-also-buy/pkg/anthropic"
	"github.com/Bloop-Tech/users-also-buy/pkg/marketplacer"
)

// --- Catalog mock (testify) ---

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) FetchProductsPage(ctx context.Context, req marketplacer.PageRequest) (*marketplacer.ProductsPage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketplacer.ProductsPage), args.Error(1)
}

func (m *mockCatalog) UpdateProduct(ctx context.Context, req marketplacer.UpdateRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *mockCatalog) QueriesOptionTypeID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// --- Catalog fake (scripted upstream) ---

// fakeCatalog simulates the upstream catalog over a fixed node set: the
// window filter, ascending creation order, cursor paging, and recorded
// updates. Cursors encode the next offset.
type fakeCatalog struct {
	mu    sync.Mutex
	nodes []marketplacer.ProductNode

	fetchCalls int
	lastReq    marketplacer.PageRequest
	updates    []marketplacer.UpdateRequest

	updateErr func(req marketplacer.UpdateRequest) error
	fetchErr  func(call int) error
}

func (f *fakeCatalog) FetchProductsPage(_ context.Context, req marketplacer.PageRequest) (*marketplacer.ProductsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++
	f.lastReq = req
	if f.fetchErr != nil {
		if err := f.fetchErr(f.fetchCalls); err != nil {
			return nil, err
		}
	}

	var window []marketplacer.ProductNode
	for _, n := range f.nodes {
		if !n.CreatedAt.Before(req.CreatedSince) && !n.CreatedAt.After(req.CreatedUntil) {
			window = append(window, n)
		}
	}

	start := 0
	if req.After != "" {
		start, _ = strconv.Atoi(strings.TrimPrefix(req.After, "c"))
	}
	end := start + req.First
	if end > len(window) {
		end = len(window)
	}
	if start > end {
		start = end
	}

	return &marketplacer.ProductsPage{
		Nodes:      window[start:end],
		PageInfo:   marketplacer.PageInfo{HasNextPage: end < len(window), EndCursor: fmt.Sprintf("c%d", end)},
		TotalCount: len(window),
	}, nil
}

func (f *fakeCatalog) UpdateProduct(_ context.Context, req marketplacer.UpdateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		if err := f.updateErr(req); err != nil {
			return err
		}
	}
	f.updates = append(f.updates, req)
	return nil
}

func (f *fakeCatalog) QueriesOptionTypeID(_ context.Context) (string, error) {
	return "ot-queries", nil
}

// --- Checkpoint store fake ---

type memStore struct {
	mu      sync.Mutex
	cp      *model.Checkpoint
	saves   []model.Checkpoint
	loadErr error
	saveErr error
}

var _ checkpoint.Store = (*memStore)(nil)

func (s *memStore) Load(context.Context) (*model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.cp == nil {
		return nil, nil
	}
	cp := *s.cp
	return &cp, nil
}

func (s *memStore) Save(_ context.Context, cp model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.cp = &cp
	s.saves = append(s.saves, cp)
	return nil
}

func (s *memStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp = nil
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) watermark() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cp == nil {
		return time.Time{}
	}
	return s.cp.LatestProductCreatedAt
}

// --- Enricher fakes ---

// enricherFunc adapts a function to the Enricher interface.
type enricherFunc func(ctx context.Context, batch []model.Product) []enrich.Result

func (f enricherFunc) Enrich(ctx context.Context, batch []model.Product) []enrich.Result {
	return f(ctx, batch)
}

// okEnricher annotates every product successfully.
func okEnricher() Enricher {
	return failEnricher()
}

// failEnricher annotates every product except the listed ids, which fail.
func failEnricher(failIDs ...string) Enricher {
	fail := make(map[string]bool, len(failIDs))
	for _, id := range failIDs {
		fail[id] = true
	}
	return enricherFunc(func(_ context.Context, batch []model.Product) []enrich.Result {
		out := make([]enrich.Result, len(batch))
		for i, p := range batch {
			out[i].Product = p
			out[i].Usage = anthropic.TokenUsage{InputTokens: 10, OutputTokens: 5}
			if fail[p.ID] {
				out[i].Err = fmt.Errorf("annotation failed for %s", p.ID)
				continue
			}
			out[i].Suggestion = model.Suggestion{
				Queries:   []string{"related items"},
				Rationale: "test",
			}
		}
		return out
	})
}

// --- Node helpers ---

func node(id string, createdAt time.Time) marketplacer.ProductNode {
	return marketplacer.ProductNode{
		ID:        id,
		Title:     "Product " + id,
		CreatedAt: createdAt,
		Brand:     marketplacer.BrandNode{ID: "br-1", Name: "Acme"},
		Taxon:     marketplacer.TaxonNode{ID: "tx-1", TreeName: "Home > Kitchen"},
	}
}
