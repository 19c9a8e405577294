package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Bloop-Tech/users-also-buy/internal/model"
	"github.com/Bloop-Tech/users-also-buy/pkg/marketplacer"
)

// defaultPageSize is the per-round-trip page size when none is configured.
const defaultPageSize = 100

// MappingError records one raw node that could not be mapped to a Product.
// It is a data-quality problem scoped to a single record, never a batch
// failure.
type MappingError struct {
	ProductID string
	Err       error
}

// Paginator walks the catalog forward through an opaque continuation cursor,
// producing one batch per upstream page.
type Paginator struct {
	catalog  marketplacer.Client
	pageSize int
}

// NewPaginator creates a Paginator over the given catalog client.
func NewPaginator(catalog marketplacer.Client, pageSize int) *Paginator {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Paginator{catalog: catalog, pageSize: pageSize}
}

// Fetch starts a fresh walk over products created in [minCreated, maxCreated].
// itemLimit caps the total number of mapped products across all batches; 0 or
// negative with limited=true yields nothing. The walk is restartable from
// scratch only — mid-stream resumption happens at batch boundaries via the
// checkpoint, not the cursor.
func (p *Paginator) Fetch(minCreated, maxCreated time.Time, itemLimit int, limited bool) *BatchIter {
	return &BatchIter{
		paginator:  p,
		minCreated: minCreated,
		maxCreated: maxCreated,
		remaining:  itemLimit,
		limited:    limited,
		done:       limited && itemLimit <= 0,
	}
}

// BatchIter is a pull-based iterator over ordered batches of products.
// Usage mirrors a database row iterator:
//
//	for it.Next(ctx) {
//		batch := it.Batch()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
type BatchIter struct {
	paginator  *Paginator
	minCreated time.Time
	maxCreated time.Time
	remaining  int
	limited    bool

	cursor string
	done   bool
	err    error

	batch   []model.Product
	mapErrs []MappingError
}

// Next advances to the next non-empty batch. It returns false when the
// window is exhausted, the item limit is reached, or a fetch failed (check
// Err). Pages whose records all fail mapping count as no progress but do not
// stop the walk.
func (it *BatchIter) Next(ctx context.Context) bool {
	it.batch = nil
	it.mapErrs = nil

	for !it.done {
		first := it.paginator.pageSize
		if it.limited && it.remaining < first {
			first = it.remaining
		}

		page, err := it.paginator.catalog.FetchProductsPage(ctx, marketplacer.PageRequest{
			After:        it.cursor,
			First:        first,
			CreatedSince: it.minCreated,
			CreatedUntil: it.maxCreated,
		})
		if err != nil {
			it.err = err
			it.done = true
			return false
		}

		var batch []model.Product
		var mapErrs []MappingError
		for _, node := range page.Nodes {
			product, err := mapProduct(node)
			if err != nil {
				mapErrs = append(mapErrs, MappingError{ProductID: node.ID, Err: err})
				continue
			}
			batch = append(batch, product)
		}

		if it.limited {
			it.remaining -= len(batch)
			if it.remaining <= 0 {
				it.done = true
			}
		}
		// Trusting the source's declared order, but an empty or missing
		// continuation cursor ends the walk even when hasNextPage is
		// asserted: advancing with a stale cursor would loop forever.
		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" {
			it.done = true
		}
		it.cursor = page.PageInfo.EndCursor

		if len(batch) == 0 && len(mapErrs) == 0 && !it.done {
			// Empty page with more pages asserted: no progress, keep walking.
			zap.L().Debug("paginator: empty page, continuing",
				zap.String("cursor", it.cursor),
			)
			continue
		}
		if len(batch) == 0 && len(mapErrs) == 0 {
			return false
		}

		it.batch = batch
		it.mapErrs = mapErrs
		return true
	}
	return false
}

// Batch returns the current batch, sorted ascending by creation time as
// delivered by the source.
func (it *BatchIter) Batch() []model.Product { return it.batch }

// MappingErrors returns the per-record mapping failures for the current page.
func (it *BatchIter) MappingErrors() []MappingError { return it.mapErrs }

// Err returns the fetch error that stopped the walk, if any.
func (it *BatchIter) Err() error { return it.err }

// mapProduct converts a raw catalog node into a Product. Records missing
// category information or a title are rejected individually.
func mapProduct(node marketplacer.ProductNode) (model.Product, error) {
	categories := model.SplitCategories(node.Taxon.TreeName)
	if categories[0] == "" {
		return model.Product{}, eris.New("product missing category information")
	}
	if node.Title == "" {
		return model.Product{}, eris.New("product missing title")
	}

	brand := node.Brand.Name
	if brand == "" {
		brand = "Unknown"
	}

	optionValues := make([]model.OptionValue, 0, len(node.OptionValues.Nodes))
	for _, ov := range node.OptionValues.Nodes {
		mapped := model.OptionValue{
			OptionTypeID: ov.OptionType.ID,
			TextValue:    ov.TextValue,
		}
		if ov.OptionValue != nil {
			mapped.OptionValueID = ov.OptionValue.ID
		}
		optionValues = append(optionValues, mapped)
	}

	return model.Product{
		ID:           node.ID,
		CreatedAt:    node.CreatedAt,
		CategoryLvl1: categories[0],
		CategoryLvl2: categories[1],
		CategoryLvl3: categories[2],
		CategoryLvl4: categories[3],
		Brand:        brand,
		Title:        node.Title,
		Description:  node.Description,
		BrandID:      node.Brand.ID,
		TaxonID:      node.Taxon.ID,
		OptionValues: optionValues,
	}, nil
}
