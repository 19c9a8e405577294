package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Bloop-Tech/users-also-buy/internal/model"
	"github.com/Bloop-Tech/users-also-buy/internal/resilience"
	"github.com/Bloop-Tech/users-also-buy/pkg/marketplacer"
)

// querySeparator joins the suggested queries into the single text value the
// catalog stores for the complementary-queries option type.
const querySeparator = "+++"

// Applier writes one enrichment result back to the catalog. The update is a
// full replace of the product's mutable attribute set, so Apply re-sends
// every attribute alongside the new queries; applying the same pair twice is
// idempotent.
type Applier struct {
	catalog marketplacer.Client
	retry   resilience.RetryConfig
}

// NewApplier creates an Applier with the given retry policy for transient
// transport errors.
func NewApplier(catalog marketplacer.Client, retry resilience.RetryConfig) *Applier {
	retry.OnRetry = resilience.RetryLogger("marketplacer", "update_product")
	retry.ShouldRetry = isRetryableWriteback
	return &Applier{catalog: catalog, retry: retry}
}

// Apply updates the product upstream with the suggestion's queries merged
// into its existing option values.
func (a *Applier) Apply(ctx context.Context, product model.Product, suggestion model.Suggestion) error {
	fieldID, err := a.catalog.QueriesOptionTypeID(ctx)
	if err != nil {
		return eris.Wrap(err, "writeback: resolve queries option type")
	}

	optionValues := []marketplacer.OptionValueInput{
		{
			OptionTypeID: fieldID,
			TextValue:    strings.Join(suggestion.Queries, querySeparator),
		},
	}
	for _, ov := range product.OptionValues {
		if ov.OptionTypeID == fieldID {
			// Superseded by the fresh queries value above.
			continue
		}
		switch {
		case ov.OptionValueID != "":
			optionValues = append(optionValues, marketplacer.OptionValueInput{
				OptionValueID: ov.OptionValueID,
			})
		case ov.TextValue != "":
			optionValues = append(optionValues, marketplacer.OptionValueInput{
				OptionTypeID: ov.OptionTypeID,
				TextValue:    ov.TextValue,
			})
		default:
			zap.L().Warn("writeback: option value missing both value id and text, dropping",
				zap.String("product_id", product.ID),
				zap.String("option_type_id", ov.OptionTypeID),
			)
		}
	}

	req := marketplacer.UpdateRequest{
		ProductID: product.ID,
		Attributes: marketplacer.ProductAttributes{
			Title:        product.Title,
			Description:  product.Description,
			BrandID:      product.BrandID,
			TaxonID:      product.TaxonID,
			OptionValues: optionValues,
		},
	}

	return resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		return a.catalog.UpdateProduct(ctx, req)
	})
}

// isRetryableWriteback treats catalog 429/5xx responses and network-level
// failures as transient. Mutation validation errors are permanent.
func isRetryableWriteback(err error) bool {
	var se *marketplacer.StatusError
	if errors.As(err, &se) {
		return resilience.IsTransientHTTPStatus(se.StatusCode)
	}
	return resilience.IsTransient(err)
}
