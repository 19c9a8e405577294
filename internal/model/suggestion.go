package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Bounds on a valid suggestion, enforced on every annotation response.
const (
	MinQueries    = 1
	MaxQueries    = 3
	MaxQueryWords = 5
)

// Suggestion is the enrichment produced for one product: a small set of
// keyword search queries a shopper could use to find complementary products,
// plus a brief rationale.
type Suggestion struct {
	Queries   []string `json:"queries"`
	Rationale string   `json:"rationale"`
}

// Validate checks the suggestion against the catalog's bounds: 1-3 queries,
// each a non-empty keyword phrase of at most MaxQueryWords words.
func (s Suggestion) Validate() error {
	if len(s.Queries) < MinQueries || len(s.Queries) > MaxQueries {
		return eris.Errorf("suggestion: expected %d-%d queries, got %d", MinQueries, MaxQueries, len(s.Queries))
	}
	for i, q := range s.Queries {
		words := strings.Fields(q)
		if len(words) == 0 {
			return eris.Errorf("suggestion: query %d is empty", i)
		}
		if len(words) > MaxQueryWords {
			return eris.Errorf("suggestion: query %q has %d words, max %d", q, len(words), MaxQueryWords)
		}
	}
	return nil
}
