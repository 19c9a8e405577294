package model

import (
	"strings"
	"time"
)

// CategoryLevels is the fixed depth of the catalog's category tree.
const CategoryLevels = 4

// categorySeparators lists the delimiters recognized in taxon tree names,
// tried in preference order. The first one present wins.
var categorySeparators = []string{" > ", " / ", "/", ">"}

// OptionValue is an existing upstream option value attached to a product.
// The catalog's update mutation is a full replace of the option value set,
// so these must be re-sent verbatim on every writeback.
type OptionValue struct {
	OptionTypeID  string `json:"option_type_id"`
	OptionValueID string `json:"option_value_id,omitempty"`
	TextValue     string `json:"text_value,omitempty"`
}

// Product is an immutable snapshot of one catalog item at fetch time.
// CreatedAt doubles as the pagination sort key and the checkpoint watermark.
type Product struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	CategoryLvl1 string    `json:"category_lvl_1"`
	CategoryLvl2 string    `json:"category_lvl_2,omitempty"`
	CategoryLvl3 string    `json:"category_lvl_3,omitempty"`
	CategoryLvl4 string    `json:"category_lvl_4,omitempty"`
	Brand        string    `json:"brand"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`

	// Writeback context: upstream identifiers and attribute values that the
	// full-replace update mutation must carry back.
	BrandID      string        `json:"brand_id,omitempty"`
	TaxonID      string        `json:"taxon_id,omitempty"`
	OptionValues []OptionValue `json:"option_values,omitempty"`
}

// Metadata returns the product's non-empty descriptive attributes as an
// ordered key/value list suitable for building an annotation prompt.
// Identifiers and writeback context are excluded.
func (p Product) Metadata() []MetadataField {
	fields := []MetadataField{
		{"category_lvl_1", p.CategoryLvl1},
		{"category_lvl_2", p.CategoryLvl2},
		{"category_lvl_3", p.CategoryLvl3},
		{"category_lvl_4", p.CategoryLvl4},
		{"brand", p.Brand},
		{"title", p.Title},
		{"description", p.Description},
	}

	out := make([]MetadataField, 0, len(fields))
	for _, f := range fields {
		f.Value = strings.TrimSpace(f.Value)
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

// MetadataField is a single named product attribute.
type MetadataField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SplitCategories splits a delimited taxon tree name into exactly
// CategoryLevels parts. Missing levels are empty strings. A tree name with
// no recognized delimiter is a single level-1 category.
func SplitCategories(treeName string) [CategoryLevels]string {
	var out [CategoryLevels]string

	treeName = strings.TrimSpace(treeName)
	if treeName == "" {
		return out
	}

	var parts []string
	for _, sep := range categorySeparators {
		if strings.Contains(treeName, sep) {
			for _, part := range strings.Split(treeName, sep) {
				if p := strings.TrimSpace(part); p != "" {
					parts = append(parts, p)
				}
			}
			break
		}
	}
	if parts == nil {
		parts = []string{treeName}
	}

	for i := 0; i < len(parts) && i < CategoryLevels; i++ {
		out[i] = parts[i]
	}
	return out
}
