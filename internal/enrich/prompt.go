package enrich

import (
	"encoding/json"
	"fmt"

	"github.com/Bloop-Tech/users-also-buy/internal/model"
)

// PromptVariant selects one of the fixed annotation instruction templates.
type PromptVariant string

const (
	// VariantSpecific allows queries tailored closely to the input product.
	VariantSpecific PromptVariant = "specific"
	// VariantGeneric steers queries away from narrow details, for catalogs
	// too small to match very specific searches.
	VariantGeneric PromptVariant = "generic"
)

// Valid reports whether the variant is one of the known presets.
func (v PromptVariant) Valid() bool {
	return v == VariantSpecific || v == VariantGeneric
}

const systemPromptSpecific = `Your goal is to suggest complementary products for the input product, mimicking the concept of 'users also buy'.
You will receive one product's metadata and must suggest search queries a user could run to find complementary products in the same catalog.
The queries must be keyword based so they work well in a keyword search engine. Each query should have between 1 and 5 words.
Suggest between 1 and 3 queries, in English. Only suggest more than 1 query if you are very confident the extra queries are still highly relevant.
Respond with a valid JSON object and nothing else: {"queries": ["<query>", ...], "rationale": "<very brief explanation>"}`

const systemPromptGeneric = `Your goal is to suggest complementary products for the input product, mimicking the concept of 'users also buy'.
You will receive one product's metadata and must suggest search queries a user could run to find complementary products in the same catalog.
The queries must be keyword based so they work well in a keyword search engine. Each query should have between 1 and 5 words.
Suggest between 1 and 3 queries, in English. Avoid very specific details: the catalog is not vast, and overly narrow queries are likely to miss.
Only suggest more than 1 query if you are very confident the extra queries are still highly relevant.
Respond with a valid JSON object and nothing else: {"queries": ["<query>", ...], "rationale": "<very brief explanation>"}`

// SystemPrompt returns the instruction template for the given variant.
// Unknown variants fall back to the specific template.
func SystemPrompt(variant PromptVariant) string {
	if variant == VariantGeneric {
		return systemPromptGeneric
	}
	return systemPromptSpecific
}

// UserPrompt renders one product's metadata into the annotation request body.
func UserPrompt(p model.Product) string {
	meta := make(map[string]string)
	for _, f := range p.Metadata() {
		meta[f.Key] = f.Value
	}
	// Metadata keys are stable; marshal indented for prompt readability.
	body, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		body = []byte("{}")
	}
	return fmt.Sprintf("Suggest also-buy queries for this product:\n%s", body)
}
