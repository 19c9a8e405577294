// Package enrich fans out annotation calls for a batch of products with
// bounded concurrency and joins the results back in fetch order.
package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Bloop-Tech/users-also-buy/internal/model"
	"github.com/Bloop-Tech/users-also-buy/pkg/anthropic"
)

// defaultConcurrency bounds in-flight annotation calls per batch.
const defaultConcurrency = 5

// Config controls the dispatcher's model and fan-out behavior.
type Config struct {
	Model       string
	MaxTokens   int64
	Concurrency int
	Variant     PromptVariant
}

// Result pairs one product with its annotation outcome. Exactly one of
// Suggestion or Err is meaningful.
type Result struct {
	Product    model.Product
	Suggestion model.Suggestion
	Usage      anthropic.TokenUsage
	Err        error
}

// Dispatcher invokes the annotation model once per product.
type Dispatcher struct {
	ai           anthropic.Client
	cfg          Config
	systemBlocks []anthropic.SystemBlock
}

// NewDispatcher creates a Dispatcher for the given client and config.
func NewDispatcher(ai anthropic.Client, cfg Config) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Dispatcher{
		ai:           ai,
		cfg:          cfg,
		systemBlocks: anthropic.BuildCachedSystemBlocks(SystemPrompt(cfg.Variant)),
	}
}

// Enrich annotates every product in the batch, at most Concurrency calls in
// flight at once. The returned slice pairs results positionally with the
// input: out[i].Product == batch[i] regardless of completion order. A
// per-product failure is captured in out[i].Err and never fails the batch;
// Enrich always blocks until every call has completed or failed.
func (d *Dispatcher) Enrich(ctx context.Context, batch []model.Product) []Result {
	out := make([]Result, len(batch))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)

	for i, product := range batch {
		out[i].Product = product
		g.Go(func() error {
			suggestion, usage, err := d.annotate(gCtx, product)
			out[i].Usage = usage
			if err != nil {
				zap.L().Warn("enrich: annotation failed",
					zap.String("product_id", product.ID),
					zap.Error(err),
				)
				out[i].Err = err
				return nil
			}
			out[i].Suggestion = suggestion
			return nil
		})
	}

	_ = g.Wait()
	return out
}

func (d *Dispatcher) annotate(ctx context.Context, product model.Product) (model.Suggestion, anthropic.TokenUsage, error) {
	resp, err := d.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     d.cfg.Model,
		MaxTokens: d.cfg.MaxTokens,
		System:    d.systemBlocks,
		Messages: []anthropic.Message{
			{Role: "user", Content: UserPrompt(product)},
		},
	})
	if err != nil {
		return model.Suggestion{}, anthropic.TokenUsage{}, eris.Wrapf(err, "enrich: annotate %s", product.ID)
	}

	suggestion, err := parseSuggestion(extractText(resp))
	if err != nil {
		return model.Suggestion{}, resp.Usage, eris.Wrapf(err, "enrich: parse response for %s", product.ID)
	}
	return suggestion, resp.Usage, nil
}

// parseSuggestion decodes and validates the model's JSON output.
func parseSuggestion(text string) (model.Suggestion, error) {
	var s model.Suggestion
	if err := json.Unmarshal([]byte(cleanJSON(text)), &s); err != nil {
		return model.Suggestion{}, eris.Wrap(err, "unmarshal suggestion")
	}
	for i, q := range s.Queries {
		s.Queries[i] = strings.TrimSpace(q)
	}
	if err := s.Validate(); err != nil {
		return model.Suggestion{}, err
	}
	return s, nil
}

// extractText concatenates all text content blocks from a message response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanJSON strips markdown code fences and leading prose from model output
// that should be a bare JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	text = strings.TrimSpace(text)

	// Tolerate prose before/after the object.
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}
	return text
}
