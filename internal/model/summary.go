package model

import "time"

// Outcome classifies how a pipeline run ended.
type Outcome string

const (
	// OutcomeClean: every fetched product was enriched and written back.
	OutcomeClean Outcome = "clean"
	// OutcomeSkips: the run completed, but some products were permanently
	// skipped (mapping or annotation failures).
	OutcomeSkips Outcome = "completed_with_skips"
	// OutcomeAborted: the run stopped mid-batch without advancing the
	// checkpoint past the failed window.
	OutcomeAborted Outcome = "aborted"
)

// ExitCode maps a run outcome to the process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeClean:
		return 0
	case OutcomeSkips:
		return 3
	default:
		return 1
	}
}

// TokenUsage tallies annotation token consumption across a run.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// BatchSummary records what happened to one fetched batch.
type BatchSummary struct {
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	Fetched         int       `json:"fetched"`
	Enriched        int       `json:"enriched"`
	Written         int       `json:"written"`
	MappingSkips    int       `json:"mapping_skips"`
	AnnotationSkips int       `json:"annotation_skips"`
}

// RunSummary aggregates a whole pipeline run for the final report.
type RunSummary struct {
	StartedAt       time.Time      `json:"started_at"`
	WindowStart     time.Time      `json:"window_start"`
	WindowEnd       time.Time      `json:"window_end"`
	Batches         []BatchSummary `json:"batches,omitempty"`
	Fetched         int            `json:"fetched"`
	Enriched        int            `json:"enriched"`
	Written         int            `json:"written"`
	MappingSkips    int            `json:"mapping_skips"`
	AnnotationSkips int            `json:"annotation_skips"`
	TokenUsage      TokenUsage     `json:"token_usage"`
	Outcome         Outcome        `json:"outcome"`
	DryRun          bool           `json:"dry_run,omitempty"`
}

// AddBatch folds a batch summary into the run totals.
func (r *RunSummary) AddBatch(b BatchSummary) {
	r.Batches = append(r.Batches, b)
	r.Fetched += b.Fetched
	r.Enriched += b.Enriched
	r.Written += b.Written
	r.MappingSkips += b.MappingSkips
	r.AnnotationSkips += b.AnnotationSkips
}

// Skipped reports whether any product was permanently skipped during the run.
func (r *RunSummary) Skipped() bool {
	return r.MappingSkips > 0 || r.AnnotationSkips > 0
}
