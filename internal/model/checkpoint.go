package model

import "time"

// Checkpoint is the single durable watermark record that survives across
// runs. LatestProductCreatedAt is the creation timestamp of the last product
// in the most recent fully processed batch; the next run starts strictly
// after it. LastRunStartedAt is stored for observability only and plays no
// part in resumption.
type Checkpoint struct {
	LatestProductCreatedAt time.Time `json:"latest_product_created_at"`
	LastRunStartedAt       time.Time `json:"last_run_started_at"`
}
