package models

import "time"

// PipelineColumn is one status column of the pipeline board.
type PipelineColumn struct {
	Status      ApplicationStatus   `db:"status" json:"status"`
	Count       int                 `db:"count" json:"count"`
	NextActions []ApplicationStatus `db:"-" json:"next_actions"`
}

// PipelineBoard groups application counts by lifecycle status.
type PipelineBoard struct {
	Columns     []PipelineColumn `json:"columns"`
	Total       int              `json:"total"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// MonthlyAmount is a currency total for one calendar month.
type MonthlyAmount struct {
	Month    string  `db:"month" json:"month"`
	Currency string  `db:"currency" json:"currency"`
	Total    float64 `db:"total" json:"total"`
}

// CategoryAmount is a currency total for one category label.
type CategoryAmount struct {
	Category string  `db:"category" json:"category"`
	Currency string  `db:"currency" json:"currency"`
	Total    float64 `db:"total" json:"total"`
	Count    int     `db:"count" json:"count"`
}

// FinanceDashboard aggregates chart series for the finance overview.
type FinanceDashboard struct {
	PaymentsByMonth []MonthlyAmount  `json:"payments_by_month"`
	CostsByType     []CategoryAmount `json:"costs_by_type"`
	RefundsByClass  []CategoryAmount `json:"refunds_by_class"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// DashboardRange bounds dashboard aggregation.
type DashboardRange struct {
	From time.Time
	To   time.Time
}

// SystemMetrics is a lightweight snapshot of process-level counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	TransitionsTotal         uint64    `json:"transitions_total"`
	TransitionsRejected      uint64    `json:"transitions_rejected"`
	SettlementsTotal         uint64    `json:"settlements_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
