package models

import (
	"time"
)

// ConsolidationScope optionally narrows a run to explicit entity ids or to
// entities extracted from specific source pages. Empty scope means the whole
// tenant.
type ConsolidationScope struct {
	EntityIDs     []string `json:"entity_ids,omitempty"`
	SourcePageIDs []string `json:"source_page_ids,omitempty"`
}

// ConsolidationJobRequest is the Kafka message that kicks off a tenant run.
type ConsolidationJobRequest struct {
	JobID       string             `json:"job_id"`
	TenantID    string             `json:"tenant_id" validate:"required"`
	Scope       ConsolidationScope `json:"scope"`
	RequestedBy string             `json:"requested_by,omitempty"`
	RequestedAt time.Time          `json:"requested_at"`
}

// ConsolidationStatus is the terminal state of a run.
type ConsolidationStatus string

const (
	ConsolidationStatusCompleted ConsolidationStatus = "completed"
	ConsolidationStatusFailed    ConsolidationStatus = "failed"
)

// ConsolidationSummary reports run totals. Counts are populated even when the
// run fails partway.
type ConsolidationSummary struct {
	TenantID          string              `json:"tenant_id"`
	Status            ConsolidationStatus `json:"status"`
	EntitiesProcessed int                 `json:"entities_processed"`
	CandidatesFound   int                 `json:"candidates_found"`
	AutoMerged        int                 `json:"auto_merged"`
	QueuedForReview   int                 `json:"queued_for_review"`
	EntitiesSkipped   int                 `json:"entities_skipped"`
	Error             string              `json:"error,omitempty"`
	StartedAt         time.Time           `json:"started_at"`
	CompletedAt       time.Time           `json:"completed_at"`
}

// ConsolidationProgress is delivered to the progress callback after each
// entity is processed.
type ConsolidationProgress struct {
	TenantID          string `json:"tenant_id"`
	EntityID          string `json:"entity_id"`
	EntitiesProcessed int    `json:"entities_processed"`
	EntitiesTotal     int    `json:"entities_total"`
	CandidatesFound   int    `json:"candidates_found"`
	AutoMerged        int    `json:"auto_merged"`
	QueuedForReview   int    `json:"queued_for_review"`
}
