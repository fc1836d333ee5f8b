package models

import (
	"time"
)

// ReviewStatus is the lifecycle of a queued merge decision.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// MergeReviewItem is a candidate pair waiting on a human decision.
type MergeReviewItem struct {
	ID                string             `json:"id" db:"id"`
	TenantID          string             `json:"tenant_id" db:"tenant_id"`
	EntityID          string             `json:"entity_id" db:"entity_id"`
	CandidateEntityID string             `json:"candidate_entity_id" db:"candidate_entity_id"`
	Confidence        float64            `json:"confidence" db:"confidence"`
	SimilarityScores  map[string]float64 `json:"similarity_scores,omitempty" db:"similarity_scores"`
	Status            ReviewStatus       `json:"status" db:"status"`
	Priority          int                `json:"priority" db:"priority"`
	ResolvedBy        *string            `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt        *time.Time         `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" db:"updated_at"`
}
