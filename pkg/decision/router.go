// Package decision maps similarity scores to consolidation actions using
// validated thresholds. Routing is pure: no I/O, no state.
package decision

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Action is the outcome for a scored candidate pair.
type Action string

const (
	ActionAutoMerge Action = "auto_merge"
	ActionReview    Action = "review"
	ActionReject    Action = "reject"
)

// Thresholds configures the score bands. Construction fails unless
// RejectBelow < Review < AutoMerge.
type Thresholds struct {
	RejectBelow float64 `json:"reject_below" validate:"gte=0,lte=1"`
	Review      float64 `json:"review" validate:"gte=0,lte=1"`
	AutoMerge   float64 `json:"auto_merge" validate:"gte=0,lte=1"`
}

// DefaultThresholds returns the standard 0 / 0.50 / 0.90 bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RejectBelow: 0.0,
		Review:      0.50,
		AutoMerge:   0.90,
	}
}

var validate = validator.New()

// Router routes scores into actions.
type Router struct {
	thresholds Thresholds
}

// NewRouter validates the thresholds and returns a router.
func NewRouter(thresholds Thresholds) (*Router, error) {
	if err := validate.Struct(thresholds); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	if !(thresholds.RejectBelow < thresholds.Review && thresholds.Review < thresholds.AutoMerge) {
		return nil, fmt.Errorf("thresholds must satisfy reject_below < review < auto_merge, got %.2f / %.2f / %.2f",
			thresholds.RejectBelow, thresholds.Review, thresholds.AutoMerge)
	}
	return &Router{thresholds: thresholds}, nil
}

// Route maps a combined score to an action.
func (r *Router) Route(score float64) Action {
	switch {
	case score >= r.thresholds.AutoMerge:
		return ActionAutoMerge
	case score >= r.thresholds.Review:
		return ActionReview
	default:
		return ActionReject
	}
}

// Thresholds returns the configured bands.
func (r *Router) Thresholds() Thresholds {
	return r.thresholds
}
