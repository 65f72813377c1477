package model

import "time"

const (
	AuditStatusConsistent = "consistent"
	AuditStatusRepaired   = "repaired"
	AuditStatusMissing    = "post_missing"
)

// RatingAuditJob is pushed to the audit queue after a rating commits.
type RatingAuditJob struct {
	PostID     string    `json:"post_id"`
	RatingID   string    `json:"rating_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// RatingAuditResult records what the audit found for one post.
type RatingAuditResult struct {
	PostID   string  `json:"post_id"`
	Stored   float64 `json:"stored"`   // posts.rating before the audit
	Expected float64 `json:"expected"` // mean over the ratings table
	Count    int     `json:"count"`
	Status   string  `json:"status"`
}
