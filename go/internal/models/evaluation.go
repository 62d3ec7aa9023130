package models

import "github.com/google/uuid"

// EvaluationDetail is one per-participant line item in a match evaluation.
type EvaluationDetail struct {
	Metric  string `json:"metric"`
	Score   int    `json:"score"`
	Summary string `json:"summary"`
}

// Evaluation is the scored outcome of a match. Cached on the session once
// the match reaches SCORED so repeated score requests never recompute.
type Evaluation struct {
	Score    int                `json:"score"`
	WinnerID *uuid.UUID         `json:"winner_user_id,omitempty"`
	Summary  string             `json:"summary"`
	Details  []EvaluationDetail `json:"details"`
}
