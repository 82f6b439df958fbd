package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Run is one orchestration pass over a list of pairs. Results are scoped to
// the run so a re-run never sees terminal states from an earlier batch.
type Run struct {
	Base
	SessionID  string                                 `gorm:"type:varchar(64);index" json:"session_id,omitempty"`
	Source     string                                 `gorm:"type:varchar(32);not null" json:"source"`
	Strategy   string                                 `gorm:"type:varchar(32)" json:"strategy"`
	Status     string                                 `gorm:"type:varchar(32);not null;index;default:'queued'" json:"status"`
	Total      int                                    `gorm:"not null" json:"total"`
	DoneCount  int                                    `json:"done_count"`
	ErrorCount int                                    `json:"error_count"`
	RetryOf    *uuid.UUID                             `gorm:"type:varchar(36)" json:"retry_of,omitempty"`
	Pairs      datatypes.JSONType[[]Pair]             `json:"-"`
	Results    datatypes.JSONType[[]GenerationResult] `json:"results"`
	FinishedAt *time.Time                             `json:"finished_at,omitempty"`
}

func (Run) TableName() string {
	return "compose_runs"
}

// Run status constants
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCanceled  = "canceled"
)

// Run sources
const (
	RunSourceSession = "session"
	RunSourceRetry   = "retry"
	RunSourceKafka   = "kafka"
)

// NewRun builds a queued run record for pairs.
func NewRun(sessionID, source, strategy string, pairs []Pair) *Run {
	results := make([]GenerationResult, len(pairs))
	for i := range results {
		results[i] = NewQueuedResult()
	}
	return &Run{
		SessionID: sessionID,
		Source:    source,
		Strategy:  strategy,
		Status:    RunStatusQueued,
		Total:     len(pairs),
		Pairs:     datatypes.NewJSONType(pairs),
		Results:   datatypes.NewJSONType(results),
	}
}

// Tally recomputes the done/error counters from the results.
func (r *Run) Tally() {
	r.DoneCount, r.ErrorCount = 0, 0
	for _, res := range r.Results.Data() {
		switch res.Status {
		case StatusDone:
			r.DoneCount++
		case StatusError:
			r.ErrorCount++
		}
	}
}
