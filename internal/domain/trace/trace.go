// Package trace keeps a bounded history of mock dispatch outcomes.
package trace

import "time"

// Outcome classifies how the mock endpoint answered a request.
type Outcome string

const (
	OutcomeMatched          Outcome = "matched"
	OutcomeValidationFailed Outcome = "validation_failed"
	OutcomeNoMatch          Outcome = "no_match"
)

// Entry records one dispatched request.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Query        string    `json:"query,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	DefinitionID string    `json:"definition_id,omitempty"`
	Status       int       `json:"status"`
	Reason       string    `json:"reason,omitempty"`
}
