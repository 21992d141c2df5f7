// Package lifecycle decides how automated ingestion may move a deal between curation states.
// It is pure: no I/O, no clock. Callers pass the elapsed time since dismissal.
package lifecycle

import (
	"time"

	"github.com/pauljones0/deal-radar/internal/models"
)

// DefaultReactivationWindow is how long after a dismissal a re-sighting brings a deal back.
const DefaultReactivationWindow = 7 * 24 * time.Hour

// Event is what happened to a deal.
type Event int

const (
	// EventFirstSighting is the first time a dedupe key is seen.
	EventFirstSighting Event = iota
	// EventResighting is any later sighting of an existing key.
	EventResighting
)

func (e Event) String() string {
	switch e {
	case EventFirstSighting:
		return "first_sighting"
	case EventResighting:
		return "resighting"
	}
	return "unknown"
}

// Policy holds the tunable lifecycle rules.
type Policy struct {
	ReactivationWindow time.Duration
	// ReactivateWithoutTimestamp treats a dismissed deal with no dismissed_at as eligible.
	// This is a legacy-data heuristic, not a confirmed business rule.
	ReactivateWithoutTimestamp bool
}

// DefaultPolicy is the 7-day window with the legacy heuristic enabled.
func DefaultPolicy() Policy {
	return Policy{
		ReactivationWindow:         DefaultReactivationWindow,
		ReactivateWithoutTimestamp: true,
	}
}

// Decision is the outcome of Transition.
type Decision struct {
	// Status is the status the deal should carry after the event.
	Status models.Status
	// Frozen means the deal must not be mutated at all, not even counters.
	Frozen bool
	// Reactivated means a dismissed deal returned to new; dismissal fields must be cleared.
	Reactivated bool
}

// Transition maps (current status, event, elapsed since dismissal) to a decision.
// sinceDismissal is nil when the deal has no dismissed_at.
func Transition(current models.Status, ev Event, sinceDismissal *time.Duration, p Policy) Decision {
	if ev == EventFirstSighting {
		return Decision{Status: models.StatusNew}
	}

	switch current {
	case models.StatusArchived:
		return Decision{Status: current, Frozen: true}
	case models.StatusShortlisted:
		return Decision{Status: current}
	case models.StatusDismissed:
		if eligible(sinceDismissal, p) {
			return Decision{Status: models.StatusNew, Reactivated: true}
		}
		return Decision{Status: current}
	default:
		return Decision{Status: current}
	}
}

func eligible(sinceDismissal *time.Duration, p Policy) bool {
	if sinceDismissal == nil {
		return p.ReactivateWithoutTimestamp
	}
	return *sinceDismissal <= p.ReactivationWindow
}

// SinceDismissal returns now - dismissedAt, or nil when dismissedAt is unset.
func SinceDismissal(dismissedAt *time.Time, now time.Time) *time.Duration {
	if dismissedAt == nil || dismissedAt.IsZero() {
		return nil
	}
	d := now.Sub(*dismissedAt)
	return &d
}
