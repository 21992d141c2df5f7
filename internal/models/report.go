package models

import "time"

// BatchResult aggregates the outcome of one ingestion batch.
type BatchResult struct {
	RunID       string `json:"run_id"`
	Fetched     int    `json:"fetched"`
	Processed   int    `json:"processed"`
	Reactivated int    `json:"reactivated"`
	Errors      int    `json:"errors"`

	Created      int `json:"created"`
	Merged       int `json:"merged"`
	Frozen       int `json:"frozen"`
	InputErrors  int `json:"input_errors"`
	LookupErrors int `json:"lookup_errors"`
	WriteErrors  int `json:"write_errors"`
	Swept        int `json:"swept"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Add folds another batch's counters into r. Timestamps and run id are left alone.
func (r *BatchResult) Add(o BatchResult) {
	r.Fetched += o.Fetched
	r.Processed += o.Processed
	r.Reactivated += o.Reactivated
	r.Errors += o.Errors
	r.Created += o.Created
	r.Merged += o.Merged
	r.Frozen += o.Frozen
	r.InputErrors += o.InputErrors
	r.LookupErrors += o.LookupErrors
	r.WriteErrors += o.WriteErrors
	r.Swept += o.Swept
}

// CountError records a per-item failure of the given kind.
func (r *BatchResult) CountError(kind ErrorKind) {
	r.Errors++
	switch kind {
	case KindInput:
		r.InputErrors++
	case KindLookup:
		r.LookupErrors++
	default:
		r.WriteErrors++
	}
}

// Duration is the wall time of the batch.
func (r BatchResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Invariant names reported by the health checker.
const (
	InvariantArchivedFrozen = "archived_frozen"
	InvariantEvidenceBound  = "evidence_bound"
	InvariantSeenCountSet   = "seen_count_set"
)

// Violation names a broken invariant and how many deals were affected.
// Fatal violations fail the job.
type Violation struct {
	Invariant string `json:"invariant"`
	Count     int    `json:"count"`
	Fatal     bool   `json:"fatal"`
}

// HealthReport is the post-batch audit of the store.
type HealthReport struct {
	EvidenceOverBound       int        `json:"evidence_over_bound"`
	SeenCountNull           int        `json:"seen_count_null"`
	LatestLastSeenAt        *time.Time `json:"latest_last_seen_at"`
	ArchivedMutatedInWindow int        `json:"archived_mutated_in_window"`

	Scanned       int       `json:"scanned"`
	Since         time.Time `json:"since"`
	EvidenceBound int       `json:"evidence_bound"`
}

// Violations lists every non-zero invariant counter. Only archived mutation is fatal;
// the other two are reported as warnings.
func (h HealthReport) Violations() []Violation {
	var out []Violation
	if h.ArchivedMutatedInWindow > 0 {
		out = append(out, Violation{Invariant: InvariantArchivedFrozen, Count: h.ArchivedMutatedInWindow, Fatal: true})
	}
	if h.EvidenceOverBound > 0 {
		out = append(out, Violation{Invariant: InvariantEvidenceBound, Count: h.EvidenceOverBound})
	}
	if h.SeenCountNull > 0 {
		out = append(out, Violation{Invariant: InvariantSeenCountSet, Count: h.SeenCountNull})
	}
	return out
}

// Failed reports whether the audit must fail the job.
func (h HealthReport) Failed() bool {
	return h.ArchivedMutatedInWindow > 0
}
