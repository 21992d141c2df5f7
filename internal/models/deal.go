package models

import (
	"time"
)

// Status is the curation state of a deal.
type Status string

const (
	StatusNew         Status = "new"
	StatusDismissed   Status = "dismissed"
	StatusArchived    Status = "archived"
	StatusShortlisted Status = "shortlisted"
)

// Valid reports whether s is one of the known curation states.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusDismissed, StatusArchived, StatusShortlisted:
		return true
	}
	return false
}

// Deal is the persisted entity converged from many sightings of the same item.
// DedupeKey doubles as the document ID / primary key and never changes once assigned.
type Deal struct {
	DedupeKey       string     `firestore:"dedupe_key" json:"dedupe_key" validate:"required"`
	Title           string     `firestore:"title" json:"title"`
	CanonicalName   string     `firestore:"canonical_name" json:"canonical_name" validate:"required"`
	OneLiner        string     `firestore:"one_liner" json:"one_liner" validate:"required,max=120"`
	URL             string     `firestore:"url" json:"url" validate:"required"`
	Description     string     `firestore:"description,omitempty" json:"description,omitempty"`
	EvidenceURLs    []string   `firestore:"evidence_urls" json:"evidence_urls" validate:"min=1"`
	Hostname        string     `firestore:"hostname" json:"hostname"`
	Topic           string     `firestore:"topic" json:"topic"`
	Status          Status     `firestore:"status" json:"status"`
	SeenCount       int        `firestore:"seen_count" json:"seen_count" validate:"gte=1"`
	FirstSeenAt     time.Time  `firestore:"first_seen_at" json:"first_seen_at"`
	LastSeenAt      time.Time  `firestore:"last_seen_at" json:"last_seen_at" validate:"gtefield=FirstSeenAt"`
	DismissedReason *string    `firestore:"dismissed_reason" json:"dismissed_reason"`
	DismissedAt     *time.Time `firestore:"dismissed_at" json:"dismissed_at"`
	Score           *float64   `firestore:"score" json:"score"`
	CreatedAt       time.Time  `firestore:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `firestore:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored slices or pointers.
func (d Deal) Clone() Deal {
	c := d
	c.EvidenceURLs = append([]string(nil), d.EvidenceURLs...)
	if d.DismissedReason != nil {
		r := *d.DismissedReason
		c.DismissedReason = &r
	}
	if d.DismissedAt != nil {
		t := *d.DismissedAt
		c.DismissedAt = &t
	}
	if d.Score != nil {
		s := *d.Score
		c.Score = &s
	}
	return c
}

// DealSnapshot is the minimal projection the health checker reads back from a store.
// SeenCount is nil when the stored row has no value, which is itself a reportable defect.
type DealSnapshot struct {
	DedupeKey    string
	Status       Status
	EvidenceURLs int
	SeenCount    *int
	LastSeenAt   *time.Time
}

// Snapshot projects a Deal into the health checker's view.
func (d Deal) Snapshot() DealSnapshot {
	seen := d.SeenCount
	last := d.LastSeenAt
	s := DealSnapshot{
		DedupeKey:    d.DedupeKey,
		Status:       d.Status,
		EvidenceURLs: len(d.EvidenceURLs),
		SeenCount:    &seen,
	}
	if !last.IsZero() {
		s.LastSeenAt = &last
	}
	return s
}
