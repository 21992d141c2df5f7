// Package identity derives a deal's display fields, evidence set and dedupe key from a raw record.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pauljones0/deal-radar/internal/models"
	"github.com/pauljones0/deal-radar/internal/util"
)

const (
	keyPrefixURL      = "url:"
	keyPrefixHostname = "ht:"

	// UntitledName is the last-resort canonical name.
	UntitledName = "(untitled)"
	// NoDescription is the last-resort one-liner.
	NoDescription = "(no description)"
)

// Resolved holds everything the upsert engine needs from one record.
type Resolved struct {
	DedupeKey     string
	URL           string
	Hostname      string
	CanonicalName string
	OneLiner      string
	EvidenceURLs  []string
	Title         string
	Description   string
	Topic         string
	Score         *float64
}

// Resolver turns raw records into Resolved identities. The zero value uses the default chains.
type Resolver struct {
	names     []Candidate
	summaries []Candidate
}

// New returns a resolver with the default candidate chains.
func New() *Resolver {
	return &Resolver{
		names:     DefaultNameChain(),
		summaries: DefaultSummaryChain(),
	}
}

// Resolve derives the identity of rec. It fails only when the primary URL
// cannot be normalized, which callers count as an input error.
func (r *Resolver) Resolve(rec models.Record) (Resolved, error) {
	normalized := util.NormalizeURL(rec.URL)
	if normalized == "" {
		return Resolved{}, &models.ItemError{
			Kind: models.KindInput,
			URL:  rec.URL,
			Err:  fmt.Errorf("%w: url does not normalize", models.ErrInvalidRecord),
		}
	}

	names, summaries := r.names, r.summaries
	if names == nil {
		names = DefaultNameChain()
	}
	if summaries == nil {
		summaries = DefaultSummaryChain()
	}

	hostname := util.Hostname(normalized)
	in := Input{Record: rec, Hostname: hostname}
	name := First(names, in, UntitledName)

	return Resolved{
		DedupeKey:     DedupeKey(normalized, hostname, name, rec.Title),
		URL:           normalized,
		Hostname:      hostname,
		CanonicalName: name,
		OneLiner:      First(summaries, in, NoDescription),
		EvidenceURLs:  EvidenceURLs(rec),
		Title:         strings.TrimSpace(rec.Title),
		Description:   strings.TrimSpace(rec.Snippet),
		Topic:         strings.TrimSpace(rec.Topic),
		Score:         rec.Score,
	}, nil
}

// DedupeKey computes the stable identity of a deal. A non-empty normalized URL always wins;
// the hostname/name fallback lives in a separate "ht:" namespace so the two can never collide.
func DedupeKey(normalizedURL, hostname, canonicalName, title string) string {
	if normalizedURL != "" {
		return keyPrefixURL + sha1Hex(normalizedURL)
	}
	name := canonicalName
	if name == "" {
		name = title
	}
	return keyPrefixHostname + sha1Hex(strings.ToLower(strings.TrimSpace(hostname+"|"+name)))
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
