package identity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pauljones0/deal-radar/internal/models"
	"github.com/pauljones0/deal-radar/internal/util"
)

// evidenceFields are extra record fields that may carry supporting links.
var evidenceFields = []string{"sources", "links", "evidence_urls", "related_urls"}

var urlListSep = regexp.MustCompile(`[,;]`)

// EvidenceURLs collects the normalized primary URL followed by every normalized URL in the
// evidence fields, deduplicated in encounter order. List values and comma/semicolon separated
// strings are both accepted.
func EvidenceURLs(rec models.Record) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(raw string) {
		n := util.NormalizeURL(raw)
		if n == "" || seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
	}

	add(rec.URL)
	for _, field := range evidenceFields {
		v, ok := rec.Value(field)
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case []string:
			for _, u := range val {
				add(u)
			}
		case []any:
			for _, u := range val {
				if u != nil {
					add(fmt.Sprint(u))
				}
			}
		case string:
			for _, u := range urlListSep.Split(val, -1) {
				add(strings.TrimSpace(u))
			}
		}
	}
	return out
}

// MergeEvidence appends the URLs of incoming not already in existing, then evicts the oldest
// entries so at most max remain. Neither input is modified.
func MergeEvidence(existing, incoming []string, max int) []string {
	merged := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, u := range existing {
		if seen[u] {
			continue
		}
		seen[u] = true
		merged = append(merged, u)
	}
	for _, u := range incoming {
		if seen[u] {
			continue
		}
		seen[u] = true
		merged = append(merged, u)
	}
	if max > 0 && len(merged) > max {
		merged = merged[len(merged)-max:]
	}
	return merged
}

// BoundHead keeps the first max URLs. New deals keep their primary URL this way.
func BoundHead(urls []string, max int) []string {
	if max > 0 && len(urls) > max {
		return append([]string(nil), urls[:max]...)
	}
	return append([]string(nil), urls...)
}
