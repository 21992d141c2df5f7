package identity

import (
	"regexp"
	"strings"

	"github.com/pauljones0/deal-radar/internal/models"
)

// OneLinerMax is the rune cap on one_liner.
const OneLinerMax = 120

const (
	// a sentence break is only used when it leaves at least this many runes
	sentenceCutMin = 80
	ellipsis       = "..."
)

var sentenceEnds = []rune{'.', '。', '!', '！', '?', '？', ';', '；'}

// Input is what a candidate function sees.
type Input struct {
	Record   models.Record
	Hostname string
}

// Candidate proposes a value, or "" to defer to the next candidate.
type Candidate func(Input) string

// First returns the first non-empty candidate value, or fallback.
func First(chain []Candidate, in Input, fallback string) string {
	for _, c := range chain {
		if v := strings.TrimSpace(c(in)); v != "" {
			return v
		}
	}
	return fallback
}

// DefaultNameChain: structured name fields, then the cleaned title, then the hostname.
func DefaultNameChain() []Candidate {
	return []Candidate{
		Field("company"),
		Field("product"),
		Field("name"),
		Field("canonical_name"),
		CleanedTitle,
		Hostname,
	}
}

// DefaultSummaryChain: structured summary fields, then description, then title, all truncated.
func DefaultSummaryChain() []Candidate {
	return []Candidate{
		Truncated(Field("one_liner")),
		Truncated(Field("summary")),
		Truncated(Field("excerpt")),
		Truncated(Description),
		Truncated(Title),
	}
}

// Field reads a string-valued extra field.
func Field(name string) Candidate {
	return func(in Input) string { return in.Record.Field(name) }
}

// Title is the raw record title.
func Title(in Input) string { return in.Record.Title }

// Description is the record snippet/description.
func Description(in Input) string {
	if s := strings.TrimSpace(in.Record.Snippet); s != "" {
		return s
	}
	return in.Record.Field("description")
}

// Hostname is the normalized host of the record URL.
func Hostname(in Input) string { return in.Hostname }

// CleanedTitle is the title with a trailing site-name segment removed.
func CleanedTitle(in Input) string { return CleanTitle(in.Record.Title) }

// Truncated wraps c so its value is whitespace-collapsed and capped at OneLinerMax runes.
func Truncated(c Candidate) Candidate {
	return func(in Input) string { return Truncate(c(in)) }
}

var titleSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s+[-–—]\s+[^|]+$`),
	regexp.MustCompile(`(?i)\s*\|\s*[^|]+$`),
	regexp.MustCompile(`(?i)\s*::\s*[^:]+$`),
}

// CleanTitle strips " - Site", " — Site", " | Site" and " :: Site" suffixes.
// When nothing would remain, the trimmed title is returned unchanged.
func CleanTitle(title string) string {
	trimmed := strings.TrimSpace(title)
	cleaned := trimmed
	for _, re := range titleSuffixes {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return trimmed
	}
	return cleaned
}

// Truncate collapses whitespace and caps s at OneLinerMax runes, preferring to end on a
// sentence break past sentenceCutMin runes, otherwise cutting hard and appending "...".
func Truncate(s string) string {
	cleaned := strings.Join(strings.Fields(s), " ")
	runes := []rune(cleaned)
	if len(runes) <= OneLinerMax {
		return cleaned
	}

	for i := OneLinerMax - 1; i > sentenceCutMin; i-- {
		if isSentenceEnd(runes[i]) {
			return string(runes[:i+1])
		}
	}
	return string(runes[:OneLinerMax-len(ellipsis)]) + ellipsis
}

func isSentenceEnd(r rune) bool {
	for _, p := range sentenceEnds {
		if r == p {
			return true
		}
	}
	return false
}
