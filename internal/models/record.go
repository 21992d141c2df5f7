package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one raw sighting handed to the pipeline by a record source.
// Anything beyond the core fields is kept in Extra so the identity resolver
// can consult optional structured fields (company, summary, sources, ...).
type Record struct {
	Title   string         `json:"title"`
	URL     string         `json:"url" validate:"required"`
	Snippet string         `json:"snippet"`
	Topic   string         `json:"topic"`
	Score   *float64       `json:"score,omitempty"`
	Extra   map[string]any `json:"-"`
}

// Field returns the trimmed string value of an extra field, or "" when absent or not a string.
func (r Record) Field(name string) string {
	v, ok := r.Extra[name]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	}
	return ""
}

// Value returns the raw extra field value.
func (r Record) Value(name string) (any, bool) {
	v, ok := r.Extra[name]
	return v, ok
}

var recordAliases = map[string]string{
	"link":        "url",
	"description": "snippet",
}

// UnmarshalJSON accepts the loosely shaped search results the original sources emit:
// "link" is an alias for "url", "description" for "snippet", and unknown keys land in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{Extra: make(map[string]any)}
	for k, v := range raw {
		key := k
		if alias, ok := recordAliases[k]; ok {
			// An explicit canonical key wins over its alias.
			if _, dup := raw[alias]; dup {
				r.Extra[k] = v
				continue
			}
			key = alias
			// The alias stays visible in Extra so resolver candidates can still see it.
			r.Extra[k] = v
		}
		switch key {
		case "title":
			r.Title = asString(v)
		case "url":
			r.URL = asString(v)
		case "snippet":
			r.Snippet = asString(v)
		case "topic":
			r.Topic = asString(v)
		case "score":
			if f, ok := v.(float64); ok {
				r.Score = &f
			}
		default:
			r.Extra[key] = v
		}
	}
	return nil
}

// MarshalJSON flattens Extra back alongside the core fields.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+5)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["title"] = r.Title
	out["url"] = r.URL
	out["snippet"] = r.Snippet
	out["topic"] = r.Topic
	if r.Score != nil {
		out["score"] = *r.Score
	}
	return json.Marshal(out)
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
