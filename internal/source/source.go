// Package source produces raw records for the ingestion pipeline: from files exported by an
// external searcher, and from RSS/Atom/HTML/JSON feeds configured per topic.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pauljones0/deal-radar/internal/models"
)

// resultEnvelopes are the wrapper keys search APIs commonly put a result list under.
var resultEnvelopes = []string{"results", "organic", "items", "records"}

// DecodeRecords accepts a JSON array of records, an object wrapping such an array under one of
// resultEnvelopes, a single record object, or newline-delimited JSON objects.
func DecodeRecords(data []byte) ([]models.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var recs []models.Record
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("failed to parse record array: %w", err)
		}
		return recs, nil
	case '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err == nil {
			for _, key := range resultEnvelopes {
				if raw, ok := envelope[key]; ok {
					var recs []models.Record
					if err := json.Unmarshal(raw, &recs); err != nil {
						return nil, fmt.Errorf("failed to parse %q records: %w", key, err)
					}
					return recs, nil
				}
			}
			var rec models.Record
			if err := json.Unmarshal(trimmed, &rec); err != nil {
				return nil, fmt.Errorf("failed to parse record: %w", err)
			}
			return []models.Record{rec}, nil
		}
	}
	return decodeNDJSON(trimmed)
}

func decodeNDJSON(data []byte) ([]models.Record, error) {
	var recs []models.Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec models.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse record: %w", line, err)
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return recs, nil
}

// FileSource reads records from a JSON or NDJSON file.
type FileSource struct {
	path  string
	topic string
}

// NewFileSource reads path on every Fetch. topic is applied to records that carry none.
func NewFileSource(path, topic string) *FileSource {
	return &FileSource{path: path, topic: topic}
}

func (f *FileSource) Name() string { return "file:" + f.path }

func (f *FileSource) Fetch(_ context.Context) ([]models.Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}
	recs, err := DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}
	return withTopic(recs, f.topic), nil
}

func withTopic(recs []models.Record, topic string) []models.Record {
	if topic == "" {
		return recs
	}
	for i := range recs {
		if strings.TrimSpace(recs[i].Topic) == "" {
			recs[i].Topic = topic
		}
	}
	return recs
}
