package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Feed kinds. An empty kind is detected from the response.
const (
	FeedRSS  = "rss"
	FeedAtom = "atom"
	FeedHTML = "html"
	FeedJSON = "json"
)

// Topics is the feed configuration loaded from TOPICS_CONFIG_PATH.
type Topics struct {
	// Concurrency bounds simultaneous feed fetches.
	Concurrency int `yaml:"concurrency" validate:"gte=0"`
	// RatePerSecond throttles outbound requests across all feeds. Zero disables throttling.
	RatePerSecond float64 `yaml:"rate_per_second" validate:"gte=0"`
	Topics        []Topic `yaml:"topics" validate:"dive"`
}

type Topic struct {
	Name  string `yaml:"name" validate:"required"`
	Feeds []Feed `yaml:"feeds" validate:"dive"`
}

type Feed struct {
	URL  string `yaml:"url" validate:"required,url"`
	Kind string `yaml:"kind" validate:"omitempty,oneof=rss atom html json"`
	// Render loads the page in headless Chrome before parsing.
	Render    bool           `yaml:"render"`
	Selectors *HTMLSelectors `yaml:"selectors"`
}

// HTMLSelectors locate items on an HTML listing page.
type HTMLSelectors struct {
	Item           string `yaml:"item"`
	IgnoreModifier string `yaml:"ignore_modifier"`
	TitleLink      string `yaml:"title_link"`
	Snippet        string `yaml:"snippet"`
}

// LoadTopics reads and validates a topics YAML file.
func LoadTopics(path string) (*Topics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topics config file: %w", err)
	}
	return ParseTopics(data)
}

// ParseTopics parses topics YAML from raw bytes.
func ParseTopics(data []byte) (*Topics, error) {
	var t Topics
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse topics YAML: %w", err)
	}
	if err := validator.New().Struct(&t); err != nil {
		return nil, fmt.Errorf("invalid topics config: %w", err)
	}
	return &t, nil
}

// FeedCount is the number of feeds over all topics.
func (t *Topics) FeedCount() int {
	n := 0
	for _, topic := range t.Topics {
		n += len(topic.Feeds)
	}
	return n
}

// NeedsRender reports whether any feed must be loaded in a browser.
func (t *Topics) NeedsRender() bool {
	for _, topic := range t.Topics {
		for _, f := range topic.Feeds {
			if f.Render {
				return true
			}
		}
	}
	return false
}
