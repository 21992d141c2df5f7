package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/deal-radar/internal/models"
	"github.com/pauljones0/deal-radar/internal/util"
)

const (
	colorHealthy  = 3066993  // #2ECC71
	colorDegraded = 16753920 // #FFA500
	colorFailed   = 16711680 // #FF0000

	// Discord allows 30 webhook messages per minute per channel.
	webhookRatePerSecond = 0.5
	webhookBurst         = 2
)

var webhookBackoff = util.Backoff{Retries: 3, Base: 500 * time.Millisecond, Max: 10 * time.Second}

// Client posts batch summaries and invariant alerts to a Discord webhook.
// A client with an empty webhook URL silently drops everything.
type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
	backoff     util.Backoff
}

func New(webhookURL string) *Client {
	return &Client{
		webhookURL:  webhookURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(webhookRatePerSecond), webhookBurst),
		backoff:     webhookBackoff,
	}
}

// SendSummary posts the counters of a finished batch together with its health report.
func (c *Client) SendSummary(ctx context.Context, res models.BatchResult, report models.HealthReport) error {
	if c.webhookURL == "" {
		return nil
	}
	return c.post(ctx, formatSummaryEmbed(res, report))
}

// SendAlert posts the invariants a batch broke.
func (c *Client) SendAlert(ctx context.Context, runID string, report models.HealthReport) error {
	if c.webhookURL == "" {
		return nil
	}
	return c.post(ctx, formatAlertEmbed(runID, report))
}

// Internal structures
type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

func formatSummaryEmbed(res models.BatchResult, report models.HealthReport) discordEmbed {
	color := colorHealthy
	switch {
	case report.Failed():
		color = colorFailed
	case res.Errors > 0 || len(report.Violations()) > 0:
		color = colorDegraded
	}

	fields := []discordEmbedField{
		{Name: "Fetched", Value: strconv.Itoa(res.Fetched), Inline: true},
		{Name: "Processed", Value: strconv.Itoa(res.Processed), Inline: true},
		{Name: "Reactivated", Value: strconv.Itoa(res.Reactivated), Inline: true},
		{Name: "New / Merged / Frozen", Value: fmt.Sprintf("%d / %d / %d", res.Created, res.Merged, res.Frozen), Inline: true},
		{Name: "Errors", Value: fmt.Sprintf("%d (input %d, lookup %d, write %d)", res.Errors, res.InputErrors, res.LookupErrors, res.WriteErrors), Inline: true},
		{Name: "Duration", Value: res.Duration().Round(time.Millisecond).String(), Inline: true},
	}
	if res.Swept > 0 {
		fields = append(fields, discordEmbedField{Name: "Swept", Value: strconv.Itoa(res.Swept), Inline: true})
	}

	latest := "never"
	if report.LatestLastSeenAt != nil {
		latest = report.LatestLastSeenAt.UTC().Format(time.RFC3339)
	}
	fields = append(fields, discordEmbedField{
		Name: "Health",
		Value: fmt.Sprintf("evidence over bound: %d\nseen_count null: %d\narchived mutated: %d\nlatest sighting: %s",
			report.EvidenceOverBound, report.SeenCountNull, report.ArchivedMutatedInWindow, latest),
	})

	var ts string
	if !res.FinishedAt.IsZero() {
		ts = res.FinishedAt.UTC().Format(time.RFC3339)
	}
	return discordEmbed{
		Title:     "Deal radar batch finished",
		Timestamp: ts,
		Color:     color,
		Fields:    fields,
		Footer:    discordEmbedFooter{Text: "run " + res.RunID},
	}
}

func formatAlertEmbed(runID string, report models.HealthReport) discordEmbed {
	var b strings.Builder
	for _, v := range report.Violations() {
		severity := "warning"
		if v.Fatal {
			severity = "FATAL"
		}
		fmt.Fprintf(&b, "**%s**: %d deal(s) [%s]\n", v.Invariant, v.Count, severity)
	}
	return discordEmbed{
		Title:       "Invariant violation",
		Description: strings.TrimSpace(b.String()),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Color:       colorFailed,
		Footer:      discordEmbedFooter{Text: "run " + runID},
	}
}

func (c *Client) post(ctx context.Context, embed discordEmbed) error {
	payloadBytes, err := json.Marshal(discordWebhookPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payloadBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("discord request failed: %w", err)
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		wait := c.retryBackoff(resp, attempt)
		if wait == 0 || attempt >= c.backoff.Retries {
			return fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// retryBackoff returns how long to wait before retrying resp, or 0 when the status is not
// retryable. 429 honours Retry-After (seconds) when present.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			d := time.Duration(secs * float64(time.Second))
			if c.backoff.Max > 0 && d > c.backoff.Max {
				d = c.backoff.Max
			}
			return d
		}
		return c.backoff.Delay(attempt)
	case resp.StatusCode >= 500:
		return c.backoff.Delay(attempt)
	}
	return 0
}
