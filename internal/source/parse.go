package source

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/deal-radar/internal/config"
	"github.com/pauljones0/deal-radar/internal/models"
	"github.com/pauljones0/deal-radar/internal/util"
)

// DefaultSelectors suit a generic listing of <article> cards.
func DefaultSelectors() config.HTMLSelectors {
	return config.HTMLSelectors{
		Item:      "article",
		TitleLink: "h1 a, h2 a, h3 a",
		Snippet:   "p",
	}
}

// DetectKind guesses the feed format from the content type and the first bytes of the body.
func DetectKind(contentType string, body []byte) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return config.FeedJSON
	case strings.Contains(ct, "atom"):
		return config.FeedAtom
	case strings.Contains(ct, "rss"):
		return config.FeedRSS
	}

	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 512 {
		head = head[:512]
	}
	switch {
	case bytes.HasPrefix(head, []byte("{")), bytes.HasPrefix(head, []byte("[")):
		return config.FeedJSON
	case bytes.Contains(head, []byte("<feed")):
		return config.FeedAtom
	case bytes.Contains(head, []byte("<rss")), bytes.Contains(head, []byte("<rdf:rdf")):
		return config.FeedRSS
	}
	return config.FeedHTML
}

// ParsePage turns a fetched page into records.
func ParsePage(page Page, kind string, sel *config.HTMLSelectors) ([]models.Record, error) {
	if kind == "" {
		kind = DetectKind(page.ContentType, page.Body)
	}
	var (
		recs []models.Record
		err  error
	)
	switch kind {
	case config.FeedRSS, config.FeedAtom:
		recs, err = parseXMLFeed(page.Body)
	case config.FeedJSON:
		recs, err = DecodeRecords(page.Body)
	default:
		s := DefaultSelectors()
		if sel != nil {
			s = *sel
		}
		recs, err = parseHTML(page, s)
	}
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if dest, ok := util.UnwrapRedirect(recs[i].URL); ok {
			recs[i].URL = dest
		}
	}
	return recs, nil
}

type rssDoc struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// RSS 1.0 puts items beside the channel.
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	Source      struct {
		URL string `xml:"url,attr"`
	} `xml:"source"`
}

type atomDoc struct {
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Summary string `xml:"summary"`
		Content string `xml:"content"`
	} `xml:"entry"`
}

func parseXMLFeed(body []byte) ([]models.Record, error) {
	var root struct{ XMLName xml.Name }
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("failed to parse feed XML: %w", err)
	}

	if root.XMLName.Local == "feed" {
		var doc atomDoc
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse Atom feed: %w", err)
		}
		recs := make([]models.Record, 0, len(doc.Entries))
		for _, e := range doc.Entries {
			var link string
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			summary := e.Summary
			if summary == "" {
				summary = e.Content
			}
			recs = append(recs, models.Record{Title: htmlText(e.Title), URL: strings.TrimSpace(link), Snippet: htmlText(summary)})
		}
		return recs, nil
	}

	var doc rssDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed: %w", err)
	}
	items := append(doc.Channel.Items, doc.Items...)
	recs := make([]models.Record, 0, len(items))
	for _, it := range items {
		link := strings.TrimSpace(it.Link)
		if link == "" && strings.HasPrefix(strings.TrimSpace(it.GUID), "http") {
			link = strings.TrimSpace(it.GUID)
		}
		rec := models.Record{Title: htmlText(it.Title), URL: link, Snippet: htmlText(it.Description)}
		if it.Source.URL != "" {
			rec.Extra = map[string]any{"sources": []any{it.Source.URL}}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func parseHTML(page Page, sel config.HTMLSelectors) ([]models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", page.URL, err)
	}

	items := doc.Find(sel.Item)
	if items.Length() == 0 {
		return nil, fmt.Errorf("no '%s' elements found on %s. Potential block or page structure change", sel.Item, page.URL)
	}

	var recs []models.Record
	items.Each(func(_ int, s *goquery.Selection) {
		if sel.IgnoreModifier != "" && s.Is(sel.IgnoreModifier) {
			return
		}

		link := s.Find(sel.TitleLink).First()
		if link.Length() > 0 && !link.Is("a") {
			link = link.Find("a").First()
		}
		if link.Length() == 0 {
			return
		}
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		rec := models.Record{
			Title: collapse(link.Text()),
			URL:   resolveLink(page.URL, href),
		}
		if sel.Snippet != "" {
			rec.Snippet = collapse(s.Find(sel.Snippet).First().Text())
		}
		recs = append(recs, rec)
	})
	return recs, nil
}

// htmlText strips markup from feed text fields, which often carry escaped HTML.
func htmlText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "<") {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveLink makes relative links absolute against the page they were found on.
func resolveLink(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
