package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauljones0/deal-radar/internal/config"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Launches</title>
  <item>
    <title>Acme raises $10M</title>
    <link>https://acme.io/news?utm_source=rss</link>
    <description>&lt;p&gt;Acme builds &lt;b&gt;rockets&lt;/b&gt;.&lt;/p&gt;</description>
    <source url="https://news.example.com/acme">Example News</source>
  </item>
  <item>
    <title>Guid only</title>
    <guid>https://guid.example.com/post</guid>
  </item>
  <item>
    <title>Wrapped</title>
    <link>https://www.google.com/url?q=https://dest.example.com/page&amp;sa=U</link>
  </item>
</channel>
</rss>`

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Blog</title>
  <entry>
    <title>Foo launches</title>
    <link rel="self" href="https://blog.example.com/self"/>
    <link rel="alternate" href="https://blog.example.com/foo"/>
    <summary>Foo is a tool.</summary>
  </entry>
  <entry>
    <title>Bar</title>
    <link href="https://blog.example.com/bar"/>
    <content type="html">&lt;p&gt;Bar content&lt;/p&gt;</content>
  </entry>
</feed>`

const htmlListing = `<!DOCTYPE html>
<html>
<body>
<ul>
  <li class="topic">
    <a class="title" href="/posts/1">  First   post </a>
    <p class="blurb">First blurb</p>
  </li>
  <li class="topic sticky">
    <a class="title" href="/sticky">Sticky (should be ignored)</a>
  </li>
  <li class="topic">
    <div class="title"><a href="https://other.example.com/2">Second</a></div>
  </li>
  <li class="topic">
    <span class="title">No link</span>
  </li>
</ul>
</body>
</html>`

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"rss content type", "application/rss+xml", "", config.FeedRSS},
		{"atom content type", "application/atom+xml; charset=utf-8", "", config.FeedAtom},
		{"json content type", "application/json", "", config.FeedJSON},
		{"rss sniffed", "text/xml", rssFeed, config.FeedRSS},
		{"atom sniffed", "application/xml", atomFeed, config.FeedAtom},
		{"json sniffed", "text/plain", `[{"url":"x"}]`, config.FeedJSON},
		{"html fallback", "text/html", htmlListing, config.FeedHTML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectKind(tt.contentType, []byte(tt.body)))
		})
	}
}

func TestParsePage_RSS(t *testing.T) {
	recs, err := ParsePage(Page{URL: "https://feeds.example.com/rss", Body: []byte(rssFeed)}, "", nil)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "Acme raises $10M", recs[0].Title)
	assert.Equal(t, "https://acme.io/news?utm_source=rss", recs[0].URL)
	assert.Equal(t, "Acme builds rockets.", recs[0].Snippet)
	v, ok := recs[0].Value("sources")
	require.True(t, ok)
	assert.Equal(t, []any{"https://news.example.com/acme"}, v)

	assert.Equal(t, "https://guid.example.com/post", recs[1].URL)
	assert.Equal(t, "https://dest.example.com/page", recs[2].URL)
}

func TestParsePage_Atom(t *testing.T) {
	recs, err := ParsePage(Page{URL: "https://blog.example.com/atom", Body: []byte(atomFeed)}, config.FeedAtom, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "https://blog.example.com/foo", recs[0].URL)
	assert.Equal(t, "Foo is a tool.", recs[0].Snippet)
	assert.Equal(t, "Bar content", recs[1].Snippet)
}

func TestParsePage_HTML(t *testing.T) {
	sel := &config.HTMLSelectors{
		Item:           "li.topic",
		IgnoreModifier: ".sticky",
		TitleLink:      ".title",
		Snippet:        ".blurb",
	}
	recs, err := ParsePage(Page{URL: "https://list.example.com/hot/", ContentType: "text/html", Body: []byte(htmlListing)}, "", sel)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "First post", recs[0].Title)
	assert.Equal(t, "https://list.example.com/posts/1", recs[0].URL)
	assert.Equal(t, "First blurb", recs[0].Snippet)
	assert.Equal(t, "Second", recs[1].Title)
	assert.Equal(t, "https://other.example.com/2", recs[1].URL)
}

func TestParsePage_HTMLStructureChange(t *testing.T) {
	_, err := ParsePage(Page{URL: "https://list.example.com/", Body: []byte("<html><body><p>blocked</p></body></html>")}, config.FeedHTML, nil)
	assert.Error(t, err)
}

func TestParsePage_JSONKeepsSchemelessURLs(t *testing.T) {
	recs, err := ParsePage(Page{URL: "https://api.example.com/search", Body: []byte(`{"organic":[{"title":"A","link":"acme.io/x"}]}`)}, "", nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "acme.io/x", recs[0].URL)
}

func TestResolveLink(t *testing.T) {
	assert.Equal(t, "https://a.com/x/y", resolveLink("https://a.com/x/", "y"))
	assert.Equal(t, "https://a.com/y", resolveLink("https://a.com/x/", "/y"))
	assert.Equal(t, "https://cdn.com/z", resolveLink("https://a.com/", "//cdn.com/z"))
	assert.Equal(t, "https://b.com/", resolveLink("https://a.com/", "https://b.com/"))
}
