package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// maxExcerptLen bounds how much body text feeds the seeding prompt.
const maxExcerptLen = 1200

// FeedItem is the slice of a feed entry the ingester cares about.
type FeedItem struct {
	Title       string
	Link        string
	Description string
}

// Page is what a scraped article page yields.
type Page struct {
	Title       string
	Description string
	Excerpt     string
}

// Fetcher pulls RSS/Atom feeds and scrapes article pages.
type Fetcher struct {
	parser *gofeed.Parser
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	parser := gofeed.NewParser()
	parser.Client = client
	return &Fetcher{parser: parser, client: client}
}

// Feed fetches and parses a feed, returning items with usable links.
func (f *Fetcher) Feed(ctx context.Context, url string) ([]FeedItem, error) {
	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, err
	}
	items := make([]FeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it.Link == "" || it.Title == "" {
			continue
		}
		items = append(items, FeedItem{
			Title:       strings.TrimSpace(it.Title),
			Link:        it.Link,
			Description: strings.TrimSpace(it.Description),
		})
	}
	return items, nil
}

// Page fetches an article page and extracts its title, description and a
// body excerpt from the OpenGraph tags and paragraph text.
func (f *Fetcher) Page(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", "anonboard-ingest/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Page{}, err
	}

	var p Page
	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		p.Title = strings.TrimSpace(v)
	}
	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if v, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		p.Description = strings.TrimSpace(v)
	}
	if p.Description == "" {
		if v, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			p.Description = strings.TrimSpace(v)
		}
	}

	var b strings.Builder
	doc.Find("article p, main p, p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return true
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(text)
		return b.Len() < maxExcerptLen
	})
	p.Excerpt = b.String()
	if len(p.Excerpt) > maxExcerptLen {
		// cut on a rune boundary so the prompt never sees a torn sequence
		cut := maxExcerptLen
		for cut > 0 && !utf8.RuneStart(p.Excerpt[cut]) {
			cut--
		}
		p.Excerpt = p.Excerpt[:cut]
	}

	if p.Title == "" && p.Description == "" && p.Excerpt == "" {
		return Page{}, fmt.Errorf("no usable content")
	}
	return p, nil
}
