package enrich

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// NewsFeed looks up recent headlines through an RSS search endpoint such as
// Google News. The query is passed in the "q" parameter.
type NewsFeed struct {
	baseURL  string
	maxItems int
	parser   *gofeed.Parser
}

// NewNewsFeed creates a NewsFeed.
func NewNewsFeed(baseURL string, maxItems int, hc *http.Client) *NewsFeed {
	if maxItems <= 0 {
		maxItems = 3
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	p := gofeed.NewParser()
	p.Client = hc
	return &NewsFeed{baseURL: baseURL, maxItems: maxItems, parser: p}
}

// Search returns up to maxItems headlines for query.
func (n *NewsFeed) Search(ctx context.Context, query string) ([]model.NewsItem, error) {
	u, err := url.Parse(n.baseURL)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: parse news feed url")
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	feed, err := n.parser.ParseURLWithContext(u.String(), ctx)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: fetch news feed")
	}

	var items []model.NewsItem
	for _, it := range feed.Items {
		if it.Title == "" || it.Link == "" {
			continue
		}
		ni := model.NewsItem{Title: it.Title, Link: it.Link}
		switch {
		case it.PublishedParsed != nil:
			ni.Published = it.PublishedParsed.UTC().Format("2006-01-02")
		case it.UpdatedParsed != nil:
			ni.Published = it.UpdatedParsed.UTC().Format("2006-01-02")
		}
		items = append(items, ni)
		if len(items) == n.maxItems {
			break
		}
	}
	return items, nil
}
