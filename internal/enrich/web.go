package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

const (
	siteExcerptLen = 1200
	evidenceLimit  = 12
	sourcesLimit   = 15
)

// NewsSearcher finds headlines about a company.
type NewsSearcher interface {
	Search(ctx context.Context, query string) ([]model.NewsItem, error)
}

// Web extends the minimal dossier with the company website and recent news.
// Source failures degrade the dossier instead of failing the lead.
type Web struct {
	site SiteReader
	news NewsSearcher
}

// NewWeb creates a Web enricher. Readers are tried in order; a nil news
// searcher disables news lookup.
func NewWeb(news NewsSearcher, readers ...SiteReader) *Web {
	return &Web{site: fallbackReader(readers), news: news}
}

// Enrich implements Enricher.
func (w *Web) Enrich(ctx context.Context, l model.Lead) (model.Evidence, error) {
	ev, _ := Minimal{}.Enrich(ctx, l)
	log := zap.L().With(zap.String("lead_key", l.Key))

	var items, sources []string
	if l.Website != "" {
		page, err := w.site.Read(ctx, l.Website)
		if err != nil {
			log.Debug("enrich: website unreadable", zap.String("url", l.Website), zap.Error(err))
			items = append(items, "Sito non analizzabile in modo completo")
		} else {
			ev.SiteExcerpt = truncate(page.Content, siteExcerptLen)
			sources = append(sources, l.Website)
			if page.Title != "" {
				items = append(items, "Homepage: "+page.Title)
			}
		}
	}

	if w.news != nil {
		news, err := w.news.Search(ctx, newsQuery(l))
		if err != nil {
			log.Debug("enrich: news lookup failed", zap.Error(err))
		}
		for _, n := range news {
			ev.News = append(ev.News, n)
			sources = append(sources, n.Link)
			items = append(items, "News: "+n.Title)
		}
	}

	if ctx.Err() != nil {
		return ev, ctx.Err()
	}
	ev.Items = compact(append(items, ev.Items...), evidenceLimit)
	ev.Sources = compact(sources, sourcesLimit)
	return ev, nil
}
