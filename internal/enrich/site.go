package enrich

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/pkg/jina"
)

const userAgent = "Mozilla/5.0 (compatible; outreach-cli/1.0)"

// noiseSelector lists page regions that never carry company copy.
const noiseSelector = "script, style, noscript, nav, footer, header, iframe, svg, form, .cookie-banner, .cookie, .popup"

// SiteReader fetches the readable text of a public page.
type SiteReader interface {
	Read(ctx context.Context, pageURL string) (*jina.Page, error)
}

// HTMLReader reads a page directly and extracts its text with goquery.
type HTMLReader struct {
	http *http.Client
}

// NewHTMLReader creates an HTMLReader. A nil client gets a 20s timeout.
func NewHTMLReader(hc *http.Client) *HTMLReader {
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTMLReader{http: hc}
}

// Read implements SiteReader.
func (h *HTMLReader) Read(ctx context.Context, pageURL string) (*jina.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: fetch %s", pageURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("enrich: fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: parse %s", pageURL)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find(noiseSelector).Remove()

	var parts []string
	doc.Find("h1, h2, h3, p, li").Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); len(t) > 2 {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		parts = []string{strings.Join(strings.Fields(doc.Find("body").Text()), " ")}
	}

	return &jina.Page{Title: title, URL: pageURL, Content: strings.Join(parts, "\n")}, nil
}

// fallbackReader tries each reader in turn until one returns content.
type fallbackReader []SiteReader

func (f fallbackReader) Read(ctx context.Context, pageURL string) (*jina.Page, error) {
	var lastErr error
	for _, r := range f {
		page, err := r.Read(ctx, pageURL)
		if err == nil && page != nil && strings.TrimSpace(page.Content) != "" {
			return page, nil
		}
		if err == nil {
			err = eris.Errorf("enrich: empty content from %s", pageURL)
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
