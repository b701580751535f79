package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/jina"
)

const rssDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>news</title>
<item><title>Acme apre un nuovo stabilimento</title><link>https://news.example.com/1</link><pubDate>Mon, 05 Oct 2026 10:00:00 GMT</pubDate></item>
<item><title>Acme premiata per l'innovazione</title><link>https://news.example.com/2</link></item>
<item><title></title><link>https://news.example.com/3</link></item>
</channel></rss>`

const htmlDoc = `<html><head><title>Acme Srl</title><script>var x=1;</script></head>
<body><nav>Menu</nav><h1>Componenti di precisione</h1><p>Dal 1970 produciamo   valvole.</p><footer>Cookie</footer></body></html>`

type stubReader struct {
	page *jina.Page
	err  error
	hits int
}

func (s *stubReader) Read(context.Context, string) (*jina.Page, error) {
	s.hits++
	return s.page, s.err
}

type stubNews struct {
	items []model.NewsItem
	err   error
	query string
}

func (s *stubNews) Search(_ context.Context, q string) ([]model.NewsItem, error) {
	s.query = q
	return s.items, s.err
}

func testLead() model.Lead {
	return model.Lead{
		Key:         "acme-it",
		CompanyName: "Acme Srl",
		Website:     "https://acme.it",
		Industry:    "Machinery",
		City:        "Brescia",
		Keywords:    []string{"automation", "b2b"},
	}
}

func TestResolveMode(t *testing.T) {
	assert.Equal(t, ModeMinimal, ResolveMode(ModeAuto, "row"))
	assert.Equal(t, ModeWeb, ResolveMode(ModeAuto, "company"))
	assert.Equal(t, ModeWeb, ResolveMode("", "company"))
	assert.Equal(t, ModeMinimal, ResolveMode(ModeMinimal, "company"))
	assert.Equal(t, ModeWeb, ResolveMode(ModeHybrid, "row"))
	assert.Equal(t, ModeWeb, ResolveMode(ModeHybrid, "company"))
}

func TestMinimal(t *testing.T) {
	ev, err := Minimal{}.Enrich(context.Background(), testLead())
	require.NoError(t, err)
	assert.False(t, ev.HasSources())
	assert.Contains(t, ev.Items, "Settore: Machinery")
	assert.Contains(t, ev.Pains, "pressione su efficienza operativa e continuità produttiva")
	assert.Contains(t, ev.Pains, "integrazione tra sistemi digitali e processi esistenti")
	assert.Contains(t, ev.Opportunities, "migliorare la conversione della pipeline commerciale")
}

func TestHTMLReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, htmlDoc)
	}))
	defer srv.Close()

	page, err := NewHTMLReader(srv.Client()).Read(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Acme Srl", page.Title)
	assert.Equal(t, "Componenti di precisione\nDal 1970 produciamo valvole.", page.Content)

	_, err = NewHTMLReader(srv.Client()).Read(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")
}

func TestNewsFeed(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssDoc)
	}))
	defer srv.Close()

	items, err := NewNewsFeed(srv.URL+"/rss/search?hl=it", 5, srv.Client()).Search(context.Background(), "Acme Brescia")
	require.NoError(t, err)
	assert.Equal(t, "Acme Brescia", gotQuery)
	require.Len(t, items, 2)
	assert.Equal(t, "2026-10-05", items[0].Published)
	assert.Equal(t, "https://news.example.com/2", items[1].Link)
}

func TestWeb_FallsBackToSecondReader(t *testing.T) {
	jinaStub := &stubReader{err: errors.New("quota")}
	htmlStub := &stubReader{page: &jina.Page{Title: "Acme", Content: "Valvole industriali"}}
	news := &stubNews{items: []model.NewsItem{{Title: "Nuovo stabilimento", Link: "https://n/1"}}}

	ev, err := NewWeb(news, jinaStub, htmlStub).Enrich(context.Background(), testLead())
	require.NoError(t, err)
	assert.Equal(t, 1, jinaStub.hits)
	assert.Equal(t, "Valvole industriali", ev.SiteExcerpt)
	assert.Equal(t, []string{"https://acme.it", "https://n/1"}, ev.Sources)
	assert.Equal(t, "Homepage: Acme", ev.Items[0])
	assert.Equal(t, "Acme Srl Brescia", news.query)
	assert.True(t, ev.HasSources())
}

func TestWeb_AllSourcesFail(t *testing.T) {
	ev, err := NewWeb(&stubNews{err: errors.New("down")}, &stubReader{err: errors.New("down")}).
		Enrich(context.Background(), testLead())
	require.NoError(t, err)
	assert.False(t, ev.HasSources())
	assert.Contains(t, ev.Items, "Sito non analizzabile in modo completo")
}

func TestWeb_EmptyContentIsAFailure(t *testing.T) {
	ev, err := NewWeb(nil, &stubReader{page: &jina.Page{Content: "  "}}).Enrich(context.Background(), testLead())
	require.NoError(t, err)
	assert.Empty(t, ev.SiteExcerpt)
	assert.Empty(t, ev.Sources)
}
