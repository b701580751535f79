package knowledge

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// DefaultTopK is the number of snippets retrieved per lead.
const DefaultTopK = 6

// Retriever finds the knowledge snippets most relevant to a lead.
type Retriever struct {
	index    Index
	embedder Embedder
	topK     int
}

// NewRetriever creates a Retriever returning up to topK snippets.
func NewRetriever(index Index, embedder Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{index: index, embedder: embedder, topK: topK}
}

// Query builds the retrieval text of a lead.
func Query(l model.Lead) string {
	parts := []string{l.CompanyName, l.Industry, l.ContactTitle, l.Description}
	parts = append(parts, l.Keywords...)
	parts = append(parts, l.Evidence.Items...)
	parts = append(parts, l.Evidence.Pains...)
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// Retrieve returns snippet texts for the lead across all knowledge kinds,
// best match first.
func (r *Retriever) Retrieve(ctx context.Context, parentSlug string, l model.Lead) ([]string, error) {
	hits, err := r.Search(ctx, parentSlug, "", Query(l))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Text)
	}
	return out, nil
}

// Search runs a similarity query. An empty kind searches every kind.
func (r *Retriever) Search(ctx context.Context, parentSlug, kind, query string) ([]model.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	hits, err := r.index.SearchChunks(ctx, parentSlug, kind, r.embedder.Embed(query), r.topK)
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: search")
	}
	return hits, nil
}
