package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Index is the storage the knowledge base needs. store.Store implements it.
type Index interface {
	HasSource(ctx context.Context, parentSlug, sha string) (bool, error)
	InsertChunks(ctx context.Context, chunks []model.KnowledgeChunk) (int, error)
	SearchChunks(ctx context.Context, parentSlug, kind string, embedding []float32, k int) ([]model.ScoredChunk, error)
}

// IngestResult describes one ingested file.
type IngestResult struct {
	ParentSlug string
	Kind       string
	SourcePath string
	SourceSHA  string
	Chunks     int
	Duplicate  bool
}

var textExtensions = map[string]bool{".md": true, ".markdown": true, ".txt": true}

// Ingester chunks and embeds source files into an Index.
type Ingester struct {
	index    Index
	embedder Embedder
	now      func() time.Time
}

// NewIngester creates an Ingester.
func NewIngester(index Index, embedder Embedder) *Ingester {
	return &Ingester{index: index, embedder: embedder, now: time.Now}
}

// IngestFile reads a markdown or text file and stores its chunks. A file
// whose content hash is already indexed for the parent is skipped.
func (in *Ingester) IngestFile(ctx context.Context, parentSlug, kind, path string) (*IngestResult, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !textExtensions[ext] {
		return nil, eris.Errorf("knowledge: unsupported file type %q (use .md or .txt)", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "knowledge: read %s", path)
	}
	return in.Ingest(ctx, parentSlug, kind, path, data)
}

// Ingest stores the chunks of data under the given source path.
func (in *Ingester) Ingest(ctx context.Context, parentSlug, kind, sourcePath string, data []byte) (*IngestResult, error) {
	if kind == "" {
		kind = model.KindMarketing
	}
	if kind != model.KindMarketing && kind != model.KindOffer {
		return nil, eris.Errorf("knowledge: unknown kind %q", kind)
	}

	sum := sha256.Sum256(data)
	res := &IngestResult{
		ParentSlug: parentSlug,
		Kind:       kind,
		SourcePath: sourcePath,
		SourceSHA:  hex.EncodeToString(sum[:]),
	}

	dup, err := in.index.HasSource(ctx, parentSlug, res.SourceSHA)
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: check source")
	}
	if dup {
		res.Duplicate = true
		zap.L().Info("knowledge: source already indexed",
			zap.String("parent", parentSlug), zap.String("path", sourcePath))
		return res, nil
	}

	texts := Chunk(string(data), DefaultChunkSize, DefaultOverlap)
	now := in.now().UTC()
	chunks := make([]model.KnowledgeChunk, 0, len(texts))
	for i, t := range texts {
		chunks = append(chunks, model.KnowledgeChunk{
			ID:         uuid.New().String(),
			ParentSlug: parentSlug,
			Kind:       kind,
			SourcePath: sourcePath,
			SourceSHA:  res.SourceSHA,
			Index:      i,
			Text:       t,
			Embedding:  in.embedder.Embed(t),
			CreatedAt:  now,
		})
	}

	n, err := in.index.InsertChunks(ctx, chunks)
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: insert chunks")
	}
	res.Chunks = n

	zap.L().Info("knowledge: ingested source",
		zap.String("parent", parentSlug),
		zap.String("kind", kind),
		zap.String("path", sourcePath),
		zap.Int("chunks", n),
		zap.Int("chars", utf8.RuneCount(data)),
	)
	return res, nil
}
