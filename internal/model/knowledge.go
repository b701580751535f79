package model

import "time"

// Knowledge kinds.
const (
	KindMarketing = "marketing"
	KindOffer     = "offer"
)

// KnowledgeChunk is one embedded slice of a parent's marketing material.
type KnowledgeChunk struct {
	ID         string    `json:"id"`
	ParentSlug string    `json:"parent_slug"`
	Kind       string    `json:"kind"`
	SourcePath string    `json:"source_path"`
	SourceSHA  string    `json:"source_sha"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredChunk is a retrieval hit.
type ScoredChunk struct {
	KnowledgeChunk
	Score float64 `json:"score"`
}

// KnowledgeSource summarizes one ingested file.
type KnowledgeSource struct {
	ParentSlug string    `json:"parent_slug"`
	Kind       string    `json:"kind"`
	SourcePath string    `json:"source_path"`
	SourceSHA  string    `json:"source_sha"`
	Chunks     int       `json:"chunks"`
	CreatedAt  time.Time `json:"created_at"`
}
