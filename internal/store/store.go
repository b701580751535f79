// Package store persists campaigns, campaign records, parent profiles and
// knowledge chunks.
package store

import (
	"context"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// CampaignFilter specifies criteria for listing campaigns.
type CampaignFilter struct {
	ParentSlug   string          `json:"parent_slug,omitempty"`
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for campaign generation.
type Store interface {
	// Campaigns
	CreateCampaign(ctx context.Context, c model.Campaign) (*model.Campaign, error)
	UpdateCampaign(ctx context.Context, id string, status model.RunStatus, summary map[string]any) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error)

	// Records
	UpsertRecords(ctx context.Context, records []model.CampaignRecord) error
	ListRecords(ctx context.Context, campaignID string) ([]model.CampaignRecord, error)
	CountRecords(ctx context.Context, campaignID string) (map[model.RecordStatus]int, error)

	// Parent profiles
	SaveProfile(ctx context.Context, p model.ParentProfile) error
	GetProfile(ctx context.Context, slug string) (*model.ParentProfile, error)
	ListProfiles(ctx context.Context) ([]model.ParentProfile, error)
	SetSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (string, error)

	// Knowledge
	HasSource(ctx context.Context, parentSlug, sha string) (bool, error)
	InsertChunks(ctx context.Context, chunks []model.KnowledgeChunk) (int, error)
	SearchChunks(ctx context.Context, parentSlug, kind string, embedding []float32, k int) ([]model.ScoredChunk, error)
	ListSources(ctx context.Context, parentSlug string) ([]model.KnowledgeSource, error)

	// Retention
	PurgeExpired(ctx context.Context, before time.Time) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// SettingActiveParent holds the slug of the default parent profile.
const SettingActiveParent = "active_parent"
