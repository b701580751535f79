package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newCampaign(t *testing.T, st *SQLiteStore) *model.Campaign {
	t.Helper()
	c, err := st.CreateCampaign(context.Background(), model.Campaign{
		ParentSlug:    "parent-co",
		Name:          "autunno",
		RecipientMode: "company",
		VariantMode:   "ab",
		OutputSchema:  "ab",
	})
	require.NoError(t, err)
	return c
}

// --- Campaigns ---

func TestSQLite_CampaignLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := newCampaign(t, st)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, model.RunRunning, c.Status)

	require.NoError(t, st.UpdateCampaign(ctx, c.ID, model.RunCostCapReached, map[string]any{"total": 3}))

	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCostCapReached, got.Status)
	assert.Equal(t, "parent-co", got.ParentSlug)
	assert.EqualValues(t, 3, got.Summary["total"])

	list, err := st.ListCampaigns(ctx, CampaignFilter{ParentSlug: "parent-co"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = st.ListCampaigns(ctx, CampaignFilter{Status: model.RunCompleted})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = st.ListCampaigns(ctx, CampaignFilter{CreatedAfter: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = st.ListCampaigns(ctx, CampaignFilter{CreatedAfter: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLite_CampaignNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetCampaign(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "campaign not found")

	err = st.UpdateCampaign(context.Background(), "missing", model.RunCompleted, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// --- Records ---

func TestSQLite_UpsertAndListRecords(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := newCampaign(t, st)

	recs := []model.CampaignRecord{
		{CampaignID: c.ID, LeadKey: "beta", ParentSlug: "parent-co", Status: model.RecordFailed, ErrorCode: model.ErrCodeRejected},
		{CampaignID: c.ID, LeadKey: "acme", ParentSlug: "parent-co", Status: model.RecordReadyForApproval,
			Variants: []model.Variant{{Label: "A", Subject: "s", Body: "b"}}, CostEUR: 0.02},
	}
	require.NoError(t, st.UpsertRecords(ctx, recs))

	recs[1].Status = model.RecordApproved
	recs[1].ReviewerNotes = "ok"
	require.NoError(t, st.UpsertRecords(ctx, recs[1:]))

	got, err := st.ListRecords(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "acme", got[0].LeadKey)
	assert.Equal(t, model.RecordApproved, got[0].Status)
	assert.Equal(t, "ok", got[0].ReviewerNotes)
	assert.Len(t, got[0].Variants, 1)
	assert.Equal(t, model.ErrCodeRejected, got[1].ErrorCode)

	counts, err := st.CountRecords(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, map[model.RecordStatus]int{model.RecordApproved: 1, model.RecordFailed: 1}, counts)
}

func TestSQLite_UpsertRecordsEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.UpsertRecords(context.Background(), nil))
}

// --- Profiles and settings ---

func TestSQLite_Profiles(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := model.ParentProfile{Slug: "parent-co", CompanyName: "Parent Co", Tone: "formale"}
	require.NoError(t, st.SaveProfile(ctx, p))
	p.Tone = "diretto"
	require.NoError(t, st.SaveProfile(ctx, p))
	require.NoError(t, st.SaveProfile(ctx, model.ParentProfile{Slug: "alpha", CompanyName: "Alpha"}))

	got, err := st.GetProfile(ctx, "parent-co")
	require.NoError(t, err)
	assert.Equal(t, "diretto", got.Tone)

	all, err := st.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Slug)

	_, err = st.GetProfile(ctx, "nope")
	assert.Error(t, err)
}

func TestSQLite_Settings(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	v, err := st.GetSetting(ctx, SettingActiveParent)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, st.SetSetting(ctx, SettingActiveParent, "parent-co"))
	require.NoError(t, st.SetSetting(ctx, SettingActiveParent, "alpha"))
	v, err = st.GetSetting(ctx, SettingActiveParent)
	require.NoError(t, err)
	assert.Equal(t, "alpha", v)
}

// --- Knowledge ---

func TestSQLite_KnowledgeChunks(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	chunks := []model.KnowledgeChunk{
		{ParentSlug: "p", Kind: model.KindMarketing, SourcePath: "a.md", SourceSHA: "sha-a", Index: 0, Text: "east", Embedding: []float32{1, 0}},
		{ParentSlug: "p", Kind: model.KindMarketing, SourcePath: "a.md", SourceSHA: "sha-a", Index: 1, Text: "north", Embedding: []float32{0, 1}},
		{ParentSlug: "p", Kind: model.KindOffer, SourcePath: "b.md", SourceSHA: "sha-b", Index: 0, Text: "north-east", Embedding: []float32{1, 1}},
		{ParentSlug: "other", Kind: model.KindMarketing, SourcePath: "c.md", SourceSHA: "sha-c", Index: 0, Text: "east", Embedding: []float32{1, 0}},
	}
	n, err := st.InsertChunks(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	ok, err := st.HasSource(ctx, "p", "sha-a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.HasSource(ctx, "p", "sha-c")
	require.NoError(t, err)
	assert.False(t, ok)

	hits, err := st.SearchChunks(ctx, "p", "", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "east", hits[0].Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "north-east", hits[1].Text)

	hits, err = st.SearchChunks(ctx, "p", model.KindMarketing, []float32{0, 1}, 6)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "north", hits[0].Text)

	sources, err := st.ListSources(ctx, "p")
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "a.md", sources[0].SourcePath)
	assert.Equal(t, 2, sources[0].Chunks)
}

// --- Retention ---

func TestSQLite_PurgeExpired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := newCampaign(t, st)
	require.NoError(t, st.UpsertRecords(ctx, []model.CampaignRecord{{CampaignID: c.ID, LeadKey: "acme", Status: model.RecordGenerated}}))

	n, err := st.PurgeExpired(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = st.PurgeExpired(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := st.ListRecords(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine(nil, nil))
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[1,0.5,-2]", vectorLiteral([]float32{1, 0.5, -2}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}
