package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/db"
	"github.com/sells-group/outreach-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Knowledge retrieval uses
// the pgvector extension.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS campaigns (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	parent_slug    TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	recipient_mode TEXT NOT NULL,
	variant_mode   TEXT NOT NULL,
	output_schema  TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	summary        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS campaign_records (
	campaign_id      TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	lead_key         TEXT NOT NULL,
	parent_slug      TEXT NOT NULL,
	status           TEXT NOT NULL,
	error_code       TEXT NOT NULL DEFAULT '',
	reviewer_notes   TEXT NOT NULL DEFAULT '',
	approved_variant TEXT NOT NULL DEFAULT '',
	cost_eur         DOUBLE PRECISION NOT NULL DEFAULT 0,
	payload          JSONB NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (campaign_id, lead_key)
);

CREATE TABLE IF NOT EXISTS parent_profiles (
	slug       TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	parent_slug TEXT NOT NULL,
	kind        TEXT NOT NULL,
	source_path TEXT NOT NULL,
	source_sha  TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL,
	embedding   REAL[] NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaigns_parent ON campaigns(parent_slug);
CREATE INDEX IF NOT EXISTS idx_campaigns_created_at ON campaigns(created_at);
CREATE INDEX IF NOT EXISTS idx_campaign_records_status ON campaign_records(campaign_id, status);
CREATE INDEX IF NOT EXISTS idx_knowledge_parent_kind ON knowledge_chunks(parent_slug, kind);
CREATE INDEX IF NOT EXISTS idx_knowledge_source_sha ON knowledge_chunks(parent_slug, source_sha);
`

var (
	recordColumns = []string{
		"campaign_id", "lead_key", "parent_slug", "status", "error_code",
		"reviewer_notes", "approved_variant", "cost_eur", "payload", "updated_at",
	}
	chunkColumns = []string{
		"id", "parent_slug", "kind", "source_path", "source_sha", "chunk_index", "text", "embedding", "created_at",
	}
)

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Campaigns ---

func (s *PostgresStore) CreateCampaign(ctx context.Context, c model.Campaign) (*model.Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = model.RunRunning
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	summary, err := summaryJSON(c.Summary)
	if err != nil {
		return nil, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO campaigns (id, parent_slug, name, recipient_mode, variant_mode, output_schema, status, summary, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.ParentSlug, c.Name, c.RecipientMode, c.VariantMode, c.OutputSchema, string(c.Status), summary, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert campaign")
	}
	return &c, nil
}

func (s *PostgresStore) UpdateCampaign(ctx context.Context, id string, status model.RunStatus, summary map[string]any) error {
	sum, err := summaryJSON(summary)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
		string(status), sum, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("campaign not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, parent_slug, name, recipient_mode, variant_mode, output_schema, status, summary, created_at, updated_at
		 FROM campaigns WHERE id = $1`, id)
	c, err := scanPgCampaign(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get campaign %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT id, parent_slug, name, recipient_mode, variant_mode, output_schema, status, summary, created_at, updated_at
		FROM campaigns WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ParentSlug != "" {
		query += fmt.Sprintf(` AND parent_slug = $%d`, argIdx)
		args = append(args, filter.ParentSlug)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		c, err := scanPgCampaign(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
}

// --- Records ---

func (s *PostgresStore) UpsertRecords(ctx context.Context, records []model.CampaignRecord) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal record %s", r.LeadKey)
		}
		rows = append(rows, []any{
			r.CampaignID, r.LeadKey, r.ParentSlug, string(r.Status), r.ErrorCode,
			r.ReviewerNotes, r.ApprovedVariant, r.CostEUR, payload, recordTime(r),
		})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "campaign_records",
		Columns:      recordColumns,
		ConflictKeys: []string{"campaign_id", "lead_key"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert records")
}

func (s *PostgresStore) ListRecords(ctx context.Context, campaignID string) ([]model.CampaignRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM campaign_records WHERE campaign_id = $1 ORDER BY lead_key`, campaignID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var out []model.CampaignRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var r model.CampaignRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) CountRecords(ctx context.Context, campaignID string) (map[model.RecordStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM campaign_records WHERE campaign_id = $1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count records")
	}
	defer rows.Close()

	counts := make(map[model.RecordStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record count")
		}
		counts[model.RecordStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count records iterate")
}

// --- Parent profiles ---

func (s *PostgresStore) SaveProfile(ctx context.Context, p model.ParentProfile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO parent_profiles (slug, payload, created_at, updated_at) VALUES ($1, $2, $3, $3)
		 ON CONFLICT (slug) DO UPDATE SET payload = $2, updated_at = $3`,
		p.Slug, payload, now,
	)
	return eris.Wrapf(err, "postgres: save profile %s", p.Slug)
}

func (s *PostgresStore) GetProfile(ctx context.Context, slug string) (*model.ParentProfile, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM parent_profiles WHERE slug = $1`, slug).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("profile not found: %s", slug)
		}
		return nil, eris.Wrap(err, "postgres: get profile")
	}
	var p model.ParentProfile
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile")
	}
	return &p, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]model.ParentProfile, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM parent_profiles ORDER BY slug`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profiles")
	}
	defer rows.Close()

	var out []model.ParentProfile
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		var p model.ParentProfile
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal profile")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list profiles iterate")
}

func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = $2`,
		key, value)
	return eris.Wrapf(err, "postgres: set setting %s", key)
}

// GetSetting returns "" when the key is unset.
func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", eris.Wrapf(err, "postgres: get setting %s", key)
	}
	return v, nil
}

// --- Knowledge ---

func (s *PostgresStore) HasSource(ctx context.Context, parentSlug, sha string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM knowledge_chunks WHERE parent_slug = $1 AND source_sha = $2)`,
		parentSlug, sha).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: check knowledge source")
}

func (s *PostgresStore) InsertChunks(ctx context.Context, chunks []model.KnowledgeChunk) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(chunks))
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		rows = append(rows, []any{c.ID, c.ParentSlug, c.Kind, c.SourcePath, c.SourceSHA, c.Index, c.Text, c.Embedding, now})
	}
	n, err := db.CopyFrom(ctx, s.pool, "knowledge_chunks", chunkColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert chunks")
	}
	return int(n), nil
}

// SearchChunks ranks chunks by pgvector cosine distance. An empty kind
// searches all kinds.
func (s *PostgresStore) SearchChunks(ctx context.Context, parentSlug, kind string, embedding []float32, k int) ([]model.ScoredChunk, error) {
	query := `SELECT id, parent_slug, kind, source_path, source_sha, chunk_index, text, created_at,
		1 - (embedding::vector <=> $2::vector) AS score
		FROM knowledge_chunks WHERE parent_slug = $1`
	args := []any{parentSlug, vectorLiteral(embedding)}
	if kind != "" {
		query += ` AND kind = $3`
		args = append(args, kind)
	}
	query += fmt.Sprintf(` ORDER BY embedding::vector <=> $2::vector LIMIT %d`, listLimit(k))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search chunks")
	}
	defer rows.Close()

	var hits []model.ScoredChunk
	for rows.Next() {
		var h model.ScoredChunk
		var idx int32
		if err := rows.Scan(&h.ID, &h.ParentSlug, &h.Kind, &h.SourcePath, &h.SourceSHA, &idx, &h.Text, &h.CreatedAt, &h.Score); err != nil {
			return nil, eris.Wrap(err, "postgres: scan chunk")
		}
		h.Index = int(idx)
		hits = append(hits, h)
	}
	return hits, eris.Wrap(rows.Err(), "postgres: search chunks iterate")
}

func (s *PostgresStore) ListSources(ctx context.Context, parentSlug string) ([]model.KnowledgeSource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT parent_slug, kind, source_path, source_sha, COUNT(*), MIN(created_at)
		 FROM knowledge_chunks WHERE parent_slug = $1
		 GROUP BY parent_slug, kind, source_path, source_sha ORDER BY source_path`, parentSlug)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var out []model.KnowledgeSource
	for rows.Next() {
		var ks model.KnowledgeSource
		var n int64
		if err := rows.Scan(&ks.ParentSlug, &ks.Kind, &ks.SourcePath, &ks.SourceSHA, &n, &ks.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		ks.Chunks = int(n)
		out = append(out, ks)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

// --- Retention ---

// PurgeExpired deletes campaigns created before the cutoff; their records
// go with them through the cascading foreign key.
func (s *PostgresStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM campaigns WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge campaigns")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgCampaign(row pgx.Row) (*model.Campaign, error) {
	var c model.Campaign
	var status string
	var summary []byte
	if err := row.Scan(&c.ID, &c.ParentSlug, &c.Name, &c.RecipientMode, &c.VariantMode, &c.OutputSchema,
		&status, &summary, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = model.RunStatus(status)
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &c.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &c, nil
}

func summaryJSON(summary map[string]any) ([]byte, error) {
	if summary == nil {
		return nil, nil
	}
	b, err := json.Marshal(summary)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal summary")
	}
	return b, nil
}
