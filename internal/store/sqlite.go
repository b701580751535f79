package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id             TEXT PRIMARY KEY,
	parent_slug    TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	recipient_mode TEXT NOT NULL,
	variant_mode   TEXT NOT NULL,
	output_schema  TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	summary        TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS campaign_records (
	campaign_id      TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	lead_key         TEXT NOT NULL,
	parent_slug      TEXT NOT NULL,
	status           TEXT NOT NULL,
	error_code       TEXT NOT NULL DEFAULT '',
	reviewer_notes   TEXT NOT NULL DEFAULT '',
	approved_variant TEXT NOT NULL DEFAULT '',
	cost_eur         REAL NOT NULL DEFAULT 0,
	payload          TEXT NOT NULL,
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (campaign_id, lead_key)
);

CREATE TABLE IF NOT EXISTS parent_profiles (
	slug       TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id          TEXT PRIMARY KEY,
	parent_slug TEXT NOT NULL,
	kind        TEXT NOT NULL,
	source_path TEXT NOT NULL,
	source_sha  TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL,
	embedding   TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_campaigns_parent ON campaigns(parent_slug);
CREATE INDEX IF NOT EXISTS idx_campaigns_created_at ON campaigns(created_at);
CREATE INDEX IF NOT EXISTS idx_campaign_records_status ON campaign_records(campaign_id, status);
CREATE INDEX IF NOT EXISTS idx_knowledge_parent_kind ON knowledge_chunks(parent_slug, kind);
CREATE INDEX IF NOT EXISTS idx_knowledge_source_sha ON knowledge_chunks(parent_slug, source_sha);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Campaigns ---

func (s *SQLiteStore) CreateCampaign(ctx context.Context, c model.Campaign) (*model.Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = model.RunRunning
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	summary, err := marshalSummary(c.Summary)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, parent_slug, name, recipient_mode, variant_mode, output_schema, status, summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ParentSlug, c.Name, c.RecipientMode, c.VariantMode, c.OutputSchema, string(c.Status), summary, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert campaign")
	}
	return &c, nil
}

func (s *SQLiteStore) UpdateCampaign(ctx context.Context, id string, status model.RunStatus, summary map[string]any) error {
	sum, err := marshalSummary(summary)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		string(status), sum, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign %s", id)
	}
	return checkRowsAffected(res, "campaign", id)
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, parent_slug, name, recipient_mode, variant_mode, output_schema, status, summary, created_at, updated_at
		 FROM campaigns WHERE id = ?`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("campaign not found: %s", id)
	}
	return c, err
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT id, parent_slug, name, recipient_mode, variant_mode, output_schema, status, summary, created_at, updated_at
		FROM campaigns WHERE 1=1`
	var args []any
	if filter.ParentSlug != "" {
		query += ` AND parent_slug = ?`
		args = append(args, filter.ParentSlug)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list campaigns iterate")
}

// --- Records ---

func (s *SQLiteStore) UpsertRecords(ctx context.Context, records []model.CampaignRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert records")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO campaign_records (campaign_id, lead_key, parent_slug, status, error_code, reviewer_notes, approved_variant, cost_eur, payload, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (campaign_id, lead_key) DO UPDATE SET
		   parent_slug = excluded.parent_slug, status = excluded.status, error_code = excluded.error_code,
		   reviewer_notes = excluded.reviewer_notes, approved_variant = excluded.approved_variant,
		   cost_eur = excluded.cost_eur, payload = excluded.payload, updated_at = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert records")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal record %s", r.LeadKey)
		}
		if _, err := stmt.ExecContext(ctx,
			r.CampaignID, r.LeadKey, r.ParentSlug, string(r.Status), r.ErrorCode, r.ReviewerNotes,
			r.ApprovedVariant, r.CostEUR, string(payload), recordTime(r),
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert record %s", r.LeadKey)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert records")
}

func (s *SQLiteStore) ListRecords(ctx context.Context, campaignID string) ([]model.CampaignRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM campaign_records WHERE campaign_id = ? ORDER BY lead_key`, campaignID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CampaignRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var r model.CampaignRecord
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) CountRecords(ctx context.Context, campaignID string) (map[model.RecordStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM campaign_records WHERE campaign_id = ? GROUP BY status`, campaignID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count records")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[model.RecordStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record count")
		}
		counts[model.RecordStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count records iterate")
}

// --- Parent profiles ---

func (s *SQLiteStore) SaveProfile(ctx context.Context, p model.ParentProfile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO parent_profiles (slug, payload, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (slug) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		p.Slug, string(payload), now, now,
	)
	return eris.Wrapf(err, "sqlite: save profile %s", p.Slug)
}

func (s *SQLiteStore) GetProfile(ctx context.Context, slug string) (*model.ParentProfile, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM parent_profiles WHERE slug = ?`, slug).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("profile not found: %s", slug)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get profile")
	}
	var p model.ParentProfile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile")
	}
	return &p, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]model.ParentProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM parent_profiles ORDER BY slug`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profiles")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ParentProfile
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		var p model.ParentProfile
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal profile")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list profiles iterate")
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	return eris.Wrapf(err, "sqlite: set setting %s", key)
}

// GetSetting returns "" when the key is unset.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, eris.Wrapf(err, "sqlite: get setting %s", key)
}

// --- Knowledge ---

func (s *SQLiteStore) HasSource(ctx context.Context, parentSlug, sha string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_chunks WHERE parent_slug = ? AND source_sha = ?`, parentSlug, sha).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check knowledge source")
	}
	return n > 0, nil
}

func (s *SQLiteStore) InsertChunks(ctx context.Context, chunks []model.KnowledgeChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert chunks")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO knowledge_chunks (id, parent_slug, kind, source_path, source_sha, chunk_index, text, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert chunks")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		emb, err := json.Marshal(c.Embedding)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal embedding")
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.ParentSlug, c.Kind, c.SourcePath, c.SourceSHA, c.Index, c.Text, string(emb), now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert chunk %s#%d", c.SourcePath, c.Index)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert chunks")
	}
	return len(chunks), nil
}

// SearchChunks scores every chunk of the parent in process. An empty kind
// searches all kinds.
func (s *SQLiteStore) SearchChunks(ctx context.Context, parentSlug, kind string, embedding []float32, k int) ([]model.ScoredChunk, error) {
	query := `SELECT id, parent_slug, kind, source_path, source_sha, chunk_index, text, embedding, created_at
		FROM knowledge_chunks WHERE parent_slug = ?`
	args := []any{parentSlug}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search chunks")
	}
	defer rows.Close() //nolint:errcheck

	var hits []model.ScoredChunk
	for rows.Next() {
		var c model.KnowledgeChunk
		var emb string
		if err := rows.Scan(&c.ID, &c.ParentSlug, &c.Kind, &c.SourcePath, &c.SourceSHA, &c.Index, &c.Text, &emb, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan chunk")
		}
		if err := json.Unmarshal([]byte(emb), &c.Embedding); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal embedding")
		}
		hits = append(hits, model.ScoredChunk{KnowledgeChunk: c, Score: Cosine(embedding, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: search chunks iterate")
	}
	return topK(hits, k), nil
}

func (s *SQLiteStore) ListSources(ctx context.Context, parentSlug string) ([]model.KnowledgeSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT parent_slug, kind, source_path, source_sha, COUNT(*), MIN(created_at)
		 FROM knowledge_chunks WHERE parent_slug = ?
		 GROUP BY parent_slug, kind, source_path, source_sha ORDER BY source_path`, parentSlug)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.KnowledgeSource
	for rows.Next() {
		var ks model.KnowledgeSource
		var created string
		if err := rows.Scan(&ks.ParentSlug, &ks.Kind, &ks.SourcePath, &ks.SourceSHA, &ks.Chunks, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		ks.CreatedAt = parseSQLiteTime(created)
		out = append(out, ks)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

// --- Retention ---

// PurgeExpired deletes campaigns created before the cutoff together with
// their records and returns the number of campaigns removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin purge")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM campaign_records WHERE campaign_id IN (SELECT id FROM campaigns WHERE created_at < ?)`,
		before.UTC()); err != nil {
		return 0, eris.Wrap(err, "sqlite: purge records")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM campaigns WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge campaigns")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), eris.Wrap(tx.Commit(), "sqlite: commit purge")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCampaign(row scannable) (*model.Campaign, error) {
	var c model.Campaign
	var summary sql.NullString
	err := row.Scan(&c.ID, &c.ParentSlug, &c.Name, &c.RecipientMode, &c.VariantMode, &c.OutputSchema,
		&c.Status, &summary, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan campaign")
	}
	if summary.Valid && summary.String != "" {
		if err := json.Unmarshal([]byte(summary.String), &c.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &c, nil
}

func marshalSummary(summary map[string]any) (any, error) {
	if summary == nil {
		return nil, nil
	}
	b, err := json.Marshal(summary)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal summary")
	}
	return string(b), nil
}

func recordTime(r model.CampaignRecord) time.Time {
	if r.UpdatedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.UpdatedAt.UTC()
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

// parseSQLiteTime parses aggregate results, which the driver returns as text.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05.999999999-07:00", time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func topK(hits []model.ScoredChunk, k int) []model.ScoredChunk {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
