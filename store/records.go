package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsbrief/types"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// ErrIllegalTransition is returned when a status update would move a
// record anywhere other than Pending -> Posted.
var ErrIllegalTransition = errors.New("illegal status transition")

const schema = `
CREATE TABLE IF NOT EXISTS records (
	external_id        TEXT PRIMARY KEY,
	title              TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	url                TEXT NOT NULL,
	domain             TEXT NOT NULL DEFAULT '',
	content_hash       TEXT NOT NULL,
	fuzzy_title_key    TEXT NOT NULL,
	entity_fingerprint TEXT NOT NULL DEFAULT '',
	embedding_id       TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'Pending',
	published_at       TIMESTAMP,
	created_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS drafts (
	id              TEXT PRIMARY KEY,
	source_item_id  TEXT NOT NULL REFERENCES records(external_id),
	platform        TEXT NOT NULL,
	content         TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'draft',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_drafts_source ON drafts(source_item_id);
`

// Records persists StoredRecords and DraftPosts in SQLite.
type Records struct {
	db *sql.DB
}

// OpenRecords opens (creating if necessary) the SQLite database at path.
func OpenRecords(path string) (*Records, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Records{db: db}, nil
}

// NewRecordsWithDB wraps an existing database handle. The schema must
// already be applied; used by tests with in-memory databases.
func NewRecordsWithDB(db *sql.DB) (*Records, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Records{db: db}, nil
}

// Create inserts a new StoredRecord with status Pending.
func (r *Records) Create(ctx context.Context, rec *types.StoredRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query, args, err := sq.Insert("records").
		Columns("external_id", "title", "description", "url", "domain",
			"content_hash", "fuzzy_title_key", "entity_fingerprint",
			"embedding_id", "status", "published_at", "created_at").
		Values(rec.ExternalID, rec.Title, rec.Description, rec.URL, rec.Domain,
			rec.ContentHash, rec.FuzzyTitleKey, rec.EntityFingerprint,
			rec.EmbeddingID, string(types.StatusPending), rec.PublishedAt, createdAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return types.StoreUnavailable("records", err)
	}
	return nil
}

// Get fetches one record by its external ID.
func (r *Records) Get(ctx context.Context, externalID string) (*types.StoredRecord, error) {
	query, args, err := recordSelect().
		Where(sq.Eq{"external_id": externalID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s not found", externalID)
	}
	if err != nil {
		return nil, types.StoreUnavailable("records", err)
	}
	return rec, nil
}

// GetPending returns up to limit Pending records, newest published first.
func (r *Records) GetPending(ctx context.Context, limit int) ([]*types.StoredRecord, error) {
	query, args, err := recordSelect().
		Where(sq.Eq{"status": string(types.StatusPending)}).
		OrderBy("published_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.StoreUnavailable("records", err)
	}
	defer rows.Close()

	var recs []*types.StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, types.StoreUnavailable("records", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.StoreUnavailable("records", err)
	}
	return recs, nil
}

// MarkPosted flips a record Pending -> Posted. Any other transition is
// rejected; flipping an already-Posted record reports ErrIllegalTransition
// so callers cannot double-process an item.
func (r *Records) MarkPosted(ctx context.Context, externalID string) error {
	query, args, err := sq.Update("records").
		Set("status", string(types.StatusPosted)).
		Where(sq.Eq{
			"external_id": externalID,
			"status":      string(types.StatusPending),
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return types.StoreUnavailable("records", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return types.StoreUnavailable("records", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: record %s is not Pending", ErrIllegalTransition, externalID)
	}
	return nil
}

// CreateDraft inserts one platform draft.
func (r *Records) CreateDraft(ctx context.Context, draft *types.DraftPost) error {
	query, args, err := sq.Insert("drafts").
		Columns("id", "source_item_id", "platform", "content", "status",
			"created_at", "updated_at").
		Values(draft.ID, draft.SourceItemID, string(draft.Platform), draft.Content,
			string(draft.Status), draft.CreatedAt, draft.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return types.StoreUnavailable("drafts", err)
	}
	return nil
}

// ListDrafts returns all drafts created for a record.
func (r *Records) ListDrafts(ctx context.Context, externalID string) ([]*types.DraftPost, error) {
	query, args, err := sq.Select("id", "source_item_id", "platform", "content",
		"status", "created_at", "updated_at").
		From("drafts").
		Where(sq.Eq{"source_item_id": externalID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.StoreUnavailable("drafts", err)
	}
	defer rows.Close()

	var drafts []*types.DraftPost
	for rows.Next() {
		var d types.DraftPost
		var platform, status string
		if err := rows.Scan(&d.ID, &d.SourceItemID, &platform, &d.Content,
			&status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, types.StoreUnavailable("drafts", err)
		}
		d.Platform = types.Platform(platform)
		d.Status = types.DraftStatus(status)
		drafts = append(drafts, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.StoreUnavailable("drafts", err)
	}
	return drafts, nil
}

// Reset deletes every record and draft. Administrative use only; the
// caller is expected to reset the fingerprint store and similarity index
// in the same operation.
func (r *Records) Reset(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM drafts"); err != nil {
		return types.StoreUnavailable("drafts", err)
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return types.StoreUnavailable("records", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (r *Records) Close() error {
	return r.db.Close()
}

func recordSelect() sq.SelectBuilder {
	return sq.Select("external_id", "title", "description", "url", "domain",
		"content_hash", "fuzzy_title_key", "entity_fingerprint",
		"embedding_id", "status", "published_at", "created_at").
		From("records")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*types.StoredRecord, error) {
	var rec types.StoredRecord
	var status string
	var publishedAt sql.NullTime
	if err := row.Scan(&rec.ExternalID, &rec.Title, &rec.Description, &rec.URL,
		&rec.Domain, &rec.ContentHash, &rec.FuzzyTitleKey, &rec.EntityFingerprint,
		&rec.EmbeddingID, &status, &publishedAt, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Status = types.RecordStatus(status)
	if publishedAt.Valid {
		rec.PublishedAt = publishedAt.Time
	}
	return &rec, nil
}
