package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/blkoutuk/comms-pipeline/internal/domain"
)

// Store reads and transitions content items in Postgres. All state changes
// go through conditional updates keyed on the current status, so a crashed
// or concurrent pass can never double-transition an item.
type Store struct {
	db *sql.DB
}

// NewStore creates a content item store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const itemColumns = `id, platform, body, tags, media_url, scheduled_at, external_id, status, last_error, created_at, updated_at`

func scanItem(row interface{ Scan(...interface{}) error }) (*domain.ContentItem, error) {
	var item domain.ContentItem
	var mediaURL, externalID, lastError sql.NullString
	var scheduledAt sql.NullTime

	err := row.Scan(
		&item.ID, &item.Platform, &item.Body, pq.Array(&item.Tags),
		&mediaURL, &scheduledAt, &externalID, &item.Status, &lastError,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if mediaURL.Valid {
		item.MediaURL = mediaURL.String
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		item.ScheduledAt = &t
	}
	if externalID.Valid {
		item.ExternalID = &externalID.String
	}
	if lastError.Valid {
		item.LastError = &lastError.String
	}
	return &item, nil
}

// SelectDue returns queued items whose scheduled time has arrived, oldest
// first. Items with no scheduled time are due immediately.
func (s *Store) SelectDue(ctx context.Context, now time.Time, limit int) ([]domain.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM content_items
		WHERE status = 'queued'
		  AND (scheduled_at IS NULL OR scheduled_at <= $1)
		ORDER BY scheduled_at ASC NULLS FIRST
		LIMIT $2
	`, itemColumns), now, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting due items: %w", err)
	}
	defer rows.Close()

	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// MarkResult records one publish outcome. The update is conditional on the
// item still being queued: zero rows affected means another pass already
// transitioned it, which is not an error.
func (s *Store) MarkResult(ctx context.Context, itemID uuid.UUID, result domain.PublishResult) error {
	var err error
	if result.Success {
		_, err = s.db.ExecContext(ctx, `
			UPDATE content_items
			SET status = 'published', external_id = $2, last_error = NULL, updated_at = NOW()
			WHERE id = $1 AND status = 'queued'
		`, itemID, result.ExternalID)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE content_items
			SET status = 'failed', last_error = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'queued'
		`, itemID, result.Error)
	}
	if err != nil {
		return fmt.Errorf("marking item %s: %w", itemID, err)
	}
	return nil
}

// Requeue puts a failed item back in the queue. This is an operator action;
// automation never retries failed items. Returns false when the item was
// not in failed status.
func (s *Store) Requeue(ctx context.Context, itemID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET status = 'queued', last_error = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'failed'
	`, itemID)
	if err != nil {
		return false, fmt.Errorf("requeueing item %s: %w", itemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SelectPublished returns recently published items that have an external ID,
// newest first, for the metrics sync pass.
func (s *Store) SelectPublished(ctx context.Context, limit int) ([]domain.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM content_items
		WHERE status = 'published' AND external_id IS NOT NULL
		ORDER BY updated_at DESC
		LIMIT $1
	`, itemColumns), limit)
	if err != nil {
		return nil, fmt.Errorf("selecting published items: %w", err)
	}
	defer rows.Close()

	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// Enqueue inserts a new queued item. Used by the ops API and fixtures.
func (s *Store) Enqueue(ctx context.Context, item *domain.ContentItem) error {
	if !item.Platform.Valid() {
		return fmt.Errorf("unknown platform %q", item.Platform)
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_items (id, platform, body, tags, media_url, scheduled_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, 'queued', NOW(), NOW())
	`, item.ID, item.Platform, item.Body, pq.Array(item.Tags), item.MediaURL, item.ScheduledAt)
	if err != nil {
		return fmt.Errorf("enqueueing item: %w", err)
	}
	return nil
}
