// Package feedback persists normalized metrics snapshots and emits the
// feedback events that downstream consumers subscribe to. The two writes
// have different idempotency: the snapshot upsert can run any number of
// times, the event append cannot, so their outcomes are reported
// separately.
package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blkoutuk/comms-pipeline/internal/domain"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/logger"
)

// EmitResult reports the outcome of each phase. MetricsSaved true with
// FeedbackEmitted false is the visible partial state: the snapshot is
// durable but no event went out, and the next sync pass retries the event.
// Event is the appended row, nil unless FeedbackEmitted.
type EmitResult struct {
	MetricsSaved    bool
	FeedbackEmitted bool
	Event           *domain.FeedbackEvent
	Err             error
}

// Emitter writes metrics snapshots and feedback events to Postgres.
type Emitter struct {
	db *sql.DB
}

// NewEmitter creates a feedback emitter.
func NewEmitter(db *sql.DB) *Emitter {
	return &Emitter{db: db}
}

// Emit upserts the metrics snapshot for a source, then appends one
// feedback event. The event is attempted even if the caller saw trouble
// earlier in the pass; only a failed upsert short-circuits, since emitting
// an event for unsaved metrics would point consumers at nothing.
func (e *Emitter) Emit(ctx context.Context, sourceID string, platform domain.Platform, m domain.CanonicalMetrics) EmitResult {
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO content_metrics
			(source_id, platform, recipients, delivered, opens, unique_opens, clicks, unique_clicks,
			 unsubscribes, bounces, spam_complaints, open_rate, click_rate, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (source_id) DO UPDATE SET
			recipients = EXCLUDED.recipients,
			delivered = EXCLUDED.delivered,
			opens = EXCLUDED.opens,
			unique_opens = EXCLUDED.unique_opens,
			clicks = EXCLUDED.clicks,
			unique_clicks = EXCLUDED.unique_clicks,
			unsubscribes = EXCLUDED.unsubscribes,
			bounces = EXCLUDED.bounces,
			spam_complaints = EXCLUDED.spam_complaints,
			open_rate = EXCLUDED.open_rate,
			click_rate = EXCLUDED.click_rate,
			collected_at = NOW()
	`, sourceID, platform,
		m.Recipients, m.Delivered, m.Opens, m.UniqueOpens, m.Clicks, m.UniqueClicks,
		m.Unsubscribes, m.Bounces, m.SpamComplaints, m.OpenRate, m.ClickRate)
	if err != nil {
		return EmitResult{Err: fmt.Errorf("saving metrics for %s: %w", sourceID, err)}
	}

	event := &domain.FeedbackEvent{
		SourceID:  sourceID,
		Platform:  platform,
		Sentiment: m.SentimentProxy(),
		Metrics:   m,
		EmittedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event.Metrics)
	if err != nil {
		return EmitResult{MetricsSaved: true, Err: fmt.Errorf("encoding metrics for %s: %w", sourceID, err)}
	}

	err = e.db.QueryRowContext(ctx, `
		INSERT INTO feedback_events (source_id, platform, sentiment, metrics, open_rate, click_rate, unsubscribe_rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, event.SourceID, event.Platform, event.Sentiment, payload,
		m.OpenRate, m.ClickRate, m.UnsubscribeRate(), event.EmittedAt).Scan(&event.ID)
	if err != nil {
		logger.Warn("metrics saved but feedback event not emitted", "source_id", sourceID, "error", err)
		return EmitResult{MetricsSaved: true, Err: fmt.Errorf("emitting feedback for %s: %w", sourceID, err)}
	}

	return EmitResult{MetricsSaved: true, FeedbackEmitted: true, Event: event}
}
