package matcher

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blkoutuk/comms-pipeline/internal/domain"
)

// LinkStore persists campaign links in PostgreSQL. At most one link exists
// per internal unit (primary key on unit_id); a stronger match method may
// overwrite a weaker one but never the reverse.
type LinkStore struct {
	db *sql.DB
}

// NewLinkStore creates a Postgres-backed link store.
func NewLinkStore(db *sql.DB) *LinkStore {
	return &LinkStore{db: db}
}

// Get returns the link for a unit, or nil when none exists.
func (s *LinkStore) Get(ctx context.Context, unitID string) (*domain.CampaignLink, error) {
	l := &domain.CampaignLink{}
	err := s.db.QueryRowContext(ctx, `
		SELECT unit_id, external_campaign_id, method, matched_at
		FROM campaign_links WHERE unit_id = $1
	`, unitID).Scan(&l.UnitID, &l.ExternalCampaignID, &l.Method, &l.MatchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign link: %w", err)
	}
	return l, nil
}

// Save upserts the link, refusing to downgrade: the update only applies
// when the incoming method supersedes the stored one. An exact_id link is
// therefore never re-matched by subject similarity.
func (s *LinkStore) Save(ctx context.Context, l domain.CampaignLink) error {
	existing, err := s.Get(ctx, l.UnitID)
	if err != nil {
		return err
	}
	if existing != nil && !l.Method.Supersedes(existing.Method) {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO campaign_links (unit_id, external_campaign_id, method, matched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (unit_id) DO UPDATE SET
			external_campaign_id = EXCLUDED.external_campaign_id,
			method = EXCLUDED.method,
			matched_at = EXCLUDED.matched_at
	`, l.UnitID, l.ExternalCampaignID, string(l.Method), l.MatchedAt)
	if err != nil {
		return fmt.Errorf("save campaign link: %w", err)
	}
	return nil
}

// ManualLink writes an operator-supplied link directly, bypassing the
// heuristic entirely. This is the fallback for cases the automated tiers
// cannot decide (e.g. pure date proximity).
func (s *LinkStore) ManualLink(ctx context.Context, unitID, externalCampaignID string) error {
	return s.Save(ctx, domain.CampaignLink{
		UnitID:             unitID,
		ExternalCampaignID: &externalCampaignID,
		Method:             domain.MatchManual,
		MatchedAt:          time.Now().UTC(),
	})
}

// Unmatched returns the most recent eligible units without a link, capped
// at limit so each sync pass stays cheap.
func (s *LinkStore) Unmatched(ctx context.Context, limit int) ([]Unit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.subject, u.status, u.external_campaign_id
		FROM editorial_units u
		LEFT JOIN campaign_links l ON l.unit_id = u.id
		WHERE l.unit_id IS NULL
		  AND u.status IN ('sent', 'approved')
		ORDER BY u.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unmatched units: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Subject, &u.Status, &u.ExternalCampaignID); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
