package domain

import "time"

// MatchMethod records how a campaign link was established. Confidence is
// implicit in the method: exact_id > subject_similarity > manual has no
// ordering because an operator supplied it directly.
type MatchMethod string

const (
	MatchExactID           MatchMethod = "exact_id"
	MatchSubjectSimilarity MatchMethod = "subject_similarity"
	MatchDateProximity     MatchMethod = "date_proximity"
	MatchManual            MatchMethod = "manual"
)

// strength orders match methods for upgrade checks. Manual links rank with
// exact_id: both name a concrete campaign rather than guessing one.
func (m MatchMethod) strength() int {
	switch m {
	case MatchExactID, MatchManual:
		return 3
	case MatchSubjectSimilarity:
		return 2
	case MatchDateProximity:
		return 1
	}
	return 0
}

// Supersedes reports whether a new match by method m may replace an
// existing link established by prev. A link matched by exact_id is never
// re-matched by a weaker method.
func (m MatchMethod) Supersedes(prev MatchMethod) bool {
	return m.strength() >= prev.strength()
}

// CampaignLink ties an internally tracked editorial unit (e.g. a newsletter
// edition) to the campaign the platform created for it. At most one link
// exists per internal unit.
type CampaignLink struct {
	UnitID             string      `json:"unit_id" db:"unit_id"`
	ExternalCampaignID *string     `json:"external_campaign_id" db:"external_campaign_id"`
	Method             MatchMethod `json:"method" db:"method"`
	MatchedAt          time.Time   `json:"matched_at" db:"matched_at"`
}

// CanonicalMetrics is the normalized engagement snapshot for one content
// item or campaign link. It is recomputed and overwritten on every metrics
// sync pass: a current snapshot, not an append-only history.
//
// Invariant: counts are non-negative; rates are in [0, 1] and rounded to
// 4 decimal places so repeated syncs of unchanged data produce stable rows.
type CanonicalMetrics struct {
	Recipients     int64   `json:"recipients" db:"recipients"`
	Delivered      int64   `json:"delivered" db:"delivered"`
	Opens          int64   `json:"opens" db:"opens"`
	UniqueOpens    int64   `json:"unique_opens" db:"unique_opens"`
	Clicks         int64   `json:"clicks" db:"clicks"`
	UniqueClicks   int64   `json:"unique_clicks" db:"unique_clicks"`
	Unsubscribes   int64   `json:"unsubscribes" db:"unsubscribes"`
	Bounces        int64   `json:"bounces" db:"bounces"`
	SpamComplaints int64   `json:"spam_complaints" db:"spam_complaints"`
	OpenRate       float64 `json:"open_rate" db:"open_rate"`
	ClickRate      float64 `json:"click_rate" db:"click_rate"`
}

// UnsubscribeRate derives the unsubscribe fraction used as a sentiment proxy.
func (m CanonicalMetrics) UnsubscribeRate() float64 {
	if m.Recipients <= 0 {
		return 0
	}
	return float64(m.Unsubscribes) / float64(m.Recipients)
}

// Sentiment labels for FeedbackEvent, derived from the unsubscribe rate.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// SentimentProxy buckets the unsubscribe rate into a coarse sentiment label.
// Thresholds: < 0.2% positive, < 1% neutral, else negative.
func (m CanonicalMetrics) SentimentProxy() string {
	rate := m.UnsubscribeRate()
	switch {
	case rate < 0.002:
		return SentimentPositive
	case rate < 0.01:
		return SentimentNeutral
	default:
		return SentimentNegative
	}
}

// FeedbackEvent is the record whose successful append is the contract
// boundary with the downstream relevance/scoring system. Downstream systems
// subscribe to new rows in the performance feed by their own means; this
// pipeline never calls them directly. Metrics carries the full canonical
// snapshot so consumers never have to join back to content_metrics.
type FeedbackEvent struct {
	ID        int64            `json:"id" db:"id"`
	SourceID  string           `json:"source_id" db:"source_id"`
	Platform  Platform         `json:"platform" db:"platform"`
	Sentiment string           `json:"sentiment" db:"sentiment"`
	Metrics   CanonicalMetrics `json:"metrics" db:"metrics"`
	EmittedAt time.Time        `json:"emitted_at" db:"created_at"`
}
