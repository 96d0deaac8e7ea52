package metrics

import (
	"math"

	"github.com/blkoutuk/comms-pipeline/internal/domain"
)

// Candidate source field names per canonical field, tried in order. The
// first present key wins. Platform API drift is a one-line diff here.
var (
	recipientFields   = []string{"emails_sent", "recipients", "reach", "impressions", "targeted"}
	deliveredFields   = []string{"delivered", "successful_deliveries", "success"}
	openFields        = []string{"opens_total", "opens", "total_opens", "views"}
	uniqueOpenFields  = []string{"unique_opens", "opens_unique", "unique_views"}
	clickFields       = []string{"clicks_total", "clicks", "total_clicks", "engagement"}
	uniqueClickFields = []string{"unique_clicks", "clicks_unique", "unique_subscriber_clicks"}
	unsubscribeFields = []string{"unsubscribed", "unsubscribes", "unsubs"}
	bounceFields      = []string{"bounces", "hard_bounces", "bounce_count"}
	complaintFields   = []string{"abuse_reports", "spam_complaints", "complaints"}
	openRateFields    = []string{"open_rate", "unique_open_rate"}
	clickRateFields   = []string{"click_rate", "unique_click_rate", "ctr"}
)

// Normalize maps a raw platform payload into the canonical snapshot.
//
// Unique opens/clicks fall back to the corresponding totals when the
// platform does not distinguish. Rates are unique/recipients when
// recipients > 0, otherwise any platform-supplied rate, otherwise zero,
// and are always rounded to 4 decimal places so repeated syncs of
// unchanged data produce identical stored values.
func Normalize(raw Raw) domain.CanonicalMetrics {
	m := domain.CanonicalMetrics{
		Recipients:     firstInt64(raw, recipientFields),
		Delivered:      firstInt64(raw, deliveredFields),
		Opens:          firstInt64(raw, openFields),
		Clicks:         firstInt64(raw, clickFields),
		Unsubscribes:   firstInt64(raw, unsubscribeFields),
		Bounces:        firstInt64(raw, bounceFields),
		SpamComplaints: firstInt64(raw, complaintFields),
	}

	m.UniqueOpens = m.Opens
	if v, ok := lookupInt64(raw, uniqueOpenFields); ok {
		m.UniqueOpens = v
	}
	m.UniqueClicks = m.Clicks
	if v, ok := lookupInt64(raw, uniqueClickFields); ok {
		m.UniqueClicks = v
	}

	m.OpenRate = rate(m.UniqueOpens, m.Recipients, raw, openRateFields)
	m.ClickRate = rate(m.UniqueClicks, m.Recipients, raw, clickRateFields)

	return m
}

func firstInt64(raw Raw, candidates []string) int64 {
	v, _ := lookupInt64(raw, candidates)
	return v
}

func lookupInt64(raw Raw, candidates []string) (int64, bool) {
	for _, key := range candidates {
		if v, ok := raw.GetInt64(key); ok {
			if v < 0 {
				v = 0
			}
			return v, true
		}
	}
	return 0, false
}

// rate computes unique/recipients, falling back to a platform-reported
// rate when there is no recipient denominator.
func rate(unique, recipients int64, raw Raw, fallbacks []string) float64 {
	if recipients > 0 {
		return round4(float64(unique) / float64(recipients))
	}
	for _, key := range fallbacks {
		if v, ok := raw.GetFloat64(key); ok {
			return round4(clamp01(v))
		}
	}
	return 0
}

func round4(v float64) float64 {
	return math.Round(clamp01(v)*10000) / 10000
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
