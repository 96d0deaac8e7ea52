// Package matcher reconciles internally tracked editorial units (newsletter
// editions) with the campaigns a platform created for them, for the cases
// where the external campaign ID was not captured at publish time.
package matcher

import (
	"strings"
	"time"

	"github.com/blkoutuk/comms-pipeline/internal/domain"
)

// Unit is an internally tracked editorial unit eligible for reconciliation.
type Unit struct {
	ID                 string
	Subject            string
	Status             string // only "sent" and "approved" units are matched
	ExternalCampaignID *string
}

// Eligible reports whether the unit may participate in a match pass.
func (u Unit) Eligible() bool {
	return u.Status == "sent" || u.Status == "approved"
}

// Candidate is one campaign from the platform's own listing. List order is
// the platform's ordering, typically recency, and breaks ties.
type Candidate struct {
	ID      string
	Subject string
	SentAt  time.Time
}

// Match applies the reconciliation heuristic in priority order, first
// match wins:
//
//  1. exact ID: the unit already stores an external campaign ID present in
//     the candidate list.
//  2. subject similarity: normalized subjects are equal, or either contains
//     the other. The first candidate in list order wins; there is no
//     scoring beyond containment.
//
// Date proximity alone is too weak a signal to act on without human
// confirmation, so there is no third automated tier; operators link those
// cases by hand (see ManualLink in the link store).
//
// Returns the matched link and true, or the zero link and false when no
// candidate qualifies, which is not an error; the unit is simply retried
// next pass once the platform's listing has caught up.
func Match(unit Unit, candidates []Candidate) (domain.CampaignLink, bool) {
	if !unit.Eligible() {
		return domain.CampaignLink{}, false
	}

	if unit.ExternalCampaignID != nil && *unit.ExternalCampaignID != "" {
		for _, c := range candidates {
			if c.ID == *unit.ExternalCampaignID {
				return link(unit.ID, c.ID, domain.MatchExactID), true
			}
		}
	}

	subject := normalizeSubject(unit.Subject)
	if subject == "" {
		return domain.CampaignLink{}, false
	}
	for _, c := range candidates {
		cs := normalizeSubject(c.Subject)
		if cs == "" {
			continue
		}
		if cs == subject || strings.Contains(cs, subject) || strings.Contains(subject, cs) {
			return link(unit.ID, c.ID, domain.MatchSubjectSimilarity), true
		}
	}

	return domain.CampaignLink{}, false
}

func link(unitID, campaignID string, method domain.MatchMethod) domain.CampaignLink {
	id := campaignID
	return domain.CampaignLink{
		UnitID:             unitID,
		ExternalCampaignID: &id,
		Method:             method,
		MatchedAt:          time.Now().UTC(),
	}
}

func normalizeSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
