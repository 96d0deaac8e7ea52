package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blkoutuk/comms-pipeline/internal/domain"
)

func TestMatchSubjectSimilarity(t *testing.T) {
	unit := Unit{ID: "ed-12", Subject: "Weekly Digest #12", Status: "sent"}
	candidates := []Candidate{
		{ID: "c-1", Subject: "weekly digest #12"},
		{ID: "c-2", Subject: "Monthly Roundup"},
	}

	l, ok := Match(unit, candidates)
	require.True(t, ok)
	assert.Equal(t, "c-1", *l.ExternalCampaignID)
	assert.Equal(t, domain.MatchSubjectSimilarity, l.Method)
}

func TestMatchExactIDTakesPrecedence(t *testing.T) {
	known := "c-77"
	unit := Unit{
		ID:                 "ed-5",
		Subject:            "Community News",
		Status:             "sent",
		ExternalCampaignID: &known,
	}
	// c-1 would win on subject similarity, but the stored ID must win.
	candidates := []Candidate{
		{ID: "c-1", Subject: "community news"},
		{ID: "c-77", Subject: "something entirely different"},
	}

	l, ok := Match(unit, candidates)
	require.True(t, ok)
	assert.Equal(t, "c-77", *l.ExternalCampaignID)
	assert.Equal(t, domain.MatchExactID, l.Method)
}

func TestMatchContainmentEitherDirection(t *testing.T) {
	unit := Unit{ID: "ed-9", Subject: "Pride Special", Status: "approved"}
	candidates := []Candidate{
		{ID: "c-3", Subject: "BLKOUT Pride Special — June Edition"},
	}

	l, ok := Match(unit, candidates)
	require.True(t, ok)
	assert.Equal(t, "c-3", *l.ExternalCampaignID)
}

func TestMatchFirstCandidateWinsOnTie(t *testing.T) {
	unit := Unit{ID: "ed-2", Subject: "Update", Status: "sent"}
	candidates := []Candidate{
		{ID: "c-new", Subject: "Update"},
		{ID: "c-old", Subject: "Update"},
	}

	l, ok := Match(unit, candidates)
	require.True(t, ok)
	assert.Equal(t, "c-new", *l.ExternalCampaignID, "list order (platform recency) breaks ties")
}

func TestMatchNoCandidate(t *testing.T) {
	unit := Unit{ID: "ed-4", Subject: "Totally Unique Subject", Status: "sent"}
	candidates := []Candidate{
		{ID: "c-1", Subject: "Monthly Roundup"},
	}

	_, ok := Match(unit, candidates)
	assert.False(t, ok, "no candidate is not an error, just no match this pass")
}

func TestMatchIneligibleUnit(t *testing.T) {
	unit := Unit{ID: "ed-6", Subject: "Draft Issue", Status: "draft"}
	candidates := []Candidate{
		{ID: "c-1", Subject: "draft issue"},
	}

	_, ok := Match(unit, candidates)
	assert.False(t, ok, "only sent or approved units are eligible")
}

func TestMatchEmptySubjectNeverMatches(t *testing.T) {
	unit := Unit{ID: "ed-7", Subject: "   ", Status: "sent"}
	candidates := []Candidate{
		{ID: "c-1", Subject: "anything"},
	}

	_, ok := Match(unit, candidates)
	assert.False(t, ok)
}
