package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blkoutuk/comms-pipeline/internal/credentials"
	"github.com/blkoutuk/comms-pipeline/internal/domain"
)

// fakeTokens is a TokenSource double keyed by platform. A missing entry
// means expected absence.
type fakeTokens struct {
	tokens map[domain.Platform]*credentials.Token
	err    error
}

func (f *fakeTokens) GetToken(_ context.Context, platform domain.Platform) (*credentials.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	tok, ok := f.tokens[platform]
	if !ok {
		return nil, credentials.ErrNoToken
	}
	return tok, nil
}

func tokensFor(platform domain.Platform, accountID string) *fakeTokens {
	return &fakeTokens{tokens: map[domain.Platform]*credentials.Token{
		platform: {AccessToken: "test-token", AccountID: accountID, Expiry: time.Now().Add(time.Hour)},
	}}
}

func TestRegistryUnknownPlatform(t *testing.T) {
	registry := NewRegistry()
	item := &domain.ContentItem{Platform: domain.PlatformTwitter}

	result := registry.Dispatch(context.Background(), item)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "twitter")
	assert.Contains(t, result.Error, "not configured")
}

func TestRequireTokenDistinguishesAbsenceFromFailure(t *testing.T) {
	_, failMsg := requireToken(context.Background(), &fakeTokens{}, domain.PlatformTwitter)
	assert.Contains(t, failMsg, "no valid credentials")

	_, failMsg = requireToken(context.Background(), &fakeTokens{err: errDBDown}, domain.PlatformTwitter)
	assert.Contains(t, failMsg, "credential lookup failed")
	assert.Contains(t, failMsg, "db down")
}

var errDBDown = errors.New("db down")

func TestRegistryFetcher(t *testing.T) {
	tw := &TwitterDispatcher{}
	li := &LinkedInDispatcher{}
	registry := NewRegistry(tw, li)

	assert.NotNil(t, registry.Fetcher(domain.PlatformTwitter))
	assert.Nil(t, registry.Fetcher(domain.PlatformLinkedIn), "linkedin has no metrics support")
	assert.Nil(t, registry.Fetcher(domain.PlatformFacebook), "unregistered platform has no fetcher")
}
