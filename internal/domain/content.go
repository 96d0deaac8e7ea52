package domain

import (
	"time"

	"github.com/google/uuid"
)

// Platform enumerates the external systems content can be published to.
// The set is closed: adding a platform means adding a dispatcher.
type Platform string

const (
	PlatformMailchimp Platform = "mailchimp"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTwitter   Platform = "twitter"
)

// AllPlatforms lists every supported platform in a stable order.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformMailchimp,
		PlatformInstagram,
		PlatformFacebook,
		PlatformLinkedIn,
		PlatformTwitter,
	}
}

// Valid reports whether p is a member of the closed platform set.
func (p Platform) Valid() bool {
	switch p {
	case PlatformMailchimp, PlatformInstagram, PlatformFacebook, PlatformLinkedIn, PlatformTwitter:
		return true
	}
	return false
}

// ContentStatus enumerates the lifecycle states of a queued content item.
type ContentStatus string

const (
	ContentQueued    ContentStatus = "queued"
	ContentPublished ContentStatus = "published"
	ContentFailed    ContentStatus = "failed"
)

// ContentItem is one unit of content destined for one platform.
//
// Items are created by an upstream producer with status queued and mutated
// only by the queue manager. They are never deleted, only terminal-stamped,
// so published items stay queryable for metrics collection.
//
// Invariant: ExternalID is non-nil if and only if Status is published.
type ContentItem struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Platform    Platform      `json:"platform" db:"platform"`
	Body        string        `json:"body" db:"body"`
	Tags        []string      `json:"tags" db:"tags"`
	MediaURL    string        `json:"media_url,omitempty" db:"media_url"`
	ScheduledAt *time.Time    `json:"scheduled_at" db:"scheduled_at"`
	ExternalID  *string       `json:"external_id" db:"external_id"`
	Status      ContentStatus `json:"status" db:"status"`
	LastError   *string       `json:"last_error" db:"last_error"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true once the item has left the automated path.
// A failed item is only re-queued by an explicit operator action.
func (c *ContentItem) IsTerminal() bool {
	return c.Status == ContentPublished || c.Status == ContentFailed
}

// PublishResult is the outcome of a single dispatch attempt. It is folded
// into the ContentItem by MarkResult and never persisted on its own.
type PublishResult struct {
	Success    bool   `json:"success"`
	ExternalID string `json:"external_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Failure builds a failed PublishResult with the given diagnostic message.
func Failure(msg string) PublishResult {
	return PublishResult{Success: false, Error: msg}
}

// Published builds a successful PublishResult carrying the external post ID.
func Published(externalID string) PublishResult {
	return PublishResult{Success: true, ExternalID: externalID}
}
