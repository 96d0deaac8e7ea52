package dispatch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/blkoutuk/comms-pipeline/internal/config"
	"github.com/blkoutuk/comms-pipeline/internal/domain"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/httpretry"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/logger"
)

// LinkedInDispatcher publishes organization shares through the v2 ugcPosts
// endpoint. LinkedIn exposes no usable per-post metrics on the standard
// tier, so this dispatcher deliberately does not implement MetricsFetcher;
// the sync pass skips its items without error.
type LinkedInDispatcher struct {
	cfg        config.LinkedInConfig
	creds      TokenSource
	httpClient httpretry.HTTPDoer
}

// NewLinkedInDispatcher creates a dispatcher targeting the v2 API.
func NewLinkedInDispatcher(cfg config.LinkedInConfig, creds TokenSource) *LinkedInDispatcher {
	return &LinkedInDispatcher{
		cfg:   cfg,
		creds: creds,
		httpClient: httpretry.New(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// Platform identifies this dispatcher in the registry.
func (d *LinkedInDispatcher) Platform() domain.Platform { return domain.PlatformLinkedIn }

// Publish creates one ugcPost for the organization.
func (d *LinkedInDispatcher) Publish(ctx context.Context, item *domain.ContentItem) domain.PublishResult {
	tok, failMsg := requireToken(ctx, d.creds, domain.PlatformLinkedIn)
	if failMsg != "" {
		return domain.Failure(failMsg)
	}
	if tok.AccountID == "" {
		return domain.Failure("linkedin: token has no organization URN")
	}

	payload := map[string]interface{}{
		"author":         tok.AccountID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary": map[string]string{
					"text": buildCaption(item),
				},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	headers := bearer(tok.AccessToken)
	headers["X-Restli-Protocol-Version"] = "2.0.0"

	var created struct {
		ID string `json:"id"`
	}
	if err := postJSON(ctx, d.httpClient, d.cfg.BaseURL+"/v2/ugcPosts", headers, payload, &created); err != nil {
		return domain.Failure(fmt.Sprintf("linkedin: create share: %v", err))
	}
	if created.ID == "" {
		return domain.Failure("linkedin: no share ID returned")
	}

	logger.Info("linkedin share published", "share_id", created.ID, "item_id", item.ID)
	return domain.Published(created.ID)
}
