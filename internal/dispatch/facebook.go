package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/blkoutuk/comms-pipeline/internal/config"
	"github.com/blkoutuk/comms-pipeline/internal/domain"
	"github.com/blkoutuk/comms-pipeline/internal/metrics"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/httpretry"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/logger"
)

// FacebookDispatcher publishes to a page feed through the Graph API in a
// single call. A media URL is optional: when present it goes out as a link
// attachment.
type FacebookDispatcher struct {
	cfg        config.GraphConfig
	creds      TokenSource
	httpClient httpretry.HTTPDoer
}

// NewFacebookDispatcher creates a dispatcher targeting the Graph API.
func NewFacebookDispatcher(cfg config.GraphConfig, creds TokenSource) *FacebookDispatcher {
	return &FacebookDispatcher{
		cfg:   cfg,
		creds: creds,
		httpClient: httpretry.New(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// Platform identifies this dispatcher in the registry.
func (d *FacebookDispatcher) Platform() domain.Platform { return domain.PlatformFacebook }

// Publish posts to the page feed.
func (d *FacebookDispatcher) Publish(ctx context.Context, item *domain.ContentItem) domain.PublishResult {
	tok, failMsg := requireToken(ctx, d.creds, domain.PlatformFacebook)
	if failMsg != "" {
		return domain.Failure(failMsg)
	}
	if tok.AccountID == "" {
		return domain.Failure("facebook: token has no page ID")
	}

	payload := map[string]interface{}{
		"message":      buildCaption(item),
		"access_token": tok.AccessToken,
	}
	if item.MediaURL != "" {
		payload["link"] = item.MediaURL
	}

	var created struct {
		ID string `json:"id"`
	}
	feedURL := fmt.Sprintf("%s/%s/%s/feed", d.cfg.BaseURL, d.cfg.APIVersion, tok.AccountID)
	if err := postJSON(ctx, d.httpClient, feedURL, nil, payload, &created); err != nil {
		return domain.Failure(fmt.Sprintf("facebook: create post: %v", err))
	}
	if created.ID == "" {
		return domain.Failure("facebook: no post ID returned")
	}

	logger.Info("facebook post published", "post_id", created.ID, "item_id", item.ID)
	return domain.Published(created.ID)
}

// FetchMetrics reads post insights. Best-effort.
func (d *FacebookDispatcher) FetchMetrics(ctx context.Context, externalID string) metrics.Raw {
	tok, failMsg := requireToken(ctx, d.creds, domain.PlatformFacebook)
	if failMsg != "" {
		logger.Warn("facebook metrics skipped", "reason", failMsg)
		return metrics.Raw{}
	}

	var resp struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value int64 `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}

	insightsURL := fmt.Sprintf("%s/%s/%s/insights?metric=post_impressions,post_clicks&access_token=%s",
		d.cfg.BaseURL, d.cfg.APIVersion, externalID, url.QueryEscape(tok.AccessToken))
	if err := getJSON(ctx, d.httpClient, insightsURL, nil, &resp); err != nil {
		logger.Warn("facebook insights fetch failed", "post_id", externalID, "error", err)
		return metrics.Raw{}
	}

	raw := metrics.Raw{}
	for _, metric := range resp.Data {
		if len(metric.Values) == 0 {
			continue
		}
		switch metric.Name {
		case "post_impressions":
			raw["impressions"] = float64(metric.Values[0].Value)
		case "post_clicks":
			raw["clicks"] = float64(metric.Values[0].Value)
		}
	}
	return raw
}
