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

// InstagramDispatcher publishes images through the Graph API. Instagram is
// the one two-step platform: first a media container is created from the
// image URL and caption, then the container is published. An item without
// a media URL fails before any network call.
type InstagramDispatcher struct {
	cfg        config.GraphConfig
	creds      TokenSource
	httpClient httpretry.HTTPDoer
}

// NewInstagramDispatcher creates a dispatcher targeting the Graph API.
func NewInstagramDispatcher(cfg config.GraphConfig, creds TokenSource) *InstagramDispatcher {
	return &InstagramDispatcher{
		cfg:   cfg,
		creds: creds,
		httpClient: httpretry.New(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// Platform identifies this dispatcher in the registry.
func (d *InstagramDispatcher) Platform() domain.Platform { return domain.PlatformInstagram }

// Publish runs the container-then-publish sequence.
func (d *InstagramDispatcher) Publish(ctx context.Context, item *domain.ContentItem) domain.PublishResult {
	if item.MediaURL == "" {
		return domain.Failure("instagram: item has no media URL")
	}

	tok, failMsg := requireToken(ctx, d.creds, domain.PlatformInstagram)
	if failMsg != "" {
		return domain.Failure(failMsg)
	}
	if tok.AccountID == "" {
		return domain.Failure("instagram: token has no account ID")
	}

	// Step 1: create the media container.
	containerURL := fmt.Sprintf("%s/%s/%s/media", d.cfg.BaseURL, d.cfg.APIVersion, tok.AccountID)
	containerPayload := map[string]interface{}{
		"image_url":    item.MediaURL,
		"caption":      buildCaption(item),
		"access_token": tok.AccessToken,
	}

	var container struct {
		ID string `json:"id"`
	}
	if err := postJSON(ctx, d.httpClient, containerURL, nil, containerPayload, &container); err != nil {
		return domain.Failure(fmt.Sprintf("instagram: create container: %v", err))
	}
	if container.ID == "" {
		return domain.Failure("instagram: no container ID returned")
	}

	// Step 2: publish the container.
	publishURL := fmt.Sprintf("%s/%s/%s/media_publish", d.cfg.BaseURL, d.cfg.APIVersion, tok.AccountID)
	publishPayload := map[string]string{
		"creation_id":  container.ID,
		"access_token": tok.AccessToken,
	}

	var published struct {
		ID string `json:"id"`
	}
	if err := postJSON(ctx, d.httpClient, publishURL, nil, publishPayload, &published); err != nil {
		return domain.Failure(fmt.Sprintf("instagram: publish container %s: %v", container.ID, err))
	}
	if published.ID == "" {
		// Some API versions return only a success body; fall back to the
		// container ID, which insights also accept.
		published.ID = container.ID
	}

	logger.Info("instagram media published", "media_id", published.ID, "item_id", item.ID)
	return domain.Published(published.ID)
}

// FetchMetrics reads media insights. Best-effort.
func (d *InstagramDispatcher) FetchMetrics(ctx context.Context, externalID string) metrics.Raw {
	tok, failMsg := requireToken(ctx, d.creds, domain.PlatformInstagram)
	if failMsg != "" {
		logger.Warn("instagram metrics skipped", "reason", failMsg)
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

	insightsURL := fmt.Sprintf("%s/%s/%s/insights?metric=reach,views,total_interactions&access_token=%s",
		d.cfg.BaseURL, d.cfg.APIVersion, externalID, url.QueryEscape(tok.AccessToken))
	if err := getJSON(ctx, d.httpClient, insightsURL, nil, &resp); err != nil {
		logger.Warn("instagram insights fetch failed", "media_id", externalID, "error", err)
		return metrics.Raw{}
	}

	raw := metrics.Raw{}
	for _, metric := range resp.Data {
		if len(metric.Values) == 0 {
			continue
		}
		switch metric.Name {
		case "reach":
			raw["reach"] = float64(metric.Values[0].Value)
		case "views":
			raw["views"] = float64(metric.Values[0].Value)
		case "total_interactions":
			raw["engagement"] = float64(metric.Values[0].Value)
		}
	}
	return raw
}

func buildCaption(item *domain.ContentItem) string {
	caption := item.Body
	for _, tag := range item.Tags {
		caption += " #" + tag
	}
	return caption
}
