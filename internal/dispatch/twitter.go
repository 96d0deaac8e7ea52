package dispatch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/blkoutuk/comms-pipeline/internal/config"
	"github.com/blkoutuk/comms-pipeline/internal/domain"
	"github.com/blkoutuk/comms-pipeline/internal/metrics"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/httpretry"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/logger"
)

// TwitterDispatcher publishes through the v2 tweet endpoint and reads
// engagement from the tweet's public_metrics.
type TwitterDispatcher struct {
	cfg        config.TwitterConfig
	creds      TokenSource
	httpClient httpretry.HTTPDoer
}

// NewTwitterDispatcher creates a dispatcher targeting the v2 API.
func NewTwitterDispatcher(cfg config.TwitterConfig, creds TokenSource) *TwitterDispatcher {
	return &TwitterDispatcher{
		cfg:   cfg,
		creds: creds,
		httpClient: httpretry.New(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// Platform identifies this dispatcher in the registry.
func (d *TwitterDispatcher) Platform() domain.Platform { return domain.PlatformTwitter }

// Publish posts one tweet.
func (d *TwitterDispatcher) Publish(ctx context.Context, item *domain.ContentItem) domain.PublishResult {
	tok, failMsg := requireToken(ctx, d.creds, domain.PlatformTwitter)
	if failMsg != "" {
		return domain.Failure(failMsg)
	}

	payload := map[string]string{
		"text": buildCaption(item),
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := postJSON(ctx, d.httpClient, d.cfg.BaseURL+"/2/tweets", bearer(tok.AccessToken), payload, &created); err != nil {
		return domain.Failure(fmt.Sprintf("twitter: create tweet: %v", err))
	}
	if created.Data.ID == "" {
		return domain.Failure("twitter: no tweet ID returned")
	}

	logger.Info("tweet published", "tweet_id", created.Data.ID, "item_id", item.ID)
	return domain.Published(created.Data.ID)
}

// FetchMetrics reads the tweet's public_metrics. Best-effort.
func (d *TwitterDispatcher) FetchMetrics(ctx context.Context, externalID string) metrics.Raw {
	tok, failMsg := requireToken(ctx, d.creds, domain.PlatformTwitter)
	if failMsg != "" {
		logger.Warn("twitter metrics skipped", "reason", failMsg)
		return metrics.Raw{}
	}

	var resp struct {
		Data struct {
			PublicMetrics struct {
				ImpressionCount int64 `json:"impression_count"`
				LikeCount       int64 `json:"like_count"`
				RetweetCount    int64 `json:"retweet_count"`
				ReplyCount      int64 `json:"reply_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}

	url := fmt.Sprintf("%s/2/tweets/%s?tweet.fields=public_metrics", d.cfg.BaseURL, externalID)
	if err := getJSON(ctx, d.httpClient, url, bearer(tok.AccessToken), &resp); err != nil {
		logger.Warn("twitter metrics fetch failed", "tweet_id", externalID, "error", err)
		return metrics.Raw{}
	}

	pm := resp.Data.PublicMetrics
	return metrics.Raw{
		"impressions": float64(pm.ImpressionCount),
		"engagement":  float64(pm.LikeCount + pm.RetweetCount + pm.ReplyCount),
	}
}
