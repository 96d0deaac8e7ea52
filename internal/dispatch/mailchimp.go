package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blkoutuk/comms-pipeline/internal/config"
	"github.com/blkoutuk/comms-pipeline/internal/domain"
	"github.com/blkoutuk/comms-pipeline/internal/matcher"
	"github.com/blkoutuk/comms-pipeline/internal/metrics"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/httpretry"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/logger"
)

// MailchimpDispatcher publishes newsletter content through the Mailchimp
// Marketing API. Publishing is two calls: create the campaign, then send
// it. It also lists recent campaigns for the matcher and reads campaign
// reports for metrics.
type MailchimpDispatcher struct {
	cfg        config.MailchimpConfig
	creds      TokenSource
	httpClient httpretry.HTTPDoer
}

// NewMailchimpDispatcher creates a dispatcher targeting the Marketing API.
func NewMailchimpDispatcher(cfg config.MailchimpConfig, creds TokenSource) *MailchimpDispatcher {
	return &MailchimpDispatcher{
		cfg:   cfg,
		creds: creds,
		httpClient: httpretry.New(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// Platform identifies this dispatcher in the registry.
func (d *MailchimpDispatcher) Platform() domain.Platform { return domain.PlatformMailchimp }

type mailchimpCampaign struct {
	ID       string `json:"id"`
	Settings struct {
		SubjectLine string `json:"subject_line"`
	} `json:"settings"`
	SendTime string `json:"send_time"`
}

// Publish creates a campaign from the item and triggers the send.
func (d *MailchimpDispatcher) Publish(ctx context.Context, item *domain.ContentItem) domain.PublishResult {
	tok, failMsg := requireToken(ctx, d.creds, domain.PlatformMailchimp)
	if failMsg != "" {
		return domain.Failure(failMsg)
	}
	if d.cfg.ListID == "" {
		return domain.Failure("mailchimp: no audience list configured")
	}

	subject := item.Body
	if idx := strings.IndexByte(subject, '\n'); idx > 0 {
		subject = subject[:idx]
	}

	createPayload := map[string]interface{}{
		"type": "regular",
		"recipients": map[string]string{
			"list_id": d.cfg.ListID,
		},
		"settings": map[string]string{
			"subject_line": subject,
			"from_name":    d.cfg.FromName,
			"reply_to":     d.cfg.ReplyTo,
		},
	}

	var created mailchimpCampaign
	if err := postJSON(ctx, d.httpClient, d.cfg.BaseURL+"/campaigns", bearer(tok.AccessToken), createPayload, &created); err != nil {
		return domain.Failure(fmt.Sprintf("mailchimp: create campaign: %v", err))
	}
	if created.ID == "" {
		return domain.Failure("mailchimp: create campaign returned no ID")
	}

	sendURL := fmt.Sprintf("%s/campaigns/%s/actions/send", d.cfg.BaseURL, created.ID)
	if err := postJSON(ctx, d.httpClient, sendURL, bearer(tok.AccessToken), map[string]string{}, nil); err != nil {
		// Campaign exists but did not go out; surface the ID in the error
		// so an operator can send or delete it by hand.
		return domain.Failure(fmt.Sprintf("mailchimp: send campaign %s: %v", created.ID, err))
	}

	logger.Info("mailchimp campaign sent", "campaign_id", created.ID, "item_id", item.ID)
	return domain.Published(created.ID)
}

// FetchMetrics reads the campaign report. Best-effort: failures yield an
// empty payload and the item is retried on the next sync pass.
func (d *MailchimpDispatcher) FetchMetrics(ctx context.Context, externalID string) metrics.Raw {
	tok, failMsg := requireToken(ctx, d.creds, domain.PlatformMailchimp)
	if failMsg != "" {
		logger.Warn("mailchimp metrics skipped", "reason", failMsg)
		return metrics.Raw{}
	}

	var report struct {
		EmailsSent int64 `json:"emails_sent"`
		Opens      struct {
			OpensTotal  int64   `json:"opens_total"`
			UniqueOpens int64   `json:"unique_opens"`
			OpenRate    float64 `json:"open_rate"`
		} `json:"opens"`
		Clicks struct {
			ClicksTotal            int64   `json:"clicks_total"`
			UniqueSubscriberClicks int64   `json:"unique_subscriber_clicks"`
			ClickRate              float64 `json:"click_rate"`
		} `json:"clicks"`
		Unsubscribed int64 `json:"unsubscribed"`
		Bounces      struct {
			HardBounces int64 `json:"hard_bounces"`
			SoftBounces int64 `json:"soft_bounces"`
		} `json:"bounces"`
		AbuseReports int64 `json:"abuse_reports"`
	}

	url := fmt.Sprintf("%s/reports/%s", d.cfg.BaseURL, externalID)
	if err := getJSON(ctx, d.httpClient, url, bearer(tok.AccessToken), &report); err != nil {
		logger.Warn("mailchimp report fetch failed", "campaign_id", externalID, "error", err)
		return metrics.Raw{}
	}

	return metrics.Raw{
		"emails_sent":              float64(report.EmailsSent),
		"opens_total":              float64(report.Opens.OpensTotal),
		"unique_opens":             float64(report.Opens.UniqueOpens),
		"open_rate":                report.Opens.OpenRate,
		"clicks_total":             float64(report.Clicks.ClicksTotal),
		"unique_subscriber_clicks": float64(report.Clicks.UniqueSubscriberClicks),
		"click_rate":               report.Clicks.ClickRate,
		"unsubscribed":             float64(report.Unsubscribed),
		"bounces":                  float64(report.Bounces.HardBounces + report.Bounces.SoftBounces),
		"abuse_reports":            float64(report.AbuseReports),
	}
}

// ListCampaigns returns the most recently sent campaigns for the matcher,
// in the platform's own recency order.
func (d *MailchimpDispatcher) ListCampaigns(ctx context.Context, limit int) ([]matcher.Candidate, error) {
	tok, failMsg := requireToken(ctx, d.creds, domain.PlatformMailchimp)
	if failMsg != "" {
		return nil, fmt.Errorf("list campaigns: %s", failMsg)
	}

	var resp struct {
		Campaigns []mailchimpCampaign `json:"campaigns"`
	}
	url := fmt.Sprintf("%s/campaigns?status=sent&sort_field=send_time&sort_dir=DESC&count=%d", d.cfg.BaseURL, limit)
	if err := getJSON(ctx, d.httpClient, url, bearer(tok.AccessToken), &resp); err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	candidates := make([]matcher.Candidate, 0, len(resp.Campaigns))
	for _, c := range resp.Campaigns {
		sentAt, _ := time.Parse(time.RFC3339, c.SendTime)
		candidates = append(candidates, matcher.Candidate{
			ID:      c.ID,
			Subject: c.Settings.SubjectLine,
			SentAt:  sentAt,
		})
	}
	return candidates, nil
}
