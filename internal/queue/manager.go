// Package queue runs the two scheduled passes of the pipeline: the publish
// pass that drains due content items to their platforms, and the metrics
// pass that matches sent campaigns, pulls engagement numbers and emits
// feedback. Both passes are bounded batches driven by cron or a manual
// trigger, never long-lived consumers.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blkoutuk/comms-pipeline/internal/config"
	"github.com/blkoutuk/comms-pipeline/internal/dispatch"
	"github.com/blkoutuk/comms-pipeline/internal/domain"
	"github.com/blkoutuk/comms-pipeline/internal/feedback"
	"github.com/blkoutuk/comms-pipeline/internal/matcher"
	"github.com/blkoutuk/comms-pipeline/internal/metrics"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/distlock"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/logger"
)

// ItemStore is the slice of the content store the manager needs.
// *Store implements it; tests substitute fakes.
type ItemStore interface {
	SelectDue(ctx context.Context, now time.Time, limit int) ([]domain.ContentItem, error)
	MarkResult(ctx context.Context, itemID uuid.UUID, result domain.PublishResult) error
	SelectPublished(ctx context.Context, limit int) ([]domain.ContentItem, error)
}

// LinkStore is the slice of the campaign link store the metrics pass needs.
type LinkStore interface {
	Unmatched(ctx context.Context, limit int) ([]matcher.Unit, error)
	Save(ctx context.Context, l domain.CampaignLink) error
}

// CampaignLister supplies sent-campaign candidates for the matcher, in the
// platform's recency order. The Mailchimp dispatcher implements it.
type CampaignLister interface {
	ListCampaigns(ctx context.Context, limit int) ([]matcher.Candidate, error)
}

// FeedbackSink receives normalized metrics. *feedback.Emitter implements it.
type FeedbackSink interface {
	Emit(ctx context.Context, sourceID string, platform domain.Platform, m domain.CanonicalMetrics) feedback.EmitResult
}

// ItemFailure describes one failed item in a pass summary.
type ItemFailure struct {
	ItemID   string          `json:"item_id"`
	Platform domain.Platform `json:"platform"`
	Message  string          `json:"message"`
}

// PassSummary is the outcome of one publish pass. Attempted always equals
// Published + Failed: every selected item yields exactly one outcome.
type PassSummary struct {
	Attempted int           `json:"attempted"`
	Published int           `json:"published"`
	Failed    int           `json:"failed"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// SyncSummary is the outcome of one metrics pass. Skipped counts items with
// no data this pass (fetch failures, platforms without metrics); Failures
// lists feedback writes that went wrong, which unlike skips need attention.
type SyncSummary struct {
	Matched  int           `json:"matched"`
	Fetched  int           `json:"fetched"`
	Emitted  int           `json:"emitted"`
	Skipped  int           `json:"skipped"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// Manager coordinates both passes over the stores and the dispatcher
// registry.
type Manager struct {
	store    ItemStore
	registry *dispatch.Registry
	links    LinkStore
	lister   CampaignLister
	sink     FeedbackSink

	publishCfg config.PublishConfig
	syncCfg    config.SyncConfig

	publishLock distlock.Lock
	syncLock    distlock.Lock

	now   func() time.Time
	sleep func(time.Duration)
}

// NewManager wires a pass manager. lister may be nil when no email platform
// is configured; the matcher pass is then skipped.
func NewManager(store ItemStore, registry *dispatch.Registry, links LinkStore, lister CampaignLister, sink FeedbackSink, publishCfg config.PublishConfig, syncCfg config.SyncConfig) *Manager {
	return &Manager{
		store:      store,
		registry:   registry,
		links:      links,
		lister:     lister,
		sink:       sink,
		publishCfg: publishCfg,
		syncCfg:    syncCfg,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// SetLocks installs the pass-level locks. Without them passes still run
// correctly, the conditional item updates are the backstop, but two
// overlapping passes burn API rate limits for nothing.
func (m *Manager) SetLocks(publishLock, syncLock distlock.Lock) {
	m.publishLock = publishLock
	m.syncLock = syncLock
}

// ErrPassRunning is returned when another pass of the same kind holds the
// lock.
var ErrPassRunning = fmt.Errorf("pass already running")

func acquire(ctx context.Context, lock distlock.Lock) (func(), error) {
	if lock == nil {
		return func() {}, nil
	}
	ok, err := lock.Acquire(ctx)
	if err != nil {
		// Lock backend down: run anyway, the conditional updates keep
		// concurrent passes safe.
		logger.Warn("pass lock unavailable, continuing unlocked", "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, ErrPassRunning
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("pass lock release failed", "error", err)
		}
	}, nil
}

// RunPublishPass selects due items and publishes them, one goroutine per
// platform, sequential within a platform with a fixed inter-item delay.
// Per-item failures land in the summary; only pass-level preconditions
// (storage unreachable, pass already running) return an error.
func (m *Manager) RunPublishPass(ctx context.Context) (*PassSummary, error) {
	release, err := acquire(ctx, m.publishLock)
	if err != nil {
		return nil, err
	}
	defer release()

	items, err := m.store.SelectDue(ctx, m.now(), m.publishCfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("publish pass: %w", err)
	}

	summary := &PassSummary{Attempted: len(items)}
	if len(items) == 0 {
		return summary, nil
	}

	byPlatform := make(map[domain.Platform][]domain.ContentItem)
	for _, item := range items {
		byPlatform[item.Platform] = append(byPlatform[item.Platform], item)
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for platform, platformItems := range byPlatform {
		wg.Add(1)
		go func(platform domain.Platform, platformItems []domain.ContentItem) {
			defer wg.Done()
			for i := range platformItems {
				if i > 0 {
					m.sleep(m.publishCfg.ItemDelay())
				}
				item := &platformItems[i]

				callCtx, cancel := context.WithTimeout(ctx, m.publishCfg.CallTimeout())
				result := m.registry.Dispatch(callCtx, item)
				cancel()

				if err := m.store.MarkResult(ctx, item.ID, result); err != nil {
					logger.Error("publish outcome not recorded", "item_id", item.ID, "error", err)
					result = domain.Failure(fmt.Sprintf("recording outcome: %v", err))
				}

				mu.Lock()
				if result.Success {
					summary.Published++
				} else {
					summary.Failed++
					summary.Failures = append(summary.Failures, ItemFailure{
						ItemID:   item.ID.String(),
						Platform: platform,
						Message:  result.Error,
					})
				}
				mu.Unlock()
			}
		}(platform, platformItems)
	}
	wg.Wait()

	logger.Info("publish pass finished",
		"attempted", summary.Attempted, "published", summary.Published, "failed", summary.Failed)
	return summary, nil
}

// RunMetricsPass links unmatched campaigns, then pulls metrics for
// published items and emits feedback. Fetch failures are skips, not
// errors; only feedback writes that go wrong surface in Failures.
func (m *Manager) RunMetricsPass(ctx context.Context) (*SyncSummary, error) {
	release, err := acquire(ctx, m.syncLock)
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &SyncSummary{}
	m.runMatcherPass(ctx, summary)

	items, err := m.store.SelectPublished(ctx, m.syncCfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("metrics pass: %w", err)
	}

	// The same external source never emits twice in one pass, even when
	// two items published to the same campaign.
	emitted := make(map[string]bool)

	for i := range items {
		item := &items[i]
		if item.ExternalID == nil || *item.ExternalID == "" {
			summary.Skipped++
			continue
		}
		sourceID := *item.ExternalID
		if emitted[sourceID] {
			continue
		}

		fetcher := m.registry.Fetcher(item.Platform)
		if fetcher == nil {
			summary.Skipped++
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, m.syncCfg.CallTimeout())
		raw := fetcher.FetchMetrics(callCtx, sourceID)
		cancel()
		if len(raw) == 0 {
			summary.Skipped++
			continue
		}
		summary.Fetched++

		result := m.sink.Emit(ctx, sourceID, item.Platform, metrics.Normalize(raw))
		emitted[sourceID] = true
		if result.FeedbackEmitted {
			summary.Emitted++
		}
		if result.Err != nil {
			summary.Failures = append(summary.Failures, ItemFailure{
				ItemID:   item.ID.String(),
				Platform: item.Platform,
				Message:  result.Err.Error(),
			})
		}
	}

	logger.Info("metrics pass finished",
		"matched", summary.Matched, "fetched", summary.Fetched,
		"emitted", summary.Emitted, "skipped", summary.Skipped)
	return summary, nil
}

// runMatcherPass links recent unmatched editorial units against the
// platform's sent campaigns. Matching trouble never fails the outer pass.
func (m *Manager) runMatcherPass(ctx context.Context, summary *SyncSummary) {
	if m.links == nil || m.lister == nil {
		return
	}

	units, err := m.links.Unmatched(ctx, m.syncCfg.MatchWindow)
	if err != nil {
		logger.Warn("matcher pass skipped", "error", err)
		return
	}
	if len(units) == 0 {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, m.syncCfg.CallTimeout())
	candidates, err := m.lister.ListCampaigns(callCtx, m.syncCfg.MatchWindow)
	cancel()
	if err != nil {
		logger.Warn("matcher pass skipped", "error", err)
		return
	}

	for _, unit := range units {
		l, ok := matcher.Match(unit, candidates)
		if !ok {
			continue
		}
		if err := m.links.Save(ctx, l); err != nil {
			logger.Warn("campaign link not saved", "unit_id", unit.ID, "error", err)
			continue
		}
		summary.Matched++
	}
}
