package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blkoutuk/comms-pipeline/internal/domain"
	"github.com/blkoutuk/comms-pipeline/internal/queue"
)

type fakeRunner struct {
	publishSummary *queue.PassSummary
	metricsSummary *queue.SyncSummary
	err            error
}

func (f *fakeRunner) RunPublishPass(context.Context) (*queue.PassSummary, error) {
	return f.publishSummary, f.err
}

func (f *fakeRunner) RunMetricsPass(context.Context) (*queue.SyncSummary, error) {
	return f.metricsSummary, f.err
}

type fakeItems struct {
	enqueued  []*domain.ContentItem
	requeued  []uuid.UUID
	requeueOK bool
}

func (f *fakeItems) Enqueue(_ context.Context, item *domain.ContentItem) error {
	item.ID = uuid.New()
	f.enqueued = append(f.enqueued, item)
	return nil
}

func (f *fakeItems) Requeue(_ context.Context, id uuid.UUID) (bool, error) {
	f.requeued = append(f.requeued, id)
	return f.requeueOK, nil
}

type fakeLinker struct {
	unitID, campaignID string
}

func (f *fakeLinker) ManualLink(_ context.Context, unitID, externalCampaignID string) error {
	f.unitID, f.campaignID = unitID, externalCampaignID
	return nil
}

func testServer(t *testing.T, runner PassRunner, items ItemAdmin, linker Linker) http.Handler {
	t.Helper()
	db, _, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewServer(runner, items, linker, db, nil).Routes()
}

func TestPublishPassTrigger(t *testing.T) {
	runner := &fakeRunner{publishSummary: &queue.PassSummary{Attempted: 3, Published: 2, Failed: 1}}
	handler := testServer(t, runner, &fakeItems{}, &fakeLinker{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/passes/publish", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var summary queue.PassSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 1, summary.Failed)
}

func TestPassAlreadyRunningConflicts(t *testing.T) {
	runner := &fakeRunner{err: queue.ErrPassRunning}
	handler := testServer(t, runner, &fakeItems{}, &fakeLinker{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/passes/metrics", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPassErrorIsSanitized(t *testing.T) {
	runner := &fakeRunner{err: errors.New("pq: password authentication failed for user postgres")}
	handler := testServer(t, runner, &fakeItems{}, &fakeLinker{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/passes/publish", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password", "internal detail must not leak to clients")
}

func TestEnqueueValidation(t *testing.T) {
	items := &fakeItems{}
	handler := testServer(t, &fakeRunner{}, items, &fakeLinker{})

	body := bytes.NewBufferString(`{"platform": "friendster", "body": "hi"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/items", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, items.enqueued)
}

func TestEnqueueCreatesItem(t *testing.T) {
	items := &fakeItems{}
	handler := testServer(t, &fakeRunner{}, items, &fakeLinker{})

	body := bytes.NewBufferString(`{"platform": "twitter", "body": "hello", "tags": ["blkout"]}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/items", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, items.enqueued, 1)
	assert.Equal(t, domain.PlatformTwitter, items.enqueued[0].Platform)
}

func TestRequeueNotFailed(t *testing.T) {
	items := &fakeItems{requeueOK: false}
	handler := testServer(t, &fakeRunner{}, items, &fakeLinker{})

	id := uuid.New()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/items/"+id.String()+"/requeue", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []uuid.UUID{id}, items.requeued)
}

func TestManualLink(t *testing.T) {
	linker := &fakeLinker{}
	handler := testServer(t, &fakeRunner{}, &fakeItems{}, linker)

	body := bytes.NewBufferString(`{"unit_id": "unit-1", "external_campaign_id": "camp-9"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/links", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unit-1", linker.unitID)
	assert.Equal(t, "camp-9", linker.campaignID)
}

func TestHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	handler := NewServer(&fakeRunner{}, &fakeItems{}, &fakeLinker{}, db, nil).Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["database"])
	assert.Equal(t, "disabled", health["redis"])
}
