package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blkoutuk/comms-pipeline/internal/domain"
)

func canonical() domain.CanonicalMetrics {
	return domain.CanonicalMetrics{
		Recipients:   1000,
		Delivered:    985,
		Opens:        700,
		UniqueOpens:  400,
		Clicks:       120,
		UniqueClicks: 80,
		Unsubscribes: 3,
		OpenRate:     0.4,
		ClickRate:    0.08,
	}
}

func TestEmitBothPhases(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	payload, err := json.Marshal(canonical())
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO content_metrics").
		WithArgs("camp-1", "mailchimp",
			int64(1000), int64(985), int64(700), int64(400), int64(120), int64(80),
			int64(3), int64(0), int64(0), 0.4, 0.08).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO feedback_events").
		WithArgs("camp-1", "mailchimp", "neutral", payload, 0.4, 0.08, 0.003, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	result := NewEmitter(db).Emit(context.Background(), "camp-1", domain.PlatformMailchimp, canonical())

	assert.True(t, result.MetricsSaved)
	assert.True(t, result.FeedbackEmitted)
	assert.NoError(t, result.Err)
	require.NotNil(t, result.Event)
	assert.Equal(t, int64(7), result.Event.ID)
	assert.Equal(t, canonical(), result.Event.Metrics, "the event carries the full snapshot, not just the rates")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmitEventFailureIsPartial(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO content_metrics").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO feedback_events").
		WillReturnError(errors.New("connection reset"))

	result := NewEmitter(db).Emit(context.Background(), "camp-1", domain.PlatformMailchimp, canonical())

	assert.True(t, result.MetricsSaved, "the snapshot write succeeded and must be reported as such")
	assert.False(t, result.FeedbackEmitted)
	assert.Nil(t, result.Event)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "emitting feedback")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmitUpsertFailureSkipsEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO content_metrics").
		WillReturnError(errors.New("relation does not exist"))

	result := NewEmitter(db).Emit(context.Background(), "camp-1", domain.PlatformMailchimp, canonical())

	assert.False(t, result.MetricsSaved)
	assert.False(t, result.FeedbackEmitted, "no event may point at an unsaved snapshot")
	require.Error(t, result.Err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
