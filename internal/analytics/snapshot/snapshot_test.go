package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/postgres"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hourStart = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	hourEnd   = hourStart.Add(time.Hour)
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(postgres.Wrap(db)), mock
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS search_stats_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUpsertsByPeriod(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO search_stats_snapshots .* ON CONFLICT \\(period_start, period_end\\)").
		WithArgs(hourStart, hourEnd, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), Snapshot{
		PeriodStart: hourStart,
		PeriodEnd:   hourEnd,
		Stats:       analytics.SearchStatsResponse{TotalSearches: 4},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWrapsErrors(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO search_stats_snapshots").WillReturnError(errors.New("connection reset"))

	err := store.Save(context.Background(), Snapshot{PeriodStart: hourStart, PeriodEnd: hourEnd})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestListSkipsCorruptRows(t *testing.T) {
	store, mock := newMockStore(t)
	created := hourEnd.Add(5 * time.Minute)
	rows := sqlmock.NewRows([]string{"period_start", "period_end", "data", "created_at"}).
		AddRow(hourStart, hourEnd, []byte(`{"totalSearches":8,"uniqueQueries":5,"avgExecutionTimeMs":34,"zeroResultRate":0.25}`), created).
		AddRow(hourStart.Add(-time.Hour), hourStart, []byte(`not json`), created)
	mock.ExpectQuery("SELECT period_start, period_end, data, created_at").
		WithArgs(5).
		WillReturnRows(rows)

	got, err := store.List(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, hourStart, got[0].PeriodStart)
	assert.Equal(t, analytics.SearchStatsResponse{
		TotalSearches: 8, UniqueQueries: 5, AvgExecutionTimeMs: 34, ZeroResultRate: 0.25,
	}, got[0].Stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeSource struct {
	mu    sync.Mutex
	calls []analytics.TimeRange
	fails int
}

func (f *fakeSource) SearchStats(ctx context.Context, tr analytics.TimeRange) (analytics.SearchStatsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tr)
	if f.fails > 0 {
		f.fails--
		return analytics.SearchStatsResponse{}, errors.New("cluster unavailable")
	}
	return analytics.SearchStatsResponse{TotalSearches: 3}, nil
}

type fakeSaver struct {
	saved []Snapshot
}

func (f *fakeSaver) Save(ctx context.Context, snap Snapshot) error {
	f.saved = append(f.saved, snap)
	return nil
}

func newTestRunner(src StatsSource, saver Saver) *Runner {
	r := NewRunner(src, saver, config.SnapshotConfig{Schedule: "5 * * * *", Window: time.Hour})
	r.retry.Backoff.Initial = time.Millisecond
	r.retry.Backoff.Max = time.Millisecond
	r.now = func() time.Time { return hourEnd.Add(5 * time.Minute) }
	return r
}

func TestWindowAlignsToPreviousPeriod(t *testing.T) {
	r := newTestRunner(&fakeSource{}, &fakeSaver{})
	start, end := r.Window(time.Date(2024, 3, 15, 11, 5, 0, 0, time.UTC))
	assert.Equal(t, hourStart, start)
	assert.Equal(t, hourEnd, end)

	start, end = r.Window(hourEnd)
	assert.Equal(t, hourStart, start, "a window closing exactly now is complete")
	assert.Equal(t, hourEnd, end)
}

func TestRunOnce(t *testing.T) {
	src := &fakeSource{fails: 1}
	saver := &fakeSaver{}
	r := newTestRunner(src, saver)

	require.NoError(t, r.RunOnce(context.Background()))

	require.Len(t, src.calls, 2, "transient failure is retried")
	assert.Equal(t, hourStart, src.calls[0].Start)
	assert.Equal(t, hourEnd.Add(-time.Millisecond), src.calls[0].End, "the next period's first instant is excluded")

	require.Len(t, saver.saved, 1)
	assert.Equal(t, hourStart, saver.saved[0].PeriodStart)
	assert.Equal(t, hourEnd, saver.saved[0].PeriodEnd)
	assert.Equal(t, int64(3), saver.saved[0].Stats.TotalSearches)
}

func TestRunOnceGivesUp(t *testing.T) {
	src := &fakeSource{fails: 10}
	saver := &fakeSaver{}
	r := newTestRunner(src, saver)

	require.Error(t, r.RunOnce(context.Background()))
	assert.Len(t, src.calls, 3)
	assert.Empty(t, saver.saved)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r := NewRunner(&fakeSource{}, &fakeSaver{}, config.SnapshotConfig{Schedule: "every now and then"})
	assert.Error(t, r.Start(context.Background()))
}
