package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	snaps []Stats
	err   error
	limit int
}

func (f *fakeLister) ListSnapshots(ctx context.Context, limit int) ([]Stats, error) {
	f.limit = limit
	return f.snaps, f.err
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(QueryEvent{Type: EventQuery, Query: "alice", Result: ResultExists})
	h := NewHandler(agg, nil)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalQueries)

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerSnapshots(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(NewAggregator(), nil).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("limit is clamped", func(t *testing.T) {
		lister := &fakeLister{snaps: []Stats{{TotalQueries: 3}}}
		rec := httptest.NewRecorder()
		NewHandler(NewAggregator(), lister).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=9999", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, maxSnapshotLimit, lister.limit)

		var snaps []Stats
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&snaps))
		require.Len(t, snaps, 1)
		assert.Equal(t, int64(3), snaps[0].TotalQueries)
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(NewAggregator(), &fakeLister{}).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=-1", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(NewAggregator(), &fakeLister{err: errors.New("db down")}).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
