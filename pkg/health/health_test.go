package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(staleAfter time.Duration, rec *Recorder) *Server {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewServer(":0", staleAfter, rec, logger)
}

func decodeStatus(t *testing.T, rr *httptest.ResponseRecorder) status {
	t.Helper()
	var st status
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
	return st
}

func TestHealthzFreshProcessIsHealthy(t *testing.T) {
	srv := testServer(time.Minute, NewRecorder())

	rr := httptest.NewRecorder()
	srv.handleHealthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	st := decodeStatus(t, rr)
	assert.Equal(t, "ok", st.Status)
	assert.Empty(t, st.LastSuccessfulPoll)
}

func TestHealthzDegradedWithoutPolls(t *testing.T) {
	rec := NewRecorder()
	rec.started = time.Now().Add(-time.Hour)
	srv := testServer(time.Minute, rec)

	rr := httptest.NewRecorder()
	srv.handleHealthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "degraded", decodeStatus(t, rr).Status)
}

func TestHealthzDegradedAfterStalePoll(t *testing.T) {
	rec := NewRecorder()
	rec.lastPoll = time.Now().Add(-10 * time.Minute)
	srv := testServer(time.Minute, rec)

	rr := httptest.NewRecorder()
	srv.handleHealthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	st := decodeStatus(t, rr)
	assert.Equal(t, "degraded", st.Status)
	assert.NotEmpty(t, st.LastSuccessfulPoll)
}

func TestHealthzRecoversAfterPoll(t *testing.T) {
	rec := NewRecorder()
	rec.lastPoll = time.Now().Add(-10 * time.Minute)
	srv := testServer(time.Minute, rec)

	rec.RecordPoll()

	rr := httptest.NewRecorder()
	srv.handleHealthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeStatus(t, rr).Status)
}

func TestReadyzRequiresFirstPoll(t *testing.T) {
	rec := NewRecorder()
	srv := testServer(time.Minute, rec)

	rr := httptest.NewRecorder()
	srv.handleReadyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rec.RecordPoll()
	rr = httptest.NewRecorder()
	srv.handleReadyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRecorderTracksLastPoll(t *testing.T) {
	rec := NewRecorder()
	assert.True(t, rec.LastPoll().IsZero())

	before := time.Now()
	rec.RecordPoll()
	last := rec.LastPoll()
	assert.False(t, last.Before(before))
	assert.False(t, rec.Started().IsZero())
}
