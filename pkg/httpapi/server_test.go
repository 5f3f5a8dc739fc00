package httpapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmeet/notetaker/pkg/models"
	"github.com/smartmeet/notetaker/pkg/statestore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunResultReader struct {
	result *models.MeetingRunResult
	err    error
}

func (f *fakeRunResultReader) Get(eventID, eventStartToken string) (*models.MeetingRunResult, error) {
	return f.result, f.err
}

func TestHealthHandlerReturnsHealthy(t *testing.T) {
	s := NewServer(&fakeRunResultReader{}, statestore.NewActiveLockStore(filepath.Join(t.TempDir(), "lock.json"), nil))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestGetMeetingHandlerReturnsResult(t *testing.T) {
	result := &models.MeetingRunResult{EventID: "evt-1", OK: true}
	s := NewServer(&fakeRunResultReader{result: result}, statestore.NewActiveLockStore(filepath.Join(t.TempDir(), "lock.json"), nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/meetings/evt-1/20260730T100000Z", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event_id":"evt-1"`)
}

func TestGetMeetingHandlerReturns404WhenMissing(t *testing.T) {
	s := NewServer(&fakeRunResultReader{result: nil}, statestore.NewActiveLockStore(filepath.Join(t.TempDir(), "lock.json"), nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/meetings/evt-missing/20260730T100000Z", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActiveLockHandlerReportsInactiveWhenNoLockFile(t *testing.T) {
	s := NewServer(&fakeRunResultReader{}, statestore.NewActiveLockStore(filepath.Join(t.TempDir(), "lock.json"), nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/active-lock", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":false}`, rec.Body.String())
}

func TestActiveLockHandlerReportsActiveLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock.json")
	store := statestore.NewActiveLockStore(path, nil)
	ok, err := store.Acquire("evt-1", time.Now().UTC(), time.Now().UTC().Add(time.Hour), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	s := NewServer(&fakeRunResultReader{}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/active-lock", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":true`)
	assert.Contains(t, rec.Body.String(), `"event_id":"evt-1"`)
}

func TestActiveLockHandlerReportsInactiveWhenExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock.json")
	store := statestore.NewActiveLockStore(path, nil)
	past := time.Now().UTC().Add(-time.Hour)
	ok, err := store.Acquire("evt-1", past, past.Add(time.Minute), past)
	require.NoError(t, err)
	require.True(t, ok)

	s := NewServer(&fakeRunResultReader{}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/active-lock", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":false}`, rec.Body.String())
}
