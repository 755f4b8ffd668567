package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobwatch/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockPinger is a mock implementation of Pinger.
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// fakeCoordinator counts triggers.
type fakeCoordinator struct {
	discoveries atomic.Int32
	drains      atomic.Int32
	next        map[string]time.Time
}

func (f *fakeCoordinator) TriggerDiscovery(context.Context) (pipeline.DiscoveryStats, bool, error) {
	f.discoveries.Add(1)
	return pipeline.DiscoveryStats{SourcesProcessed: 1}, false, nil
}

func (f *fakeCoordinator) TriggerDrain(context.Context) (pipeline.DrainStats, bool, error) {
	f.drains.Add(1)
	return pipeline.DrainStats{}, false, nil
}

func (f *fakeCoordinator) NextRuns() map[string]time.Time { return f.next }

func newTestServer(pinger Pinger, coord Coordinator) *Server {
	return NewServer("127.0.0.1:0", pinger, coord, "test", discardLogger())
}

func TestHealth_OK(t *testing.T) {
	pinger := new(MockPinger)
	pinger.On("Ping", mock.Anything).Return(nil)
	next := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestServer(pinger, &fakeCoordinator{next: map[string]time.Time{"discovery": next}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status   string            `json:"status"`
		NextRuns map[string]string `json:"next_runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "2025-03-01T12:00:00Z", body.NextRuns["discovery"])
	pinger.AssertExpectations(t)
}

func TestHealth_StoreDown(t *testing.T) {
	pinger := new(MockPinger)
	pinger.On("Ping", mock.Anything).Return(errors.New("database is locked"))
	s := newTestServer(pinger, &fakeCoordinator{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
}

func TestTriggerDiscovery_Accepted(t *testing.T) {
	coord := &fakeCoordinator{}
	s := newTestServer(new(MockPinger), coord)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trigger/discovery", nil))
	s.background.Wait()

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"discovery"`)
	assert.Equal(t, int32(1), coord.discoveries.Load())
	assert.Equal(t, int32(0), coord.drains.Load())
}

func TestTriggerDrain_Accepted(t *testing.T) {
	coord := &fakeCoordinator{}
	s := newTestServer(new(MockPinger), coord)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trigger/drain", nil))
	s.background.Wait()

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int32(1), coord.drains.Load())
}

func TestTrigger_MethodNotAllowed(t *testing.T) {
	coord := &fakeCoordinator{}
	s := newTestServer(new(MockPinger), coord)

	for _, path := range []string{"/trigger/discovery", "/trigger/drain"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
	assert.Equal(t, int32(0), coord.discoveries.Load()+coord.drains.Load())
}

func TestRoot(t *testing.T) {
	s := newTestServer(new(MockPinger), &fakeCoordinator{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"jobwatch"`)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(new(MockPinger), &fakeCoordinator{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// blockingCoordinator holds each drain until release is closed.
type blockingCoordinator struct {
	fakeCoordinator
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (b *blockingCoordinator) TriggerDrain(context.Context) (pipeline.DrainStats, bool, error) {
	b.started <- struct{}{}
	<-b.release
	b.finished.Store(true)
	return pipeline.DrainStats{}, false, nil
}

func TestRun_WaitsForBackgroundTriggers(t *testing.T) {
	coord := &blockingCoordinator{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := newTestServer(new(MockPinger), coord)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trigger/drain", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-coord.started

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a triggered drain was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(coord.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the drain finished")
	}
	assert.True(t, coord.finished.Load())
}
