package observer_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/fleetsim/internal/observer"
	"github.com/cory-johannsen/fleetsim/internal/sim/world"
)

type fakeSource struct {
	mu   sync.Mutex
	tick uint64
	subs map[chan<- world.Snapshot]struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: make(map[chan<- world.Snapshot]struct{})}
}

func (f *fakeSource) Snapshot() world.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return world.Snapshot{Tick: f.tick}
}

func (f *fakeSource) Subscribe(ch chan<- world.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[ch] = struct{}{}
}

func (f *fakeSource) Unsubscribe(ch chan<- world.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, ch)
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// publish advances the tick and offers it to every subscriber without blocking.
func (f *fakeSource) publish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tick++
	for ch := range f.subs {
		select {
		case ch <- world.Snapshot{Tick: f.tick}:
		default:
		}
	}
}

func TestState(t *testing.T) {
	src := newFakeSource()
	src.publish()
	s := observer.NewServer("127.0.0.1:0", src, zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap world.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, uint64(1), snap.Tick)
}

func TestState_RejectsRemoteClients(t *testing.T) {
	s := observer.NewServer("127.0.0.1:0", newFakeSource(), nil)
	for _, path := range []string{"/state", "/ws"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestState_MethodNotAllowed(t *testing.T) {
	s := observer.NewServer("127.0.0.1:0", newFakeSource(), nil)
	req := httptest.NewRequest(http.MethodPost, "/state", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWS_PushesFramePerTick(t *testing.T) {
	src := newFakeSource()
	s := observer.NewServer("127.0.0.1:0", src, zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return src.subscribers() == 1 }, 5*time.Second, time.Millisecond)

	var last uint64
	for i := 0; i < 3; i++ {
		src.publish()
		var snap world.Snapshot
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&snap))
		assert.Greater(t, snap.Tick, last)
		last = snap.Tick
	}

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return src.subscribers() == 0 }, 5*time.Second, time.Millisecond,
		"closing the client unsubscribes it")
}

func TestServer_StartStop(t *testing.T) {
	s := observer.NewServer("127.0.0.1:0", newFakeSource(), zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	require.Eventually(t, func() bool { return s.Addr() != "127.0.0.1:0" }, 5*time.Second, time.Millisecond)
	resp, err := http.Get("http://" + s.Addr() + "/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
