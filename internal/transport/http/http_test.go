package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/parley/internal/coordinator"
	"github.com/nadzzz/parley/internal/observe"
)

type fakeAssistant struct {
	mu        sync.Mutex
	submitted []string
	submitErr error
	cancels   int
	resets    int
	auto      bool
	snaps     *observe.Broadcaster[coordinator.Snapshot]
}

func newFakeAssistant() *fakeAssistant {
	return &fakeAssistant{snaps: observe.NewBroadcaster[coordinator.Snapshot]()}
}

func (f *fakeAssistant) Submit(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, text)
	return nil
}

func (f *fakeAssistant) Cancel() {
	f.mu.Lock()
	f.cancels++
	f.mu.Unlock()
}

func (f *fakeAssistant) ToggleMic() (coordinator.Snapshot, error) {
	return coordinator.Snapshot{State: coordinator.AutoListening, AutoContinue: true}, nil
}

func (f *fakeAssistant) SetAutoContinue(enabled bool) {
	f.mu.Lock()
	f.auto = enabled
	f.mu.Unlock()
}

func (f *fakeAssistant) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func (f *fakeAssistant) Snapshot() coordinator.Snapshot {
	return coordinator.Snapshot{State: coordinator.Idle}
}

func (f *fakeAssistant) Subscribe(buffer int) (<-chan coordinator.Snapshot, func()) {
	return f.snaps.Subscribe(buffer)
}

func newServer(t *testing.T, a *fakeAssistant) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(0).Handler(a))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSubmit(t *testing.T) {
	a := newFakeAssistant()
	srv := newServer(t, a)

	resp := do(t, http.MethodPost, srv.URL+"/v1/turns", `{"text":"hello"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"hello"}, a.submitted)

	resp = do(t, http.MethodPost, srv.URL+"/v1/turns", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	a.submitErr = coordinator.ErrTurnInFlight
	resp = do(t, http.MethodPost, srv.URL+"/v1/turns", `{"text":"again"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	a.submitErr = coordinator.ErrBlankInput
	resp = do(t, http.MethodPost, srv.URL+"/v1/turns", `{"text":" "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestControlRoutes(t *testing.T) {
	a := newFakeAssistant()
	srv := newServer(t, a)

	assert.Equal(t, http.StatusNoContent, do(t, http.MethodPost, srv.URL+"/v1/cancel", "").StatusCode)
	assert.Equal(t, http.StatusNoContent, do(t, http.MethodPost, srv.URL+"/v1/reset", "").StatusCode)
	assert.Equal(t, http.StatusNoContent, do(t, http.MethodPut, srv.URL+"/v1/auto-continue", `{"enabled":true}`).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/v1/mic", "").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/v1/conversation", "").StatusCode)

	assert.Equal(t, 1, a.cancels)
	assert.Equal(t, 1, a.resets)
	assert.True(t, a.auto)
}

func TestSwaggerDoc(t *testing.T) {
	srv := newServer(t, newFakeAssistant())
	resp := do(t, http.MethodGet, srv.URL+"/swagger/doc.json", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventsStream(t *testing.T) {
	a := newFakeAssistant()
	srv := newServer(t, a)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Publish until the subscription is registered and a frame arrives.
	go func() {
		for i := 0; i < 50; i++ {
			a.snaps.Publish(coordinator.Snapshot{State: coordinator.Dispatching})
			time.Sleep(10 * time.Millisecond)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap map[string]any
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "dispatching", snap["state"])
}
