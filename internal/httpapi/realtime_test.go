package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"frontdesk/internal/config"
	"frontdesk/internal/hub"
	"frontdesk/internal/relay"
	"frontdesk/internal/store"
	"frontdesk/internal/store/postgres"

	"github.com/igm/sockjs-go/sockjs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a sockjs.Session driven by channels.
type fakeConn struct {
	req  *http.Request
	recv chan string
	sent chan string

	mu          sync.Mutex
	closeStatus uint32
	closeReason string
}

func newFakeConn(req *http.Request) *fakeConn {
	return &fakeConn{req: req, recv: make(chan string), sent: make(chan string, 8)}
}

func (c *fakeConn) ID() string { return "conn-1" }
func (c *fakeConn) Request() *http.Request { return c.req }
func (c *fakeConn) Send(msg string) error { c.sent <- msg; return nil }
func (c *fakeConn) GetSessionState() sockjs.SessionState { return sockjs.SessionActive }

func (c *fakeConn) Recv() (string, error) {
	msg, ok := <-c.recv
	if !ok {
		return "", sockjs.ErrSessionNotOpen
	}
	return msg, nil
}

func (c *fakeConn) Close(status uint32, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeStatus = status
	c.closeReason = reason
	return nil
}

func (c *fakeConn) closed() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeStatus
}

func newRealtimeHandler(t *testing.T, st *memStore, events *hub.Hub) *Handler {
	t.Helper()
	routes, err := config.LoadRoutes("")
	require.NoError(t, err)
	return NewHandler(Deps{Store: st, Hub: events, Routes: routes, Config: Config{CookieName: "fd_session"}})
}

func TestRealtimeRejectsMissingOrInvalidSession(t *testing.T) {
	st := newMemStore()
	expired := st.seed(t, "ana@example.com", corretor)
	st.mu.Lock()
	session := st.sessions[expired]
	session.ExpiresAt = time.Now().Add(-time.Minute)
	st.sessions[expired] = session
	st.mu.Unlock()

	events := hub.New()
	h := newRealtimeHandler(t, st, events)

	tests := []struct {
		name       string
		target     string
		wantStatus uint32
	}{
		{name: "no token", target: "/realtime/0/abc/websocket", wantStatus: 4001},
		{name: "unknown token", target: "/realtime/0/abc/websocket?access_token=nope", wantStatus: 4002},
		{name: "expired token", target: "/realtime/0/abc/websocket?access_token=" + expired, wantStatus: 4002},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn(httptest.NewRequest(http.MethodGet, tt.target, nil))
			h.serveRealtime(conn)
			assert.Equal(t, tt.wantStatus, conn.closed())
			assert.Zero(t, events.Len())
		})
	}
}

func TestRealtimeDeliversRelayedSignOut(t *testing.T) {
	st := newMemStore()
	anaToken := st.seed(t, "ana@example.com", corretor)
	st.seed(t, "lia@example.com", recepcionista)
	ana := st.identityOf("ana@example.com")
	lia := st.identityOf("lia@example.com")

	events := hub.New()
	h := newRealtimeHandler(t, st, events)

	req := httptest.NewRequest(http.MethodGet, "/realtime/0/abc/websocket", nil)
	req.AddCookie(&http.Cookie{Name: "fd_session", Value: anaToken})
	conn := newFakeConn(req)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.serveRealtime(conn)
	}()
	require.Eventually(t, func() bool { return events.Len() == 1 }, time.Second, 5*time.Millisecond)

	payload, err := json.Marshal(map[string]interface{}{"cpf": corretor.CPF, "identity_ids": []string{lia.ID, ana.ID}})
	require.NoError(t, err)
	st.mu.Lock()
	st.outbox = append(st.outbox, store.OutboxEvent{
		EventID:   "evt-1",
		Type:      postgres.EventSessionRevoked,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	st.mu.Unlock()

	n, err := relay.New(st, events, relay.Config{}).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case msg := <-conn.sent:
		var env hub.Envelope
		require.NoError(t, json.Unmarshal([]byte(msg), &env))
		assert.Equal(t, relay.SignedOut, env.Type)
		assert.Equal(t, ana.ID, env.IdentityID)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
	select {
	case msg := <-conn.sent:
		t.Fatalf("unexpected message for another identity: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}

	close(conn.recv)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection did not finish")
	}
	assert.Zero(t, events.Len())
	assert.Zero(t, conn.closed())
}

func TestRealtimeInfoEndpoint(t *testing.T) {
	h := newTestHandler(t, newMemStore())

	resp := doJSON(t, h, http.MethodGet, "/realtime/info", nil, "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "websocket")
}
