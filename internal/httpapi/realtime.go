package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"frontdesk/internal/hub"
	"frontdesk/internal/logger"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const realtimeLookupTimeout = 5 * time.Second

// realtimeHandler streams the caller's own auth events. A SIGNED_OUT pushed
// here tells an open client its session was revoked elsewhere.
func (h *Handler) realtimeHandler() http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, h.serveRealtime)
}

// serveRealtime authenticates conn from its opening request and relays the
// hub events of that identity until the client goes away.
func (h *Handler) serveRealtime(conn sockjs.Session) {
	token := realtimeToken(conn.Request(), h.cfg.CookieName)
	if token == "" {
		_ = conn.Close(4001, "missing session")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), realtimeLookupTimeout)
	current, err := h.store.GetSession(ctx, token)
	cancel()
	if err != nil || current.Expired(time.Now()) {
		_ = conn.Close(4002, "invalid session")
		return
	}

	client := &hub.Client{
		ID:           uuid.NewString(),
		Send:         make(chan []byte, 16),
		Subscription: hub.Subscription{IdentityID: current.Identity.ID},
	}
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	log := logger.Named("realtime").With(logger.IdentityID(current.Identity.ID))
	log.Debug("client connected")
	go func() {
		for msg := range client.Send {
			if err := conn.Send(string(msg)); err != nil {
				return
			}
		}
	}()

	for {
		if _, err := conn.Recv(); err != nil {
			log.Debug("client disconnected")
			return
		}
	}
}

func realtimeToken(r *http.Request, cookieName string) string {
	if r == nil {
		return ""
	}
	if token := tokenFromRequest(r, cookieName); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
