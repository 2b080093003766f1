package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"frontdesk/internal/auth"
	"frontdesk/internal/ban"
	"frontdesk/internal/roles"
	"frontdesk/internal/session"
)

// view is the client-side state of one request: its own auth client, session
// store and role resolver over the shared backend.
type view struct {
	storage  *cookieStorage
	client   *auth.Client
	sessions *session.Store
	roles    *roles.Resolver

	mu       sync.Mutex
	redirect string
}

// newView also returns the writer the handler must respond through: cookie
// changes made while the view runs are only sent with the response headers.
func (h *Handler) newView(w http.ResponseWriter, r *http.Request) (*view, http.ResponseWriter) {
	v := &view{storage: newCookieStorage(w, r, h.cfg)}

	opts := auth.Options{SessionTTL: h.cfg.SessionTTL}
	if h.hub != nil {
		opts.Publisher = h.hub
	}
	v.client = auth.NewClient(h.store, v.storage, opts)
	checker := ban.NewChecker(h.store, h.store, ban.Options{StrictMode: h.cfg.StrictMode})
	v.sessions = session.NewStore(v.client, h.store, checker, session.Options{
		StrictMode: h.cfg.StrictMode,
		LoginPath:  h.cfg.LoginPath,
		Navigator:  session.NavigatorFunc(v.navigate),
	})
	v.roles = roles.NewResolver(h.store)
	return v, &viewWriter{ResponseWriter: w, storage: v.storage}
}

func (v *view) navigate(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.redirect = path
}

func (v *view) redirectTo() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.redirect
}

func (v *view) close() {
	v.sessions.Close()
}

// cookieStorage keeps the token in the session cookie. Writes are buffered
// until the response starts, so a token revoked within the same request is
// never sent. Bearer tokens are read but never written back.
type cookieStorage struct {
	w         http.ResponseWriter
	name      string
	secure    bool
	hadCookie bool

	mu      sync.Mutex
	token   string
	pending *http.Cookie
	flushed bool
}

func newCookieStorage(w http.ResponseWriter, r *http.Request, cfg Config) *cookieStorage {
	_, err := r.Cookie(cfg.CookieName)
	return &cookieStorage{
		w:         w,
		name:      cfg.CookieName,
		secure:    cfg.CookieSecure,
		hadCookie: err == nil,
		token:     tokenFromRequest(r, cfg.CookieName),
	}
}

func (c *cookieStorage) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *cookieStorage) SetToken(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.pending = c.cookie(token, expiresAt, 0)
}

// ClearToken expires the browser cookie only when the request carried one.
func (c *cookieStorage) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.pending = nil
	if c.hadCookie {
		c.pending = c.cookie("", time.Time{}, -1)
	}
}

func (c *cookieStorage) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flushed {
		return
	}
	c.flushed = true
	if c.pending != nil {
		http.SetCookie(c.w, c.pending)
	}
}

func (c *cookieStorage) cookie(value string, expiresAt time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// viewWriter sends the view's pending cookie with the response headers.
type viewWriter struct {
	http.ResponseWriter
	storage *cookieStorage
}

func (w *viewWriter) WriteHeader(code int) {
	w.storage.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *viewWriter) Write(b []byte) (int, error) {
	w.storage.flush()
	return w.ResponseWriter.Write(b)
}

func (w *viewWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func tokenFromRequest(r *http.Request, cookieName string) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
