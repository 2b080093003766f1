package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"frontdesk/internal/config"
	"frontdesk/internal/hub"
	"frontdesk/internal/models"
	"frontdesk/internal/session"
	"frontdesk/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Config struct {
	SessionTTL   time.Duration
	StrictMode   bool
	LoginPath    string
	CookieName   string
	CookieSecure bool

	RateLimitPerMinute int
	RateLimitBurst     int
}

type Deps struct {
	Store   store.Store
	Hub     *hub.Hub
	Routes  config.RouteTable
	Metrics *Metrics
	Config  Config
}

type Handler struct {
	store    store.Store
	hub      *hub.Hub
	routes   config.RouteTable
	metrics  *Metrics
	limiter  *RateLimiter
	validate *requestValidator
	cfg      Config
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(deps Deps) *Handler {
	cfg := deps.Config
	if cfg.LoginPath == "" {
		cfg.LoginPath = session.DefaultLoginPath
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "fd_session"
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Handler{
		store:   deps.Store,
		hub:     deps.Hub,
		routes:  deps.Routes,
		metrics: metrics,
		limiter: NewRateLimiter(RateLimitConfig{
			IPPerMinute: cfg.RateLimitPerMinute,
			IPBurst:     cfg.RateLimitBurst,
		}),
		validate: newRequestValidator(),
		cfg:      cfg,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.LoggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", h.metrics.Handler())
	if h.hub != nil {
		r.Handle("/realtime/*", h.realtimeHandler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.limiter.Middleware)

		r.Get(h.cfg.LoginPath, h.handleLoginPage)
		r.Route("/api/auth", func(r chi.Router) {
			r.Post("/signup", h.handleSignUp)
			r.Post("/signin", h.handleSignIn)
			r.Post("/signout", h.handleSignOut)
			r.Get("/session", h.handleSession)
		})
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Get("/users/{cpf}", h.handleGetUser)
			r.Put("/users/{cpf}/ban", h.handleSetBan(true))
			r.Delete("/users/{cpf}/ban", h.handleSetBan(false))
		})
		for _, route := range h.routes.Routes {
			r.Get(route.Path, h.handleSection(route))
		}
	})
	return r
}

// writeDomainError maps the domain error taxonomy onto HTTP responses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *models.ValidationError
		banErr        *models.BanError
		authErr       *models.AuthError
		lookupErr     *models.LookupError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "invalid_request", validationErr.Message)
	case errors.As(err, &banErr):
		writeError(w, http.StatusForbidden, "account_suspended", banErr.Message)
	case errors.As(err, &authErr):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", authErr.Message)
	case errors.As(err, &lookupErr):
		writeError(w, http.StatusServiceUnavailable, "lookup_failed", "serviço temporariamente indisponível")
	default:
		requestLogger(r).Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
