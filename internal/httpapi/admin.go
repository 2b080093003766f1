package httpapi

import (
	"context"
	"errors"
	"net/http"

	"frontdesk/internal/guard"
	"frontdesk/internal/logger"
	"frontdesk/internal/models"
	"frontdesk/internal/store"

	"github.com/go-chi/chi/v5"
)

type authContextKey struct{}

type authInfo struct {
	Identity models.Identity
}

type banResponse struct {
	User            models.RegistryUser `json:"user"`
	RevokedSessions int                 `json:"revoked_sessions"`
}

// requireAdmin admits requests whose identity passes the admin guard.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, w := h.newView(w, r)
		defer v.close()

		decision, state, err := h.evaluate(r.Context(), v, guard.NewAdminGuard(h.store))
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		switch {
		case decision.State == guard.Granted:
		case decision.Redirect != "":
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		default:
			writeError(w, http.StatusForbidden, "access_denied", "admin only")
			return
		}

		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Identity: *state.Identity})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authFromContext(ctx context.Context) (models.Identity, bool) {
	info, ok := ctx.Value(authContextKey{}).(authInfo)
	if !ok {
		return models.Identity{}, false
	}
	return info.Identity, true
}

func cpfParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	cpf := models.NormalizeCPF(chi.URLParam(r, "cpf"))
	if !models.ValidCPF(cpf) {
		writeError(w, http.StatusBadRequest, "invalid_request", "cpf must have 11 digits")
		return "", false
	}
	return cpf, true
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	cpf, ok := cpfParam(w, r)
	if !ok {
		return
	}
	user, err := h.store.FindUser(r.Context(), cpf)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.writeDomainError(w, r, &models.LookupError{Op: "registry lookup", Cause: err})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleSetBan(banned bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cpf, ok := cpfParam(w, r)
		if !ok {
			return
		}
		actor, _ := authFromContext(r.Context())

		result, err := h.store.SetBanned(r.Context(), store.BanInput{
			CPF:         cpf,
			Banned:      banned,
			ActorUserID: actor.ID,
			IP:          clientIP(r),
			UserAgent:   r.UserAgent(),
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "user not found")
				return
			}
			h.writeDomainError(w, r, err)
			return
		}

		requestLogger(r).Info("ban updated",
			logger.CPF(cpf),
			logger.IdentityID(actor.ID),
		)
		writeJSON(w, http.StatusOK, banResponse{User: result.User, RevokedSessions: len(result.Identities)})
	}
}
