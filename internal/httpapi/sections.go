package httpapi

import (
	"context"
	"net/http"

	"frontdesk/internal/config"
	"frontdesk/internal/guard"
	"frontdesk/internal/session"
)

type sectionResponse struct {
	Section  string    `json:"section"`
	Decision string    `json:"decision"`
	User     *userInfo `json:"user"`
}

func (h *Handler) newGuard(route config.Route) *guard.Guard {
	opts := []guard.Option{guard.WithLoginPath(h.cfg.LoginPath), guard.WithFallback(route.Fallback)}
	switch route.Guard {
	case config.GuardRole:
		return guard.NewRoleGuard(route.AllowedRoles(), opts...)
	case config.GuardAdmin:
		return guard.NewAdminGuard(h.store, opts...)
	default:
		return guard.NewAuthGuard(opts...)
	}
}

// evaluate resolves the view's session and role and runs g over them.
func (h *Handler) evaluate(ctx context.Context, v *view, g *guard.Guard) (guard.Decision, session.State, error) {
	if err := v.sessions.Start(ctx); err != nil {
		return guard.Decision{}, session.State{}, err
	}
	state := v.sessions.State()
	if state.Authenticated() {
		v.roles.Resolve(ctx, state.Identity)
	}
	return g.Evaluate(ctx, guard.Input{Session: state, Role: v.roles.State()}), state, nil
}

func (h *Handler) handleSection(route config.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, w := h.newView(w, r)
		defer v.close()

		decision, state, err := h.evaluate(r.Context(), v, h.newGuard(route))
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		h.metrics.guardDecision(route.Section, decision.State)

		switch decision.State {
		case guard.Granted:
			writeJSON(w, http.StatusOK, sectionResponse{
				Section:  route.Section,
				Decision: decision.State.String(),
				User:     newUserInfo(state, v.roles.State().Profile),
			})
		case guard.Denied:
			if decision.Redirect != "" {
				http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
				return
			}
			writeError(w, http.StatusForbidden, "access_denied", decision.Fallback)
		default:
			writeError(w, http.StatusServiceUnavailable, "resolving", "acesso ainda em verificação")
		}
	}
}
