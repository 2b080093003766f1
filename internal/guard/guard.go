// Package guard decides whether the current identity may see a protected
// section. A guard stays in Resolving while any input is loading, and keeps
// its terminal decision until the identity changes.
package guard

import (
	"context"
	"sync"

	"frontdesk/internal/logger"
	"frontdesk/internal/models"
	"frontdesk/internal/roles"
	"frontdesk/internal/session"
	"frontdesk/internal/store"

	"go.uber.org/zap"
)

type State int

const (
	Resolving State = iota
	Granted
	Denied
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Decision is what the caller renders. Redirect is set when the identity is
// missing; Fallback when it is present but not allowed.
type Decision struct {
	State    State
	Redirect string
	Fallback string
}

type Input struct {
	Session session.State
	Role    roles.State
}

type kind int

const (
	kindAuth kind = iota
	kindRole
	kindAdmin
)

const DefaultFallback = "Acesso negado"

type Option func(*Guard)

func WithLoginPath(path string) Option {
	return func(g *Guard) { g.loginPath = path }
}

func WithFallback(text string) Option {
	return func(g *Guard) {
		if text != "" {
			g.fallback = text
		}
	}
}

type Guard struct {
	kind       kind
	allow      []models.Role
	privileges store.Privileges
	loginPath  string
	fallback   string
	log        *zap.Logger

	mu         sync.Mutex
	identityID string
	gen        uint64
	decision   Decision
}

// NewAuthGuard grants any authenticated identity.
func NewAuthGuard(opts ...Option) *Guard {
	return newGuard(kindAuth, opts)
}

// NewRoleGuard grants identities whose resolved role is in allow.
func NewRoleGuard(allow []models.Role, opts ...Option) *Guard {
	g := newGuard(kindRole, opts)
	g.allow = append([]models.Role(nil), allow...)
	return g
}

// NewAdminGuard asks the privilege function first and falls back to the
// profile role when it fails or says no.
func NewAdminGuard(privileges store.Privileges, opts ...Option) *Guard {
	g := newGuard(kindAdmin, opts)
	g.privileges = privileges
	return g
}

func newGuard(k kind, opts []Option) *Guard {
	g := &Guard{
		kind:      k,
		loginPath: session.DefaultLoginPath,
		fallback:  DefaultFallback,
		log:       logger.Named("guard"),
		decision:  Decision{State: Resolving},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision.State
}

// Evaluate folds the latest inputs into a decision.
func (g *Guard) Evaluate(ctx context.Context, in Input) Decision {
	identityID := in.Session.IdentityID()

	g.mu.Lock()
	if identityID != g.identityID {
		g.identityID = identityID
		g.gen++
		g.decision = Decision{State: Resolving}
	}
	if g.decision.State != Resolving {
		d := g.decision
		g.mu.Unlock()
		return d
	}
	gen := g.gen
	g.mu.Unlock()

	if in.Session.Loading {
		return Decision{State: Resolving}
	}
	if in.Session.Identity == nil {
		return g.commit(gen, Decision{State: Denied, Redirect: g.loginPath})
	}

	switch g.kind {
	case kindAuth:
		return g.commit(gen, Decision{State: Granted})
	case kindRole:
		if in.Role.Loading {
			return Decision{State: Resolving}
		}
		return g.commit(gen, g.decide(g.allows(in.Role.Role())))
	case kindAdmin:
		if in.Role.Loading {
			return Decision{State: Resolving}
		}
		return g.commit(gen, g.decide(g.isAdmin(ctx, identityID, in.Role.Role())))
	default:
		return Decision{State: Resolving}
	}
}

func (g *Guard) decide(ok bool) Decision {
	if ok {
		return Decision{State: Granted}
	}
	return Decision{State: Denied, Fallback: g.fallback}
}

func (g *Guard) allows(role models.Role) bool {
	switch role {
	case models.RoleCorretor, models.RoleRecepcionista, models.RoleAdmin:
		for _, allowed := range g.allow {
			if allowed == role {
				return true
			}
		}
		return false
	case models.RoleNone:
		return false
	default:
		return false
	}
}

func (g *Guard) isAdmin(ctx context.Context, identityID string, role models.Role) bool {
	if g.privileges != nil {
		ok, err := g.privileges.IsAdmin(ctx, identityID)
		if err == nil && ok {
			return true
		}
		if err != nil {
			g.log.Warn("privilege check failed, using profile role",
				logger.IdentityID(identityID), logger.Err(err))
		}
	}
	return role == models.RoleAdmin
}

// commit stores d unless the identity changed while it was computed.
func (g *Guard) commit(gen uint64, d Decision) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		return Decision{State: Resolving}
	}
	g.decision = d
	return d
}
