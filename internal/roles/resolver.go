// Package roles resolves the portal role of the current identity from its
// backend profile.
package roles

import (
	"context"
	"errors"
	"sync"

	"frontdesk/internal/logger"
	"frontdesk/internal/models"
	"frontdesk/internal/store"

	"go.uber.org/zap"
)

// State is the resolver's view. Err records a failed lookup; the role is
// models.RoleNone in that case.
type State struct {
	Profile models.Profile
	Loading bool
	Err     error
}

func (s State) Role() models.Role {
	return s.Profile.Role
}

type Resolver struct {
	profiles store.Profiles
	log      *zap.Logger

	mu    sync.Mutex
	gen   uint64
	state State
}

func NewResolver(profiles store.Profiles) *Resolver {
	return &Resolver{
		profiles: profiles,
		log:      logger.Named("roles"),
		state:    State{Loading: true},
	}
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Resolve looks up the identity's profile. It never fails: a missing profile
// or a lookup error yields models.RoleNone. The result is kept as State only
// if no newer Resolve started meanwhile and ctx is still live.
func (r *Resolver) Resolve(ctx context.Context, identity *models.Identity) models.Profile {
	gen := r.begin()
	return r.finish(ctx, gen, identity)
}

func (r *Resolver) begin() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.state = State{Loading: true}
	return r.gen
}

func (r *Resolver) finish(ctx context.Context, gen uint64, identity *models.Identity) models.Profile {
	next := r.lookup(ctx, identity)

	r.mu.Lock()
	if gen == r.gen && ctx.Err() == nil {
		r.state = next
	}
	r.mu.Unlock()
	return next.Profile
}

func (r *Resolver) lookup(ctx context.Context, identity *models.Identity) State {
	if identity == nil {
		return State{}
	}

	profile, err := r.profiles.GetProfile(ctx, identity.ID)
	switch {
	case err == nil:
		return State{Profile: profile}
	case errors.Is(err, store.ErrNotFound):
		r.log.Debug("no profile", logger.IdentityID(identity.ID))
		return State{Profile: models.Profile{IdentityID: identity.ID}}
	default:
		r.log.Warn("profile lookup failed", logger.IdentityID(identity.ID), logger.Err(err))
		return State{
			Profile: models.Profile{IdentityID: identity.ID},
			Err:     &models.LookupError{Op: "profile lookup", Cause: err},
		}
	}
}
