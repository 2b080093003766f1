// Package ban answers whether the signed-in identity is suspended in the
// users registry.
package ban

import (
	"context"
	"errors"

	"frontdesk/internal/logger"
	"frontdesk/internal/models"
	"frontdesk/internal/store"

	"go.uber.org/zap"
)

// Result is the outcome of one check. Err is set when a lookup failed; Banned
// then reflects the configured failure policy.
type Result struct {
	Banned bool
	Err    error
}

type Options struct {
	// StrictMode treats a failed lookup as banned. The default is to let the
	// identity through and record Err.
	StrictMode bool
}

// Checker is stateless. It never touches session state; acting on a Result
// is up to the caller.
type Checker struct {
	registry store.Registry
	profiles store.Profiles
	strict   bool
	log      *zap.Logger
}

func NewChecker(registry store.Registry, profiles store.Profiles, opts Options) *Checker {
	return &Checker{
		registry: registry,
		profiles: profiles,
		strict:   opts.StrictMode,
		log:      logger.Named("ban"),
	}
}

// Check resolves the identity's CPF, from metadata first and the profile
// second, and looks it up in the registry. A CPF missing from the registry is
// not banned.
func (c *Checker) Check(ctx context.Context, identity *models.Identity) Result {
	return c.lookup(ctx, identity)
}

func (c *Checker) lookup(ctx context.Context, identity *models.Identity) Result {
	if identity == nil {
		return Result{}
	}

	cpf := models.NormalizeCPF(identity.Metadata.CPF)
	if cpf == "" {
		profile, err := c.profiles.GetProfile(ctx, identity.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return c.failure(identity, &models.LookupError{Op: "profile lookup", Cause: err})
		default:
			cpf = models.NormalizeCPF(profile.CPF)
		}
	}
	if cpf == "" {
		return Result{}
	}

	user, err := c.registry.FindUser(ctx, cpf)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}
	}
	if err != nil {
		return c.failure(identity, &models.LookupError{Op: "ban lookup", Cause: err})
	}
	if user.Banned {
		c.log.Info("suspended identity", logger.IdentityID(identity.ID), logger.CPF(cpf))
	}
	return Result{Banned: user.Banned}
}

func (c *Checker) failure(identity *models.Identity, err error) Result {
	c.log.Warn("ban check failed",
		logger.IdentityID(identity.ID),
		zap.Bool("strict", c.strict),
		logger.Err(err),
	)
	return Result{Banned: c.strict, Err: err}
}
