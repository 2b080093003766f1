package store

import (
	"context"
	"time"

	"frontdesk/internal/models"
)

type SignUpInput struct {
	Email    string
	Password string
	Metadata models.Metadata
}

type BanInput struct {
	CPF         string
	Banned      bool
	ActorUserID string
	IP          string
	UserAgent   string
}

// BanResult lists the identities whose sessions were revoked by a ban.
type BanResult struct {
	User       models.RegistryUser
	Identities []string
}

type OutboxEvent struct {
	EventID   string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

type OutboxOffset struct {
	LastEventTime time.Time
	LastEventID   string
}

// Registry is the users registry keyed by CPF.
type Registry interface {
	FindUser(ctx context.Context, cpf string) (models.RegistryUser, error)
}

type Profiles interface {
	GetProfile(ctx context.Context, identityID string) (models.Profile, error)
}

// Privileges is the server-side privilege function.
type Privileges interface {
	IsAdmin(ctx context.Context, identityID string) (bool, error)
}

// Credentials is the credential and session service behind the auth provider.
type Credentials interface {
	CreateIdentity(ctx context.Context, input SignUpInput) (models.Identity, error)
	VerifyPassword(ctx context.Context, email, password string) (models.Identity, error)
	CreateSession(ctx context.Context, identity models.Identity, expiresAt time.Time) (models.Session, error)
	GetSession(ctx context.Context, token string) (models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

type Admin interface {
	SetBanned(ctx context.Context, input BanInput) (BanResult, error)
}

type Outbox interface {
	ListOutboxEvents(ctx context.Context, offset OutboxOffset, limit int) ([]OutboxEvent, error)
	GetOffset(ctx context.Context, consumer string) (OutboxOffset, error)
	UpdateOffset(ctx context.Context, consumer string, offset OutboxOffset) error
}

type Store interface {
	Registry
	Profiles
	Privileges
	Credentials
	Admin
	Outbox
}
