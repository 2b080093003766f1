package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"frontdesk/internal/models"
	"frontdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const EventSessionRevoked = "session.revoked"

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ store.Store = (*Store)(nil)

type Store struct {
	db         DB
	bcryptCost int
}

func NewStore(db DB) *Store {
	return &Store{db: db, bcryptCost: bcrypt.DefaultCost}
}

func (s *Store) FindUser(ctx context.Context, cpf string) (models.RegistryUser, error) {
	var user models.RegistryUser
	var role string
	row := s.db.QueryRow(ctx, `
		SELECT cpf, name, role, ban, created_at
		FROM users
		WHERE cpf = $1
	`, cpf)
	if err := row.Scan(&user.CPF, &user.Name, &role, &user.Banned, &user.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RegistryUser{}, store.ErrNotFound
		}
		return models.RegistryUser{}, err
	}
	user.Role = models.ParseRole(role)
	return user, nil
}

func (s *Store) GetProfile(ctx context.Context, identityID string) (models.Profile, error) {
	var profile models.Profile
	var role string
	row := s.db.QueryRow(ctx, `
		SELECT identity_id, COALESCE(role, ''), COALESCE(name, ''), COALESCE(cpf, '')
		FROM profiles
		WHERE identity_id = $1
	`, identityID)
	if err := row.Scan(&profile.IdentityID, &role, &profile.Name, &profile.CPF); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, store.ErrNotFound
		}
		return models.Profile{}, err
	}
	profile.Role = models.ParseRole(role)
	return profile, nil
}

func (s *Store) IsAdmin(ctx context.Context, identityID string) (bool, error) {
	var admin bool
	if err := s.db.QueryRow(ctx, `SELECT is_admin($1)`, identityID).Scan(&admin); err != nil {
		return false, err
	}
	return admin, nil
}

func (s *Store) CreateIdentity(ctx context.Context, input store.SignUpInput) (identity models.Identity, err error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return models.Identity{}, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Identity{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	identity = models.Identity{
		ID:       uuid.NewString(),
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Metadata: input.Metadata,
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO identities (identity_id, email, password_hash, meta_role, meta_name, meta_cpf)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, identity.ID, identity.Email, string(hash), input.Metadata.Role, input.Metadata.Name, input.Metadata.CPF)
	if err = row.Scan(&identity.Created); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			err = store.ErrEmailTaken
		}
		return models.Identity{}, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (identity_id, role, name, cpf)
		VALUES ($1, $2, $3, $4)
	`, identity.ID, nullIfEmpty(input.Metadata.Role), input.Metadata.Name, input.Metadata.CPF)
	if err != nil {
		return models.Identity{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Identity{}, err
	}
	return identity, nil
}

func (s *Store) VerifyPassword(ctx context.Context, email, password string) (models.Identity, error) {
	var identity models.Identity
	var passwordHash string
	row := s.db.QueryRow(ctx, `
		SELECT identity_id, email, password_hash, meta_role, meta_name, meta_cpf, created_at
		FROM identities
		WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email))
	if err := row.Scan(&identity.ID, &identity.Email, &passwordHash, &identity.Metadata.Role, &identity.Metadata.Name, &identity.Metadata.CPF, &identity.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Identity{}, store.ErrInvalidCredentials
		}
		return models.Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return models.Identity{}, store.ErrInvalidCredentials
	}
	return identity, nil
}

func (s *Store) CreateSession(ctx context.Context, identity models.Identity, expiresAt time.Time) (models.Session, error) {
	token := uuid.NewString()
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (token, identity_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, identity.ID, expiresAt)
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{Token: token, ExpiresAt: expiresAt, Identity: identity}, nil
}

func (s *Store) GetSession(ctx context.Context, token string) (models.Session, error) {
	var session models.Session
	identity := &session.Identity
	row := s.db.QueryRow(ctx, `
		SELECT s.token, s.expires_at,
		       i.identity_id, i.email, i.meta_role, i.meta_name, i.meta_cpf, i.created_at
		FROM sessions s
		JOIN identities i ON i.identity_id = s.identity_id
		WHERE s.token = $1 AND s.expires_at > NOW()
	`, token)
	if err := row.Scan(&session.Token, &session.ExpiresAt, &identity.ID, &identity.Email, &identity.Metadata.Role, &identity.Metadata.Name, &identity.Metadata.CPF, &identity.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, store.ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

func (s *Store) SetBanned(ctx context.Context, input store.BanInput) (result store.BanResult, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return store.BanResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var role string
	user := &result.User
	row := tx.QueryRow(ctx, `
		UPDATE users
		SET ban = $2
		WHERE cpf = $1
		RETURNING cpf, name, role, ban, created_at
	`, input.CPF, input.Banned)
	if err = row.Scan(&user.CPF, &user.Name, &role, &user.Banned, &user.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrNotFound
		}
		return store.BanResult{}, err
	}
	user.Role = models.ParseRole(role)

	action := "user.unban"
	if input.Banned {
		action = "user.ban"
		result.Identities, err = revokeSessions(ctx, tx, input.CPF)
		if err != nil {
			return store.BanResult{}, err
		}
		payload, _ := json.Marshal(map[string]any{
			"cpf":          input.CPF,
			"identity_ids": result.Identities,
		})
		_, err = tx.Exec(ctx, `
			INSERT INTO outbox_events (event_id, type, payload_json)
			VALUES ($1, $2, $3)
		`, uuid.NewString(), EventSessionRevoked, payload)
		if err != nil {
			return store.BanResult{}, err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_logs (audit_id, actor_user_id, action_type, target_type, target_id, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), nullIfEmpty(input.ActorUserID), action, "user", input.CPF, nullIfEmpty(input.IP), nullIfEmpty(input.UserAgent))
	if err != nil {
		return store.BanResult{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return store.BanResult{}, err
	}
	return result, nil
}

func revokeSessions(ctx context.Context, tx pgx.Tx, cpf string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		DELETE FROM sessions
		WHERE identity_id IN (
			SELECT identity_id FROM profiles WHERE cpf = $1
			UNION
			SELECT identity_id FROM identities WHERE meta_cpf = $1
		)
		RETURNING identity_id
	`, cpf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var identities []string
	for rows.Next() {
		var identityID string
		if err := rows.Scan(&identityID); err != nil {
			return nil, err
		}
		if _, ok := seen[identityID]; ok {
			continue
		}
		seen[identityID] = struct{}{}
		identities = append(identities, identityID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return identities, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	lastID := offset.LastEventID
	if lastID == "" {
		lastID = uuid.Nil.String()
	}
	rows, err := s.db.Query(ctx, `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
		WHERE (created_at, event_id) > ($1, $2)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, offset.LastEventTime, lastID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetOffset(ctx context.Context, consumer string) (store.OutboxOffset, error) {
	var offset store.OutboxOffset
	row := s.db.QueryRow(ctx, `
		SELECT last_event_time, last_event_id
		FROM outbox_offsets
		WHERE consumer = $1
	`, consumer)
	if err := row.Scan(&offset.LastEventTime, &offset.LastEventID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.OutboxOffset{}, nil
		}
		return store.OutboxOffset{}, err
	}
	return offset, nil
}

func (s *Store) UpdateOffset(ctx context.Context, consumer string, offset store.OutboxOffset) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO outbox_offsets (consumer, last_event_time, last_event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer) DO UPDATE
		SET last_event_time = EXCLUDED.last_event_time, last_event_id = EXCLUDED.last_event_id
	`, consumer, offset.LastEventTime, offset.LastEventID)
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
