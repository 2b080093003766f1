package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"frontdesk/internal/models"
	"frontdesk/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	st := NewStore(mockDB)
	st.bcryptCost = bcrypt.MinCost
	return st, mockDB
}

func TestFindUser(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name    string
		cpf     string
		setupDB func(pgxmock.PgxPoolIface)
		want    models.RegistryUser
		wantErr error
	}{
		{
			name: "registered broker",
			cpf:  "12345678901",
			setupDB: func(mockDB pgxmock.PgxPoolIface) {
				mockDB.ExpectQuery("SELECT cpf, name, role, ban, created_at FROM users").
					WithArgs("12345678901").
					WillReturnRows(pgxmock.NewRows([]string{"cpf", "name", "role", "ban", "created_at"}).
						AddRow("12345678901", "Ana Souza", "corretor", false, now))
			},
			want: models.RegistryUser{CPF: "12345678901", Name: "Ana Souza", Role: models.RoleCorretor, Created: now},
		},
		{
			name: "unknown cpf",
			cpf:  "00000000000",
			setupDB: func(mockDB pgxmock.PgxPoolIface) {
				mockDB.ExpectQuery("SELECT cpf, name, role, ban, created_at FROM users").
					WithArgs("00000000000").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: store.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, mockDB := newTestStore(t)
			tt.setupDB(mockDB)

			user, err := st.FindUser(context.Background(), tt.cpf)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, user)
			}
			assert.NoError(t, mockDB.ExpectationsWereMet())
		})
	}
}

func TestGetProfile(t *testing.T) {
	st, mockDB := newTestStore(t)
	mockDB.ExpectQuery("FROM profiles").
		WithArgs("id-1").
		WillReturnRows(pgxmock.NewRows([]string{"identity_id", "role", "name", "cpf"}).
			AddRow("id-1", "admin", "Carla", "11122233344"))
	mockDB.ExpectQuery("FROM profiles").
		WithArgs("id-2").
		WillReturnError(pgx.ErrNoRows)

	profile, err := st.GetProfile(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, models.Profile{IdentityID: "id-1", Role: models.RoleAdmin, Name: "Carla", CPF: "11122233344"}, profile)

	_, err = st.GetProfile(context.Background(), "id-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestIsAdmin(t *testing.T) {
	st, mockDB := newTestStore(t)
	mockDB.ExpectQuery(`SELECT is_admin\(\$1\)`).
		WithArgs("id-1").
		WillReturnRows(pgxmock.NewRows([]string{"is_admin"}).AddRow(true))
	mockDB.ExpectQuery(`SELECT is_admin\(\$1\)`).
		WithArgs("id-2").
		WillReturnError(errors.New("function is_admin does not exist"))

	admin, err := st.IsAdmin(context.Background(), "id-1")
	require.NoError(t, err)
	assert.True(t, admin)

	admin, err = st.IsAdmin(context.Background(), "id-2")
	assert.Error(t, err)
	assert.False(t, admin)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestCreateIdentity(t *testing.T) {
	now := time.Now().UTC()
	input := store.SignUpInput{
		Email:    " Ana@Example.com ",
		Password: "s3nha-forte",
		Metadata: models.Metadata{Role: "corretor", Name: "Ana Souza", CPF: "12345678901"},
	}

	t.Run("creates identity and profile", func(t *testing.T) {
		st, mockDB := newTestStore(t)
		mockDB.ExpectBegin()
		mockDB.ExpectQuery("INSERT INTO identities").
			WithArgs(pgxmock.AnyArg(), "ana@example.com", pgxmock.AnyArg(), "corretor", "Ana Souza", "12345678901").
			WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
		mockDB.ExpectExec("INSERT INTO profiles").
			WithArgs(pgxmock.AnyArg(), "corretor", "Ana Souza", "12345678901").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockDB.ExpectCommit()

		identity, err := st.CreateIdentity(context.Background(), input)
		require.NoError(t, err)
		assert.NotEmpty(t, identity.ID)
		assert.Equal(t, "ana@example.com", identity.Email)
		assert.Equal(t, input.Metadata, identity.Metadata)
		assert.Equal(t, now, identity.Created)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		st, mockDB := newTestStore(t)
		mockDB.ExpectBegin()
		mockDB.ExpectQuery("INSERT INTO identities").
			WithArgs(pgxmock.AnyArg(), "ana@example.com", pgxmock.AnyArg(), "corretor", "Ana Souza", "12345678901").
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mockDB.ExpectRollback()

		_, err := st.CreateIdentity(context.Background(), input)
		assert.ErrorIs(t, err, store.ErrEmailTaken)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestVerifyPassword(t *testing.T) {
	now := time.Now().UTC()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3nha-forte"), bcrypt.MinCost)
	require.NoError(t, err)
	columns := []string{"identity_id", "email", "password_hash", "meta_role", "meta_name", "meta_cpf", "created_at"}

	tests := []struct {
		name     string
		password string
		setupDB  func(pgxmock.PgxPoolIface)
		wantErr  error
	}{
		{
			name:     "valid password",
			password: "s3nha-forte",
			setupDB: func(mockDB pgxmock.PgxPoolIface) {
				mockDB.ExpectQuery("FROM identities").
					WithArgs("ana@example.com").
					WillReturnRows(pgxmock.NewRows(columns).
						AddRow("id-1", "ana@example.com", string(hash), "corretor", "Ana Souza", "12345678901", now))
			},
		},
		{
			name:     "wrong password",
			password: "errada",
			setupDB: func(mockDB pgxmock.PgxPoolIface) {
				mockDB.ExpectQuery("FROM identities").
					WithArgs("ana@example.com").
					WillReturnRows(pgxmock.NewRows(columns).
						AddRow("id-1", "ana@example.com", string(hash), "corretor", "Ana Souza", "12345678901", now))
			},
			wantErr: store.ErrInvalidCredentials,
		},
		{
			name:     "unknown email",
			password: "s3nha-forte",
			setupDB: func(mockDB pgxmock.PgxPoolIface) {
				mockDB.ExpectQuery("FROM identities").
					WithArgs("ana@example.com").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: store.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, mockDB := newTestStore(t)
			tt.setupDB(mockDB)

			identity, err := st.VerifyPassword(context.Background(), "ana@example.com", tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "id-1", identity.ID)
				assert.Equal(t, "12345678901", identity.Metadata.CPF)
			}
			assert.NoError(t, mockDB.ExpectationsWereMet())
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	st, mockDB := newTestStore(t)
	expires := time.Now().UTC().Add(time.Hour)
	identity := models.Identity{ID: "id-1", Email: "ana@example.com"}

	mockDB.ExpectExec("INSERT INTO sessions").
		WithArgs(pgxmock.AnyArg(), "id-1", expires).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	session, err := st.CreateSession(context.Background(), identity, expires)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, identity, session.Identity)

	mockDB.ExpectQuery("FROM sessions s JOIN identities i").
		WithArgs(session.Token).
		WillReturnRows(pgxmock.NewRows([]string{"token", "expires_at", "identity_id", "email", "meta_role", "meta_name", "meta_cpf", "created_at"}).
			AddRow(session.Token, expires, "id-1", "ana@example.com", "corretor", "Ana Souza", "12345678901", time.Time{}))
	loaded, err := st.GetSession(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, "id-1", loaded.Identity.ID)
	assert.Equal(t, "12345678901", loaded.Identity.Metadata.CPF)

	mockDB.ExpectQuery("FROM sessions s JOIN identities i").
		WithArgs("stale").
		WillReturnError(pgx.ErrNoRows)
	_, err = st.GetSession(context.Background(), "stale")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	mockDB.ExpectExec("DELETE FROM sessions WHERE token").
		WithArgs(session.Token).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, st.DeleteSession(context.Background(), session.Token))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSetBanned(t *testing.T) {
	now := time.Now().UTC()
	userColumns := []string{"cpf", "name", "role", "ban", "created_at"}

	t.Run("ban revokes sessions and writes outbox", func(t *testing.T) {
		st, mockDB := newTestStore(t)
		mockDB.ExpectBegin()
		mockDB.ExpectQuery("UPDATE users SET ban").
			WithArgs("99999999999", true).
			WillReturnRows(pgxmock.NewRows(userColumns).AddRow("99999999999", "Bruno", "corretor", true, now))
		mockDB.ExpectQuery("DELETE FROM sessions").
			WithArgs("99999999999").
			WillReturnRows(pgxmock.NewRows([]string{"identity_id"}).AddRow("id-9").AddRow("id-9").AddRow("id-10"))
		mockDB.ExpectExec("INSERT INTO outbox_events").
			WithArgs(pgxmock.AnyArg(), EventSessionRevoked, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockDB.ExpectExec("INSERT INTO audit_logs").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "user.ban", "user", "99999999999", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockDB.ExpectCommit()

		result, err := st.SetBanned(context.Background(), store.BanInput{CPF: "99999999999", Banned: true, ActorUserID: "admin-1"})
		require.NoError(t, err)
		assert.True(t, result.User.Banned)
		assert.Equal(t, []string{"id-9", "id-10"}, result.Identities)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("unban only audits", func(t *testing.T) {
		st, mockDB := newTestStore(t)
		mockDB.ExpectBegin()
		mockDB.ExpectQuery("UPDATE users SET ban").
			WithArgs("99999999999", false).
			WillReturnRows(pgxmock.NewRows(userColumns).AddRow("99999999999", "Bruno", "corretor", false, now))
		mockDB.ExpectExec("INSERT INTO audit_logs").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "user.unban", "user", "99999999999", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockDB.ExpectCommit()

		result, err := st.SetBanned(context.Background(), store.BanInput{CPF: "99999999999"})
		require.NoError(t, err)
		assert.False(t, result.User.Banned)
		assert.Empty(t, result.Identities)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("unknown cpf", func(t *testing.T) {
		st, mockDB := newTestStore(t)
		mockDB.ExpectBegin()
		mockDB.ExpectQuery("UPDATE users SET ban").
			WithArgs("00000000000", true).
			WillReturnError(pgx.ErrNoRows)
		mockDB.ExpectRollback()

		_, err := st.SetBanned(context.Background(), store.BanInput{CPF: "00000000000", Banned: true})
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestOutboxOffsets(t *testing.T) {
	st, mockDB := newTestStore(t)
	now := time.Now().UTC()

	mockDB.ExpectQuery("FROM outbox_offsets").
		WithArgs("relay").
		WillReturnError(pgx.ErrNoRows)
	offset, err := st.GetOffset(context.Background(), "relay")
	require.NoError(t, err)
	assert.True(t, offset.LastEventTime.IsZero())

	mockDB.ExpectQuery("FROM outbox_events").
		WithArgs(offset.LastEventTime, "00000000-0000-0000-0000-000000000000", 100).
		WillReturnRows(pgxmock.NewRows([]string{"event_id", "type", "payload_json", "created_at"}).
			AddRow("ev-1", EventSessionRevoked, []byte(`{"identity_ids":["id-9"]}`), now))
	events, err := st.ListOutboxEvents(context.Background(), offset, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-1", events[0].EventID)

	mockDB.ExpectExec("INSERT INTO outbox_offsets").
		WithArgs("relay", now, "ev-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, st.UpdateOffset(context.Background(), "relay", store.OutboxOffset{LastEventTime: now, LastEventID: "ev-1"}))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
