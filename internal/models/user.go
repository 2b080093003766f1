package models

import "time"

type Metadata struct {
	Role string `json:"role"`
	Name string `json:"name"`
	CPF  string `json:"cpf"`
}

type Identity struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	Metadata Metadata  `json:"user_metadata"`
	Created  time.Time `json:"created_at"`
}

type Session struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  Identity  `json:"user"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Profile is the backend-owned role record of an identity.
type Profile struct {
	IdentityID string `json:"id"`
	Role       Role   `json:"role"`
	Name       string `json:"name"`
	CPF        string `json:"cpf"`
}

// RegistryUser is a row of the users registry; Banned is the suspension flag.
type RegistryUser struct {
	CPF     string    `json:"cpf"`
	Name    string    `json:"name"`
	Role    Role      `json:"role"`
	Banned  bool      `json:"ban"`
	Created time.Time `json:"created_at"`
}

type AuditLog struct {
	AuditID     string    `json:"audit_id"`
	ActorUserID string    `json:"actor_user_id"`
	ActionType  string    `json:"action_type"`
	TargetType  string    `json:"target_type"`
	TargetID    string    `json:"target_id"`
	CreatedAt   time.Time `json:"created_at"`
	IP          string    `json:"ip"`
	UserAgent   string    `json:"user_agent"`
}

// NormalizeCPF strips punctuation from an identifying number ("123.456.789-01").
func NormalizeCPF(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}
	return string(digits)
}

func ValidCPF(cpf string) bool {
	return len(cpf) == 11 && NormalizeCPF(cpf) == cpf
}
