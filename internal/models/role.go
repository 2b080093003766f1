package models

import (
	"encoding/json"
	"strings"
)

// Role is the closed set of portal roles. The zero value is RoleNone.
type Role int

const (
	RoleNone Role = iota
	RoleCorretor
	RoleRecepcionista
	RoleAdmin
)

func ParseRole(value string) Role {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "corretor":
		return RoleCorretor
	case "recepcionista":
		return RoleRecepcionista
	case "admin":
		return RoleAdmin
	default:
		return RoleNone
	}
}

func (r Role) String() string {
	switch r {
	case RoleCorretor:
		return "corretor"
	case RoleRecepcionista:
		return "recepcionista"
	case RoleAdmin:
		return "admin"
	case RoleNone:
		return ""
	default:
		return ""
	}
}

func (r Role) MarshalJSON() ([]byte, error) {
	if r == RoleNone {
		return []byte("null"), nil
	}
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*r = RoleNone
		return nil
	}
	*r = ParseRole(*raw)
	return nil
}
