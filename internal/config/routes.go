package config

import (
	"fmt"
	"os"
	"strings"

	"frontdesk/internal/models"

	"gopkg.in/yaml.v3"
)

// Guard kinds accepted in the route table.
const (
	GuardAuth  = "auth"
	GuardRole  = "role"
	GuardAdmin = "admin"
)

type Route struct {
	Path     string   `yaml:"path"`
	Section  string   `yaml:"section"`
	Guard    string   `yaml:"guard"`
	Roles    []string `yaml:"roles"`
	Fallback string   `yaml:"fallback"`
}

type RouteTable struct {
	Routes []Route `yaml:"routes"`
}

func (r Route) AllowedRoles() []models.Role {
	roles := make([]models.Role, 0, len(r.Roles))
	for _, raw := range r.Roles {
		if role := models.ParseRole(raw); role != models.RoleNone {
			roles = append(roles, role)
		}
	}
	return roles
}

const defaultRoutes = `
routes:
  - path: /portal
    section: portal
    guard: auth
  - path: /corretor
    section: corretor
    guard: role
    roles: [corretor, admin]
  - path: /recepcao
    section: recepcao
    guard: role
    roles: [recepcionista, admin]
  - path: /admin
    section: admin
    guard: admin
`

// LoadRoutes reads the guarded route table. An empty path yields the built-in table.
func LoadRoutes(path string) (RouteTable, error) {
	data := []byte(defaultRoutes)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return RouteTable{}, fmt.Errorf("read routes: %w", err)
		}
		data = raw
	}
	return ParseRoutes(data)
}

func ParseRoutes(data []byte) (RouteTable, error) {
	var table RouteTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return RouteTable{}, fmt.Errorf("parse routes: %w", err)
	}
	for i, route := range table.Routes {
		if !strings.HasPrefix(route.Path, "/") {
			return RouteTable{}, fmt.Errorf("route %d: path must start with /", i)
		}
		switch route.Guard {
		case GuardAuth, GuardAdmin:
		case GuardRole:
			if len(route.AllowedRoles()) == 0 {
				return RouteTable{}, fmt.Errorf("route %s: role guard needs at least one known role", route.Path)
			}
		default:
			return RouteTable{}, fmt.Errorf("route %s: unknown guard %q", route.Path, route.Guard)
		}
		if route.Section == "" {
			table.Routes[i].Section = strings.Trim(route.Path, "/")
		}
	}
	return table, nil
}
