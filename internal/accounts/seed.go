package accounts

import (
	"errors"

	"github.com/liamcoop/recon/internal/access"
)

// DemoPassword is the password of every seeded user.
const DemoPassword = "demo"

var demoUsers = []struct {
	email, name string
	role        access.Role
}{
	{"admin@recon.local", "Avery Admin", access.RoleAdmin},
	{"analyst@recon.local", "Jordan Analyst", access.RoleAnalyst},
	{"viewer@recon.local", "Riley Viewer", access.RoleViewer},
}

// SeedDemo creates one user per role. Users that already exist are left alone.
func (s *Service) SeedDemo() error {
	for _, d := range demoUsers {
		_, err := s.CreateUser(d.email, d.name, d.role, DemoPassword)
		if err != nil && !errors.Is(err, ErrUserExists) {
			return err
		}
	}
	return nil
}
