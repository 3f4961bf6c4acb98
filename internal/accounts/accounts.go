// Package accounts holds users, invitations and the mock token issuer.
package accounts

import (
	"errors"
	"time"

	"github.com/liamcoop/recon/internal/access"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationClosed   = errors.New("invitation is no longer pending")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidInput       = errors.New("invalid input")
)

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

type User struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Role      access.Role `json:"role"`
	Status    UserStatus  `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	LastLogin *time.Time  `json:"lastLogin,omitempty"`

	password string
}

func (u *User) clone() *User {
	cp := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		cp.LastLogin = &t
	}
	return &cp
}

// Principal is the access view of the user.
func (u *User) Principal() access.Principal {
	return access.Principal{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Roles:  []access.Role{u.Role},
	}
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

type Invitation struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Role      access.Role      `json:"role"`
	InvitedBy string           `json:"invitedBy"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}
