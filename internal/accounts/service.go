package accounts

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/recon/internal/access"
)

// InvitationTTL is how long an invitation stays pending.
const InvitationTTL = 7 * 24 * time.Hour

// Service combines the repositories with the token issuer.
type Service struct {
	users       UserRepository
	invitations InvitationRepository
	tokens      *TokenIssuer
	now         func() time.Time
	logger      *slog.Logger
}

func NewService(users UserRepository, invitations InvitationRepository, tokens *TokenIssuer) *Service {
	return &Service{
		users:       users,
		invitations: invitations,
		tokens:      tokens,
		now:         time.Now,
		logger:      slog.Default().With("component", "accounts"),
	}
}

// Login checks the credentials and issues a token. Unknown emails and wrong
// passwords return the same error.
func (s *Service) Login(email, password string) (Token, *User, error) {
	u, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Token{}, nil, ErrInvalidCredentials
		}
		return Token{}, nil, err
	}
	if u.Status != UserActive || password == "" ||
		subtle.ConstantTimeCompare([]byte(u.password), []byte(password)) != 1 {
		return Token{}, nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.TouchLogin(u.ID, now); err != nil {
		return Token{}, nil, fmt.Errorf("failed to record login: %w", err)
	}
	u.LastLogin = &now
	s.logger.Info("user logged in", "user_id", u.ID)
	return s.tokens.Issue(u.ID), u, nil
}

func (s *Service) Logout(token string) {
	s.tokens.Revoke(token)
}

// Me returns the user behind a token.
func (s *Service) Me(token string) (*User, error) {
	id, err := s.tokens.Resolve(token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(id)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if u.Status != UserActive {
		return nil, ErrInvalidToken
	}
	return u, nil
}

// ResolvePrincipal implements access.Resolver.
func (s *Service) ResolvePrincipal(token string) (access.Principal, error) {
	u, err := s.Me(token)
	if err != nil {
		return access.Principal{}, err
	}
	return u.Principal(), nil
}

// CreateUser adds an active user.
func (s *Service) CreateUser(email, name string, role access.Role, password string) (*User, error) {
	if err := validateIdentity(email, role); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	u := &User{
		ID:        uuid.NewString(),
		Email:     strings.TrimSpace(email),
		Name:      strings.TrimSpace(name),
		Role:      role,
		Status:    UserActive,
		CreatedAt: s.now(),
		password:  password,
	}
	if err := s.users.Create(u); err != nil {
		return nil, err
	}
	return u.clone(), nil
}

func (s *Service) Users() ([]*User, error) {
	return s.users.List()
}

// Invite creates a pending invitation. Emails that already belong to a user
// are rejected.
func (s *Service) Invite(email string, role access.Role, invitedBy string) (*Invitation, error) {
	if err := validateIdentity(email, role); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByEmail(email); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, email)
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	now := s.now()
	inv := &Invitation{
		ID:        uuid.NewString(),
		Email:     strings.TrimSpace(email),
		Role:      role,
		InvitedBy: invitedBy,
		Status:    InvitationPending,
		CreatedAt: now,
		ExpiresAt: now.Add(InvitationTTL),
	}
	if err := s.invitations.Create(inv); err != nil {
		return nil, err
	}
	s.logger.Info("invitation created", "invitation_id", inv.ID, "role", role, "invited_by", invitedBy)
	return inv, nil
}

// Invitations lists invitations, marking pending ones past their expiry as
// expired.
func (s *Service) Invitations() ([]*Invitation, error) {
	list, err := s.invitations.List()
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, inv := range list {
		if inv.Status == InvitationPending && !now.Before(inv.ExpiresAt) {
			inv.Status = InvitationExpired
			if err := s.invitations.SetStatus(inv.ID, InvitationExpired); err != nil {
				return nil, err
			}
		}
	}
	return list, nil
}

// AcceptInvitation turns a pending invitation into an active user.
func (s *Service) AcceptInvitation(id, name, password string) (*User, error) {
	inv, err := s.invitations.FindByID(id)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvitationPending {
		return nil, fmt.Errorf("%w: %s", ErrInvitationClosed, inv.Status)
	}
	if !s.now().Before(inv.ExpiresAt) {
		_ = s.invitations.SetStatus(id, InvitationExpired)
		return nil, fmt.Errorf("%w: expired", ErrInvitationClosed)
	}

	u, err := s.CreateUser(inv.Email, name, inv.Role, password)
	if err != nil {
		return nil, err
	}
	if err := s.invitations.SetStatus(id, InvitationAccepted); err != nil {
		return nil, err
	}
	return u, nil
}

func validateIdentity(email string, role access.Role) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		return fmt.Errorf("%w: email %q", ErrInvalidInput, email)
	}
	if _, ok := access.ParseRole(string(role)); !ok {
		return fmt.Errorf("%w: role %q", ErrInvalidInput, role)
	}
	return nil
}
