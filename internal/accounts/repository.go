package accounts

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// UserRepository stores users. Emails are unique, compared case-insensitively.
type UserRepository interface {
	Create(u *User) error
	FindByID(id string) (*User, error)
	FindByEmail(email string) (*User, error)
	List() ([]*User, error)
	// TouchLogin records a successful login.
	TouchLogin(id string, at time.Time) error
}

// InvitationRepository stores invitations.
type InvitationRepository interface {
	Create(inv *Invitation) error
	FindByID(id string) (*Invitation, error)
	List() ([]*Invitation, error)
	SetStatus(id string, status InvitationStatus) error
}

type InMemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *InMemoryUserRepository) Create(u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeEmail(u.Email)
	if _, ok := r.byEmail[key]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
	}
	if _, ok := r.byID[u.ID]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, u.ID)
	}
	r.byID[u.ID] = u.clone()
	r.byEmail[key] = u.ID
	return nil
}

func (r *InMemoryUserRepository) FindByID(id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return u.clone(), nil
}

func (r *InMemoryUserRepository) FindByEmail(email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return r.byID[id].clone(), nil
}

func (r *InMemoryUserRepository) List() ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, u.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *InMemoryUserRepository) TouchLogin(id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	u.LastLogin = &at
	return nil
}

type InMemoryInvitationRepository struct {
	mu          sync.RWMutex
	invitations map[string]*Invitation
}

func NewInMemoryInvitationRepository() *InMemoryInvitationRepository {
	return &InMemoryInvitationRepository{invitations: make(map[string]*Invitation)}
}

func (r *InMemoryInvitationRepository) Create(inv *Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *inv
	r.invitations[inv.ID] = &cp
	return nil
}

func (r *InMemoryInvitationRepository) FindByID(id string) (*Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invitations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvitationNotFound, id)
	}
	cp := *inv
	return &cp, nil
}

// List returns invitations newest first.
func (r *InMemoryInvitationRepository) List() ([]*Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Invitation, 0, len(r.invitations))
	for _, inv := range r.invitations {
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *InMemoryInvitationRepository) SetStatus(id string, status InvitationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invitations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvitationNotFound, id)
	}
	inv.Status = status
	return nil
}
