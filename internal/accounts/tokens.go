package accounts

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenIssuer hands out opaque session tokens. Tokens are not signed; they
// only mean something to the issuer that created them.
type TokenIssuer struct {
	ttl    time.Duration
	now    func() time.Time
	mu     sync.Mutex
	tokens map[string]session
}

type session struct {
	userID    string
	expiresAt time.Time
}

// Token is returned on login.
type Token struct {
	Value     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewTokenIssuer(ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{ttl: ttl, now: time.Now, tokens: make(map[string]session)}
}

func (t *TokenIssuer) Issue(userID string) Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	tok := Token{
		Value:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: t.now().Add(t.ttl),
	}
	t.tokens[tok.Value] = session{userID: userID, expiresAt: tok.ExpiresAt}
	return tok
}

// Resolve returns the user a token was issued to. Expired tokens are
// forgotten on lookup.
func (t *TokenIssuer) Resolve(token string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	if !t.now().Before(s.expiresAt) {
		delete(t.tokens, token)
		return "", ErrInvalidToken
	}
	return s.userID, nil
}

func (t *TokenIssuer) Revoke(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tokens, token)
}
