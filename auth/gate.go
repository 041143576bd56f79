/*
Package auth implements the shared-credential access gate.

PURPOSE:
  Every operator shares one access password. A successful login opens a
  fresh session and returns a signed token whose subject is the session id,
  so each browser tab gets its own isolated tables.

TOKENS:
  HS256 JWT, issuer "partner-settlement", subject = session id,
  expiry = login time + TTL. Anything else is rejected.

SEE ALSO:
  - session/registry.go: Sessions keyed by the token subject
  - api/server.go: Bearer middleware
*/
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/partner-settlement/settlement"
)

const issuer = "partner-settlement"

// Gate checks the shared password and issues session tokens.
type Gate struct {
	secret       []byte
	tokenTTL     time.Duration
	passwordHash []byte
	now          func() time.Time
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	SessionID   string    `json:"session_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Claims is what a verified token carries.
type Claims struct {
	SessionID string
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
}

// NewGate builds a gate from either a bcrypt hash or a plain password.
// The hash wins when both are set; a plain password is hashed once here.
func NewGate(password, passwordHash, secret string, tokenTTL time.Duration) (*Gate, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	hash := strings.TrimSpace(passwordHash)
	switch {
	case hash != "":
		if !isPasswordHash(hash) {
			return nil, errors.New("access password hash is not a bcrypt hash")
		}
	case password != "":
		h, err := hashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash access password: %w", err)
		}
		hash = h
	default:
		return nil, errors.New("an access password or password hash is required")
	}

	return &Gate{
		secret:       []byte(secret),
		tokenTTL:     tokenTTL,
		passwordHash: []byte(hash),
		now:          time.Now,
	}, nil
}

// WithClock replaces the gate clock. Used by tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Login verifies password and issues a token for a new session id.
func (g *Gate) Login(password string) (Token, error) {
	if password == "" || bcrypt.CompareHashAndPassword(g.passwordHash, []byte(password)) != nil {
		return Token{}, settlement.ErrUnauthorized
	}

	sessionID := uuid.NewString()
	issuedAt := g.now().UTC()
	expiresAt := issuedAt.Add(g.tokenTTL)
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sessionID,
			Issuer:    issuer,
			IssuedAt:  jwtlib.NewNumericDate(issuedAt),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return Token{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return Token{AccessToken: signed, SessionID: sessionID, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

// ParseToken verifies a token and returns its claims.
func (g *Gate) ParseToken(tokenStr string) (Claims, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return g.secret, nil
	},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(g.now),
	)
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("invalid or expired token: %w", settlement.ErrUnauthorized)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, fmt.Errorf("invalid token subject: %w", settlement.ErrUnauthorized)
	}
	return Claims{SessionID: sub, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}

func hashPassword(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func isPasswordHash(v string) bool {
	return strings.HasPrefix(v, "$2a$") || strings.HasPrefix(v, "$2b$") || strings.HasPrefix(v, "$2y$")
}
