// Package session implements the operator authentication gate: issuing
// signed session tokens for valid credentials and authorizing requests that
// present them.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// RoleAdmin is the only role accepted by Authorize.
	RoleAdmin = "admin"

	// DefaultTTL is the lifetime of an issued session.
	DefaultTTL = 24 * time.Hour
)

var (
	// ErrInvalidCredentials is returned by Issue for any credential mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is returned by Authorize for any token that is not acceptable.
	ErrUnauthorized = errors.New("unauthorized")
)

// Claims are the session token claims.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds the process-wide session settings.
type Config struct {
	// Secret signs and verifies tokens (HS256).
	Secret []byte

	// Username and Password are the administrator credentials.
	Username string
	Password string

	// PasswordHash, when set, is a bcrypt hash checked instead of Password.
	PasswordHash string

	// TTL overrides DefaultTTL when positive.
	TTL time.Duration
}

// Gate issues and authorizes operator sessions.
type Gate struct {
	cfg     Config
	revoker Revoker
	now     func() time.Time
	log     *slog.Logger
}

// NewGate creates a stateless gate. Use WithRevoker to enable revocation.
func NewGate(cfg Config, log *slog.Logger) *Gate {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Gate{
		cfg: cfg,
		now: time.Now,
		log: log,
	}
}

// WithRevoker enables the revocation list.
func (g *Gate) WithRevoker(revoker Revoker) *Gate {
	g.revoker = revoker
	return g
}

// WithClock replaces the clock used to issue and check tokens.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// TTL returns the session lifetime.
func (g *Gate) TTL() time.Duration {
	return g.cfg.TTL
}

// Issue checks the credentials and returns a signed session token.
//
// Parameters:
//   - ctx: Request context
//   - username, password: Credentials presented by the operator
//
// Returns:
//   - Signed token and its claims
//   - ErrInvalidCredentials if either field does not match
func (g *Gate) Issue(ctx context.Context, username, password string) (string, *Claims, error) {
	if !g.checkCredentials(username, password) {
		return "", nil, ErrInvalidCredentials
	}

	now := g.now()
	claims := &Claims{
		Username: username,
		Role:     RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.cfg.TTL)),
		},
	}

	token, err := g.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

func (g *Gate) sign(claims *Claims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// checkCredentials evaluates both fields regardless of the first result.
func (g *Gate) checkCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.cfg.Username)) == 1

	var passOK bool
	if g.cfg.PasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(g.cfg.PasswordHash), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(g.cfg.Password)) == 1
	}
	return userOK && passOK
}

// Authorize verifies a session token. Every failure is reported as
// ErrUnauthorized; the cause is only logged at debug level.
func (g *Gate) Authorize(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return g.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil || !parsed.Valid {
		g.log.Debug("Rejected session token", "err", err)
		return nil, ErrUnauthorized
	}
	if claims.Role != RoleAdmin {
		g.log.Debug("Rejected session token", slog.String("role", claims.Role))
		return nil, ErrUnauthorized
	}

	if g.revoker != nil {
		revoked, err := g.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			g.log.Warn("Revocation check failed", "err", err)
			return nil, ErrUnauthorized
		}
		if revoked {
			g.log.Debug("Rejected revoked session token", slog.String("jti", claims.ID))
			return nil, ErrUnauthorized
		}
	}

	return claims, nil
}

// Revoke adds the session to the revocation list until it would expire.
// It is a no-op when revocation is disabled.
func (g *Gate) Revoke(ctx context.Context, claims *Claims) error {
	if g.revoker == nil || claims == nil || claims.ID == "" {
		return nil
	}
	until := g.now().Add(g.cfg.TTL)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	return g.revoker.Revoke(ctx, claims.ID, until)
}
