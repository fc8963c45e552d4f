// Package auth issues and validates the HS256 service tokens that callers of
// the ledger API present as bearer credentials.
package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yieldvault/backend/internal/infrastructure/config"
)

// Scope grants access to a class of API operations
type Scope string

const (
	ScopeRead  Scope = "ledger:read"
	ScopeWrite Scope = "ledger:write"
	// ScopeAdmin covers vault onboarding, fee configuration and reconciliation triggers
	ScopeAdmin Scope = "ledger:admin"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingSubject   = errors.New("missing subject in claims")
	ErrMissingSecret    = errors.New("jwt secret is not configured")
)

// Claims are the claims of a service token. A token bound to a client only
// reaches that client's vaults and accounts; an unbound token with the admin
// scope reaches every client.
type Claims struct {
	jwt.RegisteredClaims
	ClientID string  `json:"client_id,omitempty"`
	Scopes   []Scope `json:"scopes"`
}

// IssueInput describes a service token to mint
type IssueInput struct {
	Subject  string
	ClientID uuid.UUID // uuid.Nil for platform tokens
	Scopes   []Scope
	TTL      time.Duration // zero uses the configured expiration
}

// IssuedToken is a signed token with its expiry
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenType string    `json:"token_type"` // Bearer
}

// JWTService signs and validates service tokens
type JWTService struct {
	secret     []byte
	expiration time.Duration
	issuer     string
	now        func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:     []byte(cfg.Secret),
		expiration: cfg.TokenExpiration,
		issuer:     cfg.Issuer,
		now:        time.Now,
	}
}

// Issue signs a new service token
func (s *JWTService) Issue(in IssueInput) (*IssuedToken, error) {
	if len(s.secret) == 0 {
		return nil, ErrMissingSecret
	}
	if in.Subject == "" {
		return nil, ErrMissingSubject
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.expiration
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   in.Subject,
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Scopes: in.Scopes,
	}
	if in.ClientID != uuid.Nil {
		claims.ClientID = in.ClientID.String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: signed, ExpiresAt: now.Add(ttl), TokenType: "Bearer"}, nil
}

// Validate parses tokenString and checks signature, issuer, audience and time claims
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrMissingSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	if claims.ClientID != "" {
		if _, err := uuid.Parse(claims.ClientID); err != nil {
			return nil, ErrInvalidClaims
		}
	}
	return claims, nil
}

// HasScope reports whether the token carries scope. Admin implies every scope.
func (c *Claims) HasScope(scope Scope) bool {
	return slices.Contains(c.Scopes, scope) || slices.Contains(c.Scopes, ScopeAdmin)
}

// ClientUUID returns the bound client, or uuid.Nil for platform tokens
func (c *Claims) ClientUUID() uuid.UUID {
	id, err := uuid.Parse(c.ClientID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// CanAccessClient reports whether the token may act on clientID
func (c *Claims) CanAccessClient(clientID uuid.UUID) bool {
	if c.ClientID == "" {
		return slices.Contains(c.Scopes, ScopeAdmin)
	}
	return c.ClientUUID() == clientID
}
