package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/backend/internal/infrastructure/config"
)

const testSecret = "test-secret-key-at-least-32-chars"

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:          testSecret,
		Issuer:          "yield-ledger-test",
		TokenExpiration: 15 * time.Minute,
	})
}

func TestIssueAndValidate(t *testing.T) {
	svc := newTestJWTService()
	client := uuid.New()

	issued, err := svc.Issue(IssueInput{Subject: "partner-api", ClientID: client, Scopes: []Scope{ScopeRead, ScopeWrite}})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", issued.TokenType)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), issued.ExpiresAt, 5*time.Second)

	claims, err := svc.Validate(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "partner-api", claims.Subject)
	assert.Equal(t, client, claims.ClientUUID())
	assert.True(t, claims.HasScope(ScopeWrite))
	assert.False(t, claims.HasScope(ScopeAdmin))
	assert.True(t, claims.CanAccessClient(client))
	assert.False(t, claims.CanAccessClient(uuid.New()))
}

func TestPlatformAdminToken(t *testing.T) {
	svc := newTestJWTService()
	issued, err := svc.Issue(IssueInput{Subject: "ops", Scopes: []Scope{ScopeAdmin}})
	require.NoError(t, err)

	claims, err := svc.Validate(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, claims.ClientUUID())
	assert.True(t, claims.HasScope(ScopeRead), "admin implies read")
	assert.True(t, claims.CanAccessClient(uuid.New()))

	t.Run("unbound token without admin reaches no client", func(t *testing.T) {
		issued, err := svc.Issue(IssueInput{Subject: "reporting", Scopes: []Scope{ScopeRead}})
		require.NoError(t, err)
		claims, err := svc.Validate(issued.Token)
		require.NoError(t, err)
		assert.False(t, claims.CanAccessClient(uuid.New()))
	})
}

func TestValidate_Rejections(t *testing.T) {
	svc := newTestJWTService()

	t.Run("expired", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		svc.now = func() time.Time { return past }
		issued, err := svc.Issue(IssueInput{Subject: "x", TTL: time.Minute})
		svc.now = time.Now
		require.NoError(t, err)

		_, err = svc.Validate(issued.Token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "another-secret-key-with-32-chars!", Issuer: "yield-ledger-test", TokenExpiration: time.Minute})
		issued, err := other.Issue(IssueInput{Subject: "x"})
		require.NoError(t, err)
		_, err = svc.Validate(issued.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: testSecret, Issuer: "someone-else", TokenExpiration: time.Minute})
		issued, err := other.Issue(IssueInput{Subject: "x"})
		require.NoError(t, err)
		_, err = svc.Validate(issued.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("non HS256 algorithm", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "x", Issuer: "yield-ledger-test", Audience: jwt.ClaimStrings{"yield-ledger-test"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = svc.Validate(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Validate("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		_, err := svc.Issue(IssueInput{})
		assert.ErrorIs(t, err, ErrMissingSubject)
	})
}

func TestMissingSecret(t *testing.T) {
	svc := NewJWTService(config.JWTConfig{Issuer: "x", TokenExpiration: time.Minute})
	_, err := svc.Issue(IssueInput{Subject: "x"})
	assert.ErrorIs(t, err, ErrMissingSecret)
	_, err = svc.Validate("anything")
	assert.ErrorIs(t, err, ErrMissingSecret)
}
