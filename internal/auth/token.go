package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL applies when a token is issued without an explicit lifetime.
const DefaultTokenTTL = 30 * time.Minute

// TokenConfig is the immutable signing configuration, loaded once at startup.
type TokenConfig struct {
	Secret     []byte
	Algorithm  string
	DefaultTTL time.Duration
}

// Claims is the identity assertion carried by an access token.
type Claims struct {
	UserID int `json:"id"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HMAC-signed JWT access tokens.
type TokenManager struct {
	secret     []byte
	method     *jwt.SigningMethodHMAC
	defaultTTL time.Duration
	now        func() time.Time
}

// TokenOption customises a TokenManager.
type TokenOption func(*TokenManager)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// NewTokenManager validates cfg and returns a manager bound to it.
func NewTokenManager(cfg TokenConfig, opts ...TokenOption) (*TokenManager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}

	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		return nil, errors.New("token algorithm is required")
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported token algorithm %q", cfg.Algorithm)
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	m := &TokenManager{
		secret:     append([]byte(nil), cfg.Secret...),
		method:     method,
		defaultTTL: ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a token for the user with the default lifetime.
func (m *TokenManager) Issue(subject string, userID int) (string, error) {
	return m.IssueWithTTL(subject, userID, m.defaultTTL)
}

// IssueWithTTL signs a token that expires ttl from now. A non-positive ttl
// yields a token that is already expired.
func (m *TokenManager) IssueWithTTL(subject string, userID int, ttl time.Duration) (string, error) {
	now := m.now().UTC()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(m.method, claims)
	return token.SignedString(m.secret)
}

// Verify checks the signature and expiry of tokenString and returns its claims.
// Every failure wraps ErrInvalidToken; the specific sentinel records why.
func (m *TokenManager) Verify(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(*jwt.Token) (any, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Claims{}, classifyParseError(err)
	}
	if !token.Valid {
		return Claims{}, ErrTokenSignature
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.UserID < 1 {
		return Claims{}, ErrTokenClaims
	}
	return claims, nil
}

// DefaultTTL returns the lifetime used by Issue.
func (m *TokenManager) DefaultTTL() time.Duration {
	return m.defaultTTL
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenSignature, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrTokenClaims, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
