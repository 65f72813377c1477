package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"starblog/internal/common"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
)

// SigningAlgorithm is the only algorithm tokens are issued with or accepted in.
const SigningAlgorithm = "HS256"

// TokenService issues and verifies stateless session tokens.
type TokenService struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
	now  func() time.Time
}

func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	return newTokenService(secret, ttl, time.Now)
}

func newTokenService(secret []byte, ttl time.Duration, now func() time.Time) *TokenService {
	s := &TokenService{ttl: ttl, now: now}
	clock := jwxjwt.ClockFunc(func() time.Time { return s.now() })
	s.auth = jwtauth.New(SigningAlgorithm, secret, nil, jwxjwt.WithClock(clock))
	return s
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed token whose subject is username.
func (s *TokenService) Issue(username string) (string, error) {
	if username == "" {
		return "", common.ErrTokenMissingSubject
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	_, tokenString, err := s.auth.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify checks raw and returns its subject. Expiry is reported before the
// signature is checked, so an expired token is always ErrTokenExpired.
func (s *TokenService) Verify(raw string) (string, error) {
	tokenString, err := NormalizeToken(raw)
	if err != nil {
		return "", err
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	}
	if unverified.Method == nil || unverified.Method.Alg() != SigningAlgorithm {
		return "", fmt.Errorf("%w: unexpected signing method %v", common.ErrTokenMalformed, unverified.Header["alg"])
	}
	exp, err := unverified.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return "", fmt.Errorf("%w: missing or invalid exp claim", common.ErrTokenMalformed)
	}
	if s.now().After(exp.Time) {
		return "", common.ErrTokenExpired
	}

	token, err := jwtauth.VerifyToken(s.auth, tokenString)
	if err != nil {
		if errors.Is(err, jwtauth.ErrExpired) {
			return "", common.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	}

	subject := token.Subject()
	if subject == "" {
		return "", common.ErrTokenMissingSubject
	}
	return subject, nil
}

// NormalizeToken strips an optional auth scheme and quoting, and removes
// base64 padding from each segment so padded and unpadded forms both parse.
func NormalizeToken(raw string) (string, error) {
	token := strings.TrimSpace(raw)
	token = strings.Trim(token, `"`)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", common.ErrUnauthenticated
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", common.ErrTokenMalformed, len(parts))
	}
	for i, part := range parts {
		parts[i] = strings.TrimRight(part, "=")
		if parts[i] == "" {
			return "", fmt.Errorf("%w: empty segment", common.ErrTokenMalformed)
		}
	}
	return strings.Join(parts, "."), nil
}
