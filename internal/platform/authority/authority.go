// Package authority issues and validates the bearer tokens that identify the
// registry authority, the only party allowed to create, register and suspend
// certificates.
package authority

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "certregistry/pkg/domain-errors"
	authmw "certregistry/pkg/platform/middleware/auth"
)

// Claims are the JWT claims of an authority token.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// ScopeRegistryWrite grants every mutating registry operation.
const ScopeRegistryWrite = "registry:write"

// TokenService signs and verifies HS256 authority tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	leeway     time.Duration
}

func NewTokenService(signingKey, issuer, audience string) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		leeway:     30 * time.Second,
	}
}

// IssueToken signs a token for subject valid for expiresIn.
func (s *TokenService) IssueToken(subject string, expiresIn time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "token subject is required")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Scope: ScopeRegistryWrite,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// ValidateToken checks signature, expiry, issuer, audience and scope.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(*jwt.Token) (any, error) { return s.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if claims.Scope != ScopeRegistryWrite {
		return nil, dErrors.New(dErrors.CodeForbidden, "token lacks registry scope")
	}
	return claims, nil
}

// Validator adapts TokenService to the auth middleware.
type Validator struct {
	service *TokenService
}

func NewValidator(service *TokenService) *Validator {
	return &Validator{service: service}
}

func (v *Validator) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.Claims{Subject: claims.Subject, JTI: claims.ID}, nil
}
