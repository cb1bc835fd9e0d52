// Package auth implements the request-time authorization pipeline:
// local JWT validation, the permission resolver with its tiered cache,
// the circuit breaker guarding the authorization service, and the
// service's own OAuth identity.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/relayhq/chat-api/domain"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrBadSignature = errors.New("invalid token signature")
	ErrBadType      = errors.New("token is not an access token")
	ErrBadShape     = errors.New("malformed token")
)

// MissingClaimError reports a required claim absent from an otherwise
// valid token.
type MissingClaimError struct {
	Name string
}

func (e *MissingClaimError) Error() string {
	return fmt.Sprintf("token missing required claim %q", e.Name)
}

// Validator checks access tokens against the shared HMAC secret. It is
// pure: no network, no clock state, safe for concurrent use.
type Validator struct {
	secret    []byte
	algorithm string
}

func NewValidator(secret, algorithm string) *Validator {
	return &Validator{secret: []byte(secret), algorithm: algorithm}
}

// Validate parses and verifies token, returning the caller identity.
// Tokens must be type "access" and carry sub, org_id and exp.
func (v *Validator) Validate(token string) (*domain.AuthContext, error) {
	parsed, err := jwt.Parse(token,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{v.algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return nil, &MissingClaimError{Name: "exp"}
		default:
			return nil, fmt.Errorf("%w: %v", ErrBadShape, err)
		}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrBadShape
	}

	if typ, _ := claims["type"].(string); typ != "access" {
		return nil, ErrBadType
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, &MissingClaimError{Name: "sub"}
	}
	orgID, _ := claims["org_id"].(string)
	if orgID == "" {
		return nil, &MissingClaimError{Name: "org_id"}
	}

	id := &domain.AuthContext{
		UserID: sub,
		OrgID:  orgID,
	}
	if scope, _ := claims["scope"].(string); scope != "" {
		id.Scopes = strings.Fields(scope)
	}
	id.Username, _ = claims["username"].(string)
	id.Email, _ = claims["email"].(string)

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		id.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}

	return id, nil
}
