package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// ErrUnauthorized matches every token validation failure.
var ErrUnauthorized = errors.New("could not validate credentials")

// Reasons carried by AuthError. They are for logs only and never reach callers.
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("malformed token")
)

// AuthError is returned by Validate. Its message is identical for every
// reason so responses cannot tell an expired token from a forged one.
type AuthError struct {
	Reason error
}

func (e *AuthError) Error() string { return ErrUnauthorized.Error() }

// Is reports ErrUnauthorized as well as the specific reason.
func (e *AuthError) Is(target error) bool {
	return target == ErrUnauthorized || target == e.Reason
}

// Issuer signs and verifies HMAC JWT bearer tokens.
type Issuer struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
}

// NewIssuer creates an Issuer for an HMAC algorithm (HS256, HS384 or HS512).
func NewIssuer(secret, algorithm string, defaultTTL time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("token issuer: secret is required")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("token issuer: unsupported algorithm %q", algorithm)
	}
	return &Issuer{secret: []byte(secret), method: method, ttl: defaultTTL}, nil
}

// DefaultTTL returns the configured token lifetime.
func (i *Issuer) DefaultTTL() time.Duration { return i.ttl }

// Issue signs a token for username that expires ttl from now. A non-positive
// ttl produces a token that is already expired.
func (i *Issuer) Issue(username string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate verifies signature and expiry and returns the token subject.
func (i *Issuer) Validate(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{i.method.Alg()}))
	if err != nil {
		return "", &AuthError{Reason: classify(err)}
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", &AuthError{Reason: ErrMalformed}
	}
	if claims.ExpiresAt == nil {
		return "", &AuthError{Reason: ErrMalformed}
	}
	return claims.Subject, nil
}

func classify(err error) error {
	var verr *jwt.ValidationError
	if !errors.As(err, &verr) {
		return ErrMalformed
	}
	switch {
	case verr.Errors&jwt.ValidationErrorMalformed != 0:
		return ErrMalformed
	case verr.Errors&(jwt.ValidationErrorSignatureInvalid|jwt.ValidationErrorUnverifiable) != 0:
		return ErrInvalidSignature
	case verr.Errors&jwt.ValidationErrorExpired != 0:
		return ErrExpired
	default:
		return ErrMalformed
	}
}
