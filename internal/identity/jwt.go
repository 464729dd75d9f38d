package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway absorbs clock skew between issuer and server.
const DefaultLeeway = 5 * time.Second

// JWTResolver accepts HMAC-SHA256 signed tokens and returns their subject.
type JWTResolver struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// JWTOption customises a JWTResolver.
type JWTOption func(*JWTResolver)

// WithIssuer requires the iss claim to match issuer.
func WithIssuer(issuer string) JWTOption {
	return func(r *JWTResolver) { r.issuer = issuer }
}

// WithClock replaces the time source used for exp/nbf checks.
func WithClock(now func() time.Time) JWTOption {
	return func(r *JWTResolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewJWTResolver builds a resolver for tokens signed with secret.
func NewJWTResolver(secret []byte, opts ...JWTOption) (*JWTResolver, error) {
	if len(secret) == 0 {
		return nil, errors.New("identity: jwt secret is required")
	}
	r := &JWTResolver{
		secret: append([]byte(nil), secret...),
		leeway: DefaultLeeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ResolveOwner implements Resolver.
func (r *JWTResolver) ResolveOwner(_ context.Context, token string) (string, error) {
	if r == nil || token == "" {
		return "", ErrUnauthenticated
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(r.leeway),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(r.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	owner, err := claims.GetSubject()
	if err != nil || owner == "" {
		return "", ErrUnauthenticated
	}
	return owner, nil
}

// Issue signs a token for owner that expires after ttl. A zero ttl yields a
// token without expiry.
func (r *JWTResolver) Issue(owner string, ttl time.Duration) (string, error) {
	if r == nil {
		return "", errors.New("identity: resolver is nil")
	}
	if owner == "" {
		return "", errors.New("identity: owner is required")
	}

	now := r.now()
	claims := jwt.RegisteredClaims{
		Subject:  owner,
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   r.issuer,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
