// Package identity resolves bearer credentials to owner ids. Authentication
// itself lives elsewhere; this package only verifies what it is handed.
package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrUnauthenticated is returned when a credential does not map to an owner.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Resolver maps a bearer credential to the owner it identifies.
type Resolver interface {
	ResolveOwner(ctx context.Context, token string) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, token string) (string, error)

// ResolveOwner calls f.
func (f ResolverFunc) ResolveOwner(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// Chain tries each resolver in order and returns the first owner found.
// Errors other than ErrUnauthenticated stop the chain.
type Chain []Resolver

// ResolveOwner implements Resolver.
func (c Chain) ResolveOwner(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthenticated
	}
	for _, resolver := range c {
		if resolver == nil {
			continue
		}
		owner, err := resolver.ResolveOwner(ctx, token)
		switch {
		case err == nil && owner != "":
			return owner, nil
		case err == nil, errors.Is(err, ErrUnauthenticated):
			continue
		default:
			return "", err
		}
	}
	return "", ErrUnauthenticated
}
