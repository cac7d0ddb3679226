package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SecretResolver turns a secret://name reference into its value.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// SecretError wraps a failed secret lookup with the normalised reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve %s: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("no secret resolver configured")

// resolveSecret returns plain values unchanged. sm:// references are rewritten to secret://
// before the resolver sees them.
func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	var name string
	switch {
	case strings.HasPrefix(value, "secret://"):
		name = strings.TrimPrefix(value, "secret://")
	case strings.HasPrefix(value, "sm://"):
		name = strings.TrimPrefix(value, "sm://")
	default:
		return value, nil
	}
	ref := "secret://" + name
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}
