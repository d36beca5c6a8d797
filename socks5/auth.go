package socks5

import (
	"context"
	"crypto/subtle"
)

// Authenticator checks username/password credentials.
type Authenticator interface {
	Verify(ctx context.Context, username, password string) bool
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, username, password string) bool

// Verify calls f.
func (f AuthenticatorFunc) Verify(ctx context.Context, username, password string) bool {
	return f(ctx, username, password)
}

// StaticCredentials is an Authenticator backed by a username to password map.
type StaticCredentials map[string]string

// Verify compares the password in constant time.
func (c StaticCredentials) Verify(_ context.Context, username, password string) bool {
	want, ok := c[username]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}
