package auth

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when no valid token is available. The
// connection is not attempted; the host app must re-authenticate first.
var ErrUnauthenticated = errors.New("auth: no valid token")

// TokenSource supplies the auth token used to connect. Owned by the host
// application; token issuance and refresh happen outside this library.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a TokenSource that always yields the given
// token, or ErrUnauthenticated if it is empty.
func StaticTokenSource(token string) TokenSource {
	return staticSource(token)
}

type staticSource string

func (s staticSource) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrUnauthenticated
	}
	return string(s), nil
}
