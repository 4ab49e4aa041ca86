package transport

import (
	"context"
	"net/http"
)

// CredentialProvider computes the bearer credential attached to every
// outbound request. Implementations may refresh sessions under the hood;
// the transport calls Token per request.
type CredentialProvider interface {
	// Token returns the bearer token to send. An error makes the request
	// fail terminally without hitting the network.
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialProvider returning a fixed token.
type StaticToken string

// Token implements CredentialProvider.
func (t StaticToken) Token(_ context.Context) (string, error) {
	return string(t), nil
}

// applyAuth sets the Authorization header from the provider, if configured.
func applyAuth(ctx context.Context, req *http.Request, creds CredentialProvider) error {
	if creds == nil {
		return nil
	}
	token, err := creds.Token(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}
