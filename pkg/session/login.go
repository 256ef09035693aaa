package session

import (
	"context"
	"fmt"

	"github.com/Sternrassler/postfeed/pkg/client"
	"github.com/Sternrassler/postfeed/pkg/model"
)

// Authenticator is the login/logout half of the authentication endpoints.
// *client.AuthAPI implements it.
type Authenticator interface {
	Login(ctx context.Context, creds client.Credentials) (client.LoginResult, error)
	Logout(ctx context.Context) error
}

// Login authenticates and starts the session with the returned token.
func Login(ctx context.Context, auth Authenticator, s *Session, creds client.Credentials) (model.User, error) {
	res, err := auth.Login(ctx, creds)
	if err != nil {
		return model.User{}, fmt.Errorf("login: %w", err)
	}
	if res.AccessToken == "" {
		return model.User{}, fmt.Errorf("login: empty access token")
	}
	s.Start(res.AccessToken)
	return res.User, nil
}

// Logout revokes the server-side refresh credential and destroys the
// session. The local session is destroyed even when the server call fails.
func Logout(ctx context.Context, auth Authenticator, s *Session) error {
	err := auth.Logout(ctx)
	s.Destroy(nil)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
