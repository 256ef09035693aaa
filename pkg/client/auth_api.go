package client

import (
	"context"
	"net/http"

	"github.com/Sternrassler/postfeed/pkg/model"
)

// Credentials identify an account at login. Either Email or Username is set.
type Credentials struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// SignupRequest creates a new account.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken string     `json:"accessToken"`
	User        model.User `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// AuthAPI calls the authentication endpoints. They bypass the session
// renewer: the refresh token travels in a cookie held by the transport.
type AuthAPI struct {
	client *Client
}

// NewAuthAPI creates the authentication endpoint client.
func NewAuthAPI(c *Client) *AuthAPI {
	return &AuthAPI{client: c}
}

// Signup creates an account.
func (a *AuthAPI) Signup(ctx context.Context, in SignupRequest) (model.User, error) {
	var user model.User
	err := a.call(ctx, http.MethodPost, "/auth/signup", in, &user)
	return user, err
}

// Login exchanges credentials for an access token and a refresh cookie.
func (a *AuthAPI) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var res LoginResult
	err := a.call(ctx, http.MethodPost, "/auth/login", creds, &res)
	return res, err
}

// Refresh exchanges the refresh cookie for a new access token.
// A 401 here means the session cannot be renewed.
func (a *AuthAPI) Refresh(ctx context.Context) (string, error) {
	var res refreshResponse
	if err := a.call(ctx, http.MethodPost, "/auth/refresh-token", nil, &res); err != nil {
		return "", err
	}
	if res.AccessToken == "" {
		return "", &APIError{
			StatusCode: http.StatusOK,
			Kind:       ErrorKindAuth,
			Message:    "refresh returned no access token",
		}
	}
	return res.AccessToken, nil
}

// Logout revokes the refresh token server side.
func (a *AuthAPI) Logout(ctx context.Context) error {
	return a.call(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (a *AuthAPI) call(ctx context.Context, method, path string, body, out any) error {
	req, err := a.client.NewRequest(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	return DecodeResponse(resp, out)
}
