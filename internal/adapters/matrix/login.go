package matrix

import (
	"context"
	"errors"
	"net/http"
)

type LoginResult struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

type loginRequest struct {
	Type       string          `json:"type"`
	Identifier loginIdentifier `json:"identifier"`
	Password   string          `json:"password"`
}

type loginIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// Login performs a password-grant login. No retry: the caller owns the
// decision to try again.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	const label = clientPrefix + "/login"

	body := loginRequest{
		Type:       "m.login.password",
		Identifier: loginIdentifier{Type: "m.id.user", User: username},
		Password:   password,
	}

	var result LoginResult
	if err := c.do(ctx, http.MethodPost, clientPrefix+"/login", label, "", body, &result); err != nil {
		return LoginResult{}, err
	}
	if result.UserID == "" || result.AccessToken == "" {
		return LoginResult{}, errors.New("login response missing user_id or access_token")
	}
	return result, nil
}

// Logout revokes the access token.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	const label = clientPrefix + "/logout"
	return c.do(ctx, http.MethodPost, clientPrefix+"/logout", label, accessToken, nil, nil)
}
