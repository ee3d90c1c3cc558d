package matrix

import (
	"context"
	"net/http"
	"net/url"
)

// GetDisplayName fetches another user's display name. A user without one
// yields an empty string, not an error.
func (c *Client) GetDisplayName(ctx context.Context, accessToken, userID string) (string, error) {
	const label = clientPrefix + "/profile/_/displayname"

	path := clientPrefix + "/profile/" + url.PathEscape(userID) + "/displayname"
	var result struct {
		DisplayName string `json:"displayname"`
	}
	if err := c.do(ctx, http.MethodGet, path, label, accessToken, nil, &result); err != nil {
		return "", err
	}
	return result.DisplayName, nil
}

// SetDisplayName sets the calling user's own display name.
func (c *Client) SetDisplayName(ctx context.Context, accessToken, userID, displayName string) error {
	const label = clientPrefix + "/profile/_/displayname"

	path := clientPrefix + "/profile/" + url.PathEscape(userID) + "/displayname"
	body := struct {
		DisplayName string `json:"displayname"`
	}{DisplayName: displayName}
	return c.do(ctx, http.MethodPut, path, label, accessToken, body, nil)
}

// GetAvatarURL fetches another user's avatar MXC reference.
func (c *Client) GetAvatarURL(ctx context.Context, accessToken, userID string) (string, error) {
	const label = clientPrefix + "/profile/_/avatar_url"

	path := clientPrefix + "/profile/" + url.PathEscape(userID) + "/avatar_url"
	var result struct {
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.do(ctx, http.MethodGet, path, label, accessToken, nil, &result); err != nil {
		return "", err
	}
	return result.AvatarURL, nil
}

// SetAvatarURL points the calling user's avatar at an uploaded MXC
// reference.
func (c *Client) SetAvatarURL(ctx context.Context, accessToken, userID, avatarURL string) error {
	const label = clientPrefix + "/profile/_/avatar_url"

	path := clientPrefix + "/profile/" + url.PathEscape(userID) + "/avatar_url"
	body := struct {
		AvatarURL string `json:"avatar_url"`
	}{AvatarURL: avatarURL}
	return c.do(ctx, http.MethodPut, path, label, accessToken, body, nil)
}
