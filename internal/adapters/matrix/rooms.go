package matrix

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type createRoomRequest struct {
	Preset string   `json:"preset"`
	Name   string   `json:"name"`
	Invite []string `json:"invite"`
}

// ErrNoRoomID marks a 2xx createRoom or join response that did not carry a
// room id. Such a response is a failure but must not be retried.
type ErrNoRoomID struct {
	Endpoint string
}

func (e *ErrNoRoomID) Error() string {
	return fmt.Sprintf("%s response missing room_id", e.Endpoint)
}

// CreateRoom creates a private room inviting the given user ids and
// returns the new room id.
func (c *Client) CreateRoom(ctx context.Context, accessToken, name string, inviteUserIDs []string) (string, error) {
	const label = clientPrefix + "/createRoom"

	body := createRoomRequest{
		Preset: "private_chat",
		Name:   name,
		Invite: inviteUserIDs,
	}

	var result struct {
		RoomID string `json:"room_id"`
	}
	if err := c.do(ctx, http.MethodPost, clientPrefix+"/createRoom", label, accessToken, body, &result); err != nil {
		return "", err
	}
	if result.RoomID == "" {
		return "", &ErrNoRoomID{Endpoint: "createRoom"}
	}
	return result.RoomID, nil
}

// JoinRoom accepts an invite (or joins a public room) by room id.
func (c *Client) JoinRoom(ctx context.Context, accessToken, roomID string) (string, error) {
	const label = clientPrefix + "/rooms/_/join"

	path := clientPrefix + "/rooms/" + url.PathEscape(roomID) + "/join"

	var result struct {
		RoomID string `json:"room_id"`
	}
	if err := c.do(ctx, http.MethodPost, path, label, accessToken, struct{}{}, &result); err != nil {
		return "", err
	}
	if result.RoomID == "" {
		return "", &ErrNoRoomID{Endpoint: "join"}
	}
	return result.RoomID, nil
}

type MessagesResponse struct {
	Chunk []Event `json:"chunk"`
	End   string  `json:"end"`
}

// Messages paginates backward from the given token.
func (c *Client) Messages(ctx context.Context, accessToken, roomID, from string) (MessagesResponse, error) {
	const label = clientPrefix + "/rooms/_/messages"

	values := url.Values{}
	values.Set("dir", "b")
	values.Set("from", from)
	path := clientPrefix + "/rooms/" + url.PathEscape(roomID) + "/messages?" + values.Encode()

	var result MessagesResponse
	if err := c.do(ctx, http.MethodGet, path, label, accessToken, nil, &result); err != nil {
		return MessagesResponse{}, err
	}
	return result, nil
}
