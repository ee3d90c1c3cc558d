package matrix

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// ReactionContent is the content of an m.reaction event.
type ReactionContent struct {
	RelatesTo RelatesTo `json:"m.relates_to"`
}

type RelatesTo struct {
	RelType string `json:"rel_type"`
	EventID string `json:"event_id"`
	Key     string `json:"key"`
}

// SendEvent PUTs one room event with a fresh client-generated transaction
// id and returns the event id the server assigned.
func (c *Client) SendEvent(ctx context.Context, accessToken, roomID, eventType string, content any) (string, error) {
	label := clientPrefix + "/rooms/_/send/" + eventType

	txnID := uuid.NewString()
	path := clientPrefix + "/rooms/" + url.PathEscape(roomID) + "/send/" +
		url.PathEscape(eventType) + "/" + txnID

	var result struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(ctx, http.MethodPut, path, label, accessToken, content, &result); err != nil {
		return "", err
	}
	return result.EventID, nil
}

type typingRequest struct {
	Typing  bool  `json:"typing"`
	Timeout int64 `json:"timeout"`
}

// SetTyping sets or clears the user's typing indicator in a room. The
// 10-second timeout mirrors what stock clients send.
func (c *Client) SetTyping(ctx context.Context, accessToken, roomID, userID string, typing bool) error {
	const label = clientPrefix + "/rooms/_/typing/_"

	path := clientPrefix + "/rooms/" + url.PathEscape(roomID) + "/typing/" + url.PathEscape(userID)
	body := typingRequest{Typing: typing, Timeout: 10_000}
	return c.do(ctx, http.MethodPut, path, label, accessToken, body, nil)
}

type receiptRequest struct {
	ThreadID string `json:"thread_id"`
}

// SendReadReceipt marks the given event as read on the main thread.
func (c *Client) SendReadReceipt(ctx context.Context, accessToken, roomID, eventID string) error {
	const label = clientPrefix + "/rooms/_/receipt/m.read/_"

	path := clientPrefix + "/rooms/" + url.PathEscape(roomID) + "/receipt/m.read/" + url.PathEscape(eventID)
	return c.do(ctx, http.MethodPost, path, label, accessToken, receiptRequest{ThreadID: "main"}, nil)
}
