package matrix

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Event is one timeline event as delivered by /sync or /messages. Content
// keeps only the fields the load generator inspects.
type Event struct {
	EventID string       `json:"event_id"`
	Type    string       `json:"type"`
	Sender  string       `json:"sender"`
	Content EventContent `json:"content"`
}

type EventContent struct {
	MsgType      string `json:"msgtype,omitempty"`
	Body         string `json:"body,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// IsMessage reports whether the event is a room chat message rather than a
// state update or ephemeral event.
func (e Event) IsMessage() bool {
	return e.Type == "m.room.message" || e.Type == "m.room.encrypted"
}

type SyncResponse struct {
	NextBatch string    `json:"next_batch"`
	Rooms     SyncRooms `json:"rooms"`
}

type SyncRooms struct {
	Invite map[string]struct{}       `json:"invite"`
	Join   map[string]SyncJoinedRoom `json:"join"`
}

type SyncJoinedRoom struct {
	Timeline struct {
		Events []Event `json:"events"`
	} `json:"timeline"`
}

// Sync issues one long-poll /sync. The since cursor travels as a query
// parameter, never in the body: homeservers only implement incremental
// sync correctly for the query form. An empty since performs an initial
// sync.
func (c *Client) Sync(ctx context.Context, accessToken, since string, timeout time.Duration) (SyncResponse, error) {
	const label = clientPrefix + "/sync"

	values := url.Values{}
	values.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	if since != "" {
		values.Set("since", since)
	}

	// The HTTP deadline must outlive the server-side long-poll window.
	syncClient := *c
	if syncClient.RequestTimeout <= timeout {
		syncClient.RequestTimeout = timeout + 30*time.Second
	}

	var result SyncResponse
	path := clientPrefix + "/sync?" + values.Encode()
	if err := syncClient.do(ctx, http.MethodGet, path, label, accessToken, nil, &result); err != nil {
		return SyncResponse{}, err
	}
	return result, nil
}
