package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/mxload/internal/adapters/matrix"
	"github.com/bnema/mxload/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, handler http.Handler) (*Session, *[]domain.TokenUpdate) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var updates []domain.TokenUpdate
	session := NewSession(Config{
		API: &matrix.Client{
			BaseURL:        server.URL,
			HTTPClient:     server.Client(),
			RequestTimeout: 5 * time.Second,
		},
		SyncTimeout:   100 * time.Millisecond,
		OnTokenUpdate: func(u domain.TokenUpdate) { updates = append(updates, u) },
	})
	return session, &updates
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestRegisterCompletesDummyInteractiveAuth(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/register", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			Username string `json:"username"`
			Auth     *struct {
				Type    string `json:"type"`
				Session string `json:"session"`
			} `json:"auth"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "alice.0001", body.Username)

		if body.Auth == nil {
			writeJSON(t, w, http.StatusUnauthorized, map[string]any{
				"flows":   []map[string]any{{"stages": []string{"m.login.dummy"}}},
				"session": "uiaa-session",
			})
			return
		}
		require.Equal(t, "m.login.dummy", body.Auth.Type)
		require.Equal(t, "uiaa-session", body.Auth.Session)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"user_id":      "@alice.0001:example.com",
			"access_token": "token-1",
			"device_id":    "DEV1",
		})
	})

	session, updates := newTestSession(t, mux)
	session.Load(domain.Credential{Username: "alice.0001", Password: "hunter2"})

	require.NoError(t, session.Register(context.Background()))
	assert.EqualValues(t, 2, calls.Load())

	cred := session.Credential()
	assert.Equal(t, "@alice.0001:example.com", cred.UserID)
	assert.Equal(t, "token-1", cred.AccessToken)
	assert.Empty(t, cred.SyncToken)

	require.Len(t, *updates, 1)
	assert.Equal(t, "alice.0001", (*updates)[0].Username)
	assert.Equal(t, "token-1", (*updates)[0].AccessToken)
	assert.Empty(t, (*updates)[0].SyncToken)
}

func TestRegisterUnsupportedFlowIsTerminal(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/register", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{
			"flows":   []map[string]any{{"stages": []string{"m.login.recaptcha", "m.login.dummy"}}},
			"session": "uiaa-session",
		})
	})

	session, updates := newTestSession(t, mux)
	session.Load(domain.Credential{Username: "bob.0002", Password: "hunter2"})

	err := session.Register(context.Background())
	var regErr *domain.RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "bob.0002", regErr.Username)

	// The unsupported flow set must never be answered.
	assert.EqualValues(t, 1, calls.Load())
	assert.Empty(t, *updates)
	assert.False(t, session.Credential().Authenticated())
}

func TestLoginResetsStateAndEmitsEmptyCursor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"user_id":      "@carol.0003:example.com",
			"access_token": "token-3",
			"device_id":    "DEV3",
		})
	})

	session, updates := newTestSession(t, mux)
	session.Load(domain.Credential{
		Username:  "carol.0003",
		Password:  "hunter2",
		SyncToken: "s_stale_cursor",
	})

	require.NoError(t, session.Login(context.Background()))

	cred := session.Credential()
	assert.Equal(t, "token-3", cred.AccessToken)
	assert.Empty(t, cred.SyncToken)
	assert.Empty(t, session.SyncToken())

	require.Len(t, *updates, 1)
	assert.Empty(t, (*updates)[0].SyncToken)
}

func TestLoginFailureLeavesSessionUnauthenticated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]any{
			"errcode": "M_FORBIDDEN",
			"error":   "Invalid password",
		})
	})

	session, updates := newTestSession(t, mux)
	session.Load(domain.Credential{Username: "dave.0004", Password: "wrong"})

	err := session.Login(context.Background())
	require.Error(t, err)
	assert.False(t, session.Credential().Authenticated())
	assert.Empty(t, *updates)
}

func syncHandler(t *testing.T, sinceSeen *[]string, responses []map[string]any) http.Handler {
	var call atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_matrix/client/v3/sync", func(w http.ResponseWriter, r *http.Request) {
		*sinceSeen = append(*sinceSeen, r.URL.Query().Get("since"))
		n := int(call.Add(1)) - 1
		if n >= len(responses) {
			n = len(responses) - 1
		}
		writeJSON(t, w, http.StatusOK, responses[n])
	})
	return mux
}

func TestSyncAdvancesCursorAndFoldsRooms(t *testing.T) {
	events := make([]map[string]any, 0, 12)
	for i := 1; i <= 11; i++ {
		events = append(events, map[string]any{
			"event_id": fmt.Sprintf("$msg-%d", i),
			"type":     "m.room.message",
			"sender":   "",
			"content":  map[string]any{"msgtype": "m.text", "body": "hi"},
		})
	}
	events = append(events, map[string]any{
		"event_id": "$member-1",
		"type":     "m.room.member",
	})

	var sinceSeen []string
	handler := syncHandler(t, &sinceSeen, []map[string]any{
		{
			"next_batch": "s_1",
			"rooms": map[string]any{
				"invite": map[string]any{"!invited:example.com": map[string]any{}},
				"join": map[string]any{
					"!joined:example.com": map[string]any{
						"timeline": map[string]any{"events": events},
					},
				},
			},
		},
		{"next_batch": "s_2"},
	})

	session, _ := newTestSession(t, handler)
	session.Load(domain.Credential{
		Username:    "erin.0005",
		Password:    "hunter2",
		UserID:      "@erin.0005:example.com",
		AccessToken: "token-5",
	})

	require.NoError(t, session.Sync(context.Background()))
	assert.Equal(t, "s_1", session.SyncToken())
	assert.Equal(t, []string{"!invited:example.com"}, session.InvitedRooms())

	// Only messages are cached, bounded at ten, oldest evicted.
	messages := session.RecentMessages("!joined:example.com")
	require.Len(t, messages, 10)
	assert.Equal(t, "$msg-2", messages[0].EventID)
	assert.Equal(t, "$msg-11", messages[9].EventID)

	require.NoError(t, session.Sync(context.Background()))
	assert.Equal(t, "s_2", session.SyncToken())
	assert.Equal(t, []string{"", "s_1"}, sinceSeen)
}

func TestSyncMissingNextBatchKeepsCursor(t *testing.T) {
	var sinceSeen []string
	handler := syncHandler(t, &sinceSeen, []map[string]any{
		{"next_batch": "s_1"},
		{
			"rooms": map[string]any{
				"join": map[string]any{"!new:example.com": map[string]any{}},
			},
		},
	})

	session, _ := newTestSession(t, handler)
	session.Load(domain.Credential{
		Username:    "frank.0006",
		Password:    "hunter2",
		UserID:      "@frank.0006:example.com",
		AccessToken: "token-6",
	})

	require.NoError(t, session.Sync(context.Background()))
	err := session.Sync(context.Background())
	require.ErrorIs(t, err, domain.ErrNoSyncCursor)

	// Failed syncs fold nothing and leave the cursor where it was.
	assert.Equal(t, "s_1", session.SyncToken())
	assert.Empty(t, session.RandomJoinedRoom(rand.New(rand.NewSource(1))))
}

func TestSyncWithoutInviteSectionLeavesInvitesUnchanged(t *testing.T) {
	var sinceSeen []string
	handler := syncHandler(t, &sinceSeen, []map[string]any{
		{
			"next_batch": "s_1",
			"rooms": map[string]any{
				"invite": map[string]any{"!pending:example.com": map[string]any{}},
			},
		},
		{"next_batch": "s_2"},
	})

	session, _ := newTestSession(t, handler)
	session.Load(domain.Credential{
		Username:    "grace.0007",
		Password:    "hunter2",
		UserID:      "@grace.0007:example.com",
		AccessToken: "token-7",
	})

	require.NoError(t, session.Sync(context.Background()))
	require.NoError(t, session.Sync(context.Background()))
	assert.Equal(t, []string{"!pending:example.com"}, session.InvitedRooms())
}

func TestJoinRoomIsIdempotent(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/rooms/{roomID}/join", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusOK, map[string]any{"room_id": "!room:example.com"})
	})

	session, _ := newTestSession(t, mux)
	session.Load(domain.Credential{
		Username:    "henry.0008",
		Password:    "hunter2",
		UserID:      "@henry.0008:example.com",
		AccessToken: "token-8",
	})

	require.NoError(t, session.JoinRoom(context.Background(), "!room:example.com"))
	require.NoError(t, session.JoinRoom(context.Background(), "!room:example.com"))
	assert.EqualValues(t, 1, calls.Load())
}

func TestJoinRoomGivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/rooms/{roomID}/join", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusInternalServerError, map[string]any{
			"errcode": "M_UNKNOWN",
			"error":   "boom",
		})
	})

	session, _ := newTestSession(t, mux)
	session.Load(domain.Credential{
		Username:    "iris.0009",
		Password:    "hunter2",
		UserID:      "@iris.0009:example.com",
		AccessToken: "token-9",
	})

	err := session.JoinRoom(context.Background(), "!room:example.com")
	var opErr *domain.RoomOperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "join", opErr.Op)
	assert.Equal(t, 3, opErr.Attempts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCreateRoomRetriesTransportFailures(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/createRoom", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(t, w, http.StatusBadGateway, map[string]any{"errcode": "M_UNKNOWN"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"room_id": "!created:example.com"})
	})

	session, _ := newTestSession(t, mux)
	session.Load(domain.Credential{
		Username:    "judy.0010",
		Password:    "hunter2",
		UserID:      "@judy.0010:example.com",
		AccessToken: "token-10",
	})

	roomID, err := session.CreateRoom(context.Background(), "Lobby", []string{"@iris.0009:example.com"})
	require.NoError(t, err)
	assert.Equal(t, "!created:example.com", roomID)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCreateRoomNeverRetriesMissingRoomID(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/createRoom", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusOK, map[string]any{})
	})

	session, _ := newTestSession(t, mux)
	session.Load(domain.Credential{
		Username:    "kate.0011",
		Password:    "hunter2",
		UserID:      "@kate.0011:example.com",
		AccessToken: "token-11",
	})

	_, err := session.CreateRoom(context.Background(), "Lobby", nil)
	var opErr *domain.RoomOperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 1, opErr.Attempts)
	assert.EqualValues(t, 1, calls.Load())
}

func TestStopSyncWaitsForLoop(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_matrix/client/v3/sync", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"next_batch": "s_1"})
	})

	session, _ := newTestSession(t, mux)
	session.Load(domain.Credential{
		Username:    "liam.0012",
		Password:    "hunter2",
		UserID:      "@liam.0012:example.com",
		AccessToken: "token-12",
	})

	session.StartSync(context.Background())
	done := make(chan struct{})
	go func() {
		session.StopSync()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StopSync did not return")
	}
	close(release)
}
