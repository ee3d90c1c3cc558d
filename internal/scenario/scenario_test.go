package scenario

import (
	"context"
	"encoding/json"
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

func TestForNameKnowsEveryScenario(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		driver, err := ForName(name, Config{})
		require.NoError(t, err)
		assert.Equal(t, name, driver.Name())
	}

	_, err := ForName("stress", Config{})
	require.Error(t, err)
}

func testConfig(t *testing.T, handler http.Handler, updates *[]domain.TokenUpdate) Config {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return Config{
		API: &matrix.Client{
			BaseURL:        server.URL,
			HTTPClient:     server.Client(),
			RequestTimeout: 5 * time.Second,
		},
		SyncTimeout: 100 * time.Millisecond,
		OnTokenUpdate: func(u domain.TokenUpdate) {
			if updates != nil {
				*updates = append(*updates, u)
			}
		},
	}
}

func TestRegisterDriverDoesNotRetryTerminalFailures(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/register", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"flows":   []map[string]any{{"stages": []string{"m.login.recaptcha"}}},
			"session": "uiaa",
		})
	})

	var updates []domain.TokenUpdate
	driver, err := ForName("register", testConfig(t, mux, &updates))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, driver.Run(ctx, []domain.Credential{
		{Username: "user.0001", Password: "p1"},
		{Username: "user.0002", Password: "p2"},
	}))

	// One attempt per user, no resubmission, no token updates.
	assert.EqualValues(t, 2, calls.Load())
	assert.Empty(t, updates)
}

func TestRegisterDriverRetriesTransportFailures(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/register", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user_id":      "@user.0001:example.com",
			"access_token": "t1",
		})
	})

	var updates []domain.TokenUpdate
	driver, err := ForName("register", testConfig(t, mux, &updates))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, driver.Run(ctx, []domain.Credential{
		{Username: "user.0001", Password: "p1"},
	}))

	assert.EqualValues(t, 3, calls.Load())
	require.Len(t, updates, 1)
	assert.Equal(t, "t1", updates[0].AccessToken)
}

func TestInviteAcceptorJoinsDiscoveredInvites(t *testing.T) {
	var joins atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user_id":      "@user.0001:example.com",
			"access_token": "t1",
		})
	})
	mux.HandleFunc("GET /_matrix/client/v3/sync", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"next_batch": "s_1",
			"rooms": map[string]any{
				"invite": map[string]any{"!pending:example.com": map[string]any{}},
			},
		})
	})
	mux.HandleFunc("POST /_matrix/client/v3/rooms/{roomID}/join", func(w http.ResponseWriter, r *http.Request) {
		joins.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"room_id": "!pending:example.com"})
	})

	var updates []domain.TokenUpdate
	driver, err := ForName("accept-invites", testConfig(t, mux, &updates))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, driver.Run(ctx, []domain.Credential{
		{Username: "user.0001", Password: "p1"},
	}))

	assert.EqualValues(t, 1, joins.Load())
	// Login emits one update, the post-sync emit another with the cursor.
	require.Len(t, updates, 2)
	assert.Empty(t, updates[0].SyncToken)
	assert.Equal(t, "s_1", updates[1].SyncToken)
}

func TestRoomCreatorSkipsNonCreators(t *testing.T) {
	var creates atomic.Int64
	var logins atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user_id":      "@user.0001:example.com",
			"access_token": "t1",
		})
	})
	mux.HandleFunc("POST /_matrix/client/v3/createRoom", func(w http.ResponseWriter, r *http.Request) {
		creates.Add(1)
		var body struct {
			Invite []string `json:"invite"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"@user.0002:example.com"}, body.Invite)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"room_id": "!lobby:example.com"})
	})

	cfg := testConfig(t, mux, nil)
	cfg.RoomPlans = domain.RoomAssignment{
		"Lobby": {"user.0001", "user.0002"},
	}
	driver, err := ForName("create-rooms", cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, driver.Run(ctx, []domain.Credential{
		{Username: "user.0001", Password: "p1"},
		{Username: "user.0002", Password: "p2"},
	}))

	// Only the designated creator logs in and creates.
	assert.EqualValues(t, 1, logins.Load())
	assert.EqualValues(t, 1, creates.Load())
}
