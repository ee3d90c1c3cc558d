// Package client implements the virtual chat client: a per-user protocol
// state machine driven by a foreground action scheduler while a background
// task keeps long-poll sync running.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/bnema/mxload/internal/adapters/matrix"
	"github.com/bnema/mxload/internal/domain"
	"github.com/bnema/mxload/internal/metrics"
	"go.uber.org/zap"
)

const roomOpAttempts = 3

// Config assembles a session's collaborators.
type Config struct {
	Log *zap.Logger
	API *matrix.Client

	// SyncTimeout is the server-side long-poll window. Defaults to 30s.
	SyncTimeout time.Duration

	// OnTokenUpdate is invoked whenever the session gains or refreshes
	// credentials worth persisting. May be nil.
	OnTokenUpdate func(domain.TokenUpdate)
}

// Session is one virtual client. A single worker slot loads many
// credentials into the same Session over a run; each load resets the
// state. The mutex guards cred and state against the background sync task
// and the foreground scheduler mutating them concurrently.
type Session struct {
	log           *zap.Logger
	api           *matrix.Client
	syncTimeout   time.Duration
	onTokenUpdate func(domain.TokenUpdate)

	mu    sync.Mutex
	cred  domain.Credential
	state *State

	syncCancel context.CancelFunc
	syncDone   chan struct{}
}

func NewSession(cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	syncTimeout := cfg.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = 30 * time.Second
	}
	return &Session{
		log:           log,
		api:           cfg.API,
		syncTimeout:   syncTimeout,
		onTokenUpdate: cfg.OnTokenUpdate,
		state:         NewState(),
	}
}

// Load installs a roster credential into this session slot and resets all
// per-user state. Stored tokens are honored; a stored sync cursor is not
// trusted until the first sync rediscovers one.
func (s *Session) Load(cred domain.Credential) {
	cred.Normalize()

	s.mu.Lock()
	wasAuthenticated := s.cred.Authenticated()
	s.cred = cred
	s.state = NewState()
	s.mu.Unlock()

	if wasAuthenticated && !cred.Authenticated() {
		metrics.ActiveSessions.Dec()
	} else if !wasAuthenticated && cred.Authenticated() {
		metrics.ActiveSessions.Inc()
	}
}

// Credential returns a copy of the session's current credential.
func (s *Session) Credential() domain.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred.Username
}

// Register creates the account. Terminal registration errors (unsupported
// interactive-auth flows) come back as *domain.RegistrationError and must
// not be retried by the caller.
func (s *Session) Register(ctx context.Context) error {
	s.mu.Lock()
	username, password := s.cred.Username, s.cred.Password
	s.mu.Unlock()

	if username == "" || password == "" {
		return domain.ErrMissingCredentials
	}

	result, err := s.api.Register(ctx, username, password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	wasAuthenticated := s.cred.Authenticated()
	s.cred.UserID = result.UserID
	s.cred.AccessToken = result.AccessToken
	s.cred.DeviceID = result.DeviceID
	s.cred.SyncToken = ""
	s.mu.Unlock()

	if !wasAuthenticated {
		metrics.ActiveSessions.Inc()
	}
	s.log.Info("registered", zap.String("user", username), zap.String("user_id", result.UserID))
	s.emitTokenUpdate()
	return nil
}

// Login performs a password login, resetting all session state first. No
// internal retry: the caller decides whether and when to try again. The
// emitted token update carries an empty sync cursor; the cursor is
// rediscovered by the first sync rather than trusted from a prior run.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	username, password := s.cred.Username, s.cred.Password
	s.mu.Unlock()

	if username == "" || password == "" {
		return domain.ErrMissingCredentials
	}

	result, err := s.api.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login %s: %w", username, err)
	}

	s.mu.Lock()
	wasAuthenticated := s.cred.Authenticated()
	s.cred.UserID = result.UserID
	s.cred.AccessToken = result.AccessToken
	s.cred.DeviceID = result.DeviceID
	s.cred.SyncToken = ""
	s.state = NewState()
	s.mu.Unlock()

	if !wasAuthenticated {
		metrics.ActiveSessions.Inc()
	}
	s.emitTokenUpdate()
	return nil
}

// Logout stops the background sync task, then revokes the token. The
// order matters: no sync may still be advancing the cursor once the token
// is gone.
func (s *Session) Logout(ctx context.Context) {
	s.StopSync()

	s.mu.Lock()
	token := s.cred.AccessToken
	username := s.cred.Username
	s.cred.AccessToken = ""
	s.cred.UserID = ""
	s.cred.DeviceID = ""
	wasAuthenticated := token != ""
	s.mu.Unlock()

	if token == "" {
		return
	}
	if err := s.api.Logout(ctx, token); err != nil {
		s.log.Warn("logout failed", zap.String("user", username), zap.Error(err))
	}
	if wasAuthenticated {
		metrics.ActiveSessions.Dec()
	}
}

// Sync performs one long-poll sync and folds the response into session
// state. A response without a next-batch cursor counts as a failed sync:
// the old cursor is kept and domain.ErrNoSyncCursor returned.
func (s *Session) Sync(ctx context.Context) error {
	s.mu.Lock()
	token := s.cred.AccessToken
	since := s.state.SyncToken
	username := s.cred.Username
	s.mu.Unlock()

	if token == "" {
		return fmt.Errorf("sync %s: no access token", username)
	}

	resp, err := s.api.Sync(ctx, token, since, s.syncTimeout)
	if err != nil {
		metrics.SyncFailures.Inc()
		return err
	}
	if resp.NextBatch == "" {
		metrics.SyncFailures.Inc()
		return domain.ErrNoSyncCursor
	}

	var refreshRoom string
	s.mu.Lock()
	state := s.state
	state.SyncToken = resp.NextBatch
	s.cred.SyncToken = resp.NextBatch
	if state.InitialSyncToken == "" {
		state.InitialSyncToken = resp.NextBatch
	}

	for roomID := range resp.Rooms.Invite {
		if roomID == "" {
			continue
		}
		if _, joined := state.JoinedRoomIDs[roomID]; joined {
			continue
		}
		state.InvitedRoomIDs[roomID] = struct{}{}
	}

	for roomID, room := range resp.Rooms.Join {
		state.markJoined(roomID)
		var messages []matrix.Event
		for _, event := range room.Timeline.Events {
			if event.IsMessage() {
				messages = append(messages, event)
			}
		}
		state.appendMessages(roomID, messages)
		if roomID == state.CurrentRoom {
			refreshRoom = roomID
		}
	}
	s.mu.Unlock()

	if refreshRoom != "" {
		s.loadRoomData(ctx, refreshRoom)
	}
	return nil
}

// SyncToken returns the current cursor, empty before the first successful
// sync.
func (s *Session) SyncToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SyncToken
}

// CreateRoom creates a private room and invites the given user ids.
// Transport failures are retried up to three attempts total; a 2xx
// response without a room id is a creation failure that is never retried.
func (s *Session) CreateRoom(ctx context.Context, name string, inviteUserIDs []string) (string, error) {
	s.mu.Lock()
	token := s.cred.AccessToken
	username := s.cred.Username
	s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= roomOpAttempts; attempt++ {
		roomID, err := s.api.CreateRoom(ctx, token, name, inviteUserIDs)
		if err == nil {
			s.mu.Lock()
			s.state.markJoined(roomID)
			s.mu.Unlock()
			s.log.Info("created room",
				zap.String("user", username), zap.String("room", roomID), zap.String("name", name))
			return roomID, nil
		}

		var noID *matrix.ErrNoRoomID
		if errors.As(err, &noID) {
			return "", &domain.RoomOperationError{Op: "create", Room: name, Attempts: attempt, Err: err}
		}
		lastErr = err
		s.log.Info("room creation attempt failed",
			zap.String("user", username), zap.String("name", name),
			zap.Int("attempt", attempt), zap.Error(err))
	}
	return "", &domain.RoomOperationError{Op: "create", Room: name, Attempts: roomOpAttempts, Err: lastErr}
}

// JoinRoom accepts an invite. Idempotent: an already-joined room returns
// immediately with no network call. Up to three attempts; exhaustion is a
// non-fatal RoomOperationError and the caller moves on.
func (s *Session) JoinRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	if _, joined := s.state.JoinedRoomIDs[roomID]; joined {
		s.mu.Unlock()
		return nil
	}
	token := s.cred.AccessToken
	username := s.cred.Username
	s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= roomOpAttempts; attempt++ {
		if _, err := s.api.JoinRoom(ctx, token, roomID); err != nil {
			lastErr = err
			s.log.Info("join attempt failed",
				zap.String("user", username), zap.String("room", roomID),
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		s.mu.Lock()
		s.state.markJoined(roomID)
		s.mu.Unlock()
		s.log.Info("joined room", zap.String("user", username), zap.String("room", roomID))
		s.loadRoomData(ctx, roomID)
		return nil
	}
	return &domain.RoomOperationError{Op: "join", Room: roomID, Attempts: roomOpAttempts, Err: lastErr}
}

// InvitedRooms returns a snapshot of pending invites.
func (s *Session) InvitedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]string, 0, len(s.state.InvitedRoomIDs))
	for roomID := range s.state.InvitedRoomIDs {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// RandomJoinedRoom picks one joined room, or "" when there is none.
func (s *Session) RandomJoinedRoom(rng *rand.Rand) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.JoinedRoomIDs) == 0 {
		return ""
	}
	n := rng.Intn(len(s.state.JoinedRoomIDs))
	for roomID := range s.state.JoinedRoomIDs {
		if n == 0 {
			return roomID
		}
		n--
	}
	return ""
}

// SetCurrentRoom marks the room the simulated user is looking at; sync
// refreshes its auxiliary data on every update.
func (s *Session) SetCurrentRoom(roomID string) {
	s.mu.Lock()
	s.state.CurrentRoom = roomID
	s.mu.Unlock()
}

// SendText sends a text message. Fire and forget: failures are logged,
// never retried, never escalated.
func (s *Session) SendText(ctx context.Context, roomID, body string) {
	s.mu.Lock()
	token := s.cred.AccessToken
	username := s.cred.Username
	s.mu.Unlock()

	content := matrix.MessageContent{MsgType: "m.text", Body: body}
	if _, err := s.api.SendEvent(ctx, token, roomID, "m.room.message", content); err != nil {
		s.log.Warn("send message failed",
			zap.String("user", username), zap.String("room", roomID), zap.Error(err))
		return
	}
	metrics.MessagesSent.Inc()
}

// SendReaction reacts to an event. Fire and forget.
func (s *Session) SendReaction(ctx context.Context, roomID, eventID, key string) {
	s.mu.Lock()
	token := s.cred.AccessToken
	username := s.cred.Username
	s.mu.Unlock()

	content := matrix.ReactionContent{RelatesTo: matrix.RelatesTo{
		RelType: "m.annotation",
		EventID: eventID,
		Key:     key,
	}}
	if _, err := s.api.SendEvent(ctx, token, roomID, "m.reaction", content); err != nil {
		s.log.Warn("send reaction failed",
			zap.String("user", username), zap.String("room", roomID), zap.Error(err))
	}
}

// SetTyping toggles the typing indicator. Fire and forget.
func (s *Session) SetTyping(ctx context.Context, roomID string, typing bool) {
	s.mu.Lock()
	token := s.cred.AccessToken
	userID := s.cred.UserID
	username := s.cred.Username
	s.mu.Unlock()

	if err := s.api.SetTyping(ctx, token, roomID, userID, typing); err != nil {
		s.log.Warn("set typing failed",
			zap.String("user", username), zap.String("room", roomID), zap.Error(err))
	}
}

// SendReadReceipt marks an event read. Fire and forget.
func (s *Session) SendReadReceipt(ctx context.Context, roomID, eventID string) {
	s.mu.Lock()
	token := s.cred.AccessToken
	username := s.cred.Username
	s.mu.Unlock()

	if err := s.api.SendReadReceipt(ctx, token, roomID, eventID); err != nil {
		s.log.Warn("read receipt failed",
			zap.String("user", username), zap.String("room", roomID), zap.Error(err))
	}
}

// SetDisplayName changes the user's own display name. Fire and forget.
func (s *Session) SetDisplayName(ctx context.Context, displayName string) {
	s.mu.Lock()
	token := s.cred.AccessToken
	userID := s.cred.UserID
	username := s.cred.Username
	s.mu.Unlock()

	if userID == "" {
		s.log.Warn("cannot set displayname without a user id", zap.String("user", username))
		return
	}
	if err := s.api.SetDisplayName(ctx, token, userID, displayName); err != nil {
		s.log.Warn("set displayname failed", zap.String("user", username), zap.Error(err))
	}
}

// PaginateBackward fetches older messages for a room and advances its
// backward-pagination cursor. Before any pagination the initial sync
// cursor seeds the walk.
func (s *Session) PaginateBackward(ctx context.Context, roomID string) {
	s.mu.Lock()
	token := s.cred.AccessToken
	username := s.cred.Username
	from, ok := s.state.PaginationTokens[roomID]
	if !ok {
		from = s.state.InitialSyncToken
	}
	s.mu.Unlock()

	if from == "" {
		return
	}
	resp, err := s.api.Messages(ctx, token, roomID, from)
	if err != nil {
		s.log.Warn("paginate failed",
			zap.String("user", username), zap.String("room", roomID), zap.Error(err))
		return
	}
	if resp.End != "" {
		s.mu.Lock()
		s.state.PaginationTokens[roomID] = resp.End
		s.mu.Unlock()
	}
}

// LookAtRoom simulates opening a room: auxiliary data is refreshed and the
// newest cached message gets a read receipt.
func (s *Session) LookAtRoom(ctx context.Context, roomID string) {
	s.loadRoomData(ctx, roomID)

	s.mu.Lock()
	messages := s.state.RecentMessages[roomID]
	var eventID string
	if len(messages) > 0 {
		eventID = messages[len(messages)-1].EventID
	}
	s.mu.Unlock()

	if eventID != "" {
		s.SendReadReceipt(ctx, roomID, eventID)
	}
}

// RecentMessages returns a copy of a room's cached messages.
func (s *Session) RecentMessages(roomID string) []matrix.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := s.state.RecentMessages[roomID]
	out := make([]matrix.Event, len(messages))
	copy(out, messages)
	return out
}

// RefreshRoom reloads a room's auxiliary display data without sending a
// read receipt.
func (s *Session) RefreshRoom(ctx context.Context, roomID string) {
	s.loadRoomData(ctx, roomID)
}

// loadRoomData mimics what a client renders when a room is on screen:
// sender display names and avatars, plus thumbnails for media messages.
// Every fetched media reference is downloaded at most once per session.
func (s *Session) loadRoomData(ctx context.Context, roomID string) {
	s.mu.Lock()
	token := s.cred.AccessToken
	messages := make([]matrix.Event, len(s.state.RecentMessages[roomID]))
	copy(messages, s.state.RecentMessages[roomID])
	s.mu.Unlock()

	for _, message := range messages {
		sender := message.Sender
		if sender == "" {
			continue
		}

		s.mu.Lock()
		avatarURL, haveAvatar := s.state.AvatarURLs[sender]
		_, haveName := s.state.DisplayNames[sender]
		s.mu.Unlock()

		if !haveAvatar {
			url, err := s.api.GetAvatarURL(ctx, token, sender)
			if err == nil {
				s.mu.Lock()
				s.state.AvatarURLs[sender] = url
				s.mu.Unlock()
				avatarURL = url
			}
		}
		if avatarURL != "" {
			s.downloadOnce(ctx, token, avatarURL)
		}
		if !haveName {
			name, err := s.api.GetDisplayName(ctx, token, sender)
			if err == nil {
				s.mu.Lock()
				s.state.DisplayNames[sender] = name
				s.mu.Unlock()
			}
		}
	}

	for _, message := range messages {
		switch message.Content.MsgType {
		case "m.image", "m.video", "m.file":
			if message.Content.ThumbnailURL != "" {
				s.downloadOnce(ctx, token, message.Content.ThumbnailURL)
			}
		}
	}
}

func (s *Session) downloadOnce(ctx context.Context, token, mxc string) {
	s.mu.Lock()
	if _, done := s.state.MediaDownloaded[mxc]; done {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.api.DownloadMedia(ctx, token, mxc); err != nil {
		s.log.Warn("media download failed", zap.String("mxc", mxc), zap.Error(err))
	}
	// Cached regardless of outcome so a broken reference is not refetched.
	s.mu.Lock()
	s.state.MediaDownloaded[mxc] = struct{}{}
	s.mu.Unlock()
}

// EmitTokenUpdate publishes the session's current credential, including
// its sync cursor, to the coordinator.
func (s *Session) EmitTokenUpdate() {
	s.emitTokenUpdate()
}

func (s *Session) emitTokenUpdate() {
	if s.onTokenUpdate == nil {
		return
	}
	s.mu.Lock()
	update := domain.TokenUpdate{
		Username:    s.cred.Username,
		UserID:      s.cred.UserID,
		AccessToken: s.cred.AccessToken,
		SyncToken:   s.cred.SyncToken,
	}
	s.mu.Unlock()
	s.onTokenUpdate(update)
}
