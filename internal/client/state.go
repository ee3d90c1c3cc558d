package client

import "github.com/bnema/mxload/internal/adapters/matrix"

// maxRecentMessages bounds the per-room message cache: only the newest ten
// messages matter to a simulated user, oldest evicted first.
const maxRecentMessages = 10

// State is a virtual client's view of the world, rebuilt from scratch each
// time a new credential is loaded into the session slot. All access goes
// through the session mutex: the background sync task and the foreground
// scheduler both touch it.
type State struct {
	JoinedRoomIDs  map[string]struct{}
	InvitedRoomIDs map[string]struct{}

	RecentMessages   map[string][]matrix.Event
	PaginationTokens map[string]string

	DisplayNames    map[string]string
	AvatarURLs      map[string]string
	MediaDownloaded map[string]struct{}

	CurrentRoom string

	SyncToken        string
	InitialSyncToken string
}

func NewState() *State {
	return &State{
		JoinedRoomIDs:    map[string]struct{}{},
		InvitedRoomIDs:   map[string]struct{}{},
		RecentMessages:   map[string][]matrix.Event{},
		PaginationTokens: map[string]string{},
		DisplayNames:     map[string]string{},
		AvatarURLs:       map[string]string{},
		MediaDownloaded:  map[string]struct{}{},
	}
}

// appendMessages adds new messages to a room's cache, keeping insertion
// order and at most the newest maxRecentMessages entries.
func (s *State) appendMessages(roomID string, events []matrix.Event) {
	if len(events) == 0 {
		return
	}
	messages := append(s.RecentMessages[roomID], events...)
	if len(messages) > maxRecentMessages {
		messages = messages[len(messages)-maxRecentMessages:]
	}
	s.RecentMessages[roomID] = messages
}

// markJoined moves a room id from the invited set to the joined set.
func (s *State) markJoined(roomID string) {
	s.JoinedRoomIDs[roomID] = struct{}{}
	delete(s.InvitedRoomIDs, roomID)
}
