package domain

// RoomAssignment maps a room name to its ordered member usernames. The
// first username is the designated creator. Produced externally and
// consumed read-only.
type RoomAssignment map[string][]string

// RoomPlan is one room a creator is responsible for: its name and the
// usernames to invite (the creator excluded).
type RoomPlan struct {
	Name     string
	Invitees []string
}

// PlansByCreator inverts a room assignment into the per-creator view: for
// each room the first member becomes the creator and the rest become
// invitees. Rooms with no members are skipped.
func (a RoomAssignment) PlansByCreator() map[string][]RoomPlan {
	plans := make(map[string][]RoomPlan, len(a))
	for name, members := range a {
		if len(members) == 0 {
			continue
		}
		creator := members[0]
		plans[creator] = append(plans[creator], RoomPlan{
			Name:     name,
			Invitees: members[1:],
		})
	}
	return plans
}

// UserIDFor turns a roster username into a full Matrix user id on the given
// homeserver domain.
func UserIDFor(username, domain string) string {
	id := username + ":" + domain
	if id[0] != '@' {
		id = "@" + id
	}
	return id
}
