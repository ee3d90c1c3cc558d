package domain

import "strings"

// Credential is one simulated user's identity. Username and Password come
// from the roster; UserID, AccessToken and DeviceID are filled in by
// registration or login; SyncToken by the first successful sync.
type Credential struct {
	Username    string
	Password    string
	UserID      string
	AccessToken string
	DeviceID    string
	SyncToken   string
}

// Normalize collapses whitespace-only fields to empty. A credential whose
// UserID or AccessToken is empty is treated as never having authenticated,
// regardless of what a previous run persisted.
func (c *Credential) Normalize() {
	c.Username = strings.TrimSpace(c.Username)
	c.UserID = strings.TrimSpace(c.UserID)
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	c.SyncToken = strings.TrimSpace(c.SyncToken)

	if c.UserID == "" || c.AccessToken == "" {
		c.UserID = ""
		c.AccessToken = ""
		c.SyncToken = ""
	}
}

func (c Credential) Authenticated() bool {
	return c.UserID != "" && c.AccessToken != ""
}

// Domain returns the homeserver domain part of the user id, e.g.
// "@user.000001:example.com" -> "example.com".
func (c Credential) Domain() string {
	idx := strings.LastIndex(c.UserID, ":")
	if idx < 0 {
		return ""
	}
	return c.UserID[idx+1:]
}

// TokenUpdate is the only unit exchanged from worker to master. Last write
// for a username wins; there is no versioning.
type TokenUpdate struct {
	Username    string `json:"username"`
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	SyncToken   string `json:"sync_token"`
}

// Apply folds an update into a credential.
func (c *Credential) Apply(u TokenUpdate) {
	c.UserID = u.UserID
	c.AccessToken = u.AccessToken
	c.SyncToken = u.SyncToken
}
