// Package coordinator implements the master/worker run coordination: the
// master partitions the roster across connected workers and aggregates
// credential updates back into a single persisted registry.
package coordinator

import (
	"encoding/json"
	"fmt"

	"github.com/bnema/mxload/internal/domain"
)

// Wire message types. Workers send hello on connect and update_tokens for
// the rest of the run; the master answers hello with load_users.
const (
	msgHello        = "hello"
	msgLoadUsers    = "load_users"
	msgUpdateTokens = "update_tokens"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type helloPayload struct {
	Scenario string `json:"scenario"`
}

type loadUsersPayload struct {
	Users []wireCredential `json:"users"`
}

// wireCredential is the JSON shape of a roster credential. The domain type
// stays tag-free; only the coordinator puts credentials on the wire.
type wireCredential struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	UserID      string `json:"user_id,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	SyncToken   string `json:"sync_token,omitempty"`
}

func toWireCredentials(creds []domain.Credential) []wireCredential {
	out := make([]wireCredential, len(creds))
	for i, c := range creds {
		out[i] = wireCredential{
			Username:    c.Username,
			Password:    c.Password,
			UserID:      c.UserID,
			AccessToken: c.AccessToken,
			DeviceID:    c.DeviceID,
			SyncToken:   c.SyncToken,
		}
	}
	return out
}

func fromWireCredentials(creds []wireCredential) []domain.Credential {
	out := make([]domain.Credential, len(creds))
	for i, c := range creds {
		out[i] = domain.Credential{
			Username:    c.Username,
			Password:    c.Password,
			UserID:      c.UserID,
			AccessToken: c.AccessToken,
			DeviceID:    c.DeviceID,
			SyncToken:   c.SyncToken,
		}
		out[i].Normalize()
	}
	return out
}

func encodeMessage(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	raw, err := json.Marshal(envelope{Type: msgType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", msgType, err)
	}
	return raw, nil
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return envelope{}, fmt.Errorf("envelope without a type")
	}
	return env, nil
}

func decodePayload(env envelope, out any) error {
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
