// Package scenario composes drivers over the virtual-client session: each
// driver walks one roster partition and exercises a different slice of user
// behavior. Drivers never subclass anything; they share the one Session
// type and differ only in what they call on it.
package scenario

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bnema/mxload/internal/adapters/matrix"
	"github.com/bnema/mxload/internal/client"
	"github.com/bnema/mxload/internal/domain"
)

// Driver runs one scenario over a roster partition. Run blocks until ctx
// ends: a driver that finishes its partition parks rather than returning,
// so run length stays controlled by the run deadline, not roster size.
type Driver interface {
	Name() string
	Run(ctx context.Context, partition []domain.Credential) error
}

// Config carries everything any driver might need; each driver uses its
// subset.
type Config struct {
	Log *zap.Logger
	API *matrix.Client

	SyncTimeout time.Duration
	Profile     domain.BehaviorProfile

	// RoomPlans is the externally generated room assignment; only the
	// room-creator and invite-acceptor scenarios read it.
	RoomPlans domain.RoomAssignment

	// ServerDomain builds invitee user ids when a creator has no user id
	// of its own to derive the domain from.
	ServerDomain string

	// MaxClients caps concurrent sessions per worker; 0 means the whole
	// partition at once. SpawnRate throttles session starts per second; 0
	// means no ramp.
	MaxClients int
	SpawnRate  float64

	// Seed feeds each session's scheduler rng; sessions offset it by their
	// partition index so two workers with different seeds never correlate.
	Seed int64

	OnTokenUpdate func(domain.TokenUpdate)
}

// ForName builds the named driver.
func ForName(name string, cfg Config) (Driver, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	switch name {
	case "register":
		return &registerDriver{cfg: cfg}, nil
	case "create-rooms":
		return &roomCreatorDriver{cfg: cfg}, nil
	case "accept-invites":
		return &inviteAcceptorDriver{cfg: cfg}, nil
	case "chat":
		return &chatDriver{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
}

// Names lists the scenarios ForName accepts.
func Names() []string {
	return []string{"register", "create-rooms", "accept-invites", "chat"}
}

func (cfg Config) newSession() *client.Session {
	return client.NewSession(client.Config{
		Log:           cfg.Log,
		API:           cfg.API,
		SyncTimeout:   cfg.SyncTimeout,
		OnTokenUpdate: cfg.OnTokenUpdate,
	})
}

// park blocks until the run ends. PartitionExhausted is steady state, not
// an error.
func park(ctx context.Context, log *zap.Logger, scenario string) error {
	log.Info("partition exhausted, parking", zap.String("scenario", scenario))
	<-ctx.Done()
	return nil
}
