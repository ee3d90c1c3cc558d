package scenario

import (
	"context"

	"go.uber.org/zap"

	"github.com/bnema/mxload/internal/domain"
)

// roomCreatorDriver logs in every user in its partition that the room
// assignment designates as a creator and creates those rooms, inviting the
// remaining members. Failed rooms are skipped; the server owns partial
// invite state.
type roomCreatorDriver struct {
	cfg Config
}

func (d *roomCreatorDriver) Name() string { return "create-rooms" }

func (d *roomCreatorDriver) Run(ctx context.Context, partition []domain.Credential) error {
	log := d.cfg.Log
	plans := d.cfg.RoomPlans.PlansByCreator()
	session := d.cfg.newSession()

	for _, cred := range partition {
		if ctx.Err() != nil {
			return nil
		}
		ownPlans := plans[cred.Username]
		if len(ownPlans) == 0 {
			continue
		}

		session.Load(cred)
		if err := session.Login(ctx); err != nil {
			log.Error("creator login failed, skipping their rooms",
				zap.String("user", cred.Username), zap.Int("rooms", len(ownPlans)), zap.Error(err))
			continue
		}

		serverDomain := session.Credential().Domain()
		if serverDomain == "" {
			serverDomain = d.cfg.ServerDomain
		}

		for _, plan := range ownPlans {
			if ctx.Err() != nil {
				return nil
			}
			invitees := make([]string, len(plan.Invitees))
			for i, username := range plan.Invitees {
				invitees[i] = domain.UserIDFor(username, serverDomain)
			}
			if _, err := session.CreateRoom(ctx, plan.Name, invitees); err != nil {
				log.Error("room skipped",
					zap.String("user", cred.Username), zap.String("name", plan.Name), zap.Error(err))
			}
		}
	}
	return park(ctx, log, d.Name())
}

// inviteAcceptorDriver logs in every user in its partition, syncs once to
// discover pending invites and joins them all. The sync cursor each user
// ends up with is reported back so chat runs start incremental.
type inviteAcceptorDriver struct {
	cfg Config
}

func (d *inviteAcceptorDriver) Name() string { return "accept-invites" }

func (d *inviteAcceptorDriver) Run(ctx context.Context, partition []domain.Credential) error {
	log := d.cfg.Log
	session := d.cfg.newSession()

	for _, cred := range partition {
		if ctx.Err() != nil {
			return nil
		}
		session.Load(cred)
		if err := session.Login(ctx); err != nil {
			log.Error("login failed, invites stay pending",
				zap.String("user", cred.Username), zap.Error(err))
			continue
		}
		if err := session.Sync(ctx); err != nil {
			log.Error("initial sync failed, invites stay pending",
				zap.String("user", cred.Username), zap.Error(err))
			continue
		}
		session.EmitTokenUpdate()

		for _, roomID := range session.InvitedRooms() {
			if ctx.Err() != nil {
				return nil
			}
			if err := session.JoinRoom(ctx, roomID); err != nil {
				log.Error("invite not accepted",
					zap.String("user", cred.Username), zap.String("room", roomID), zap.Error(err))
			}
		}
	}
	return park(ctx, log, d.Name())
}
