package client

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/bnema/mxload/internal/domain"
	"go.uber.org/zap"
)

type action int

const (
	actionIdle action = iota
	actionSendMessage
	actionLookAtRoom
	actionPaginate
	actionGoAFK
	actionChangeDisplayName
	actionChatBurst
)

// Scheduler drives a session's externally observable behavior: a weighted
// random walk over the things a person does in a chat client, dominated
// by doing nothing at all.
type Scheduler struct {
	log     *zap.Logger
	session *Session
	profile domain.BehaviorProfile
	rng     *rand.Rand
}

func NewScheduler(log *zap.Logger, session *Session, profile domain.BehaviorProfile, seed int64) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		log:     log,
		session: session,
		profile: profile,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Run performs actions until ctx is canceled. Between actions the
// simulated user thinks for an exponentially distributed while.
func (sched *Scheduler) Run(ctx context.Context) {
	for {
		if sleepCtx(ctx, sched.expDuration(sched.profile.ActionThink)) != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		sched.perform(ctx, sched.pick())
	}
}

func (sched *Scheduler) pick() action {
	w := sched.profile.Weights
	entries := []struct {
		weight int
		act    action
	}{
		{w.Idle, actionIdle},
		{w.SendMessage, actionSendMessage},
		{w.LookAtRoom, actionLookAtRoom},
		{w.Paginate, actionPaginate},
		{w.GoAFK, actionGoAFK},
		{w.ChangeDisplayName, actionChangeDisplayName},
		{w.ChatBurst, actionChatBurst},
	}

	total := w.Total()
	if total <= 0 {
		return actionIdle
	}
	n := sched.rng.Intn(total)
	for _, entry := range entries {
		if n < entry.weight {
			return entry.act
		}
		n -= entry.weight
	}
	return actionIdle
}

func (sched *Scheduler) perform(ctx context.Context, act action) {
	switch act {
	case actionIdle:
		// The dominant behavior: the user is just sitting there.

	case actionSendMessage:
		roomID := sched.session.RandomJoinedRoom(sched.rng)
		if roomID == "" {
			return
		}
		sched.typeAndSend(ctx, roomID)

	case actionLookAtRoom:
		roomID := sched.session.RandomJoinedRoom(sched.rng)
		if roomID == "" {
			return
		}
		sched.session.LookAtRoom(ctx, roomID)

	case actionPaginate:
		roomID := sched.session.RandomJoinedRoom(sched.rng)
		if roomID == "" {
			return
		}
		sched.session.PaginateBackward(ctx, roomID)

	case actionGoAFK:
		sched.log.Info("going away from keyboard", zap.String("user", sched.session.Username()))
		_ = sleepCtx(ctx, sched.expDuration(sched.profile.AFKThink))

	case actionChangeDisplayName:
		sched.session.SetDisplayName(ctx, sched.randomDisplayName())

	case actionChatBurst:
		sched.chatBurst(ctx)
	}
}

// typeAndSend models a real client's send: typing indicator first, then an
// exponentially distributed pause while the user bangs on the keyboard,
// then the message itself.
func (sched *Scheduler) typeAndSend(ctx context.Context, roomID string) {
	sched.session.SetTyping(ctx, roomID, true)
	if sleepCtx(ctx, sched.expDuration(sched.profile.TypingThink)) != nil {
		return
	}
	sched.session.SendText(ctx, roomID, MessageOfLength(sched.messageLength()))
}

// messageLength draws from a log-normal distribution (mu=1, sigma=1),
// clamped to [1, FillerWordCount].
func (sched *Scheduler) messageLength() int {
	n := int(math.Round(math.Exp(sched.rng.NormFloat64() + 1)))
	if n < 1 {
		n = 1
	}
	if n > FillerWordCount {
		n = FillerWordCount
	}
	return n
}

func (sched *Scheduler) randomDisplayName() string {
	username := sched.session.Username()
	parts := strings.Split(username, ".")
	userNumber := parts[len(parts)-1]
	return fmt.Sprintf("User %s (random=%d)", userNumber, sched.rng.Intn(1000)+1)
}

// expDuration draws an exponentially distributed duration with the given
// mean.
func (sched *Scheduler) expDuration(mean time.Duration) time.Duration {
	if mean <= 0 {
		return 0
	}
	return time.Duration(sched.rng.ExpFloat64() * float64(mean))
}
