package client

import (
	"testing"
	"time"

	"github.com/bnema/mxload/internal/domain"
	"github.com/stretchr/testify/assert"
)

func newTestScheduler(profile domain.BehaviorProfile) *Scheduler {
	return NewScheduler(nil, NewSession(Config{}), profile, 42)
}

func TestPickHonorsSingleNonZeroWeight(t *testing.T) {
	t.Parallel()

	profile := domain.BehaviorProfile{}
	profile.Weights.Paginate = 7
	sched := newTestScheduler(profile)

	for i := 0; i < 50; i++ {
		assert.Equal(t, actionPaginate, sched.pick())
	}
}

func TestPickFallsBackToIdleOnZeroTotal(t *testing.T) {
	t.Parallel()

	sched := newTestScheduler(domain.BehaviorProfile{})
	assert.Equal(t, actionIdle, sched.pick())
}

func TestPickCoversAllActionsUnderDefaults(t *testing.T) {
	t.Parallel()

	sched := newTestScheduler(domain.DefaultBehaviorProfile())
	seen := map[action]int{}
	for i := 0; i < 10_000; i++ {
		seen[sched.pick()]++
	}

	for _, act := range []action{
		actionIdle, actionSendMessage, actionLookAtRoom, actionPaginate,
		actionGoAFK, actionChangeDisplayName, actionChatBurst,
	} {
		assert.Positive(t, seen[act], "action %d never picked", act)
	}
	// Idle dominates the default weight table.
	assert.Greater(t, seen[actionIdle], seen[actionChatBurst])
}

func TestMessageLengthStaysInBounds(t *testing.T) {
	t.Parallel()

	sched := newTestScheduler(domain.DefaultBehaviorProfile())
	for i := 0; i < 1_000; i++ {
		n := sched.messageLength()
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, FillerWordCount)
	}
}

func TestExpDurationZeroMeanIsZero(t *testing.T) {
	t.Parallel()

	sched := newTestScheduler(domain.BehaviorProfile{})
	assert.Equal(t, time.Duration(0), sched.expDuration(0))
	assert.Equal(t, time.Duration(0), sched.expDuration(-time.Second))
}

func TestBurstTableWithoutJitterIsFixed(t *testing.T) {
	t.Parallel()

	sched := newTestScheduler(domain.BehaviorProfile{})
	table := sched.burstTable()
	assert.Equal(t, burstTable{sendText: 15, sendImage: 1, sendReaction: 1, stop: 1}, table)
}

func TestBurstTableWithJitterKeepsStopWeight(t *testing.T) {
	t.Parallel()

	profile := domain.BehaviorProfile{WeightJitter: true}
	sched := newTestScheduler(profile)
	for i := 0; i < 100; i++ {
		table := sched.burstTable()
		assert.GreaterOrEqual(t, table.sendText, 1)
		assert.Equal(t, 1, table.stop)
	}
}

func TestPickBurstAlwaysReachesStop(t *testing.T) {
	t.Parallel()

	sched := newTestScheduler(domain.BehaviorProfile{})
	table := sched.burstTable()
	for i := 0; i < 10_000; i++ {
		if sched.pickBurst(table) == burstStop {
			return
		}
	}
	t.Fatal("stop never drawn")
}

func TestPickBurstZeroTotalStops(t *testing.T) {
	t.Parallel()

	sched := newTestScheduler(domain.BehaviorProfile{})
	assert.Equal(t, burstStop, sched.pickBurst(burstTable{}))
}

func TestRandomDisplayNameUsesUserNumber(t *testing.T) {
	t.Parallel()

	session := NewSession(Config{})
	session.Load(domain.Credential{Username: "user.0042", Password: "x"})
	sched := NewScheduler(nil, session, domain.DefaultBehaviorProfile(), 1)

	name := sched.randomDisplayName()
	assert.Regexp(t, `^User 0042 \(random=\d+\)$`, name)
}
