package client

import (
	"context"
	"math"
)

type burstAction int

const (
	burstSendText burstAction = iota
	burstSendImage
	burstSendReaction
	burstStop
)

var reactionKeys = []string{"💩", "👍", "❤️", "👎", "🤯", "😱", "👏"}

type burstTable struct {
	sendText     int
	sendImage    int
	sendReaction int
	stop         int
}

// chatBurst models a short multi-message exchange in a single room: the
// user opens the room, alternates sends and reactions with exponential
// think time between them, and eventually stops. Stop carries weight in
// every table, so the burst always terminates.
func (sched *Scheduler) chatBurst(ctx context.Context) {
	roomID := sched.session.RandomJoinedRoom(sched.rng)
	if roomID == "" {
		return
	}

	sched.session.SetCurrentRoom(roomID)
	defer sched.session.SetCurrentRoom("")
	sched.session.RefreshRoom(ctx, roomID)

	table := sched.burstTable()
	for {
		if sleepCtx(ctx, sched.expDuration(sched.profile.BurstThink)) != nil {
			return
		}

		switch sched.pickBurst(table) {
		case burstSendText:
			sched.typeAndSend(ctx, roomID)

		case burstSendImage:
			// Placeholder: image sending needs pre-generated thumbnails to
			// be realistic, which the asset pipeline does not produce yet.

		case burstSendReaction:
			messages := sched.session.RecentMessages(roomID)
			if len(messages) == 0 {
				continue
			}
			message := messages[sched.rng.Intn(len(messages))]
			key := reactionKeys[sched.rng.Intn(len(reactionKeys))]
			sched.session.SendReaction(ctx, roomID, message.EventID, key)

		case burstStop:
			return
		}
	}
}

// burstTable yields the weights for one burst. With jitter enabled each
// burst draws fresh weights, so some bursts are chatty and some are not;
// callers must not depend on the variation.
func (sched *Scheduler) burstTable() burstTable {
	if !sched.profile.WeightJitter {
		return burstTable{sendText: 15, sendImage: 1, sendReaction: 1, stop: 1}
	}

	sendText := int(math.Round(sched.rng.NormFloat64()*4 + 15))
	if sendText < 1 {
		sendText = 1
	}
	imageChoices := []int{0, 0, 0, 1, 1, 2}
	reactionChoices := []int{0, 0, 1, 1, 1, 2, 3}
	return burstTable{
		sendText:     sendText,
		sendImage:    imageChoices[sched.rng.Intn(len(imageChoices))],
		sendReaction: reactionChoices[sched.rng.Intn(len(reactionChoices))],
		stop:         1,
	}
}

func (sched *Scheduler) pickBurst(table burstTable) burstAction {
	entries := []struct {
		weight int
		act    burstAction
	}{
		{table.sendText, burstSendText},
		{table.sendImage, burstSendImage},
		{table.sendReaction, burstSendReaction},
		{table.stop, burstStop},
	}

	total := table.sendText + table.sendImage + table.sendReaction + table.stop
	if total <= 0 {
		return burstStop
	}
	n := sched.rng.Intn(total)
	for _, entry := range entries {
		if n < entry.weight {
			return entry.act
		}
		n -= entry.weight
	}
	return burstStop
}
