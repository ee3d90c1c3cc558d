package domain

import "time"

// BehaviorProfile tunes the foreground action scheduler. Weights are
// relative; think times are means of exponential distributions.
type BehaviorProfile struct {
	Weights BehaviorWeights

	ActionThink time.Duration // mean wait between foreground actions
	TypingThink time.Duration // mean typing time before a send
	AFKThink    time.Duration // mean away-from-keyboard idle
	BurstThink  time.Duration // mean wait between chat-burst actions

	// WeightJitter randomizes burst sub-table weights per session. Best
	// effort: downstream code must not assume it changes anything.
	WeightJitter bool
}

type BehaviorWeights struct {
	Idle              int
	SendMessage       int
	LookAtRoom        int
	Paginate          int
	GoAFK             int
	ChangeDisplayName int
	ChatBurst         int
}

// DefaultBehaviorProfile mirrors the weights and think times real chat
// users were measured to produce.
func DefaultBehaviorProfile() BehaviorProfile {
	return BehaviorProfile{
		Weights: BehaviorWeights{
			Idle:              23,
			SendMessage:       1,
			LookAtRoom:        4,
			Paginate:          1,
			GoAFK:             1,
			ChangeDisplayName: 1,
			ChatBurst:         3,
		},
		ActionThink: 10 * time.Second,
		TypingThink: 5 * time.Second,
		AFKThink:    10 * time.Minute,
		BurstThink:  25 * time.Second,
	}
}

// Total returns the sum of all weights; a zero total disables the
// scheduler.
func (w BehaviorWeights) Total() int {
	return w.Idle + w.SendMessage + w.LookAtRoom + w.Paginate +
		w.GoAFK + w.ChangeDisplayName + w.ChatBurst
}
