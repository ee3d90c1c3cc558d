// Package profile loads the optional TOML behavior profile that overrides
// the built-in scheduler weights and think times.
package profile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bnema/mxload/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
)

const supportedVersion = 1

type fileSchema struct {
	Version int           `toml:"version"`
	Weights weightsSchema `toml:"weights"`
	Timing  timingSchema  `toml:"timing"`
	Jitter  bool          `toml:"weight_jitter"`
}

type weightsSchema struct {
	Idle              *int `toml:"idle"`
	SendMessage       *int `toml:"send_message"`
	LookAtRoom        *int `toml:"look_at_room"`
	Paginate          *int `toml:"paginate"`
	GoAFK             *int `toml:"go_afk"`
	ChangeDisplayName *int `toml:"change_displayname"`
	ChatBurst         *int `toml:"chat_burst"`
}

type timingSchema struct {
	ActionThinkSeconds *float64 `toml:"action_think_seconds"`
	TypingThinkSeconds *float64 `toml:"typing_think_seconds"`
	AFKThinkSeconds    *float64 `toml:"afk_think_seconds"`
	BurstThinkSeconds  *float64 `toml:"burst_think_seconds"`
}

// Load reads the profile at path, layering it over the defaults. A missing
// file yields the defaults unchanged.
func Load(path string) (domain.BehaviorProfile, error) {
	result := domain.DefaultBehaviorProfile()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, nil
		}
		return domain.BehaviorProfile{}, fmt.Errorf("read behavior profile: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return domain.BehaviorProfile{}, fmt.Errorf("decode behavior profile: %w", err)
	}
	if file.Version != 0 && file.Version != supportedVersion {
		return domain.BehaviorProfile{}, fmt.Errorf("unsupported behavior profile version %d", file.Version)
	}

	applyWeight(&result.Weights.Idle, file.Weights.Idle)
	applyWeight(&result.Weights.SendMessage, file.Weights.SendMessage)
	applyWeight(&result.Weights.LookAtRoom, file.Weights.LookAtRoom)
	applyWeight(&result.Weights.Paginate, file.Weights.Paginate)
	applyWeight(&result.Weights.GoAFK, file.Weights.GoAFK)
	applyWeight(&result.Weights.ChangeDisplayName, file.Weights.ChangeDisplayName)
	applyWeight(&result.Weights.ChatBurst, file.Weights.ChatBurst)

	applyDuration(&result.ActionThink, file.Timing.ActionThinkSeconds)
	applyDuration(&result.TypingThink, file.Timing.TypingThinkSeconds)
	applyDuration(&result.AFKThink, file.Timing.AFKThinkSeconds)
	applyDuration(&result.BurstThink, file.Timing.BurstThinkSeconds)

	result.WeightJitter = file.Jitter

	if result.Weights.Total() <= 0 {
		return domain.BehaviorProfile{}, errors.New("behavior profile weights sum to zero")
	}

	return result, nil
}

func applyWeight(dst *int, src *int) {
	if src != nil && *src >= 0 {
		*dst = *src
	}
}

func applyDuration(dst *time.Duration, seconds *float64) {
	if seconds != nil && *seconds > 0 {
		*dst = time.Duration(*seconds * float64(time.Second))
	}
}
