package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/gen2brain/beeep"
)

// Tone is a single beep followed by a pause
type Tone struct {
	Frequency float64
	Duration  time.Duration
	Pause     time.Duration
}

// Pattern is a sequence of tones
type Pattern []Tone

var (
	// UrgentPattern is three sharp high tones
	UrgentPattern = Pattern{
		{Frequency: 1200, Duration: 250 * time.Millisecond, Pause: 50 * time.Millisecond},
		{Frequency: 1200, Duration: 250 * time.Millisecond, Pause: 50 * time.Millisecond},
		{Frequency: 1200, Duration: 250 * time.Millisecond},
	}

	// NormalPattern is two soft rising tones
	NormalPattern = Pattern{
		{Frequency: 800, Duration: 200 * time.Millisecond},
		{Frequency: 1000, Duration: 300 * time.Millisecond},
	}
)

// PatternFor picks the tone pattern of an alert kind
func PatternFor(k Kind) Pattern {
	if k.Urgent() {
		return UrgentPattern
	}
	return NormalPattern
}

// Player plays tone patterns
type Player interface {
	Play(ctx context.Context, p Pattern) error
}

// BeepPlayer plays patterns on the system speaker
type BeepPlayer struct {
	beep func(freq float64, durationMs int) error
}

// NewBeepPlayer creates a player backed by beeep
func NewBeepPlayer() *BeepPlayer {
	return &BeepPlayer{beep: beeep.Beep}
}

// Play plays every tone of p in order, stopping early if ctx ends
func (p *BeepPlayer) Play(ctx context.Context, pattern Pattern) error {
	for i, tone := range pattern {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.beep(tone.Frequency, int(tone.Duration/time.Millisecond)); err != nil {
			return fmt.Errorf("tone %d at %.0fHz: %w", i, tone.Frequency, err)
		}

		if tone.Pause > 0 {
			select {
			case <-time.After(tone.Pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// SoundChannel plays the pattern matching the alert's urgency
type SoundChannel struct {
	player  Player
	enabled bool
}

// NewSoundChannel creates a new SoundChannel
func NewSoundChannel(player Player, enabled bool) *SoundChannel {
	return &SoundChannel{player: player, enabled: enabled}
}

func (c *SoundChannel) Name() string { return "sound" }

func (c *SoundChannel) Deliver(ctx context.Context, a Alert) error {
	if !c.enabled {
		return nil
	}
	return c.player.Play(ctx, PatternFor(a.Kind))
}
