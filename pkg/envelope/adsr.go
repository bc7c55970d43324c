// Package envelope implements the per-voice amplitude envelope.
package envelope

import "math"

// Stage identifies where an ADSR envelope is in its lifecycle.
type Stage int

const (
	StageIdle Stage = iota
	StageAttack
	StageDecay
	StageSustain
	StageRelease
)

func (s Stage) String() string {
	switch s {
	case StageAttack:
		return "attack"
	case StageDecay:
		return "decay"
	case StageSustain:
		return "sustain"
	case StageRelease:
		return "release"
	default:
		return "idle"
	}
}

// minStageSeconds is the floor applied to attack/decay/release times so a
// zero or negative setting can never produce an infinite per-sample
// increment.
const minStageSeconds = 0.001

// QuickFadeSeconds is the duration of the linear gain ramp used to retire
// a voice click-free before its slot is reused.
const QuickFadeSeconds = 0.010

// ADSR is a linear-segment attack/decay/sustain/release envelope. Unlike
// an exponential-coefficient envelope, every stage advances by a fixed
// per-sample increment computed when the stage is entered, so the time
// to cross a stage is exactly the configured duration regardless of the
// level it started from.
type ADSR struct {
	sampleRate float64

	attack  float64
	decay   float64
	sustain float64
	release float64

	// sameNoteRelease overrides release for voices superseded by a
	// same-note retrigger, rather than their own configured release.
	sameNoteRelease float64
	useSameNote     bool

	stage Stage
	level float64
	inc   float64

	quickFade     bool
	quickFadeGain float64
	quickFadeInc  float64
}

// New creates an idle ADSR envelope for the given sample rate.
func New(sampleRate float64) *ADSR {
	return &ADSR{
		sampleRate: sampleRate,
		attack:     0.01,
		decay:      0.1,
		sustain:    0.7,
		release:    0.3,
		stage:      StageIdle,
		quickFadeGain: 1.0,
	}
}

func clampSeconds(s float64) float64 {
	return math.Max(minStageSeconds, s)
}

// SetADSR sets all four envelope parameters at once, clamping times to a
// 1ms floor and sustain to [0,1].
func (e *ADSR) SetADSR(attack, decay, sustain, release float64) {
	e.attack = clampSeconds(attack)
	e.decay = clampSeconds(decay)
	e.sustain = math.Max(0, math.Min(1, sustain))
	e.release = clampSeconds(release)
}

// SetSameNoteRelease sets the release time used when this voice is
// superseded by a same-note retrigger instead of a real note-off.
func (e *ADSR) SetSameNoteRelease(seconds float64) {
	e.sameNoteRelease = clampSeconds(seconds)
}

// GetStage returns the envelope's current lifecycle stage.
func (e *ADSR) GetStage() Stage { return e.stage }

// Level returns the current envelope amplitude in [0,1], before any
// quick-fade gain is applied.
func (e *ADSR) Level() float64 { return e.level }

// IsActive reports whether the envelope is producing non-silent output.
func (e *ADSR) IsActive() bool { return e.stage != StageIdle }

// Trigger starts the attack stage from level 0 and clears any same-note
// release or quick-fade state left over from the voice's previous note.
func (e *ADSR) Trigger() {
	e.stage = StageAttack
	e.level = 0
	e.inc = 1.0 / (e.attack * e.sampleRate)
	e.useSameNote = false
	e.quickFade = false
	e.quickFadeGain = 1.0
}

// Release transitions to the release stage using the configured release
// time. A no-op from Idle.
func (e *ADSR) Release() {
	if e.stage == StageIdle {
		return
	}
	e.enterRelease(e.release)
}

// ReleaseSameNote transitions to release using sameNoteRelease instead of
// the voice's own release time; used when a same-note retrigger
// supersedes this voice while it is still sounding.
func (e *ADSR) ReleaseSameNote() {
	if e.stage == StageIdle {
		return
	}
	e.enterRelease(e.sameNoteRelease)
}

func (e *ADSR) enterRelease(releaseSeconds float64) {
	e.stage = StageRelease
	e.inc = -e.level / (clampSeconds(releaseSeconds) * e.sampleRate)
}

// StartQuickFade begins the 10ms linear gain ramp to zero used before a
// voice slot is stolen. It overrides whatever the ADSR stage is doing;
// the voice deactivates once the ramp reaches zero.
func (e *ADSR) StartQuickFade() {
	e.quickFade = true
	e.quickFadeGain = 1.0
	e.quickFadeInc = -1.0 / (QuickFadeSeconds * e.sampleRate)
}

// IsQuickFading reports whether a quick-fade is in progress.
func (e *ADSR) IsQuickFading() bool { return e.quickFade }

// Reset immediately returns the envelope to idle with zero output.
func (e *ADSR) Reset() {
	e.stage = StageIdle
	e.level = 0
	e.inc = 0
	e.quickFade = false
	e.quickFadeGain = 1.0
}

// Next advances the envelope by one sample and returns the gain to apply,
// which is the ADSR level multiplied by any in-progress quick-fade ramp.
// It deactivates the envelope (stage becomes Idle) when either the
// release segment or the quick-fade ramp reaches zero.
func (e *ADSR) Next() float32 {
	if e.quickFade {
		e.quickFadeGain += e.quickFadeInc
		if e.quickFadeGain <= 0 {
			e.quickFadeGain = 0
			e.Reset()
			return 0
		}
		return float32(e.level * e.quickFadeGain)
	}

	switch e.stage {
	case StageAttack:
		e.level += e.inc
		if e.level >= 1.0 {
			e.level = 1.0
			e.stage = StageDecay
			e.inc = (e.sustain - 1.0) / (e.decay * e.sampleRate)
		}
	case StageDecay:
		e.level += e.inc
		if e.level <= e.sustain {
			e.level = e.sustain
			e.stage = StageSustain
			e.inc = 0
		}
	case StageSustain:
		e.level = e.sustain
	case StageRelease:
		e.level += e.inc
		if e.level <= 0 {
			e.level = 0
			e.stage = StageIdle
			e.inc = 0
		}
	case StageIdle:
		e.level = 0
	}

	return float32(e.level)
}
