// Package param holds the engine's runtime-adjustable scalars: ADSR
// times, transpose, sample offset, and the selective-preload limits. The
// audio thread only ever reads these through AtomicFloat/AtomicInt, which
// are lock-free and allocation-free, so the host/UI thread can change
// them at any time without synchronizing with the render callback.
package param

import (
	"math"
	"sync/atomic"
)

// AtomicFloat is a float64 readable and writable without locking from
// any thread, including the real-time audio thread.
type AtomicFloat struct {
	bits atomic.Uint64
}

// NewAtomicFloat constructs an AtomicFloat with an initial value.
func NewAtomicFloat(v float64) *AtomicFloat {
	a := &AtomicFloat{}
	a.Store(v)
	return a
}

// Load returns the current value.
func (a *AtomicFloat) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

// Store sets the current value.
func (a *AtomicFloat) Store(v float64) {
	a.bits.Store(math.Float64bits(v))
}

// AtomicInt is an int32 readable and writable without locking.
type AtomicInt struct {
	v atomic.Int32
}

// NewAtomicInt constructs an AtomicInt with an initial value.
func NewAtomicInt(v int32) *AtomicInt {
	a := &AtomicInt{}
	a.Store(v)
	return a
}

func (a *AtomicInt) Load() int32   { return a.v.Load() }
func (a *AtomicInt) Store(v int32) { a.v.Store(v) }

// ADSRSnapshot is the set of envelope times the audio thread snapshots
// once per block and applies to every active voice's envelope.
type ADSRSnapshot struct {
	Attack  *AtomicFloat
	Decay   *AtomicFloat
	Sustain *AtomicFloat
	Release *AtomicFloat

	// SameNoteRelease is the release time used when a same-note
	// retrigger supersedes a still-sounding voice instead of a real
	// note-off.
	SameNoteRelease *AtomicFloat
}

// NewADSRSnapshot creates the shared atomic ADSR parameters with the
// defaults a freshly constructed engine uses before any state is loaded.
func NewADSRSnapshot() *ADSRSnapshot {
	return &ADSRSnapshot{
		Attack:          NewAtomicFloat(0.01),
		Decay:           NewAtomicFloat(0.1),
		Sustain:         NewAtomicFloat(0.7),
		Release:         NewAtomicFloat(0.3),
		SameNoteRelease: NewAtomicFloat(0.05),
	}
}

// Knobs bundles every lock-free runtime scalar the engine exposes to the
// host/UI thread, read once per block by the audio thread.
type Knobs struct {
	ADSR *ADSRSnapshot

	// Transpose and SampleOffset are independent semitone biases in
	// [-12, 12]; see SamplerEngine for how each is applied.
	Transpose    *AtomicInt
	SampleOffset *AtomicInt

	PreloadSizeKB      *AtomicInt
	VelocityLayerLimit *AtomicInt
	RoundRobinLimit    *AtomicInt
}

// NewKnobs creates the default knob set.
func NewKnobs() *Knobs {
	return &Knobs{
		ADSR:               NewADSRSnapshot(),
		Transpose:          NewAtomicInt(0),
		SampleOffset:       NewAtomicInt(0),
		PreloadSizeKB:      NewAtomicInt(256),
		VelocityLayerLimit: NewAtomicInt(4),
		RoundRobinLimit:    NewAtomicInt(4),
	}
}

// ClampTranspose clamps a requested semitone bias to [-12, 12].
func ClampTranspose(v int32) int32 {
	if v < -12 {
		return -12
	}
	if v > 12 {
		return 12
	}
	return v
}

// ClampPreloadKB clamps a requested preload size to [32, 1024] KB.
func ClampPreloadKB(v int32) int32 {
	if v < 32 {
		return 32
	}
	if v > 1024 {
		return 1024
	}
	return v
}

// ClampSameNoteRelease clamps a requested same-note release time to
// [0.01, 5.0] seconds.
func ClampSameNoteRelease(v float64) float64 {
	if v < 0.01 {
		return 0.01
	}
	if v > 5.0 {
		return 5.0
	}
	return v
}
