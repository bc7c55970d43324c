// Package voice implements a single playing articulation: its source
// position, pitch ratio, envelope, and the preload/ring-buffer split that
// lets it stream audio far larger than RAM.
package voice

import (
	"sync/atomic"

	"github.com/rimescape/sampler/pkg/dsp/interpolation"
	"github.com/rimescape/sampler/pkg/envelope"
	"github.com/rimescape/sampler/pkg/library"
	"github.com/rimescape/sampler/pkg/ring"
)

// PerNoteCap is the maximum number of simultaneously active voices for a
// single MIDI note before the oldest is quick-faded.
const PerNoteCap = 4

// PoolSize is the fixed number of voice slots the engine allocates.
const PoolSize = 180

// maxChannels bounds the fixed-size ring read-ahead window so Render
// never allocates; no sample format in practice exceeds this.
const maxChannels = 8

// windowCap is the number of most-recently-read ring frames the voice
// keeps available for linear interpolation; two would suffice for a
// unity pitch ratio, four gives headroom for faster playback.
const windowCap = 4

// Voice is one playing articulation. It is mutated by the audio thread
// for play state and by the disk thread only for ring-buffer contents
// past the consumer's read position; both sides communicate exclusively
// through the ring buffer's atomics and the NeedsData flag.
type Voice struct {
	active atomic.Bool

	Record *library.ArticulationRecord
	Ring   *ring.RingBuffer

	MidiNote uint8

	PitchRatio float64
	position   float64

	Env *envelope.ADSR

	// StartCounter is a monotonic age stamp assigned on allocation, used
	// by the engine's oldest-first stealing policy.
	StartCounter uint64

	// NextSourceFrame is the next source-file frame the disk streamer
	// should fetch into Ring; owned by the streamer.
	NextSourceFrame int64

	channels int

	ringNextFrame int64
	window        [windowCap][maxChannels]float32
	readScratch   [maxChannels]float32
}

// NewVoice constructs an idle voice with its own ring buffer, sized for
// the given host output channel count.
func NewVoice(channels int, sampleRate float64) *Voice {
	return &Voice{
		Ring:     ring.NewRingBuffer(channels),
		Env:      envelope.New(sampleRate),
		channels: channels,
	}
}

// IsActive reports whether this voice is currently producing output.
func (v *Voice) IsActive() bool { return v.active.Load() }

// Start arms the voice with a fresh articulation and resets its envelope
// and ring buffer for a new note-on.
func (v *Voice) Start(record *library.ArticulationRecord, midiNote uint8, pitchRatio float64, startCounter uint64) {
	v.Record = record
	v.MidiNote = midiNote
	v.PitchRatio = pitchRatio
	v.position = 0
	v.StartCounter = startCounter
	v.NextSourceFrame = record.PreloadEndFrames
	v.ringNextFrame = record.PreloadEndFrames
	v.window = [windowCap][maxChannels]float32{}
	v.Ring.Reset()
	v.Ring.SetEndOfStream(record.PreloadEndFrames >= record.TotalFrames)
	v.Env.Trigger()
	v.active.Store(true)
}

// Release transitions the voice's envelope to Release using its own
// configured release time.
func (v *Voice) Release() { v.Env.Release() }

// ReleaseSameNote transitions to Release using the engine's configured
// same-note-retrigger release time instead.
func (v *Voice) ReleaseSameNote() { v.Env.ReleaseSameNote() }

// StartQuickFade begins the click-free 10ms fade used before this slot
// is reused by voice stealing.
func (v *Voice) StartQuickFade() { v.Env.StartQuickFade() }

// IsQuickFading reports whether this voice is mid quick-fade.
func (v *Voice) IsQuickFading() bool { return v.Env.IsQuickFading() }

func (v *Voice) deactivate() {
	v.active.Store(false)
	v.Record = nil
}

// Reset force-stops the voice immediately, bypassing the quick fade. It
// is the engine's last-resort fallback when every voice is already
// fading and one must be freed anyway.
func (v *Voice) Reset() {
	v.Env.Reset()
	v.deactivate()
}

// Render produces up to len(out)/channels frames into out (interleaved,
// channels wide), mix-adding into whatever is already there. It never
// blocks, allocates, or performs I/O; once the envelope reaches Idle or
// the source is exhausted the voice deactivates itself.
func (v *Voice) Render(out []float32, channels int) {
	if !v.active.Load() || v.Record == nil {
		return
	}

	frameCount := len(out) / channels
	record := v.Record
	total := record.TotalFrames
	preload, _ := record.Preload()

	for i := 0; i < frameCount; i++ {
		if v.position >= float64(total-1) {
			v.deactivate()
			return
		}

		gain := v.Env.Next()
		if !v.Env.IsActive() && !v.Env.IsQuickFading() {
			v.deactivate()
			return
		}

		pos0 := int64(v.position)
		frac := float32(v.position - float64(pos0))

		for ch := 0; ch < channels; ch++ {
			srcCh := ch
			if srcCh >= record.Channels {
				srcCh = record.Channels - 1
			}
			s0 := v.sampleAt(preload, pos0, srcCh, record)
			s1 := v.sampleAt(preload, pos0+1, srcCh, record)
			out[i*channels+ch] += interpolation.Linear(s0, s1, frac) * gain
		}

		v.position += v.PitchRatio
	}
}

// sampleAt fetches one source channel sample at an absolute source
// frame, from the preload buffer if still within it, otherwise from the
// ring buffer's read-ahead window.
func (v *Voice) sampleAt(preload []float32, frame int64, channel int, record *library.ArticulationRecord) float32 {
	if frame < 0 {
		frame = 0
	}
	if frame >= record.TotalFrames {
		frame = record.TotalFrames - 1
	}

	if frame < record.PreloadEndFrames {
		idx := frame*int64(record.Channels) + int64(channel)
		if idx < 0 || idx >= int64(len(preload)) {
			return 0
		}
		return preload[idx]
	}

	return v.ringSample(frame, channel, record)
}

// ringSample returns channel's value at an absolute source frame beyond
// the preload, advancing the read-ahead window one ring frame at a time
// until it covers frame. The window never holds more than windowCap
// frames, which bounds it to fixed-size arrays with no allocation.
func (v *Voice) ringSample(frame int64, channel int, record *library.ArticulationRecord) float32 {
	for frame >= v.ringNextFrame {
		v.advanceRingWindow(record.Channels)
	}
	if frame < v.ringNextFrame-int64(windowCap) {
		frame = v.ringNextFrame - int64(windowCap)
	}
	slot := ((frame % int64(windowCap)) + int64(windowCap)) % int64(windowCap)
	return v.window[slot][channel]
}

func (v *Voice) advanceRingWindow(channels int) {
	n := v.Ring.Read(v.readScratch[:channels], 1)
	slot := v.ringNextFrame % int64(windowCap)
	if n == 0 {
		v.Ring.RecordUnderrun()
		for ch := 0; ch < channels; ch++ {
			v.window[slot][ch] = 0
		}
	} else {
		for ch := 0; ch < channels; ch++ {
			v.window[slot][ch] = v.readScratch[ch]
		}
	}
	v.ringNextFrame++
}
