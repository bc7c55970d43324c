// Package engine implements the SamplerEngine: MIDI dispatch, voice
// allocation and stealing, mixing, and the observable state the host
// polls.
package engine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rimescape/sampler/pkg/audiofile"
	"github.com/rimescape/sampler/pkg/dsp"
	"github.com/rimescape/sampler/pkg/library"
	"github.com/rimescape/sampler/pkg/log"
	"github.com/rimescape/sampler/pkg/midi"
	"github.com/rimescape/sampler/pkg/param"
	"github.com/rimescape/sampler/pkg/state"
	"github.com/rimescape/sampler/pkg/streamer"
	"github.com/rimescape/sampler/pkg/voice"
)

// SamplerEngine is the top-level object the host drives: it turns MIDI
// events into voice operations, mixes every active voice's output, and
// owns the background disk streamer and the currently loaded instrument.
type SamplerEngine struct {
	SampleRate float64
	Channels   int

	Knobs *param.Knobs

	voices       [voice.PoolSize]*voice.Voice
	startCounter atomic.Uint64

	mapMu sync.RWMutex
	lib   *library.InstrumentMap

	opener audiofile.Opener

	sustainPedal   bool
	sustainedNotes [128]bool
	sustainMu      sync.Mutex

	currentRR atomic.Uint32

	streamer *streamer.DiskStreamer

	underruns atomic.Uint64

	loadMu      sync.Mutex
	loadCancel  context.CancelFunc
	loadingStat atomic.Int32

	loadedFolder atomic.Pointer[string]
}

// LoadingState mirrors the host-visible load lifecycle: Idle between
// loads, Loading while a loader goroutine is scanning and preloading,
// Loaded once a map has been published at least once.
type LoadingState int32

const (
	LoadingIdle LoadingState = iota
	LoadingInProgress
	LoadingLoaded
)

// LoadingState reports where the current (or most recent) library load
// stands, for UI polling.
func (e *SamplerEngine) LoadingState() LoadingState {
	return LoadingState(e.loadingStat.Load())
}

// New constructs an engine with an idle voice pool and default knobs. It
// does not load a library; call LoadLibrary afterward.
func New(sampleRate float64, channels int) *SamplerEngine {
	e := &SamplerEngine{
		SampleRate: sampleRate,
		Channels:   channels,
		Knobs:      param.NewKnobs(),
		opener:     audiofile.WavOpener{},
	}
	for i := range e.voices {
		e.voices[i] = voice.NewVoice(channels, sampleRate)
	}
	e.currentRR.Store(1)

	voiceSlice := make([]*voice.Voice, len(e.voices))
	copy(voiceSlice, e.voices[:])
	e.streamer = streamer.New(voiceSlice, e.readerForVoice)
	e.streamer.Start()

	return e
}

// readerForVoice resolves the audiofile.Reader for a voice's current
// record, for the disk streamer, without it ever touching the
// instrument map's lock.
func (e *SamplerEngine) readerForVoice(v *voice.Voice) audiofile.Reader {
	record := v.Record
	if record == nil {
		return nil
	}
	r, err := e.opener.Open(record.Path)
	if err != nil {
		log.Default().Warn("engine: streamer failed to reopen %q: %v", record.Path, err)
		return nil
	}
	return r
}

// LoadLibrary scans dir, builds a new InstrumentMap, preloads it per the
// current limits, and atomically swaps it in. It joins any previous load
// before starting, per the no-cooperative-cancellation policy: the first
// load simply runs to completion and the second replaces its result.
// loadMu is held for the whole call, which is what serializes loads.
func (e *SamplerEngine) LoadLibrary(ctx context.Context, dir string) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if e.loadCancel != nil {
		e.loadCancel()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	e.loadCancel = cancel

	e.loadingStat.Store(int32(LoadingInProgress))

	velLimit := int(e.Knobs.VelocityLayerLimit.Load())
	rrLimit := int(e.Knobs.RoundRobinLimit.Load())
	preloadKB := int(e.Knobs.PreloadSizeKB.Load())

	newMap, err := library.Load(loadCtx, dir, velLimit, rrLimit, preloadKB)
	if err != nil {
		e.loadingStat.Store(int32(LoadingIdle))
		return err
	}
	if err := library.ReconcilePreload(loadCtx, newMap); err != nil {
		e.loadingStat.Store(int32(LoadingIdle))
		return err
	}

	e.quiesceVoices()

	e.mapMu.Lock()
	e.lib = newMap
	e.mapMu.Unlock()

	folder := dir
	e.loadedFolder.Store(&folder)
	e.loadingStat.Store(int32(LoadingLoaded))

	return nil
}

// LoadLibraryAsync launches LoadLibrary on its own goroutine and returns
// immediately, mirroring the host's non-blocking "load from folder"
// entry point; LoadingState reports progress for the UI thread to poll.
func (e *SamplerEngine) LoadLibraryAsync(ctx context.Context, dir string) {
	go func() {
		if err := e.LoadLibrary(ctx, dir); err != nil {
			log.Default().Warn("engine: async load of %q failed: %v", dir, err)
		}
	}()
}

// quiesceVoices starts a quick fade on every voice before a map swap. It
// does not wait for the fades to finish or for the audio thread to
// observe them: a fading voice keeps rendering from the record it
// already holds until it deactivates, while new note-ons resolve
// against the swapped-in map.
func (e *SamplerEngine) quiesceVoices() {
	for _, v := range e.voices {
		v.StartQuickFade()
	}
}

// currentLibrary returns the instrument map snapshot the audio thread
// should use for the remainder of this block.
func (e *SamplerEngine) currentLibrary() *library.InstrumentMap {
	e.mapMu.RLock()
	defer e.mapMu.RUnlock()
	return e.lib
}

// NoteOn resolves an articulation via the instrument map, handles
// same-note retriggering, per-note and global voice stealing, and arms a
// fresh voice.
func (e *SamplerEngine) NoteOn(note, velocity uint8) {
	if velocity == 0 {
		e.NoteOff(note)
		return
	}

	lib := e.currentLibrary()
	if lib == nil {
		return
	}

	transpose := e.Knobs.Transpose.Load()
	sampleOffset := e.Knobs.SampleOffset.Load()

	soundingNote := clampNote(int(note) + int(transpose))
	lookupNote := clampNote(int(soundingNote) + int(sampleOffset))

	roundRobin := uint16(e.currentRR.Load())
	record, ok := lib.Find(lookupNote, velocity, roundRobin)
	if !ok {
		return
	}

	// Same-note handling: every active voice already sounding this note
	// decays under the same-note release time while the new attack
	// begins, rather than cutting off.
	for _, v := range e.voices {
		if v.IsActive() && v.MidiNote == soundingNote && !v.IsQuickFading() {
			v.ReleaseSameNote()
		}
	}

	e.enforcePerNoteCap(soundingNote)

	slot := e.allocateVoice()
	if slot == nil {
		return
	}

	pitchRatio := (float64(record.SourceRate) / e.SampleRate) *
		semitoneRatio(float64(int(soundingNote)-int(record.Key.Note)))

	counter := e.startCounter.Add(1)
	slot.Start(record, soundingNote, pitchRatio, counter)

	limit := e.Knobs.RoundRobinLimit.Load()
	if limit < 1 {
		limit = 1
	}
	next := (e.currentRR.Load() % uint32(limit)) + 1
	e.currentRR.Store(next)
}

// enforcePerNoteCap quick-fades the oldest voice on note if the number
// already active on it has reached the per-note polyphony cap.
func (e *SamplerEngine) enforcePerNoteCap(note uint8) {
	var oldest *voice.Voice
	count := 0
	for _, v := range e.voices {
		if v.IsActive() && v.MidiNote == note {
			count++
			if oldest == nil || v.StartCounter < oldest.StartCounter {
				oldest = v
			}
		}
	}
	if count >= voice.PerNoteCap && oldest != nil {
		oldest.StartQuickFade()
	}
}

// allocateVoice returns the first inactive slot; if none exists it
// quick-fades the globally oldest voice and retries, and as a last
// resort force-stops the globally oldest voice outright.
func (e *SamplerEngine) allocateVoice() *voice.Voice {
	if v := e.findInactive(); v != nil {
		return v
	}

	oldest := e.findOldestActive()
	if oldest == nil {
		return nil
	}
	oldest.StartQuickFade()

	if v := e.findInactive(); v != nil {
		return v
	}

	oldest = e.findOldestActive()
	if oldest == nil {
		return nil
	}
	oldest.Reset()
	return oldest
}

func (e *SamplerEngine) findInactive() *voice.Voice {
	for _, v := range e.voices {
		if !v.IsActive() {
			return v
		}
	}
	return nil
}

func (e *SamplerEngine) findOldestActive() *voice.Voice {
	var oldest *voice.Voice
	for _, v := range e.voices {
		if !v.IsActive() {
			continue
		}
		if oldest == nil || v.StartCounter < oldest.StartCounter {
			oldest = v
		}
	}
	return oldest
}

// NoteOff transitions every active voice on note to Release, or marks
// the note sustained if the pedal is down.
func (e *SamplerEngine) NoteOff(note uint8) {
	transpose := e.Knobs.Transpose.Load()
	soundingNote := clampNote(int(note) + int(transpose))

	if e.sustainPedalDown() {
		e.sustainMu.Lock()
		e.sustainedNotes[soundingNote] = true
		e.sustainMu.Unlock()
		return
	}

	for _, v := range e.voices {
		if v.IsActive() && v.MidiNote == soundingNote && !v.IsQuickFading() {
			v.Release()
		}
	}
}

func (e *SamplerEngine) sustainPedalDown() bool {
	e.sustainMu.Lock()
	defer e.sustainMu.Unlock()
	return e.sustainPedal
}

// ControlChange dispatches a CC message; only CCSustain has engine
// semantics, per the specification.
func (e *SamplerEngine) ControlChange(controller, value uint8) {
	if controller != midi.CCSustain {
		return
	}
	down := value >= 64

	e.sustainMu.Lock()
	wasDown := e.sustainPedal
	e.sustainPedal = down
	var toRelease []uint8
	if wasDown && !down {
		for n := 0; n < 128; n++ {
			if e.sustainedNotes[n] {
				toRelease = append(toRelease, uint8(n))
				e.sustainedNotes[n] = false
			}
		}
	}
	e.sustainMu.Unlock()

	for _, n := range toRelease {
		for _, v := range e.voices {
			if v.IsActive() && v.MidiNote == n && !v.IsQuickFading() {
				v.Release()
			}
		}
	}
}

// ProcessEvent lets the engine act as a midi.EventProcessor, for driving
// it from an EventQueue in intra-block sample-offset order.
func (e *SamplerEngine) ProcessEvent(event midi.Event) {
	switch ev := event.(type) {
	case midi.NoteOnEvent:
		e.NoteOn(ev.NoteNumber, ev.Velocity)
	case midi.NoteOffEvent:
		e.NoteOff(ev.NoteNumber)
	case midi.ControlChangeEvent:
		e.ControlChange(ev.Controller, ev.Value)
	}
}

// outputSafetyThreshold is where the post-mix soft-clip begins; with up
// to 180 voices summing into one block, a few coincident full-scale
// attacks can exceed unity without it.
const outputSafetyThreshold = 0.95

// ProcessBlock clears out, updates every active voice's envelope
// parameters from the shared atomic snapshot, renders each active
// voice's contribution mix-added into out, and soft-clips the sum.
func (e *SamplerEngine) ProcessBlock(out []float32) {
	dsp.Clear(out)

	attack := e.Knobs.ADSR.Attack.Load()
	decay := e.Knobs.ADSR.Decay.Load()
	sustain := e.Knobs.ADSR.Sustain.Load()
	release := e.Knobs.ADSR.Release.Load()
	sameNoteRelease := e.Knobs.ADSR.SameNoteRelease.Load()

	for _, v := range e.voices {
		if !v.IsActive() {
			continue
		}
		v.Env.SetADSR(attack, decay, sustain, release)
		v.Env.SetSameNoteRelease(sameNoteRelease)
		before := v.Ring.Underruns()
		v.Render(out, e.Channels)
		e.underruns.Add(v.Ring.Underruns() - before)
	}

	dsp.SoftClip(out, outputSafetyThreshold)
}

// ActiveVoiceCount returns the number of voices currently sounding.
func (e *SamplerEngine) ActiveVoiceCount() int {
	count := 0
	for _, v := range e.voices {
		if v.IsActive() {
			count++
		}
	}
	return count
}

// StreamingVoiceCount returns the number of active voices whose ring
// buffer the disk streamer has started filling with frames past the
// preload, i.e. voices depending on the disk streamer.
func (e *SamplerEngine) StreamingVoiceCount() int {
	count := 0
	for _, v := range e.voices {
		if v.IsActive() && v.Record != nil && v.NextSourceFrame > v.Record.PreloadEndFrames {
			count++
		}
	}
	return count
}

// UnderrunCount returns the process-wide underrun counter.
func (e *SamplerEngine) UnderrunCount() uint64 {
	return e.underruns.Load()
}

// DiskThroughputBytesPerSecond reports the disk streamer's current
// throughput meter.
func (e *SamplerEngine) DiskThroughputBytesPerSecond() int64 {
	return e.streamer.ThroughputBytesPerSecond()
}

// LoadedFolder returns the currently loaded library's source directory,
// or "" if nothing has been loaded.
func (e *SamplerEngine) LoadedFolder() string {
	p := e.loadedFolder.Load()
	if p == nil {
		return ""
	}
	return *p
}

// Stats returns the read-only observation fields the UI polls.
func (e *SamplerEngine) Stats() (totalFileSize, preloadMemory int64) {
	lib := e.currentLibrary()
	if lib == nil {
		return 0, 0
	}
	totalFileSize, preloadMemory, _, _ = lib.Stats()
	return totalFileSize, preloadMemory
}

// SaveState captures the engine's persisted knobs, for the host to write
// out verbatim.
func (e *SamplerEngine) SaveState() state.State {
	return state.FromKnobs(e.LoadedFolder(), e.Knobs)
}

// RestoreState applies a previously saved state to the engine's knobs
// and, if the folder still exists, reloads the library. Idempotent and
// safe to call with a stale or partially invalid record.
func (e *SamplerEngine) RestoreState(ctx context.Context, s state.State, folderExists func(string) bool) {
	s.ApplyTo(e.Knobs)
	if state.LoadFolderOrSkip(s.SampleFolder, folderExists) {
		if err := e.LoadLibrary(ctx, s.SampleFolder); err != nil {
			log.Default().Warn("engine: failed to auto-load %q: %v", s.SampleFolder, err)
		}
	}
}

// Shutdown stops the disk streamer and joins any in-flight load.
func (e *SamplerEngine) Shutdown() {
	e.streamer.Stop()
	e.loadMu.Lock()
	if e.loadCancel != nil {
		e.loadCancel()
	}
	e.loadMu.Unlock()
}

func clampNote(n int) uint8 {
	if n < 0 {
		return 0
	}
	if n > 127 {
		return 127
	}
	return uint8(n)
}

func semitoneRatio(semitones float64) float64 {
	return math.Pow(2, semitones/12.0)
}
