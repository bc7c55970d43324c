// Package library builds and queries the immutable instrument map: the
// note/velocity-layer/round-robin lattice that maps an incoming MIDI
// note-on to the articulation record that should sound.
package library

import (
	"sort"
	"sync"
)

// ArticulationKey uniquely identifies one audio file within an instrument.
type ArticulationKey struct {
	Note               uint8
	VelocityLayerIndex uint16
	RoundRobin         uint16
}

// VelocityLayer is one intensity tier for a note: the raw velocity value
// taken from the filename, and the inclusive band of incoming MIDI
// velocities it covers once all of a note's layers are known.
type VelocityLayer struct {
	VelocityValue uint8
	RangeStart    uint8
	RangeEnd      uint8
}

// ArticulationRecord describes one parsed, possibly-preloaded sample file.
type ArticulationRecord struct {
	Key ArticulationKey

	Path        string
	SourceRate  int
	Channels    int
	TotalFrames int64

	// PreloadEndFrames is the position in the source file at which the
	// preload buffer ends and ring-buffer streaming takes over.
	PreloadEndFrames int64

	mu        sync.RWMutex
	preload   []float32
	preloaded bool
}

// Preload returns the current preload buffer. Safe to call concurrently
// with ReconcilePreload; the slice returned must not be retained past the
// call that follows since it may be replaced under the write lock.
func (r *ArticulationRecord) Preload() ([]float32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.preload, r.preloaded
}

func (r *ArticulationRecord) setPreload(buf []float32, end int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preload = buf
	r.PreloadEndFrames = end
	r.preloaded = true
}

func (r *ArticulationRecord) clearPreload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preload = nil
	r.PreloadEndFrames = 0
	r.preloaded = false
}

func (r *ArticulationRecord) memoryBytes() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.preload)) * 4
}

// NoteMapping is the per-note entry in the instrument map: its own
// velocity layers (possibly none) and a fallback note to borrow from.
type NoteMapping struct {
	Layers       []VelocityLayer
	FallbackNote int // -1 means none
}

// InstrumentMap is the immutable bundle produced by a library load. It is
// swapped atomically by the engine; individual records' preload buffers
// are mutated in place, under mu, when selective-preload limits change.
type InstrumentMap struct {
	mu sync.RWMutex

	notes   [128]NoteMapping
	records []*ArticulationRecord

	maxRoundRobins    uint16
	maxVelocityLayers int

	velocityLayerLimit int
	roundRobinLimit    int
	preloadSizeKB      int

	totalFileSizeBytes int64
	preloadMemoryBytes int64
}

// NewInstrumentMap builds the note mapping, velocity-layer ranges, and
// fallback table from a flat list of parsed records. It does not preload
// anything; call ReconcilePreload afterward, which opens each record's
// file itself, to populate preload buffers per the current limits.
func NewInstrumentMap(records []*ArticulationRecord, velocityLayerLimit, roundRobinLimit, preloadSizeKB int) *InstrumentMap {
	m := &InstrumentMap{
		records:            records,
		velocityLayerLimit: velocityLayerLimit,
		roundRobinLimit:    roundRobinLimit,
		preloadSizeKB:      preloadSizeKB,
	}
	for i := range m.notes {
		m.notes[i].FallbackNote = -1
	}

	byNote := make(map[uint8][]*ArticulationRecord)
	for _, r := range records {
		byNote[r.Key.Note] = append(byNote[r.Key.Note], r)
		if r.Key.RoundRobin > m.maxRoundRobins {
			m.maxRoundRobins = r.Key.RoundRobin
		}
	}

	for note, recs := range byNote {
		layers, indexOf := buildLayers(recs)
		m.notes[note] = NoteMapping{Layers: layers, FallbackNote: -1}
		if len(layers) > m.maxVelocityLayers {
			m.maxVelocityLayers = len(layers)
		}
		for _, r := range recs {
			r.Key.VelocityLayerIndex = indexOf[r.Key.VelocityLayerIndex]
		}
	}

	// Fallback table: nearest higher note with own layers.
	nextWithLayers := -1
	for n := 127; n >= 0; n-- {
		if len(m.notes[n].Layers) > 0 {
			nextWithLayers = n
		} else {
			m.notes[n].FallbackNote = nextWithLayers
		}
	}

	for _, r := range records {
		m.totalFileSizeBytes += r.TotalFrames * int64(r.Channels) * 4
	}

	return m
}

// buildLayers groups records for one note by distinct velocity value,
// sorts ascending, computes contiguous ranges, and returns the layer
// list plus a map from the record's raw velocity value (temporarily
// stored in VelocityLayerIndex by the loader) to its final zero-based
// layer index.
func buildLayers(recs []*ArticulationRecord) ([]VelocityLayer, map[uint16]uint16) {
	seen := make(map[uint8]bool)
	var values []uint8
	for _, r := range recs {
		v := uint8(r.Key.VelocityLayerIndex)
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	layers := make([]VelocityLayer, len(values))
	indexOf := make(map[uint16]uint16, len(values))
	prevEnd := uint8(0)
	for i, v := range values {
		start := prevEnd + 1
		if i == 0 {
			start = 1
		}
		layers[i] = VelocityLayer{VelocityValue: v, RangeStart: start, RangeEnd: v}
		prevEnd = v
		indexOf[uint16(v)] = uint16(i)
	}
	return layers, indexOf
}

// Find resolves a note-on to the articulation record that should sound,
// applying fallback and the velocity-layer-limit linear remap.
func (m *InstrumentMap) Find(note, velocity uint8, roundRobin uint16) (*ArticulationRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targetNote := note
	if m.notes[note].FallbackNote >= 0 && len(m.notes[note].Layers) == 0 {
		targetNote = uint8(m.notes[note].FallbackNote)
	} else if len(m.notes[note].Layers) == 0 {
		return nil, false
	}

	layers := m.notes[targetNote].Layers
	layersTotal := len(layers)
	if layersTotal == 0 {
		return nil, false
	}

	effectiveLayers := m.velocityLayerLimit
	if effectiveLayers > layersTotal {
		effectiveLayers = layersTotal
	}
	if effectiveLayers < 1 {
		effectiveLayers = 1
	}

	layerIndex := (int(velocity) - 1) * effectiveLayers / 127
	if layerIndex < 0 {
		layerIndex = 0
	}
	if layerIndex > effectiveLayers-1 {
		layerIndex = effectiveLayers - 1
	}

	targetVelocity := layers[layerIndex].VelocityValue

	var fallbackMatch *ArticulationRecord
	for _, r := range m.records {
		if r.Key.Note != targetNote {
			continue
		}
		if layers[r.Key.VelocityLayerIndex].VelocityValue != targetVelocity {
			continue
		}
		if _, ok := r.Preload(); !ok {
			continue
		}
		if r.Key.RoundRobin == roundRobin {
			return r, true
		}
		if fallbackMatch == nil {
			fallbackMatch = r
		}
	}
	if fallbackMatch != nil {
		return fallbackMatch, true
	}
	return nil, false
}

// ShouldPreload reports whether a record falls within the current
// selective-preload limits.
func (m *InstrumentMap) ShouldPreload(r *ArticulationRecord) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shouldPreloadLocked(r)
}

func (m *InstrumentMap) shouldPreloadLocked(r *ArticulationRecord) bool {
	return int(r.Key.VelocityLayerIndex) < m.velocityLayerLimit &&
		r.Key.RoundRobin >= 1 && int(r.Key.RoundRobin) <= m.roundRobinLimit
}

// SetLimits updates the selective-preload limits and preload size, for
// the caller to follow with ReconcilePreload.
func (m *InstrumentMap) SetLimits(velocityLayerLimit, roundRobinLimit, preloadSizeKB int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if velocityLayerLimit >= 1 {
		m.velocityLayerLimit = velocityLayerLimit
	}
	if roundRobinLimit >= 1 {
		m.roundRobinLimit = roundRobinLimit
	}
	if preloadSizeKB >= 32 && preloadSizeKB <= 1024 {
		m.preloadSizeKB = preloadSizeKB
	}
}

// Records returns the full flat record list, for the loader's reconcile
// pass and for diagnostics.
func (m *InstrumentMap) Records() []*ArticulationRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ArticulationRecord, len(m.records))
	copy(out, m.records)
	return out
}

// PreloadLimits returns the limits reconcile should apply right now.
func (m *InstrumentMap) PreloadLimits() (velocityLayerLimit, roundRobinLimit, preloadSizeKB int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.velocityLayerLimit, m.roundRobinLimit, m.preloadSizeKB
}

// WriteLock exposes the map's write lock for the loader's reconcile pass,
// which mutates individual records' preload buffers in place. Callers
// holding it must use the Locked-suffixed accessors below rather than the
// ordinary read-locking methods, since sync.RWMutex is not reentrant.
func (m *InstrumentMap) WriteLock()   { m.mu.Lock() }
func (m *InstrumentMap) WriteUnlock() { m.mu.Unlock() }

// PreloadLimitsLocked is PreloadLimits for a caller that already holds
// WriteLock.
func (m *InstrumentMap) PreloadLimitsLocked() (velocityLayerLimit, roundRobinLimit, preloadSizeKB int) {
	return m.velocityLayerLimit, m.roundRobinLimit, m.preloadSizeKB
}

// ShouldPreloadLocked is ShouldPreload for a caller that already holds
// WriteLock.
func (m *InstrumentMap) ShouldPreloadLocked(r *ArticulationRecord) bool {
	return m.shouldPreloadLocked(r)
}

// RecordsLocked returns the map's record slice directly (no copy), for a
// caller that already holds WriteLock.
func (m *InstrumentMap) RecordsLocked() []*ArticulationRecord {
	return m.records
}

// SetPreloadMemoryBytesLocked is SetPreloadMemoryBytes for a caller that
// already holds WriteLock.
func (m *InstrumentMap) SetPreloadMemoryBytesLocked(n int64) {
	m.preloadMemoryBytes = n
}

// SetPreloadMemoryBytes updates the aggregate counter after a reconcile.
func (m *InstrumentMap) SetPreloadMemoryBytes(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preloadMemoryBytes = n
}

// Stats returns the read-only observation fields exposed to the UI.
func (m *InstrumentMap) Stats() (totalFileSize, preloadMemory int64, maxRR uint16, maxLayers int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalFileSizeBytes, m.preloadMemoryBytes, m.maxRoundRobins, m.maxVelocityLayers
}

// IsNoteAvailable reports whether note-on for this note would find any
// articulation at all, directly or via fallback. Supplements the hot-path
// Find with the kind of availability query a UI piano-keyboard widget
// needs to grey out unplayable keys.
func (m *InstrumentMap) IsNoteAvailable(note uint8) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if note > 127 {
		return false
	}
	return len(m.notes[note].Layers) > 0 || m.notes[note].FallbackNote >= 0
}

// NoteHasOwnSamples reports whether a note has at least one of its own
// velocity layers, as opposed to relying entirely on fallback.
func (m *InstrumentMap) NoteHasOwnSamples(note uint8) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if note > 127 {
		return false
	}
	return len(m.notes[note].Layers) > 0
}

// GetVelocityLayers returns a copy of a note's own velocity layers
// (empty if the note has none of its own).
func (m *InstrumentMap) GetVelocityLayers(note uint8) []VelocityLayer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if note > 127 {
		return nil
	}
	out := make([]VelocityLayer, len(m.notes[note].Layers))
	copy(out, m.notes[note].Layers)
	return out
}

// GetLowestAvailableNote returns the lowest MIDI note with own samples,
// and false if the instrument has none.
func (m *InstrumentMap) GetLowestAvailableNote() (uint8, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for n := 0; n <= 127; n++ {
		if len(m.notes[n].Layers) > 0 {
			return uint8(n), true
		}
	}
	return 0, false
}

// GetHighestAvailableNote returns the highest MIDI note with own samples,
// and false if the instrument has none.
func (m *InstrumentMap) GetHighestAvailableNote() (uint8, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for n := 127; n >= 0; n-- {
		if len(m.notes[n].Layers) > 0 {
			return uint8(n), true
		}
	}
	return 0, false
}

// GetMaxVelocityLayers returns the highest layer count held by any note.
func (m *InstrumentMap) GetMaxVelocityLayers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxVelocityLayers
}

// GetVelocityLayerIndex returns the zero-based index a given incoming
// velocity resolves to for a note, under the note's own layer count
// (ignoring fallback and the live limit) — a diagnostic query distinct
// from the hot-path remap used by Find.
func (m *InstrumentMap) GetVelocityLayerIndex(note, velocity uint8) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	layers := m.notes[note].Layers
	if len(layers) == 0 {
		return 0, false
	}
	idx := (int(velocity) - 1) * len(layers) / 127
	if idx < 0 {
		idx = 0
	}
	if idx > len(layers)-1 {
		idx = len(layers) - 1
	}
	return idx, true
}
