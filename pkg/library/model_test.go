package library

import "testing"

// buildTestMap constructs an InstrumentMap for note 60 with three
// velocity layers (40, 80, 127), each with one round robin, mirroring
// the C4_040_01 / C4_080_01 / C4_127_01 library scenario. Fallback
// resolution only ever points a note at a higher note's own samples, so
// tests exercising fallback use notes below 60, never above it.
func buildTestMap(velocityLayerLimit, roundRobinLimit int) *InstrumentMap {
	records := []*ArticulationRecord{
		{Key: ArticulationKey{Note: 60, VelocityLayerIndex: 40, RoundRobin: 1}, Path: "C4_040_01.wav", Channels: 1, TotalFrames: 1000},
		{Key: ArticulationKey{Note: 60, VelocityLayerIndex: 80, RoundRobin: 1}, Path: "C4_080_01.wav", Channels: 1, TotalFrames: 1000},
		{Key: ArticulationKey{Note: 60, VelocityLayerIndex: 127, RoundRobin: 1}, Path: "C4_127_01.wav", Channels: 1, TotalFrames: 1000},
	}
	m := NewInstrumentMap(records, velocityLayerLimit, roundRobinLimit, DefaultPreloadSizeKB)
	for _, r := range m.records {
		SetPreloadForTest(r, make([]float32, 1))
	}
	return m
}

func TestVelocityLayerRangesPartitionContiguously(t *testing.T) {
	m := buildTestMap(3, 1)
	layers := m.GetVelocityLayers(60)
	if len(layers) != 3 {
		t.Fatalf("expected 3 layers, got %d", len(layers))
	}
	if layers[0].RangeStart != 1 {
		t.Errorf("first layer should start at 1, got %d", layers[0].RangeStart)
	}
	for i := 1; i < len(layers); i++ {
		if layers[i].RangeStart != layers[i-1].RangeEnd+1 {
			t.Errorf("layer %d range_start %d should be layer %d's range_end+1 (%d)",
				i, layers[i].RangeStart, i-1, layers[i-1].RangeEnd+1)
		}
	}
	if layers[2].RangeEnd != 127 {
		t.Errorf("last layer should end at 127, got %d", layers[2].RangeEnd)
	}
}

func TestFindWithFullLimits(t *testing.T) {
	m := buildTestMap(3, 1)

	r, ok := m.Find(60, 1, 1)
	if !ok || r.Path != "C4_040_01.wav" {
		t.Errorf("Find(60,1,1) = %v, want C4_040_01.wav", r)
	}

	r, ok = m.Find(60, 127, 1)
	if !ok || r.Path != "C4_127_01.wav" {
		t.Errorf("Find(60,127,1) = %v, want C4_127_01.wav", r)
	}

	r, ok = m.Find(60, 64, 1)
	if !ok || r.Path != "C4_080_01.wav" {
		t.Errorf("Find(60,64,1) = %v, want C4_080_01.wav", r)
	}
}

func TestFindFallbackFromLowerNote(t *testing.T) {
	m := buildTestMap(3, 1)

	// Note 59 has no samples of its own; fallback resolution points it
	// at the nearest higher note that does (60), then Find's own
	// velocity-layer remap picks the layer within that note.
	r, ok := m.Find(59, 100, 1)
	if !ok || r.Path != "C4_127_01.wav" {
		t.Errorf("Find(59,100,1) = %v, want C4_127_01.wav via fallback", r)
	}
}

func TestFindWithReducedVelocityLayerLimit(t *testing.T) {
	m := buildTestMap(3, 1)
	m.SetLimits(1, 1, DefaultPreloadSizeKB)

	// Only C4_040_01 remains preloaded after the limit drops to 1; the
	// other two records are no longer eligible and must be unpreloaded
	// by a reconcile pass for should_preload itself to flip, but Find
	// must use the new limit's remap regardless.
	for _, r := range m.records {
		if m.ShouldPreload(r) {
			continue
		}
		r.clearPreload()
	}

	lo, ok := m.Find(60, 1, 1)
	if !ok || lo.Path != "C4_040_01.wav" {
		t.Errorf("Find(60,1,1) with limit 1 = %v, want C4_040_01.wav", lo)
	}

	hi, ok := m.Find(60, 127, 1)
	if !ok || hi.Path != "C4_040_01.wav" {
		t.Errorf("Find(60,127,1) with limit 1 = %v, want C4_040_01.wav", hi)
	}
}

func TestShouldPreloadRespectsLimits(t *testing.T) {
	m := buildTestMap(3, 1)
	m.SetLimits(1, 1, DefaultPreloadSizeKB)

	for _, r := range m.records {
		want := int(r.Key.VelocityLayerIndex) < 1 && r.Key.RoundRobin == 1
		got := m.ShouldPreload(r)
		if got != want {
			t.Errorf("ShouldPreload(%s) = %v, want %v", r.Path, got, want)
		}
	}
}

func TestFallbackNoteHasNoCycleOrSelfReference(t *testing.T) {
	m := buildTestMap(3, 1)
	for n := 0; n <= 127; n++ {
		if n == 60 {
			continue
		}
		if m.notes[n].FallbackNote == n {
			t.Errorf("note %d has a self-referential fallback", n)
		}
	}
	if m.notes[59].FallbackNote != 60 {
		t.Errorf("note 59's fallback should be 60, got %d", m.notes[59].FallbackNote)
	}
	if m.notes[59].FallbackNote <= 59 && m.notes[59].FallbackNote != -1 {
		t.Errorf("fallback note must be strictly greater than the note itself")
	}
}

func TestUnplayableNoteHasNoFallback(t *testing.T) {
	m := buildTestMap(3, 1)
	if m.notes[127].FallbackNote != -1 {
		t.Errorf("note 127 has nothing above it and should have no fallback, got %d", m.notes[127].FallbackNote)
	}
	if m.IsNoteAvailable(127) {
		t.Error("note 127 should be unplayable")
	}
}

func TestIsNoteAvailableAndNoteHasOwnSamples(t *testing.T) {
	m := buildTestMap(3, 1)

	if !m.NoteHasOwnSamples(60) {
		t.Error("note 60 should have its own samples")
	}
	if m.NoteHasOwnSamples(59) {
		t.Error("note 59 has no own samples, only a fallback")
	}
	if !m.IsNoteAvailable(59) {
		t.Error("note 59 should be available via fallback")
	}
}

func TestLowestAndHighestAvailableNote(t *testing.T) {
	m := buildTestMap(3, 1)

	lo, ok := m.GetLowestAvailableNote()
	if !ok || lo != 60 {
		t.Errorf("lowest available note = %d, %v, want 60, true", lo, ok)
	}
	hi, ok := m.GetHighestAvailableNote()
	if !ok || hi != 60 {
		t.Errorf("highest available note = %d, %v, want 60, true", hi, ok)
	}
}
