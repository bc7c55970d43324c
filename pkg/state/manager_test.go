package state

import (
	"bytes"
	"testing"

	"github.com/rimescape/sampler/pkg/param"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := State{
		SampleFolder:       "/instruments/piano",
		Attack:             0.01,
		Decay:              0.2,
		Sustain:            0.6,
		Release:            0.4,
		PreloadSizeKB:      256,
		Transpose:          -3,
		SampleOffset:       2,
		VelocityLayerLimit: 3,
		RoundRobinLimit:    2,
		SameNoteRelease:    0.05,
	}

	var buf bytes.Buffer
	if err := Save(&buf, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got != s {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, s)
	}
}

func TestLoadRejectsBadHeader(t *testing.T) {
	buf := bytes.NewBufferString("NOTSMPLR")
	if _, err := Load(buf); err == nil {
		t.Fatal("expected an error loading a bad header")
	}
}

func TestApplyToIsIdempotent(t *testing.T) {
	k := param.NewKnobs()
	s := State{
		Attack: 0.02, Decay: 0.3, Sustain: 0.5, Release: 0.6,
		PreloadSizeKB: 512, Transpose: 5, SampleOffset: -5,
		VelocityLayerLimit: 2, RoundRobinLimit: 3, SameNoteRelease: 0.1,
	}

	s.ApplyTo(k)
	first := FromKnobs("", k)
	s.ApplyTo(k)
	second := FromKnobs("", k)

	if first != second {
		t.Fatalf("applying the same state twice changed the result:\n%+v\n%+v", first, second)
	}
}

func TestApplyToClampsOutOfRangeValues(t *testing.T) {
	k := param.NewKnobs()
	s := State{Transpose: 100, SampleOffset: -100, PreloadSizeKB: 1, SameNoteRelease: 100}
	s.ApplyTo(k)

	if got := k.Transpose.Load(); got != 12 {
		t.Errorf("transpose should clamp to 12, got %d", got)
	}
	if got := k.SampleOffset.Load(); got != -12 {
		t.Errorf("sample offset should clamp to -12, got %d", got)
	}
	if got := k.PreloadSizeKB.Load(); got != 32 {
		t.Errorf("preload KB should clamp to 32, got %d", got)
	}
	if got := k.ADSR.SameNoteRelease.Load(); got != 5.0 {
		t.Errorf("same-note release should clamp to 5.0, got %v", got)
	}
}

func TestLoadFolderOrSkip(t *testing.T) {
	if LoadFolderOrSkip("", func(string) bool { return true }) {
		t.Error("empty folder should never trigger a load")
	}
	if LoadFolderOrSkip("/missing", func(string) bool { return false }) {
		t.Error("a missing folder should be skipped, not loaded")
	}
	if !LoadFolderOrSkip("/present", func(string) bool { return true }) {
		t.Error("an existing folder should trigger a load")
	}
}
