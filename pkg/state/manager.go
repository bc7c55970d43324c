// Package state persists and restores the small key-value record the
// host reads and writes: the sample folder path and the runtime knobs
// that should survive a project reload.
package state

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rimescape/sampler/pkg/log"
	"github.com/rimescape/sampler/pkg/param"
)

const magic = "SAMPLR"

const currentVersion uint32 = 1

// State is the exact set of keys the specification recognizes. ApplyTo
// writes every field; only a VelocityLayerLimit or RoundRobinLimit below
// 1 leaves the engine's current value in place.
type State struct {
	SampleFolder string

	Attack  float64
	Decay   float64
	Sustain float64
	Release float64

	PreloadSizeKB      int32
	Transpose          int32
	SampleOffset       int32
	VelocityLayerLimit int32
	RoundRobinLimit    int32
	SameNoteRelease    float64
}

// FromKnobs captures the live value of every persisted knob.
func FromKnobs(sampleFolder string, k *param.Knobs) State {
	return State{
		SampleFolder:       sampleFolder,
		Attack:             k.ADSR.Attack.Load(),
		Decay:              k.ADSR.Decay.Load(),
		Sustain:            k.ADSR.Sustain.Load(),
		Release:            k.ADSR.Release.Load(),
		PreloadSizeKB:      k.PreloadSizeKB.Load(),
		Transpose:          k.Transpose.Load(),
		SampleOffset:       k.SampleOffset.Load(),
		VelocityLayerLimit: k.VelocityLayerLimit.Load(),
		RoundRobinLimit:    k.RoundRobinLimit.Load(),
		SameNoteRelease:    k.ADSR.SameNoteRelease.Load(),
	}
}

// ApplyTo writes a restored State back into the live knob set. Sustain is
// clamped to [0, 1], SameNoteRelease, PreloadSizeKB, Transpose and
// SampleOffset go through the param clamps, and limits below 1 are
// skipped; Attack, Decay and Release are stored as given (the envelope
// floors them at 1ms when it applies them). Restoration is idempotent:
// applying the same State twice leaves the knobs unchanged.
func (s State) ApplyTo(k *param.Knobs) {
	k.ADSR.Attack.Store(s.Attack)
	k.ADSR.Decay.Store(s.Decay)
	k.ADSR.Sustain.Store(clamp01(s.Sustain))
	k.ADSR.Release.Store(s.Release)
	k.ADSR.SameNoteRelease.Store(param.ClampSameNoteRelease(s.SameNoteRelease))
	k.PreloadSizeKB.Store(param.ClampPreloadKB(s.PreloadSizeKB))
	k.Transpose.Store(param.ClampTranspose(s.Transpose))
	k.SampleOffset.Store(param.ClampTranspose(s.SampleOffset))
	if s.VelocityLayerLimit >= 1 {
		k.VelocityLayerLimit.Store(s.VelocityLayerLimit)
	}
	if s.RoundRobinLimit >= 1 {
		k.RoundRobinLimit.Store(s.RoundRobinLimit)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Save writes s to w as a versioned binary record: a 6-byte magic header,
// a version, then each field in a fixed order.
func Save(w io.Writer, s State) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, currentVersion); err != nil {
		return err
	}

	if err := writeString(w, s.SampleFolder); err != nil {
		return err
	}

	floats := []float64{s.Attack, s.Decay, s.Sustain, s.Release, s.SameNoteRelease}
	for _, f := range floats {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}

	ints := []int32{s.PreloadSizeKB, s.Transpose, s.SampleOffset, s.VelocityLayerLimit, s.RoundRobinLimit}
	for _, n := range ints {
		if err := binary.Write(w, binary.LittleEndian, n); err != nil {
			return err
		}
	}

	return nil
}

// Load reads a State previously written by Save. A version newer than
// currentVersion is rejected; older version numbers pass the check, but
// every field must still be present: a record that ends before its last
// field is an error.
func Load(r io.Reader) (State, error) {
	var s State

	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return s, err
	}
	if string(header) != magic {
		return s, fmt.Errorf("state: invalid header %q", header)
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return s, err
	}
	if version > currentVersion {
		return s, fmt.Errorf("state: version %d newer than supported %d", version, currentVersion)
	}

	folder, err := readString(r)
	if err != nil {
		return s, err
	}
	s.SampleFolder = folder

	floats := []*float64{&s.Attack, &s.Decay, &s.Sustain, &s.Release, &s.SameNoteRelease}
	for _, f := range floats {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return s, err
		}
	}

	ints := []*int32{&s.PreloadSizeKB, &s.Transpose, &s.SampleOffset, &s.VelocityLayerLimit, &s.RoundRobinLimit}
	for _, n := range ints {
		if err := binary.Read(r, binary.LittleEndian, n); err != nil {
			return s, err
		}
	}

	return s, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// LoadFolderOrSkip is the restoration policy for sampleFolder: the host
// may hand back a folder that no longer exists, which must not be a
// fatal error. The caller supplies the actual load function; this just
// logs and returns ok=false when the folder check fails.
func LoadFolderOrSkip(folder string, exists func(string) bool) bool {
	if folder == "" {
		return false
	}
	if !exists(folder) {
		log.Default().Warn("state: sample folder %q no longer exists, skipping auto-load", folder)
		return false
	}
	return true
}
