package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rimescape/sampler/pkg/audiofile"
)

// fakeOpener serves fixed-size, fixed-rate synthetic readers so Load and
// ReconcilePreload can be exercised without decoding real audio files. It
// is registered for ".wav" because ParseName only accepts the real sample
// extensions, so the fixture files need a name the parser recognizes.
type fakeOpener struct {
	channels    int
	sampleRate  int
	totalFrames int64
}

func (o fakeOpener) Open(path string) (audiofile.Reader, error) {
	return &fakeReader{path: path, channels: o.channels, sampleRate: o.sampleRate, total: o.totalFrames}, nil
}

type fakeReader struct {
	path       string
	channels   int
	sampleRate int
	total      int64
}

func (r *fakeReader) SampleRate() int    { return r.sampleRate }
func (r *fakeReader) Channels() int      { return r.channels }
func (r *fakeReader) TotalFrames() int64 { return r.total }
func (r *fakeReader) Close() error       { return nil }

func (r *fakeReader) ReadInto(dst []float32, startFrame int64, frames int) (int, error) {
	if startFrame >= r.total {
		return 0, nil
	}
	if int64(frames) > r.total-startFrame {
		frames = int(r.total - startFrame)
	}
	for i := 0; i < frames*r.channels; i++ {
		dst[i] = float32(startFrame) + float32(i)
	}
	return frames, nil
}

func init() {
	RegisterOpenerForTest(".wav", fakeOpener{channels: 1, sampleRate: 44100, totalFrames: 10000})
}

func writeTestFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte{}, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadScansAndSkipsUnparseable(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "C4_040_01.wav")
	writeTestFile(t, dir, "C4_080_01.wav")
	writeTestFile(t, dir, "not_a_sample.wav")
	writeTestFile(t, dir, "C4.wav")

	m, err := Load(context.Background(), dir, DefaultVelocityLayerLimit, DefaultRoundRobinLimit, DefaultPreloadSizeKB)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	records := m.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 valid records, got %d", len(records))
	}
}

func TestReconcilePreloadPopulatesAndFreesBuffers(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "C4_040_01.wav")
	writeTestFile(t, dir, "C4_080_01.wav")

	m, err := Load(context.Background(), dir, 2, 1, 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetLimits(2, 1, 1) // 1KB preload -> 256 frames at 1 channel * 4 bytes

	if err := ReconcilePreload(context.Background(), m); err != nil {
		t.Fatalf("ReconcilePreload: %v", err)
	}

	for _, r := range m.Records() {
		buf, ok := r.Preload()
		if !ok {
			t.Errorf("%s: expected to be preloaded", r.Path)
			continue
		}
		if len(buf) == 0 {
			t.Errorf("%s: preload buffer is empty", r.Path)
		}
	}

	m.SetLimits(1, 1, 1)
	if err := ReconcilePreload(context.Background(), m); err != nil {
		t.Fatalf("ReconcilePreload: %v", err)
	}

	found040, found080 := false, false
	for _, r := range m.Records() {
		_, preloaded := r.Preload()
		switch r.Key.RoundRobin {
		case 1:
			if r.Path == filepath.Join(dir, "C4_040_01.wav") {
				found040 = true
				if !preloaded {
					t.Error("C4_040_01 should remain preloaded under limit 1")
				}
			}
			if r.Path == filepath.Join(dir, "C4_080_01.wav") {
				found080 = true
				if preloaded {
					t.Error("C4_080_01 should have been unpreloaded under limit 1")
				}
			}
		}
	}
	if !found040 || !found080 {
		t.Fatal("expected both records in the result set")
	}
}
