package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rimescape/sampler/pkg/audiofile"
	"github.com/rimescape/sampler/pkg/log"
)

// DefaultVelocityLayerLimit and DefaultRoundRobinLimit seed a freshly
// loaded map before the host restores any persisted limits.
const (
	DefaultVelocityLayerLimit = 4
	DefaultRoundRobinLimit    = 4
	DefaultPreloadSizeKB      = 256
)

var extensionOpeners = map[string]audiofile.Opener{
	".wav": audiofile.WavOpener{},
}

// Load scans dir non-recursively, parses every recognized file name in
// parallel, opens each one just long enough to capture its format and
// frame count, and returns a published InstrumentMap with every record
// marked unpreloaded. Call ReconcilePreload afterward to populate
// preload buffers.
//
// A second Load running concurrently with a first is not supported by
// this function alone; the engine is responsible for joining any prior
// loader goroutine before starting a new one (see SamplerEngine.LoadLibrary).
func Load(ctx context.Context, dir string, velocityLayerLimit, roundRobinLimit, preloadSizeKB int) (*InstrumentMap, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type parsedFile struct {
		path   string
		parsed ParsedName
	}

	var candidates []parsedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		parsed, ok := ParseName(e.Name())
		if !ok {
			log.Default().Debug("library: skipping unparseable file name %q", e.Name())
			continue
		}
		candidates = append(candidates, parsedFile{path: filepath.Join(dir, e.Name()), parsed: parsed})
	}

	records := make([]*ArticulationRecord, len(candidates))
	g, gctx := errgroup.WithContext(ctx)

	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			opener, ok := extensionOpeners[strings.ToLower(filepath.Ext(c.path))]
			if !ok {
				log.Default().Debug("library: no reader registered for %q, skipping", c.path)
				return nil
			}

			reader, err := opener.Open(c.path)
			if err != nil {
				log.Default().Warn("library: failed to open %q: %v", c.path, err)
				return nil
			}
			defer reader.Close()

			records[i] = &ArticulationRecord{
				Key: ArticulationKey{
					Note: c.parsed.Note,
					// VelocityLayerIndex temporarily carries the raw
					// velocity value; NewInstrumentMap derives the real
					// zero-based layer index from it per note.
					VelocityLayerIndex: uint16(c.parsed.Velocity),
					RoundRobin:         c.parsed.RoundRobin,
				},
				Path:        c.path,
				SourceRate:  reader.SampleRate(),
				Channels:    reader.Channels(),
				TotalFrames: reader.TotalFrames(),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*ArticulationRecord
	seen := make(map[ArticulationKey]*ArticulationRecord)
	for _, r := range records {
		if r == nil {
			continue
		}
		if prev, dup := seen[r.Key]; dup {
			log.Default().Warn("library: duplicate articulation (note=%d vel=%d rr=%d): %q replaces %q",
				r.Key.Note, r.Key.VelocityLayerIndex, r.Key.RoundRobin, r.Path, prev.Path)
			for idx, o := range out {
				if o == prev {
					out[idx] = r
					break
				}
			}
			seen[r.Key] = r
			continue
		}
		seen[r.Key] = r
		out = append(out, r)
	}

	return NewInstrumentMap(out, velocityLayerLimit, roundRobinLimit, preloadSizeKB), nil
}

// ReconcilePreload brings every record's preloaded state in line with
// ShouldPreload under the map's current limits, opening readers for
// records that newly qualify and freeing buffers for ones that no
// longer do. Runs under the map's write lock, per the specification's
// concurrency model: concurrent Find calls see a consistent, possibly
// pre-change, view until this returns.
func ReconcilePreload(ctx context.Context, m *InstrumentMap) error {
	m.WriteLock()
	defer m.WriteUnlock()

	_, _, preloadKB := m.PreloadLimitsLocked()
	records := m.RecordsLocked()

	var mu sync.Mutex
	var totalMemory int64

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range records {
		r := r
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			want := m.ShouldPreloadLocked(r)
			_, isPreloaded := r.Preload()

			switch {
			case want && !isPreloaded:
				if err := preloadRecord(r, preloadKB); err != nil {
					log.Default().Warn("library: preload failed for %q: %v", r.Path, err)
					return nil
				}
			case !want && isPreloaded:
				r.clearPreload()
			}

			mu.Lock()
			totalMemory += r.memoryBytes()
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.SetPreloadMemoryBytesLocked(totalMemory)
	return nil
}

func preloadRecord(r *ArticulationRecord, preloadSizeKB int) error {
	opener, ok := extensionOpeners[strings.ToLower(filepath.Ext(r.Path))]
	if !ok {
		return nil
	}
	reader, err := opener.Open(r.Path)
	if err != nil {
		return err
	}
	defer reader.Close()

	bytesPerFrame := r.Channels * 4
	if bytesPerFrame == 0 {
		bytesPerFrame = 4
	}
	frames := int64(preloadSizeKB*1024) / int64(bytesPerFrame)
	if frames > r.TotalFrames {
		frames = r.TotalFrames
	}
	if frames < 0 {
		frames = 0
	}

	buf := make([]float32, frames*int64(r.Channels))
	n, err := reader.ReadInto(buf, 0, int(frames))
	if err != nil {
		return err
	}

	r.setPreload(buf[:int64(n)*int64(r.Channels)], int64(n))
	return nil
}
