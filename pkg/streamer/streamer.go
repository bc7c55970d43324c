// Package streamer implements the single background thread that refills
// every active voice's ring buffer from disk on demand.
package streamer

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rimescape/sampler/pkg/audiofile"
	"github.com/rimescape/sampler/pkg/log"
	"github.com/rimescape/sampler/pkg/ring"
	"github.com/rimescape/sampler/pkg/voice"
)

// TickInterval is the sleep between scheduling passes.
const TickInterval = 2 * time.Millisecond

// readerFor resolves the concrete audiofile.Reader for a voice's current
// articulation record; the engine supplies it since the streamer itself
// never takes the instrument map's lock.
type readerFor func(v *voice.Voice) audiofile.Reader

// DiskStreamer owns the background read loop that keeps every active
// voice's ring buffer above its low watermark. It never holds the
// instrument map's write lock; it only borrows immutable per-record
// format and path data resolved for it through readerFor.
type DiskStreamer struct {
	voices    []*voice.Voice
	readerFor readerFor

	throughputBytes atomic.Int64
	lastMeterReset  time.Time
	meterMu         sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a streamer over a fixed slice of voices (by stable
// index, matching the engine's pool) and a function that resolves the
// audiofile.Reader backing a voice's current record.
func New(voices []*voice.Voice, readerFor readerFor) *DiskStreamer {
	return &DiskStreamer{
		voices:         voices,
		readerFor:      readerFor,
		lastMeterReset: time.Now(),
	}
}

// Start launches the background read loop. Calling Start while already
// running is a programmer error; callers must Stop first.
func (s *DiskStreamer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop joins the background thread. Safe to call even if Start was never
// called.
func (s *DiskStreamer) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *DiskStreamer) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

type candidate struct {
	v         *voice.Voice
	available uint64
}

func (s *DiskStreamer) tick() {
	var candidates []candidate
	for _, v := range s.voices {
		if !v.IsActive() {
			continue
		}
		if !v.Ring.NeedsData() {
			continue
		}
		candidates = append(candidates, candidate{v: v, available: v.Ring.AvailableToRead()})
	}

	if len(candidates) == 0 {
		return
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].available < candidates[j].available
	})

	for _, c := range candidates {
		s.refill(c.v)
	}
}

func (s *DiskStreamer) refill(v *voice.Voice) {
	reader := s.readerFor(v)
	if reader == nil {
		return
	}
	defer reader.Close()

	record := v.Record
	if record == nil {
		return
	}

	channels := record.Channels
	frames := ring.Chunk
	buf := make([]float32, frames*channels)

	n, err := reader.ReadInto(buf, v.NextSourceFrame, frames)
	if err != nil {
		log.Default().Debug("streamer: read error on %s: %v", record.Path, err)
		return
	}
	if n == 0 {
		v.Ring.SetEndOfStream(true)
		return
	}

	written := v.Ring.Write(buf, n)
	v.NextSourceFrame += int64(written)
	s.throughputBytes.Add(int64(written * channels * 4))

	if v.NextSourceFrame >= record.TotalFrames {
		v.Ring.SetEndOfStream(true)
	}
}

// ThroughputBytesPerSecond returns bytes transferred in roughly the last
// second and resets the counter window; intended to be polled at ~1Hz by
// the UI.
func (s *DiskStreamer) ThroughputBytesPerSecond() int64 {
	s.meterMu.Lock()
	defer s.meterMu.Unlock()

	elapsed := time.Since(s.lastMeterReset)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	n := s.throughputBytes.Swap(0)
	s.lastMeterReset = time.Now()
	return int64(float64(n) / elapsed.Seconds())
}
