package audiofile

import (
	"io"
	"os"
	"sync"

	"github.com/youpy/go-wav"
)

// WavOpener opens RIFF/WAV files via github.com/youpy/go-wav. It decodes
// the whole file into an in-memory interleaved float32 buffer on open,
// then serves ReadInto from that buffer; go-wav's Reader is a forward-only
// sample stream, so random access has to be built on top of it rather
// than through it.
type WavOpener struct{}

func (WavOpener) Open(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	defer f.Close()

	r := wav.NewReader(f)
	format, err := r.Format()
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}

	channels := int(format.NumChannels)
	if channels < 1 {
		channels = 1
	}

	var frames []float32
	for {
		samples, err := r.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &OpenError{Path: path, Err: err}
		}
		for _, s := range samples {
			for ch := 0; ch < channels; ch++ {
				frames = append(frames, float32(r.FloatValue(s, uint(ch))))
			}
		}
	}

	return &wavReader{
		path:       path,
		sampleRate: int(format.SampleRate),
		channels:   channels,
		frames:     frames,
		total:      int64(len(frames) / channels),
	}, nil
}

type wavReader struct {
	mu sync.RWMutex

	path       string
	sampleRate int
	channels   int
	frames     []float32
	total      int64
}

func (r *wavReader) SampleRate() int    { return r.sampleRate }
func (r *wavReader) Channels() int      { return r.channels }
func (r *wavReader) TotalFrames() int64 { return r.total }

func (r *wavReader) ReadInto(dst []float32, startFrame int64, frames int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if startFrame < 0 || startFrame >= r.total {
		return 0, nil
	}
	avail := r.total - startFrame
	if int64(frames) > avail {
		frames = int(avail)
	}
	if frames <= 0 {
		return 0, nil
	}

	start := startFrame * int64(r.channels)
	n := int64(frames) * int64(r.channels)
	copy(dst, r.frames[start:start+n])
	return frames, nil
}

func (r *wavReader) Close() error { return nil }
