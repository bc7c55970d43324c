// Package ring implements the lock-free single-producer/single-consumer
// frame buffer that sits between the disk streamer and one voice.
package ring

import "sync/atomic"

// Capacity is the fixed number of frames held by a RingBuffer, roughly
// 743ms at 44.1kHz.
const Capacity = 32768

// LowWatermark is the readable-frame threshold below which a voice asks
// the disk streamer for more data.
const LowWatermark = 8192

// Chunk is the number of frames the disk streamer reads per refill.
const Chunk = 4096

// RingBuffer is a fixed-capacity circular buffer of interleaved float32
// frames. Exactly one goroutine may call the producer method (Write) and
// exactly one goroutine may call the consumer method (Read); the two are
// safe to call concurrently with each other. AvailableToRead,
// AvailableToWrite and NeedsData only load and store atomics, so either
// side may call them (the disk streamer calls NeedsData and
// AvailableToRead to pick and rank voices). There is no internal
// locking, no allocation after NewRingBuffer, and no syscalls.
type RingBuffer struct {
	data     []float32
	channels int

	// readPos is advanced only by the consumer; writePos only by the
	// producer. Both are monotonically increasing frame counts, so the
	// occupied region is always [readPos, writePos) modulo Capacity.
	readPos  atomic.Uint64
	writePos atomic.Uint64

	atEndOfStream atomic.Bool
	needsData     atomic.Bool

	underruns atomic.Uint64
}

// NewRingBuffer allocates a ring buffer for audio with the given channel
// count. All capacity is reserved up front; Read and Write never allocate.
func NewRingBuffer(channels int) *RingBuffer {
	if channels < 1 {
		channels = 1
	}
	rb := &RingBuffer{
		data:     make([]float32, Capacity*channels),
		channels: channels,
	}
	rb.needsData.Store(true)
	return rb
}

// Reset returns the buffer to its just-constructed state. Only safe to
// call when neither producer nor consumer is active.
func (rb *RingBuffer) Reset() {
	rb.readPos.Store(0)
	rb.writePos.Store(0)
	rb.atEndOfStream.Store(false)
	rb.needsData.Store(true)
}

// SetEndOfStream marks that the producer has no more frames to deliver;
// NeedsData will report false once the remaining data is drained.
func (rb *RingBuffer) SetEndOfStream(v bool) {
	rb.atEndOfStream.Store(v)
}

// AvailableToRead returns the number of frames the consumer can read
// right now.
func (rb *RingBuffer) AvailableToRead() uint64 {
	write := rb.writePos.Load() // acquire
	read := rb.readPos.Load()
	return write - read
}

// AvailableToWrite returns the number of frames the producer can write
// right now without overrunning the consumer.
func (rb *RingBuffer) AvailableToWrite() uint64 {
	read := rb.readPos.Load() // acquire
	write := rb.writePos.Load()
	return Capacity - (write - read)
}

// NeedsData reports whether the consumer should ask the streamer for more
// frames: the readable backlog has fallen below LowWatermark and the
// stream has not yet reached its end.
func (rb *RingBuffer) NeedsData() bool {
	need := rb.AvailableToRead() < LowWatermark && !rb.atEndOfStream.Load()
	rb.needsData.Store(need)
	return need
}

// NeedsDataFlag returns the last value computed by NeedsData without
// recomputing it. The disk streamer calls NeedsData itself rather than
// this method.
func (rb *RingBuffer) NeedsDataFlag() bool {
	return rb.needsData.Load()
}

// Read copies up to min(frames, AvailableToRead()) frames starting at
// readPos into dst and advances readPos. It returns the number of frames
// actually copied. If fewer frames are available than requested, the
// caller must treat the shortfall as an underrun; Read itself only moves
// data, the voice is responsible for filling any remainder with silence.
func (rb *RingBuffer) Read(dst []float32, frames int) int {
	avail := rb.AvailableToRead()
	if uint64(frames) > avail {
		frames = int(avail)
	}
	if frames <= 0 {
		return 0
	}

	read := rb.readPos.Load()
	for i := 0; i < frames; i++ {
		srcFrame := int(read+uint64(i)) % Capacity
		copy(dst[i*rb.channels:(i+1)*rb.channels], rb.data[srcFrame*rb.channels:(srcFrame+1)*rb.channels])
	}

	rb.readPos.Store(read + uint64(frames)) // release
	return frames
}

// Write copies up to min(frames, AvailableToWrite()) frames from src
// starting at writePos and advances writePos. It returns the number of
// frames actually copied.
func (rb *RingBuffer) Write(src []float32, frames int) int {
	avail := rb.AvailableToWrite()
	if uint64(frames) > avail {
		frames = int(avail)
	}
	if frames <= 0 {
		return 0
	}

	write := rb.writePos.Load()
	for i := 0; i < frames; i++ {
		dstFrame := int(write+uint64(i)) % Capacity
		copy(rb.data[dstFrame*rb.channels:(dstFrame+1)*rb.channels], src[i*rb.channels:(i+1)*rb.channels])
	}

	rb.writePos.Store(write + uint64(frames)) // release
	return frames
}

// RecordUnderrun increments the process-wide-visible underrun counter for
// this voice's ring buffer. Called by the voice when a render pass could
// not find enough frames.
func (rb *RingBuffer) RecordUnderrun() {
	rb.underruns.Add(1)
}

// Underruns returns the total number of underruns observed on this buffer.
func (rb *RingBuffer) Underruns() uint64 {
	return rb.underruns.Load()
}

// Channels reports the frame width this buffer was constructed with.
func (rb *RingBuffer) Channels() int {
	return rb.channels
}
