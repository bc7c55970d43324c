package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rimescape/sampler/pkg/engine"
	"github.com/rimescape/sampler/pkg/midi"
)

// cliSampleRate and cliChannels are fixed for the CLI; a real host negotiates
// these with the audio device, but a command-line tool has no device
// negotiation to do.
const (
	cliSampleRate = 44100.0
	cliChannels   = 2
	cliBlockSize  = 512 // frames per ProcessBlock call
)

func newLoadedEngine(ctx context.Context, dir string) (*engine.SamplerEngine, error) {
	e := engine.New(cliSampleRate, cliChannels)
	if err := e.LoadLibrary(ctx, dir); err != nil {
		e.Shutdown()
		return nil, errors.Wrapf(err, "loading %q", dir)
	}
	return e, nil
}

// applyEvent dispatches one parsed script event to the engine directly,
// for the live-playback path where events fire in real wall-clock time
// against whatever block the audio callback happens to be rendering, so
// there is no block boundary to batch them against.
func applyEvent(e *engine.SamplerEngine, ev scriptEvent) {
	switch ev.kind {
	case "on":
		e.NoteOn(ev.note, ev.velocity)
	case "off":
		e.NoteOff(ev.note)
	case "cc64":
		e.ControlChange(midi.CCSustain, ev.ccValue)
	}
}

// msToFrames converts a millisecond duration to a frame count at the
// CLI's fixed sample rate.
func msToFrames(ms int) int64 {
	return int64(float64(ms) * cliSampleRate / 1000.0)
}

// buildEventQueue lays a script out on an absolute frame timeline: each
// "wait" advances the cursor, and every other event is stamped with the
// cursor's current position as its SampleOffset. Rendering can then pull
// each block's events out of the queue in offset order via
// EventQueue.ProcessEvents instead of dispatching events as soon as the
// script mentions them, giving the render path the same intra-block
// ordering guarantee the audio thread relies on.
func buildEventQueue(events []scriptEvent) (*midi.EventQueue, int64) {
	q := midi.NewEventQueue()
	var cursor int64

	for _, ev := range events {
		switch ev.kind {
		case "wait":
			cursor += msToFrames(ev.waitMs)
		case "on":
			q.Add(midi.NoteOnEvent{
				BaseEvent:  midi.BaseEvent{Offset: int32(cursor)},
				NoteNumber: ev.note,
				Velocity:   ev.velocity,
			})
		case "off":
			q.Add(midi.NoteOffEvent{
				BaseEvent:  midi.BaseEvent{Offset: int32(cursor)},
				NoteNumber: ev.note,
			})
		case "cc64":
			q.Add(midi.ControlChangeEvent{
				BaseEvent:  midi.BaseEvent{Offset: int32(cursor)},
				Controller: midi.CCSustain,
				Value:      ev.ccValue,
			})
		}
	}
	return q, cursor
}
