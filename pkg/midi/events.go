// Package midi provides MIDI event types and an intra-block event queue
// for a host-delivered MIDI stream.
package midi

import "fmt"

// EventType identifies the concrete kind of an Event.
type EventType uint8

const (
	EventTypeNoteOff EventType = iota
	EventTypeNoteOn
	EventTypeControlChange
)

// Event is anything the engine can dispatch from a block of host-delivered
// MIDI. SampleOffset gives its position within the current audio block,
// used to preserve intra-block ordering.
type Event interface {
	Type() EventType
	Channel() uint8
	SampleOffset() int32
	String() string
}

// BaseEvent carries the fields common to every event.
type BaseEvent struct {
	EventChannel uint8
	Offset       int32
}

func (e BaseEvent) Channel() uint8 {
	return e.EventChannel
}

func (e BaseEvent) SampleOffset() int32 {
	return e.Offset
}

// NoteOnEvent triggers an articulation. A Velocity of 0 carries note-off
// semantics and should be dispatched as a NoteOffEvent by the caller.
type NoteOnEvent struct {
	BaseEvent
	NoteNumber uint8
	Velocity   uint8
}

func (e NoteOnEvent) Type() EventType { return EventTypeNoteOn }

func (e NoteOnEvent) String() string {
	return fmt.Sprintf("NoteOn{ch:%d, note:%d, vel:%d, offset:%d}",
		e.EventChannel, e.NoteNumber, e.Velocity, e.Offset)
}

// NoteOffEvent releases any voice playing NoteNumber.
type NoteOffEvent struct {
	BaseEvent
	NoteNumber uint8
	Velocity   uint8
}

func (e NoteOffEvent) Type() EventType { return EventTypeNoteOff }

func (e NoteOffEvent) String() string {
	return fmt.Sprintf("NoteOff{ch:%d, note:%d, vel:%d, offset:%d}",
		e.EventChannel, e.NoteNumber, e.Velocity, e.Offset)
}

// ControlChangeEvent carries a MIDI CC message. The engine only acts on
// CCSustain; other controllers are delivered for completeness but ignored.
type ControlChangeEvent struct {
	BaseEvent
	Controller uint8
	Value      uint8
}

func (e ControlChangeEvent) Type() EventType { return EventTypeControlChange }

func (e ControlChangeEvent) String() string {
	return fmt.Sprintf("CC{ch:%d, ctrl:%d, val:%d, offset:%d}",
		e.EventChannel, e.Controller, e.Value, e.Offset)
}

// CCSustain is the standard sustain-pedal controller number.
// Values >= 64 mean "down", values < 64 mean "up".
const CCSustain uint8 = 64

// NoteNumberToName renders a MIDI note number in scientific pitch notation,
// e.g. 60 -> "C4". Used only for log messages.
func NoteNumberToName(note uint8) string {
	names := []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	octave := int(note/12) - 1
	return fmt.Sprintf("%s%d", names[note%12], octave)
}
