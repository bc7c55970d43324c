package main

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/rimescape/sampler/pkg/library"
)

// scriptEvent is one line of a parsed event script. waitMs is only set
// for kind "wait"; the others carry whichever of note/velocity/ccValue
// apply.
type scriptEvent struct {
	kind     string // "on", "off", "cc64", "wait"
	note     uint8
	velocity uint8
	ccValue  uint8
	waitMs   int
}

// parseScript reads one event per non-empty, non-comment line:
//
//	on <note> <velocity>   note-on; <note> is a MIDI number or a name like C4
//	off <note>             note-off
//	cc64 <0|127>           sustain pedal up/down
//	wait <ms>              advance the transport by ms milliseconds
//
// Lines starting with # are comments; blank lines are ignored.
func parseScript(r io.Reader) ([]scriptEvent, error) {
	var events []scriptEvent

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		ev, err := parseScriptLine(fields)
		if err != nil {
			return nil, errors.Wrapf(err, "script line %d: %q", lineNo, line)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading script")
	}
	return events, nil
}

func parseScriptLine(fields []string) (scriptEvent, error) {
	if len(fields) == 0 {
		return scriptEvent{}, errors.New("empty line")
	}

	switch fields[0] {
	case "on":
		if len(fields) != 3 {
			return scriptEvent{}, errors.New("want: on <note> <velocity>")
		}
		note, err := parseNoteToken(fields[1])
		if err != nil {
			return scriptEvent{}, err
		}
		vel, err := parseByteToken(fields[2])
		if err != nil {
			return scriptEvent{}, errors.Wrap(err, "velocity")
		}
		return scriptEvent{kind: "on", note: note, velocity: vel}, nil

	case "off":
		if len(fields) != 2 {
			return scriptEvent{}, errors.New("want: off <note>")
		}
		note, err := parseNoteToken(fields[1])
		if err != nil {
			return scriptEvent{}, err
		}
		return scriptEvent{kind: "off", note: note}, nil

	case "cc64":
		if len(fields) != 2 {
			return scriptEvent{}, errors.New("want: cc64 <0|127>")
		}
		v, err := parseByteToken(fields[1])
		if err != nil {
			return scriptEvent{}, errors.Wrap(err, "cc64 value")
		}
		return scriptEvent{kind: "cc64", ccValue: v}, nil

	case "wait":
		if len(fields) != 2 {
			return scriptEvent{}, errors.New("want: wait <ms>")
		}
		ms, err := strconv.Atoi(fields[1])
		if err != nil || ms < 0 {
			return scriptEvent{}, errors.Errorf("invalid wait duration %q", fields[1])
		}
		return scriptEvent{kind: "wait", waitMs: ms}, nil

	default:
		return scriptEvent{}, errors.Errorf("unknown directive %q", fields[0])
	}
}

// parseNoteToken accepts either a decimal MIDI note or a scientific
// pitch name like "C4", sharing the engine's own note-name parser so a
// script and a sample library file name agree on what "C4" means.
func parseNoteToken(s string) (uint8, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 127 {
			return 0, errors.Errorf("MIDI note %d out of range", n)
		}
		return uint8(n), nil
	}
	note, ok := library.ParseNoteName(s)
	if !ok {
		return 0, errors.Errorf("unrecognized note %q", s)
	}
	return note, nil
}

func parseByteToken(s string) (uint8, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 127 {
		return 0, errors.Errorf("value %q out of 0..127", s)
	}
	return uint8(n), nil
}
