package library

import (
	"strconv"
	"strings"
)

// ParsedName is the result of successfully parsing a sample file name.
type ParsedName struct {
	Note        uint8
	Velocity    uint8
	RoundRobin  uint16
}

var recognizedExtensions = map[string]bool{
	"wav":  true,
	"aif":  true,
	"aiff": true,
	"flac": true,
	"mp3":  true,
}

var noteLetterSemitone = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// ParseName parses a sample file name of the form
// <Note>_<Velocity>_<RR>[_<suffix>...].<ext> into its articulation key
// components. Extra underscore-separated tokens after the round-robin are
// ignored. Returns ok=false on any malformed input; the file should
// simply be skipped.
func ParseName(name string) (ParsedName, bool) {
	stem := name
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		ext := strings.ToLower(name[dot+1:])
		if recognizedExtensions[ext] {
			stem = name[:dot]
		}
	}

	tokens := strings.Split(stem, "_")
	if len(tokens) < 3 {
		return ParsedName{}, false
	}

	note, ok := ParseNoteName(tokens[0])
	if !ok {
		return ParsedName{}, false
	}

	velocity, ok := parseVelocity(tokens[1])
	if !ok {
		return ParsedName{}, false
	}

	rr, ok := parseRoundRobin(tokens[2])
	if !ok {
		return ParsedName{}, false
	}

	return ParsedName{Note: note, Velocity: velocity, RoundRobin: rr}, true
}

func parseVelocity(s string) (uint8, bool) {
	if !isAllDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 127 {
		return 0, false
	}
	return uint8(n), true
}

func parseRoundRobin(s string) (uint16, bool) {
	if !isAllDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return uint16(n), true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseNoteName parses a scientific-pitch-notation note name such as "C4",
// "G#6", "Bb4", or "C-1" into a MIDI note number 0..127. The letter is
// case-insensitive; "b" is only treated as a flat when followed by a
// decimal digit (so "B4" is B-natural, "Bb4" is B-flat).
func ParseNoteName(s string) (uint8, bool) {
	if s == "" {
		return 0, false
	}

	letter := s[0]
	if letter >= 'a' && letter <= 'z' {
		letter -= 'a' - 'A'
	}
	base, ok := noteLetterSemitone[letter]
	if !ok {
		return 0, false
	}

	rest := s[1:]
	if len(rest) > 0 && (rest[0] == '#') {
		base++
		rest = rest[1:]
	} else if len(rest) > 1 && rest[0] == 'b' && isDigitOrSign(rest[1]) {
		base--
		rest = rest[1:]
	}

	if rest == "" {
		return 0, false
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}

	midi := (octave+1)*12 + base
	if midi < 0 || midi > 127 {
		return 0, false
	}
	return uint8(midi), true
}

func isDigitOrSign(b byte) bool {
	return (b >= '0' && b <= '9') || b == '-' || b == '+'
}
