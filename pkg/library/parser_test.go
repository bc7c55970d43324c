package library

import "testing"

func TestParseNoteName(t *testing.T) {
	cases := []struct {
		in   string
		want uint8
		ok   bool
	}{
		{"C4", 60, true},
		{"G#6", 92, true},
		{"Db3", 49, true},
		{"C-1", 0, true},
		{"G9", 127, true},
		{"A9", 0, false},
		{"Bb4", 70, true},
		{"B4", 71, true},
	}

	for _, c := range cases {
		got, ok := ParseNoteName(c.in)
		if ok != c.ok {
			t.Errorf("ParseNoteName(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("ParseNoteName(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseName(t *testing.T) {
	cases := []struct {
		in   string
		want ParsedName
		ok   bool
	}{
		{"A0_040_01_piano.wav", ParsedName{Note: 21, Velocity: 40, RoundRobin: 1}, true},
		{"C4_000_01.wav", ParsedName{}, false},
		{"C4_127_00.wav", ParsedName{}, false},
		{"C4.wav", ParsedName{}, false},
	}

	for _, c := range cases {
		got, ok := ParseName(c.in)
		if ok != c.ok {
			t.Errorf("ParseName(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("ParseName(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParseNameIgnoresExtraSuffixTokens(t *testing.T) {
	got, ok := ParseName("E5_100_03_mallet_soft.flac")
	if !ok {
		t.Fatal("expected a valid parse")
	}
	want := ParsedName{Note: 76, Velocity: 100, RoundRobin: 3}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
