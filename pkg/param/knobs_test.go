package param

import "testing"

func TestAtomicFloatRoundTrip(t *testing.T) {
	a := NewAtomicFloat(3.14)
	if got := a.Load(); got != 3.14 {
		t.Fatalf("expected 3.14, got %v", got)
	}
	a.Store(-2.5)
	if got := a.Load(); got != -2.5 {
		t.Fatalf("expected -2.5, got %v", got)
	}
}

func TestAtomicIntRoundTrip(t *testing.T) {
	a := NewAtomicInt(5)
	if got := a.Load(); got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
	a.Store(-7)
	if got := a.Load(); got != -7 {
		t.Fatalf("expected -7, got %v", got)
	}
}

func TestClampTranspose(t *testing.T) {
	cases := map[int32]int32{-20: -12, -12: -12, 0: 0, 12: 12, 20: 12}
	for in, want := range cases {
		if got := ClampTranspose(in); got != want {
			t.Errorf("ClampTranspose(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestClampPreloadKB(t *testing.T) {
	cases := map[int32]int32{10: 32, 32: 32, 256: 256, 1024: 1024, 5000: 1024}
	for in, want := range cases {
		if got := ClampPreloadKB(in); got != want {
			t.Errorf("ClampPreloadKB(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestClampSameNoteRelease(t *testing.T) {
	if got := ClampSameNoteRelease(0); got != 0.01 {
		t.Errorf("expected floor 0.01, got %v", got)
	}
	if got := ClampSameNoteRelease(10); got != 5.0 {
		t.Errorf("expected ceiling 5.0, got %v", got)
	}
	if got := ClampSameNoteRelease(1.5); got != 1.5 {
		t.Errorf("expected passthrough 1.5, got %v", got)
	}
}
