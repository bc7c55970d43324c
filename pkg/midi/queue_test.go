package midi

import (
	"testing"
)

func TestEventQueueSorting(t *testing.T) {
	q := NewEventQueue()

	// Add events out of order
	q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: 300}, NoteNumber: 62, Velocity: 100})
	q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: 100}, NoteNumber: 60, Velocity: 100})
	q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: 200}, NoteNumber: 61, Velocity: 100})

	events := q.GetEventsInRange(0, 1000)
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	// Check that events are sorted by offset
	offsets := []int32{100, 200, 300}
	for i, event := range events {
		if event.SampleOffset() != offsets[i] {
			t.Errorf("Event %d: expected offset %d, got %d", i, offsets[i], event.SampleOffset())
		}
	}
}

func TestGetEventsInRange(t *testing.T) {
	q := NewEventQueue()

	// Add events
	q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: 0}, NoteNumber: 60, Velocity: 100})
	q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: 50}, NoteNumber: 61, Velocity: 100})
	q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: 100}, NoteNumber: 62, Velocity: 100})
	q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: 150}, NoteNumber: 63, Velocity: 100})
	q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: 200}, NoteNumber: 64, Velocity: 100})

	// Test different ranges
	tests := []struct {
		start    int32
		end      int32
		expected int
	}{
		{0, 100, 2},   // Events at 0 and 50
		{50, 150, 2},  // Events at 50 and 100
		{100, 200, 2}, // Events at 100 and 150
		{0, 250, 5},   // All events
		{250, 300, 0}, // No events
		{-50, 0, 0},   // Before first event
	}

	for _, tt := range tests {
		events := q.GetEventsInRange(tt.start, tt.end)
		if len(events) != tt.expected {
			t.Errorf("Range [%d, %d): expected %d events, got %d",
				tt.start, tt.end, tt.expected, len(events))
		}
	}
}

type testEventProcessor struct {
	processedEvents []Event
}

func (p *testEventProcessor) ProcessEvent(event Event) {
	p.processedEvents = append(p.processedEvents, event)
}

func TestProcessEvents(t *testing.T) {
	q := NewEventQueue()
	processor := &testEventProcessor{}

	// Add events
	q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: 50}, NoteNumber: 60, Velocity: 100})
	q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: 150}, NoteNumber: 61, Velocity: 100})
	q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: 250}, NoteNumber: 62, Velocity: 100})

	// Process events in range [0, 200)
	q.ProcessEvents(processor, 0, 200)

	if len(processor.processedEvents) != 2 {
		t.Fatalf("Expected 2 processed events, got %d", len(processor.processedEvents))
	}

	// Verify correct events were processed
	if processor.processedEvents[0].SampleOffset() != 50 {
		t.Errorf("Expected first event at offset 50, got %d", processor.processedEvents[0].SampleOffset())
	}
	if processor.processedEvents[1].SampleOffset() != 150 {
		t.Errorf("Expected second event at offset 150, got %d", processor.processedEvents[1].SampleOffset())
	}
}

func TestConcurrentAccess(t *testing.T) {
	q := NewEventQueue()
	done := make(chan bool)

	// Writer goroutine
	go func() {
		for i := 0; i < 100; i++ {
			q.Add(NoteOnEvent{BaseEvent: BaseEvent{Offset: int32(i)}, NoteNumber: 60, Velocity: 100})
		}
		done <- true
	}()

	// Reader goroutine
	go func() {
		for i := 0; i < 100; i++ {
			_ = q.GetEventsInRange(0, 100)
		}
		done <- true
	}()

	// Wait for both goroutines to complete
	<-done
	<-done

	// Verify final state
	if len(q.GetEventsInRange(0, 100)) != 100 {
		t.Errorf("Expected 100 events, got %d", len(q.GetEventsInRange(0, 100)))
	}
}
