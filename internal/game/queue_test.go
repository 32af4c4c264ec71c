package game

import (
	"fmt"
	"testing"
)

func TestQueueDrainIsFIFO(t *testing.T) {
	q := NewCommandQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(Command{ParticipantID: fmt.Sprintf("u%d", i), Type: "move"})
	}

	first := q.Drain(3)
	if len(first) != 3 {
		t.Fatalf("drained %d; want 3", len(first))
	}
	for i, cmd := range first {
		if want := fmt.Sprintf("u%d", i); cmd.ParticipantID != want {
			t.Errorf("drain[%d] = %q; want %q", i, cmd.ParticipantID, want)
		}
	}

	rest := q.Drain(10)
	if len(rest) != 2 || rest[0].ParticipantID != "u3" || rest[1].ParticipantID != "u4" {
		t.Errorf("remainder out of order: %+v", rest)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after full drain; want 0", q.Len())
	}
}

func TestQueueDrainEmpty(t *testing.T) {
	q := NewCommandQueue()
	if got := q.Drain(8); got != nil {
		t.Errorf("Drain on empty queue = %+v; want nil", got)
	}
}
