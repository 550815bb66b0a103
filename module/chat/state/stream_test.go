package state

import "testing"

func TestStateReplaysCurrentOnSubscribe(t *testing.T) {
	s := NewState(7)

	var got []int
	cancel := s.Subscribe(func(v int) { got = append(got, v) })
	defer cancel()

	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("subscribe did not replay current value: %v", got)
	}

	s.Set(8)
	s.Set(9)
	if len(got) != 3 || got[2] != 9 {
		t.Fatalf("updates not delivered in order: %v", got)
	}
	if s.Get() != 9 {
		t.Fatalf("Get() = %d", s.Get())
	}
}

func TestStateCancelStopsDelivery(t *testing.T) {
	s := NewState("a")

	var n int
	cancel := s.Subscribe(func(string) { n++ })
	cancel()

	s.Set("b")
	if n != 1 {
		t.Fatalf("delivery after cancel: n=%d", n)
	}
}

func TestEventsNoReplay(t *testing.T) {
	e := NewEvents[string]()
	e.Publish("lost") // nobody listening yet

	var got []string
	cancel := e.Subscribe(func(v string) { got = append(got, v) })
	defer cancel()

	if len(got) != 0 {
		t.Fatalf("events replayed: %v", got)
	}
	e.Publish("seen")
	if len(got) != 1 || got[0] != "seen" {
		t.Fatalf("publish not delivered: %v", got)
	}
}
