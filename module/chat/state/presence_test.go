package state

import (
	"reflect"
	"testing"
)

func TestPresenceSyncReplacesWholesale(t *testing.T) {
	ch := &fakePresence{}
	tr := NewTracker()
	if err := tr.Start(ch, "u1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(ch.announced) != 1 || ch.announced[0] != "u1" {
		t.Fatalf("self not announced: %v", ch.announced)
	}

	ch.sync([]string{"A", "B"})
	if !tr.IsOnline("A") || !tr.IsOnline("B") {
		t.Fatal("initial snapshot not applied")
	}

	ch.sync([]string{"B", "C"})
	if tr.IsOnline("A") {
		t.Fatal("stale member lingered after sync")
	}
	if !tr.IsOnline("B") || !tr.IsOnline("C") {
		t.Fatal("new snapshot incomplete")
	}
	if tr.OnlineCount() != 2 {
		t.Fatalf("OnlineCount=%d want 2", tr.OnlineCount())
	}
	if got := tr.Online().Get(); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Fatalf("online stream = %v", got)
	}
}

func TestPresenceEmptySnapshot(t *testing.T) {
	ch := &fakePresence{}
	tr := NewTracker()
	if err := tr.Start(ch, "u1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ch.sync([]string{"A"})
	ch.sync(nil)
	if tr.OnlineCount() != 0 {
		t.Fatalf("empty sync left %d members", tr.OnlineCount())
	}
}
