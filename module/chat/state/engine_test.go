package state

import (
	"context"
	"testing"
	"time"

	"PulseChat/module/chat/model"
)

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestEngine(t *testing.T) (*Engine, *fakeRemote, *fakeFeed, *fakePresence) {
	t.Helper()
	remote := newFakeRemote()
	seedRooms(remote)
	remote.messages["room-general"] = []model.MessageRow{
		{ID: "m-seed", RoomID: "room-general", UserID: "u2", Content: "welcome",
			SenderName: "bob", CreatedAt: time.Now().Add(-time.Hour)},
	}
	feed := newFakeFeed()
	presence := &fakePresence{}
	e := NewEngine(remote, feed, presence, sessionsFor("u1"))
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("engine start failed: %v", err)
	}
	// auto-select loads history off the caller's turn; settle before acting
	waitFor(t, func() bool { return len(e.Ledger.Snapshot()) == 1 }, "initial history")
	return e, remote, feed, presence
}

func TestEngineSubscriptionLifecycle(t *testing.T) {
	e, _, feed, _ := newTestEngine(t)
	defer e.Close()

	// auto-select subscribed the first room's channel
	hist := feed.history()
	if len(hist) == 0 || hist[0] != "sub:room:room-general" {
		t.Fatalf("initial subscription missing: %v", hist)
	}

	if _, err := e.SelectConversation(context.Background(), "room-random"); err != nil {
		t.Fatalf("select failed: %v", err)
	}

	hist = feed.history()
	want := []string{"sub:room:room-general", "unsub:room:room-general", "sub:room:room-random"}
	if len(hist) != len(want) {
		t.Fatalf("subscription log = %v, want %v", hist, want)
	}
	for i := range want {
		if hist[i] != want[i] {
			t.Fatalf("subscription order broken at %d: %v", i, hist)
		}
	}
}

func TestEngineRoutesFeedEvents(t *testing.T) {
	e, _, feed, _ := newTestEngine(t)
	defer e.Close()

	// event on the selected conversation merges into the ledger
	feed.emit("room:room-general", map[string]any{
		"id":         "m-live",
		"room_id":    "room-general",
		"user_id":    "u2",
		"content":    "hello there",
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
	waitFor(t, func() bool { return len(e.Ledger.Snapshot()) == 2 }, "live message")

	if got := e.Ledger.Snapshot()[1].Content; got != "hello there" {
		t.Fatalf("live message content = %q", got)
	}

	// event carrying another room only bumps that room's unread
	feed.emit("room:room-general", map[string]any{
		"id":      "m-other",
		"room_id": "room-random",
		"user_id": "u2",
		"content": "elsewhere",
	})
	waitFor(t, func() bool {
		for _, r := range e.Directory.Rooms().Get() {
			if r.ID == "room-random" && r.Unread == 1 {
				return true
			}
		}
		return false
	}, "unread bump")

	if got := len(e.Ledger.Snapshot()); got != 2 {
		t.Fatalf("cross-room event reached the ledger: len=%d", got)
	}
}

func TestEngineViewModel(t *testing.T) {
	e, _, _, presence := newTestEngine(t)
	defer e.Close()

	waitFor(t, func() bool { return e.View().Get().RoomName == "general" }, "composed room name")

	vm := e.View().Get()
	if vm.SelectedID != "room-general" || vm.RoomType != RoomTypeRoom {
		t.Fatalf("unexpected vm: %+v", vm)
	}
	if vm.MemberCount != 3 {
		t.Errorf("member count = %d want 3", vm.MemberCount)
	}

	presence.sync([]string{"u1", "u2"})
	waitFor(t, func() bool { return e.View().Get().OnlineCount == 2 }, "online count")

	// dm online flags derive from presence
	if _, err := e.StartOrOpenDirectConversation(context.Background(), "u2"); err != nil {
		t.Fatalf("open dm failed: %v", err)
	}
	waitFor(t, func() bool { return e.View().Get().RoomType == RoomTypeDirect }, "dm view")
	vm = e.View().Get()
	if vm.RoomName != "bob" {
		t.Fatalf("dm name = %q", vm.RoomName)
	}
	if !vm.IsOnline {
		t.Fatal("peer online flag not derived from presence")
	}
}

func TestEngineSendEndToEnd(t *testing.T) {
	e, remote, feed, _ := newTestEngine(t)
	defer e.Close()

	if err := e.Send(context.Background(), "hi all"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	list := e.Ledger.Snapshot()
	if len(list) != 2 || list[1].ID == "" {
		t.Fatalf("send not confirmed: %+v", list)
	}
	confirmed := list[1].ID

	// the platform echoes the insert back on the channel; must not duplicate
	feed.emit("room:room-general", map[string]any{
		"id":      confirmed,
		"room_id": "room-general",
		"user_id": "u1",
		"content": "hi all",
	})
	time.Sleep(20 * time.Millisecond)
	if got := len(e.Ledger.Snapshot()); got != 2 {
		t.Fatalf("echo duplicated the message: len=%d", got)
	}

	if got := len(remote.messages["room-general"]); got != 2 {
		t.Fatalf("persisted rows = %d", got)
	}
}
