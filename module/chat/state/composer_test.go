package state

import (
	"testing"

	"PulseChat/module/chat/model"
)

func TestComposePublicRoom(t *testing.T) {
	vm := Compose(nil, "r1",
		[]model.Room{{ID: "r1", Name: "general"}},
		nil, 3, 10)
	if vm.RoomName != "general" || vm.RoomType != RoomTypeRoom {
		t.Fatalf("unexpected vm: %+v", vm)
	}
	if vm.OnlineCount != 3 || vm.MemberCount != 10 {
		t.Errorf("counts lost: %+v", vm)
	}
}

func TestComposeDirectByRoomAndPeerID(t *testing.T) {
	dms := []model.DirectConversation{
		{PeerID: "u2", RoomID: "dm-1", Name: "bob", Online: true},
	}
	vm := Compose(nil, "dm-1", nil, dms, 1, 2)
	if vm.RoomName != "bob" || vm.RoomType != RoomTypeDirect || !vm.IsOnline {
		t.Fatalf("match by room id failed: %+v", vm)
	}

	// before the mapping resolves, the selection may still be the raw peer id
	vm = Compose(nil, "u2", nil, dms, 1, 2)
	if vm.RoomName != "bob" || vm.RoomType != RoomTypeDirect {
		t.Fatalf("match by peer id failed: %+v", vm)
	}
}

func TestComposeNameFallbackFromMessages(t *testing.T) {
	msgs := []model.Message{
		{ID: "1", Sender: "You", IsOwn: true},
		{ID: "2", Sender: "Alice", IsOwn: false},
	}
	vm := Compose(msgs, "unknown-id", nil, nil, 0, 0)
	if vm.RoomName != "Alice" {
		t.Fatalf("fallback name = %q, want Alice", vm.RoomName)
	}
	if vm.RoomType != RoomTypeDirect {
		t.Errorf("fallback should assume dm, got %q", vm.RoomType)
	}
}

func TestComposeDefaultName(t *testing.T) {
	// no structural match, zero messages
	vm := Compose(nil, "unknown-id", nil, nil, 0, 0)
	if vm.RoomName != "Chat" {
		t.Fatalf("default name = %q", vm.RoomName)
	}

	// all-own message list must not crash and keeps the default
	own := []model.Message{{ID: "1", Sender: "You", IsOwn: true}}
	vm = Compose(own, "unknown-id", nil, nil, 0, 0)
	if vm.RoomName != "Chat" {
		t.Fatalf("all-own fallback name = %q", vm.RoomName)
	}
}
