package state

import "PulseChat/module/chat/model"

const (
	RoomTypeRoom   = "room"
	RoomTypeDirect = "dm"

	defaultRoomName = "Chat"
)

// ViewModel is the render-ready snapshot handed to the presentation layer.
type ViewModel struct {
	SelectedID  string          `json:"selected_id"`
	Messages    []model.Message `json:"messages"`
	RoomName    string          `json:"room_name"`
	RoomType    string          `json:"room_type"`
	IsOnline    bool            `json:"is_online"`
	OnlineCount int             `json:"online_count"`
	MemberCount int             `json:"member_count"`
}

// Compose projects the component streams into one snapshot. Pure function, no
// owned state. Naming resolution order: exact public room match, then direct
// conversation by mapped room id or raw peer id, then the sender of the first
// non-own message (covers the race where messages arrive before directory
// resolution), then a deterministic default.
func Compose(
	messages []model.Message,
	selectedID string,
	rooms []model.Room,
	dms []model.DirectConversation,
	onlineCount int,
	totalParticipants int,
) ViewModel {
	vm := ViewModel{
		SelectedID:  selectedID,
		Messages:    messages,
		RoomName:    defaultRoomName,
		RoomType:    RoomTypeRoom,
		IsOnline:    true,
		OnlineCount: onlineCount,
		MemberCount: totalParticipants,
	}

	for _, r := range rooms {
		if r.ID == selectedID {
			vm.RoomName = r.Name
			return vm
		}
	}

	for _, d := range dms {
		if (d.RoomID != "" && d.RoomID == selectedID) || d.PeerID == selectedID {
			vm.RoomName = d.Name
			vm.RoomType = RoomTypeDirect
			vm.IsOnline = d.Online
			return vm
		}
	}

	for _, m := range messages {
		if !m.IsOwn {
			vm.RoomName = m.Sender
			vm.RoomType = RoomTypeDirect
			return vm
		}
	}
	return vm
}
