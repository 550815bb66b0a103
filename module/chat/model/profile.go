package model

import "strings"

// Profile is a row of the profiles table: every known user in the system,
// independent of conversation membership.
type Profile struct {
	ID        string `json:"id" bson:"_id"`
	Username  string `json:"username" bson:"username"`
	AvatarURL string `json:"avatar_url" bson:"avatar_url"`
}

// ProfileFromEmail builds the bootstrap profile for a fresh session: username
// is the email local part, avatar the default placeholder.
func ProfileFromEmail(userID, email string) Profile {
	username := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		username = email[:i]
	}
	if username == "" {
		username = "User"
	}
	return Profile{ID: userID, Username: username, AvatarURL: DefaultAvatar}
}
