package models

import "time"

// User is a row in the user directory. Identity is verified upstream; this service only
// resolves summaries and tracks presence.
type User struct {
	ID        int       `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url"`
	Online    bool      `db:"online" json:"online"`
	LastSeen  time.Time `db:"last_seen" json:"last_seen"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// UserSummary is the projection of a user embedded in resolved chats and messages.
type UserSummary struct {
	ID        int    `db:"id" json:"id"`
	Username  string `db:"username" json:"username"`
	AvatarURL string `db:"avatar_url" json:"avatar_url"`
	Online    bool   `db:"online" json:"online"`
}

// Summary projects the full row.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL, Online: u.Online}
}
