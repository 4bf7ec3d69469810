package models

import "time"

// Chat is the persistent record of a direct or group conversation.
//
// DirectKey is "min:max" of the two member ids for direct chats and NULL for groups; the
// unique index on it keeps concurrent first-messages between the same pair from producing
// two canonical chats.
type Chat struct {
	ID              int       `db:"id" json:"id"`
	IsGroup         bool      `db:"is_group" json:"is_group"`
	Name            string    `db:"name" json:"name"`
	GroupImage      string    `db:"group_image" json:"group_image,omitempty"`
	GroupAdminID    *int      `db:"group_admin_id" json:"group_admin_id,omitempty"`
	DirectKey       *string   `db:"direct_key" json:"-"`
	LatestMessageID *int      `db:"latest_message_id" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ChatDetail is a chat resolved for a caller: member summaries, admin summary, the
// soft-delete ledger and the latest-message preview.
type ChatDetail struct {
	ID            int            `json:"id"`
	IsGroup       bool           `json:"is_group"`
	Name          string         `json:"name"`
	GroupImage    string         `json:"group_image,omitempty"`
	Users         []UserSummary  `json:"users"`
	GroupAdmin    *UserSummary   `json:"group_admin,omitempty"`
	DeletedBy     []int          `json:"deleted_by"`
	LatestMessage *MessageDetail `json:"latest_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// MemberIDs returns the ids of all chat members.
func (c ChatDetail) MemberIDs() []int {
	ids := make([]int, 0, len(c.Users))
	for _, u := range c.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

// HasMember reports whether userID belongs to the chat.
func (c ChatDetail) HasMember(userID int) bool {
	for _, u := range c.Users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// HiddenFor reports whether userID is in the chat's soft-delete ledger.
func (c ChatDetail) HiddenFor(userID int) bool {
	for _, id := range c.DeletedBy {
		if id == userID {
			return true
		}
	}
	return false
}
