// Package clientsync holds the client-side view of the messenger: the ordered chat
// list, the open chat's message sequence and per-chat unread counters, kept consistent
// with server state by applying real-time events sequentially.
package clientsync

import "messenger-service/internal/models"

// State is the single owner of a client's synchronized view. Events are applied
// sequentially; every mutation goes through its methods.
type State struct {
	chats    []models.ChatDetail
	messages []models.MessageDetail
	unread   map[int]int
	openChat int

	// markRead is invoked when a chat is selected, after the unread counter clears.
	markRead func(chatID int)
}

// NewState builds an empty State. markRead may be nil.
func NewState(markRead func(chatID int)) *State {
	return &State{
		unread:   make(map[int]int),
		markRead: markRead,
	}
}

// SetChats replaces the chat list, e.g. after the initial fetch.
func (s *State) SetChats(chats []models.ChatDetail) {
	s.chats = append([]models.ChatDetail(nil), chats...)
}

// Chats returns the chat list, most recently active first.
func (s *State) Chats() []models.ChatDetail {
	return s.chats
}

// Messages returns the open chat's visible message sequence.
func (s *State) Messages() []models.MessageDetail {
	return s.messages
}

// Unread returns the unread counter for a chat.
func (s *State) Unread(chatID int) int {
	return s.unread[chatID]
}

// OpenChatID returns the currently open chat, 0 when none.
func (s *State) OpenChatID() int {
	return s.openChat
}

// ApplyMessage merges an inbound message event. Duplicate deliveries of the same
// message id collapse to one copy; a message for a chat that is not open bumps that
// chat's unread counter. The owning chat moves to the front of the list, inserted
// from the event's embedded chat summary when not yet known locally.
func (s *State) ApplyMessage(msg models.MessageDetail) {
	if msg.ChatID == s.openChat {
		if !s.hasMessage(msg.ID) {
			stripped := msg
			stripped.Chat = nil
			s.messages = append(s.messages, stripped)
		}
	} else {
		s.unread[msg.ChatID]++
	}

	s.bumpChat(msg)
}

func (s *State) hasMessage(id int) bool {
	for _, m := range s.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *State) bumpChat(msg models.MessageDetail) {
	preview := msg
	preview.Chat = nil

	for i := range s.chats {
		if s.chats[i].ID != msg.ChatID {
			continue
		}
		chat := s.chats[i]
		chat.LatestMessage = &preview
		s.chats = append(s.chats[:i], s.chats[i+1:]...)
		s.chats = append([]models.ChatDetail{chat}, s.chats...)
		return
	}

	// First message from a brand-new chat: insert it from the event's summary.
	if msg.Chat == nil {
		return
	}
	chat := *msg.Chat
	chat.LatestMessage = &preview
	s.chats = append([]models.ChatDetail{chat}, s.chats...)
}

// SelectChat opens a chat with its fetched message sequence, clears its unread
// counter and triggers the read-receipt mark.
func (s *State) SelectChat(chatID int, msgs []models.MessageDetail) {
	s.openChat = chatID
	s.messages = append([]models.MessageDetail(nil), msgs...)
	delete(s.unread, chatID)
	if s.markRead != nil {
		s.markRead(chatID)
	}
}

// CloseChat closes the open chat view.
func (s *State) CloseChat() {
	s.openChat = 0
	s.messages = nil
}

// HideMessage optimistically removes a message from the visible sequence. The
// returned restore puts it back at its original position when the server-side hide
// fails; ok is false when the message is not present.
func (s *State) HideMessage(messageID int) (restore func(), ok bool) {
	for i, m := range s.messages {
		if m.ID != messageID {
			continue
		}
		removed := m
		index := i
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		return func() {
			if index > len(s.messages) {
				index = len(s.messages)
			}
			s.messages = append(s.messages[:index], append([]models.MessageDetail{removed}, s.messages[index:]...)...)
		}, true
	}
	return nil, false
}

// HideChat optimistically removes a chat from the list. The returned restore puts it
// back at its original position when the server-side hide fails.
func (s *State) HideChat(chatID int) (restore func(), ok bool) {
	for i, chat := range s.chats {
		if chat.ID != chatID {
			continue
		}
		removed := chat
		index := i
		unread := s.unread[chatID]
		s.chats = append(s.chats[:i], s.chats[i+1:]...)
		delete(s.unread, chatID)
		if s.openChat == chatID {
			s.CloseChat()
		}
		return func() {
			if index > len(s.chats) {
				index = len(s.chats)
			}
			s.chats = append(s.chats[:index], append([]models.ChatDetail{removed}, s.chats[index:]...)...)
			if unread > 0 {
				s.unread[chatID] = unread
			}
		}, true
	}
	return nil, false
}

// ApplyPresence updates the online flag of a user across chat member summaries.
func (s *State) ApplyPresence(userID int, online bool) {
	for i := range s.chats {
		for j := range s.chats[i].Users {
			if s.chats[i].Users[j].ID == userID {
				s.chats[i].Users[j].Online = online
			}
		}
	}
}
