package clientsync

import (
	"sync"
	"time"
)

// DefaultTypingWindow is the quiescence window after which a typing indicator expires
// on its own, independent of any server event.
const DefaultTypingWindow = 3 * time.Second

type typingKey struct {
	chatID int
	userID int
}

// TypingIndicator tracks who is typing in which chat. Each Touch resets the user's
// expiry timer; silence for the whole window clears the indicator automatically.
type TypingIndicator struct {
	window time.Duration
	mu     sync.Mutex
	timers map[typingKey]*time.Timer

	// onStop fires when an indicator expires or is stopped explicitly.
	onStop func(chatID, userID int)
}

// NewTypingIndicator builds a TypingIndicator. onStop may be nil.
func NewTypingIndicator(window time.Duration, onStop func(chatID, userID int)) *TypingIndicator {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &TypingIndicator{
		window: window,
		timers: make(map[typingKey]*time.Timer),
		onStop: onStop,
	}
}

// Touch marks the user as typing in the chat and resets their expiry timer.
func (t *TypingIndicator) Touch(chatID, userID int) {
	key := typingKey{chatID: chatID, userID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[key]; ok {
		timer.Reset(t.window)
		return
	}
	t.timers[key] = time.AfterFunc(t.window, func() {
		t.expire(key)
	})
}

// Stop clears the user's typing indicator immediately.
func (t *TypingIndicator) Stop(chatID, userID int) {
	key := typingKey{chatID: chatID, userID: userID}

	t.mu.Lock()
	timer, ok := t.timers[key]
	if ok {
		timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()

	if ok && t.onStop != nil {
		t.onStop(chatID, userID)
	}
}

func (t *TypingIndicator) expire(key typingKey) {
	t.mu.Lock()
	_, ok := t.timers[key]
	if ok {
		delete(t.timers, key)
	}
	t.mu.Unlock()

	if ok && t.onStop != nil {
		t.onStop(key.chatID, key.userID)
	}
}

// Typing returns the ids of users currently typing in the chat.
func (t *TypingIndicator) Typing(chatID int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []int
	for key := range t.timers {
		if key.chatID == chatID {
			ids = append(ids, key.userID)
		}
	}
	return ids
}

// Close stops every pending timer without firing onStop.
func (t *TypingIndicator) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
