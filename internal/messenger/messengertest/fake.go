// Package messengertest provides a recording Messenger for tests.
package messengertest

import (
	"context"
	"sync"

	"crypto-exchange-bot/internal/messenger"
)

// Sent is one recorded delivery
type Sent struct {
	ChatID     int64
	ThreadID   int
	Text       string
	Keyboard   *messenger.Keyboard
	FromChatID int64 // set for copies
	CopiedID   int
}

// Channel is one created channel
type Channel struct {
	ChatID int64
	ID     int
	Title  string
}

// Fake records every call. Set FailSend to make Send and Copy fail
// for a given chat.
type Fake struct {
	mu       sync.Mutex
	nextID   int
	Sent     []Sent
	Edited   []Sent
	Deleted  []int
	Channels []Channel
	FailSend map[int64]error
	FailOpen error
}

func New() *Fake {
	return &Fake{nextID: 100, FailSend: map[int64]error{}}
}

func (f *Fake) id() int {
	f.nextID++
	return f.nextID
}

func (f *Fake) Send(ctx context.Context, chatID int64, threadID int, text string, kb *messenger.Keyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailSend[chatID]; err != nil {
		return 0, err
	}
	f.Sent = append(f.Sent, Sent{ChatID: chatID, ThreadID: threadID, Text: text, Keyboard: kb})
	return f.id(), nil
}

func (f *Fake) Edit(ctx context.Context, chatID int64, messageID int, text string, kb *messenger.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edited = append(f.Edited, Sent{ChatID: chatID, CopiedID: messageID, Text: text, Keyboard: kb})
	return nil
}

func (f *Fake) Delete(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, messageID)
	return nil
}

func (f *Fake) Copy(ctx context.Context, toChatID int64, toThreadID int, fromChatID int64, messageID int, kb *messenger.Keyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailSend[toChatID]; err != nil {
		return 0, err
	}
	f.Sent = append(f.Sent, Sent{ChatID: toChatID, ThreadID: toThreadID, Keyboard: kb, FromChatID: fromChatID, CopiedID: messageID})
	return f.id(), nil
}

func (f *Fake) CreateChannel(ctx context.Context, chatID int64, title string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailOpen != nil {
		return 0, f.FailOpen
	}
	id := f.id()
	f.Channels = append(f.Channels, Channel{ChatID: chatID, ID: id, Title: title})
	return id, nil
}

func (f *Fake) RenameChannel(ctx context.Context, chatID int64, channelID int, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Channels {
		if f.Channels[i].ID == channelID {
			f.Channels[i].Title = title
		}
	}
	return nil
}

// SentTo returns deliveries addressed to chatID
func (f *Fake) SentTo(chatID int64) []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sent
	for _, s := range f.Sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

// Last returns the most recent delivery
func (f *Fake) Last() (Sent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return Sent{}, false
	}
	return f.Sent[len(f.Sent)-1], true
}

// Channel returns the channel with the given id
func (f *Fake) Channel(id int) (Channel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Channels {
		if c.ID == id {
			return c, true
		}
	}
	return Channel{}, false
}

var _ messenger.Messenger = (*Fake)(nil)
