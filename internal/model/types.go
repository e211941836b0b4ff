package model

import "time"

// ChatKind distinguishes one-on-one threads from group threads.
type ChatKind string

const (
	ChatPrivate ChatKind = "private"
	ChatGroup   ChatKind = "group"
)

// Chat is one conversation thread as held by the session store and
// returned by the relay backend.
type Chat struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Kind         ChatKind      `json:"type"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	LastActivity time.Time     `json:"lastActivity"`
}

// Participant is one identity inside a chat or in the contact directory.
// Online is resolved from the session store's presence table at read time.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Online bool   `json:"online"`
}

// Message is a single chat message. ID is server-assigned, or a temporary
// client-assigned identifier while a send is pending confirmation.
type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chatId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Kind       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	ReadBy     []string  `json:"readBy,omitempty"`
}

// MessageText is the only message kind currently produced. The field is a
// string on the wire so new kinds do not break older daemons.
const MessageText = "text"

// ConnState is the relay connection state, one instance per active identity.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
)

// TypingIndicator is the transient most-recently-typing participant of a
// chat. Never persisted; owned by the session store.
type TypingIndicator struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	Typing bool   `json:"isTyping"`
}
