package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/deskbase/chatd/internal/model"
)

// FrameType tags one relay frame. The same envelope shape is used in both
// directions.
type FrameType string

const (
	FrameMessage   FrameType = "message"
	FrameTyping    FrameType = "typing"
	FrameRead      FrameType = "read"
	FramePing      FrameType = "ping"
	FrameConnected FrameType = "connected"
	FrameOnline    FrameType = "online"
	FrameOffline   FrameType = "offline"
	FrameError     FrameType = "error"
)

// Frame is the relay wire envelope. UserID is only set on presence frames,
// ChatID only where the payload concerns a single chat.
type Frame struct {
	Type      FrameType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	ChatID    string          `json:"chatId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
}

// MessageSend is the outbound payload of a message frame.
type MessageSend struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	Kind    string `json:"type"`
}

// Typing is the payload of a typing frame.
type Typing struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// Read is the outbound payload of a read frame.
type Read struct {
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
}

// Decode parses a raw relay frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}

// Encode serializes a frame, stamping the current time if unset.
func Encode(f Frame) ([]byte, error) {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// NewFrame builds an outbound frame with a JSON-encoded payload.
func NewFrame(t FrameType, payload any) (Frame, error) {
	f := Frame{Type: t, Timestamp: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("encode %s payload: %w", t, err)
		}
		f.Payload = raw
	}
	return f, nil
}

// DecodeMessage extracts the inbound message entity from a message frame.
func (f Frame) DecodeMessage() (model.Message, error) {
	var m model.Message
	if err := json.Unmarshal(f.Payload, &m); err != nil {
		return model.Message{}, fmt.Errorf("decode message payload: %w", err)
	}
	return m, nil
}

// DecodeTyping extracts the typing payload from a typing frame.
func (f Frame) DecodeTyping() (Typing, error) {
	var t Typing
	if err := json.Unmarshal(f.Payload, &t); err != nil {
		return Typing{}, fmt.Errorf("decode typing payload: %w", err)
	}
	if t.ChatID == "" {
		t.ChatID = f.ChatID
	}
	return t, nil
}
