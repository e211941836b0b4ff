// Package archive mirrors relay-delivered messages into the SQLite
// history cache.
package archive

import (
	"github.com/deskbase/chatd/internal/dispatch"
	"github.com/deskbase/chatd/internal/model"
	"github.com/deskbase/chatd/internal/store"
	"go.uber.org/zap"
)

// Archiver subscribes to message events and persists them idempotently.
type Archiver struct {
	db     *store.DB
	d      *dispatch.Dispatcher
	selfID string
	logger *zap.Logger
	unsub  func()
}

// New creates an archiver writing into the given cache.
func New(db *store.DB, d *dispatch.Dispatcher, selfID string, logger *zap.Logger) *Archiver {
	return &Archiver{db: db, d: d, selfID: selfID, logger: logger}
}

// Start subscribes to inbound message events.
func (a *Archiver) Start() {
	a.unsub = a.d.OnMessage(a.record)
}

// Stop releases the subscription.
func (a *Archiver) Stop() {
	if a.unsub != nil {
		a.unsub()
		a.unsub = nil
	}
}

// record persists one delivered message. Upserts are keyed on
// (chat_id, msg_id), so duplicate delivery across reconnects collapses
// into one row.
func (a *Archiver) record(m model.Message) {
	if err := a.db.UpsertChat(&store.Chat{
		ID:                 m.ChatID,
		Kind:               string(model.ChatPrivate),
		LastMessageAt:      m.Timestamp.UnixMilli(),
		LastMessagePreview: truncate(m.Content, 100),
	}); err != nil {
		a.logger.Error("archive chat upsert failed", zap.Error(err), zap.String("chat_id", m.ChatID))
		return
	}

	if err := a.db.UpsertMessage(&store.Message{
		ChatID:     m.ChatID,
		MsgID:      m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Body:       m.Content,
		Kind:       m.Kind,
		FromMe:     m.SenderID == a.selfID,
		Timestamp:  m.Timestamp.UnixMilli(),
	}); err != nil {
		a.logger.Error("archive message upsert failed", zap.Error(err), zap.String("msg_id", m.ID))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
