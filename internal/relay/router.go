package relay

import (
	"github.com/deskbase/chatd/internal/dispatch"
	"github.com/deskbase/chatd/internal/model"
	"github.com/deskbase/chatd/internal/wire"
	"go.uber.org/zap"
)

// route fans one inbound frame out to the dispatcher, already split by
// kind. Malformed payloads and unrecognized types are logged and dropped,
// never fatal.
func (m *Manager) route(f wire.Frame) {
	switch f.Type {
	case wire.FrameMessage:
		msg, err := f.DecodeMessage()
		if err != nil {
			m.logger.Warn("dropping message frame", zap.Error(err))
			return
		}
		m.d.PublishMessage(msg)

	case wire.FrameTyping:
		t, err := f.DecodeTyping()
		if err != nil {
			m.logger.Warn("dropping typing frame", zap.Error(err))
			return
		}
		m.d.PublishTyping(model.TypingIndicator{
			ChatID: t.ChatID,
			UserID: t.UserID,
			Typing: t.IsTyping,
		})

	case wire.FrameOnline:
		m.d.PublishPresence(dispatch.PresenceEvent{UserID: f.UserID, Online: true})

	case wire.FrameOffline:
		m.d.PublishPresence(dispatch.PresenceEvent{UserID: f.UserID, Online: false})

	case wire.FrameConnected:
		m.forceState(model.StateConnected)

	case wire.FrameError:
		m.logger.Error("relay error frame", zap.ByteString("payload", f.Payload))
		m.forceState(model.StateError)

	case wire.FrameRead:
		// Inbound read receipts are not acted on yet. The outbound path
		// exists; see session.Store.MarkRead.

	default:
		m.logger.Warn("dropping unrecognized frame", zap.String("frame_type", string(f.Type)))
	}
}

// forceState records a server-driven state change. An error frame does
// not by itself terminate the connection.
func (m *Manager) forceState(s model.ConnState) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()
	if changed {
		m.d.PublishState(s)
	}
}
