package session

import (
	"context"
	"strings"
	"time"

	"github.com/deskbase/chatd/internal/model"
	"github.com/deskbase/chatd/internal/wire"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OpenChat selects a chat, fetches its most recent history page on first
// open, and marks it read. The mark-read write is best effort here;
// failures are logged, not returned, so a flaky backend cannot block
// navigation.
func (s *Store) OpenChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	if _, ok := s.chats[chatID]; !ok {
		s.mu.Unlock()
		return ErrNoChat
	}
	s.active = chatID
	needLoad := !s.loaded[chatID]
	s.loaded[chatID] = true
	s.mu.Unlock()

	if needLoad {
		page, err := s.backend.ListMessages(ctx, s.selfID, chatID, s.pageSize, 0)
		if err != nil {
			s.logger.Warn("history page load failed", zap.String("chat_id", chatID), zap.Error(err))
		} else {
			s.mu.Lock()
			s.prependHistory(chatID, page)
			s.offsets[chatID] = len(page)
			s.mu.Unlock()
		}
	}

	if err := s.MarkRead(ctx, chatID); err != nil {
		s.logger.Warn("mark read on open failed", zap.String("chat_id", chatID), zap.Error(err))
	}
	return nil
}

// LoadOlder fetches the next older history page and prepends it. The
// per-chat offset guarantees already-held history is never re-fetched.
func (s *Store) LoadOlder(ctx context.Context, chatID string) error {
	s.mu.Lock()
	if _, ok := s.chats[chatID]; !ok {
		s.mu.Unlock()
		return ErrNoChat
	}
	offset := s.offsets[chatID]
	s.mu.Unlock()

	page, err := s.backend.ListMessages(ctx, s.selfID, chatID, s.pageSize, offset)
	if err != nil {
		s.logger.Warn("older history load failed", zap.String("chat_id", chatID), zap.Error(err))
		return nil
	}

	s.mu.Lock()
	s.prependHistory(chatID, page)
	s.offsets[chatID] = offset + len(page)
	s.mu.Unlock()
	return nil
}

// SendMessage applies the optimistic send protocol: the message appears
// in the sequence immediately under a temporary identifier, then either
// the transport push's authoritative echo or the fallback response
// replaces it in place. A fallback failure removes the entry entirely
// and surfaces the error.
func (s *Store) SendMessage(ctx context.Context, chatID, content string) (model.Message, error) {
	if chatID == "" {
		return model.Message{}, ErrNoChat
	}
	if strings.TrimSpace(content) == "" {
		return model.Message{}, ErrEmptyMessage
	}

	temp := model.Message{
		ID:         "tmp-" + uuid.NewString(),
		ChatID:     chatID,
		SenderID:   s.selfID,
		SenderName: s.selfName,
		Content:    content,
		Kind:       model.MessageText,
		Timestamp:  time.Now().UTC(),
	}

	s.mu.Lock()
	chat, ok := s.chats[chatID]
	if !ok {
		s.mu.Unlock()
		return model.Message{}, ErrNoChat
	}
	s.appendMessage(chat, temp)
	s.pending[chatID] = append(s.pending[chatID], temp.ID)
	s.mu.Unlock()

	if s.push.State() == model.StateConnected {
		frame, err := wire.NewFrame(wire.FrameMessage, wire.MessageSend{
			ChatID:  chatID,
			Content: content,
			Kind:    model.MessageText,
		})
		if err == nil {
			frame.ChatID = chatID
			_ = s.push.Send(frame)
		}
		return temp, nil
	}

	confirmed, err := s.backend.SendMessage(ctx, s.selfID, chatID, content, model.MessageText)
	if err != nil {
		s.mu.Lock()
		s.removeMessage(chatID, temp.ID)
		s.dropPending(chatID, temp.ID)
		s.mu.Unlock()
		return model.Message{}, err
	}

	s.mu.Lock()
	s.dropPending(chatID, temp.ID)
	if chat, ok := s.chats[chatID]; ok {
		s.replaceInPlace(chat, temp.ID, confirmed)
	}
	s.mu.Unlock()
	return confirmed, nil
}

// SendTyping pushes a typing indicator. Typing is transport-only; while
// disconnected the frame is dropped by the relay, which is acceptable for
// a transient hint.
func (s *Store) SendTyping(chatID string, isTyping bool) error {
	if chatID == "" {
		return ErrNoChat
	}
	frame, err := wire.NewFrame(wire.FrameTyping, wire.Typing{
		ChatID:   chatID,
		UserID:   s.selfID,
		IsTyping: isTyping,
	})
	if err != nil {
		return err
	}
	frame.ChatID = chatID
	return s.push.Send(frame)
}

// MarkRead zeroes the unread counter, pushes a read receipt while
// connected, and records the read on the backend. Backend failures
// propagate to the caller.
func (s *Store) MarkRead(ctx context.Context, chatID string) error {
	s.mu.Lock()
	chat, ok := s.chats[chatID]
	if !ok {
		s.mu.Unlock()
		return ErrNoChat
	}
	chat.UnreadCount = 0
	skip := make(map[string]struct{}, len(s.pending[chatID]))
	for _, id := range s.pending[chatID] {
		skip[id] = struct{}{}
	}
	ids := make([]string, 0, len(s.msgs[chatID]))
	for _, m := range s.msgs[chatID] {
		// Entries still awaiting their echo carry local identifiers the
		// relay has never seen; leave them out of the receipt.
		if _, unsent := skip[m.ID]; unsent {
			continue
		}
		ids = append(ids, m.ID)
	}
	s.mu.Unlock()

	if s.push.State() == model.StateConnected && len(ids) > 0 {
		if frame, err := wire.NewFrame(wire.FrameRead, wire.Read{ChatID: chatID, MessageIDs: ids}); err == nil {
			frame.ChatID = chatID
			_ = s.push.Send(frame)
		}
	}
	return s.backend.MarkRead(ctx, s.selfID, chatID)
}

// CreateChat starts (or resumes) a private chat with the target
// identity. An existing private thread with the target is selected
// instead of creating a duplicate.
func (s *Store) CreateChat(ctx context.Context, targetID string) (model.Chat, error) {
	s.mu.Lock()
	for _, id := range s.order {
		c := s.chats[id]
		if c.Kind != model.ChatPrivate {
			continue
		}
		for _, p := range c.Participants {
			if p.ID == targetID {
				s.active = c.ID
				snap := s.chatSnapshot(c)
				s.mu.Unlock()
				return snap, nil
			}
		}
	}
	s.mu.Unlock()

	chat, err := s.backend.CreateChat(ctx, s.selfID, model.ChatPrivate, []string{s.selfID, targetID})
	if err != nil {
		return model.Chat{}, err
	}

	s.mu.Lock()
	if _, ok := s.chats[chat.ID]; !ok {
		c := chat
		s.chats[chat.ID] = &c
		s.order = append([]string{chat.ID}, s.order...)
	}
	s.active = chat.ID
	snap := s.chatSnapshot(s.chats[chat.ID])
	s.mu.Unlock()
	return snap, nil
}

// CreateGroupChat is not available yet.
func (s *Store) CreateGroupChat(_ context.Context, _ string, _ []string) (model.Chat, error) {
	return model.Chat{}, ErrGroupChatsUnsupported
}
