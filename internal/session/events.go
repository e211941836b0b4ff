package session

import (
	"context"
	"time"

	"github.com/deskbase/chatd/internal/dispatch"
	"github.com/deskbase/chatd/internal/model"
	"go.uber.org/zap"
)

// handleMessage merges one pushed message into the chat's sequence. The
// merge is idempotent: an identifier already held is discarded, which is
// how duplicate delivery across reconnects is tolerated. An authoritative
// echo for an optimistic entry under a different identifier replaces that
// entry in place, never re-appended.
func (s *Store) handleMessage(m model.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	chat := s.ensureChat(m.ChatID, m.SenderName)

	if _, ok := s.position(m.ChatID, m.ID); ok {
		// Duplicate delivery. If it confirms a pending optimistic entry
		// that kept its identifier, the send is settled.
		s.dropPending(m.ChatID, m.ID)
		s.mu.Unlock()
		return
	}

	if m.SenderID == s.selfID {
		if tempID, ok := s.popPending(m.ChatID); ok {
			s.replaceInPlace(chat, tempID, m)
			s.mu.Unlock()
			return
		}
	}

	s.appendMessage(chat, m)
	open := m.ChatID == s.active
	if !open {
		chat.UnreadCount++
	}
	s.mu.Unlock()

	if open {
		go s.markReadQuietly(m.ChatID)
	}
}

// handleTyping debounces the indicator: only the most recent typing
// identity per chat is retained, and each event re-arms the expiry timer.
func (s *Store) handleTyping(t model.TypingIndicator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || t.UserID == s.selfID {
		return
	}

	if prev, ok := s.typing[t.ChatID]; ok {
		prev.timer.Stop()
		delete(s.typing, t.ChatID)
	}
	if !t.Typing {
		return
	}

	e := &typingEntry{userID: t.UserID}
	chatID := t.ChatID
	e.timer = time.AfterFunc(s.typingTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.typing[chatID]; ok && cur == e {
			delete(s.typing, chatID)
		}
	})
	s.typing[chatID] = e
}

// handlePresence updates the global presence table. Chats and the
// directory hold identity references only; the boolean is resolved into
// participant records at read time.
func (s *Store) handlePresence(p dispatch.PresenceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.presence[p.UserID] = p.Online
}

func (s *Store) handleState(st model.ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *Store) markReadQuietly(chatID string) {
	if err := s.MarkRead(context.Background(), chatID); err != nil {
		s.logger.Warn("mark read failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}

// position looks up a message's index within its chat. Callers hold s.mu.
func (s *Store) position(chatID, msgID string) (int, bool) {
	pos, ok := s.msgPos[chatID]
	if !ok {
		return 0, false
	}
	idx, ok := pos[msgID]
	return idx, ok
}

// appendMessage appends to the sequence and refreshes the chat summary.
// Callers hold s.mu.
func (s *Store) appendMessage(chat *model.Chat, m model.Message) {
	pos := s.msgPos[chat.ID]
	if pos == nil {
		pos = make(map[string]int)
		s.msgPos[chat.ID] = pos
	}
	pos[m.ID] = len(s.msgs[chat.ID])
	s.msgs[chat.ID] = append(s.msgs[chat.ID], m)

	last := m
	chat.LastMessage = &last
	chat.LastActivity = m.Timestamp
	s.moveToFront(chat.ID)
}

// replaceInPlace swaps a temporary entry for its authoritative form at
// the same position. If the temporary entry is already gone the message
// falls back to a plain idempotent merge.
func (s *Store) replaceInPlace(chat *model.Chat, tempID string, m model.Message) {
	pos := s.msgPos[chat.ID]
	idx, ok := pos[tempID]
	if !ok {
		if _, dup := pos[m.ID]; !dup {
			s.appendMessage(chat, m)
		}
		return
	}
	s.msgs[chat.ID][idx] = m
	delete(pos, tempID)
	pos[m.ID] = idx
	if chat.LastMessage != nil && chat.LastMessage.ID == tempID {
		last := m
		chat.LastMessage = &last
		chat.LastActivity = m.Timestamp
	}
}

// removeMessage splices an entry out of the sequence and restores the
// chat summary from what remains. Callers hold s.mu.
func (s *Store) removeMessage(chatID, msgID string) {
	pos := s.msgPos[chatID]
	idx, ok := pos[msgID]
	if !ok {
		return
	}
	seq := s.msgs[chatID]
	seq = append(seq[:idx], seq[idx+1:]...)
	s.msgs[chatID] = seq
	delete(pos, msgID)
	for i := idx; i < len(seq); i++ {
		pos[seq[i].ID] = i
	}

	chat, okChat := s.chats[chatID]
	if !okChat {
		return
	}
	if len(seq) == 0 {
		chat.LastMessage = nil
		return
	}
	last := seq[len(seq)-1]
	chat.LastMessage = &last
	chat.LastActivity = last.Timestamp
}

// prependHistory merges a fetched history page in front of the held
// sequence, skipping anything already present. Returns how many entries
// were added. Callers hold s.mu.
func (s *Store) prependHistory(chatID string, page []model.Message) int {
	pos := s.msgPos[chatID]
	if pos == nil {
		pos = make(map[string]int)
		s.msgPos[chatID] = pos
	}

	fresh := make([]model.Message, 0, len(page))
	for _, m := range page {
		if _, ok := pos[m.ID]; ok {
			continue
		}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return 0
	}

	seq := append(fresh, s.msgs[chatID]...)
	s.msgs[chatID] = seq
	for i, m := range seq {
		pos[m.ID] = i
	}

	if chat, ok := s.chats[chatID]; ok && chat.LastMessage == nil {
		last := seq[len(seq)-1]
		chat.LastMessage = &last
		chat.LastActivity = last.Timestamp
	}
	return len(fresh)
}

func (s *Store) dropPending(chatID, tempID string) {
	list := s.pending[chatID]
	for i, id := range list {
		if id == tempID {
			s.pending[chatID] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (s *Store) popPending(chatID string) (string, bool) {
	list := s.pending[chatID]
	if len(list) == 0 {
		return "", false
	}
	s.pending[chatID] = list[1:]
	return list[0], true
}
