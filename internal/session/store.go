// Package session holds the UI-facing chat state for one identity and
// reconciles three input streams into it: the initial bulk load, events
// pushed over the relay, and local optimistic actions.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/deskbase/chatd/internal/dispatch"
	"github.com/deskbase/chatd/internal/model"
	"github.com/deskbase/chatd/internal/wire"
	"go.uber.org/zap"
)

const (
	defaultPageSize  = 50
	defaultTypingTTL = 3 * time.Second
)

// ErrNoChat is returned for actions that require an existing chat.
var ErrNoChat = errors.New("no chat selected")

// ErrEmptyMessage is returned when a send carries no content.
var ErrEmptyMessage = errors.New("message content is empty")

// ErrGroupChatsUnsupported is returned for group creation attempts.
var ErrGroupChatsUnsupported = errors.New("group chats are not available yet")

// Pusher is the transport-push side of the store, satisfied by
// relay.Manager.
type Pusher interface {
	Send(wire.Frame) error
	State() model.ConnState
}

// Backend is the request/response fallback side, satisfied by
// rest.Client.
type Backend interface {
	ListChats(ctx context.Context, userID string) ([]model.Chat, error)
	ListMessages(ctx context.Context, userID, chatID string, limit, offset int) ([]model.Message, error)
	ListContacts(ctx context.Context, userID string) ([]model.Participant, error)
	CreateChat(ctx context.Context, userID string, kind model.ChatKind, participantIDs []string) (model.Chat, error)
	SendMessage(ctx context.Context, userID, chatID, content, kind string) (model.Message, error)
	MarkRead(ctx context.Context, userID, chatID string) error
}

type typingEntry struct {
	userID string
	timer  *time.Timer
}

// Store is the single source of truth for chat, message, typing and
// presence state. One mutex serializes every mutation, so pushed events,
// timer expiries and caller actions never interleave inside a chat's
// message sequence.
type Store struct {
	selfID   string
	selfName string
	push     Pusher
	backend  Backend
	d        *dispatch.Dispatcher
	logger   *zap.Logger

	mu       sync.Mutex
	chats    map[string]*model.Chat
	order    []string // chat ids, most recently active first
	msgs     map[string][]model.Message
	msgPos   map[string]map[string]int // chat id -> message id -> position
	pending  map[string][]string       // chat id -> temp ids awaiting confirmation
	offsets  map[string]int            // chat id -> count of history fetched so far
	loaded   map[string]bool
	typing   map[string]*typingEntry
	presence map[string]bool
	contacts []model.Participant
	active   string
	state    model.ConnState
	unsubs   []func()
	closed   bool

	pageSize  int
	typingTTL time.Duration
}

// New creates a session store for the given identity. Call Activate to
// subscribe and bulk-load.
func New(selfID, selfName string, push Pusher, backend Backend, d *dispatch.Dispatcher, logger *zap.Logger) *Store {
	return &Store{
		selfID:    selfID,
		selfName:  selfName,
		push:      push,
		backend:   backend,
		d:         d,
		logger:    logger,
		chats:     make(map[string]*model.Chat),
		msgs:      make(map[string][]model.Message),
		msgPos:    make(map[string]map[string]int),
		pending:   make(map[string][]string),
		offsets:   make(map[string]int),
		loaded:    make(map[string]bool),
		typing:    make(map[string]*typingEntry),
		presence:  make(map[string]bool),
		state:     model.StateDisconnected,
		pageSize:  defaultPageSize,
		typingTTL: defaultTypingTTL,
	}
}

// Activate subscribes to all four event classes and performs the initial
// bulk load. The chat list and the contact directory are fetched
// concurrently; read failures degrade to empty state with a log line.
func (s *Store) Activate(ctx context.Context) {
	// Registration happens outside s.mu: OnState replays the current
	// state synchronously into handleState, which takes the lock itself.
	unsubs := []func(){
		s.d.OnMessage(s.handleMessage),
		s.d.OnTyping(s.handleTyping),
		s.d.OnPresence(s.handlePresence),
		s.d.OnState(s.handleState),
	}
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsubs...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	var chats []model.Chat
	var contacts []model.Participant

	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		chats, err = s.backend.ListChats(ctx, s.selfID)
		if err != nil {
			s.logger.Warn("chat list load failed, starting empty", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		contacts, err = s.backend.ListContacts(ctx, s.selfID)
		if err != nil {
			s.logger.Warn("contact directory load failed, starting empty", zap.Error(err))
		}
	}()
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range chats {
		c := chats[i]
		if _, ok := s.chats[c.ID]; ok {
			continue
		}
		s.chats[c.ID] = &c
		s.order = append(s.order, c.ID)
	}
	s.contacts = contacts
	s.logger.Info("session activated",
		zap.Int("chats", len(chats)),
		zap.Int("contacts", len(contacts)))
}

// Close tears the store down: every dispatcher registration is released
// and all typing timers are stopped. The relay itself is shut down by its
// owner.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	for id, t := range s.typing {
		t.timer.Stop()
		delete(s.typing, id)
	}
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// ConnState returns the last observed relay connection state.
func (s *Store) ConnState() model.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveChat returns the currently open chat id, or empty.
func (s *Store) ActiveChat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Chats returns the chat list in activity order. Participant presence is
// resolved from the global presence table at read time.
func (s *Store) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Chat, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.chatSnapshot(s.chats[id]))
	}
	return out
}

// Chat returns one chat by id.
func (s *Store) Chat(chatID string) (model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return model.Chat{}, false
	}
	return s.chatSnapshot(c), true
}

// Messages returns a copy of the chat's held message sequence. Append
// position defines display order.
func (s *Store) Messages(chatID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.msgs[chatID]
	out := make([]model.Message, len(seq))
	copy(out, seq)
	return out
}

// Contacts returns the directory with live presence resolved.
func (s *Store) Contacts() []model.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Participant, len(s.contacts))
	for i, p := range s.contacts {
		p.Online = s.presence[p.ID]
		out[i] = p
	}
	return out
}

// Typing returns the active typing indicator for a chat, if any.
func (s *Store) Typing(chatID string) (model.TypingIndicator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.typing[chatID]
	if !ok {
		return model.TypingIndicator{}, false
	}
	return model.TypingIndicator{ChatID: chatID, UserID: t.userID, Typing: true}, true
}

// chatSnapshot copies a chat with presence resolved into its participant
// records. Callers hold s.mu.
func (s *Store) chatSnapshot(c *model.Chat) model.Chat {
	out := *c
	out.Participants = make([]model.Participant, len(c.Participants))
	for i, p := range c.Participants {
		p.Online = s.presence[p.ID]
		out.Participants[i] = p
	}
	if c.LastMessage != nil {
		last := *c.LastMessage
		out.LastMessage = &last
	}
	return out
}

// ensureChat returns the chat record, creating a stub when an event
// arrives for a chat the bulk load did not return. Callers hold s.mu.
func (s *Store) ensureChat(chatID, name string) *model.Chat {
	if c, ok := s.chats[chatID]; ok {
		return c
	}
	c := &model.Chat{
		ID:   chatID,
		Name: name,
		Kind: model.ChatPrivate,
	}
	s.chats[chatID] = c
	s.order = append([]string{chatID}, s.order...)
	return c
}

// moveToFront promotes a chat in the activity order. Callers hold s.mu.
func (s *Store) moveToFront(chatID string) {
	for i, id := range s.order {
		if id == chatID {
			if i == 0 {
				return
			}
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append([]string{chatID}, s.order...)
}
