package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/deskbase/chatd/internal/dispatch"
	"github.com/deskbase/chatd/internal/model"
	"github.com/deskbase/chatd/internal/wire"
	"go.uber.org/zap"
)

// fakePush records pushed frames and reports a configurable connection
// state.
type fakePush struct {
	mu     sync.Mutex
	state  model.ConnState
	frames []wire.Frame
}

func (p *fakePush) Send(f wire.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f)
	return nil
}

func (p *fakePush) State() model.ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePush) setState(s model.ConnState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *fakePush) sent() []wire.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]wire.Frame, len(p.frames))
	copy(out, p.frames)
	return out
}

// fakeBackend returns canned data and records write calls.
type fakeBackend struct {
	mu       sync.Mutex
	chats    []model.Chat
	contacts []model.Participant
	pages    map[int][]model.Message // offset -> page
	listErr  error

	sendResult model.Message
	sendErr    error
	sendCalls  int

	markReadCalls []string
	markReadErr   error

	created    model.Chat
	createErr  error
	createArgs []string
}

func (b *fakeBackend) ListChats(_ context.Context, _ string) ([]model.Chat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.chats, nil
}

func (b *fakeBackend) ListMessages(_ context.Context, _, _ string, _, offset int) ([]model.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.pages[offset], nil
}

func (b *fakeBackend) ListContacts(_ context.Context, _ string) ([]model.Participant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.contacts, nil
}

func (b *fakeBackend) CreateChat(_ context.Context, _ string, _ model.ChatKind, participantIDs []string) (model.Chat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createArgs = participantIDs
	if b.createErr != nil {
		return model.Chat{}, b.createErr
	}
	return b.created, nil
}

func (b *fakeBackend) SendMessage(_ context.Context, _, _, _, _ string) (model.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendCalls++
	if b.sendErr != nil {
		return model.Message{}, b.sendErr
	}
	return b.sendResult, nil
}

func (b *fakeBackend) MarkRead(_ context.Context, _, chatID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markReadCalls = append(b.markReadCalls, chatID)
	return b.markReadErr
}

func (b *fakeBackend) readMarks() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.markReadCalls))
	copy(out, b.markReadCalls)
	return out
}

func chatWith(id string, participants ...string) model.Chat {
	c := model.Chat{ID: id, Name: id, Kind: model.ChatPrivate}
	for _, p := range participants {
		c.Participants = append(c.Participants, model.Participant{ID: p, Name: p})
	}
	return c
}

func newTestStore(t *testing.T, push *fakePush, backend *fakeBackend) (*Store, *dispatch.Dispatcher) {
	t.Helper()
	if push == nil {
		push = &fakePush{state: model.StateConnected}
	}
	if backend == nil {
		backend = &fakeBackend{}
	}
	d := dispatch.New()
	s := New("u1", "Alice", push, backend, d, zap.NewNop())
	s.typingTTL = 30 * time.Millisecond
	s.Activate(context.Background())
	t.Cleanup(s.Close)
	return s, d
}

func TestActivateReturnsAndReplaysState(t *testing.T) {
	d := dispatch.New()
	d.PublishState(model.StateConnected)
	s := New("u1", "Alice", &fakePush{state: model.StateConnected}, &fakeBackend{}, d, zap.NewNop())
	t.Cleanup(s.Close)

	// OnState replays synchronously into the store's own handler during
	// registration; Activate must complete despite that.
	done := make(chan struct{})
	go func() {
		s.Activate(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Activate did not return")
	}

	if got := s.ConnState(); got != model.StateConnected {
		t.Errorf("ConnState() = %q, want connected from subscribe replay", got)
	}
}

func TestActivateLoadsChatsAndContacts(t *testing.T) {
	backend := &fakeBackend{
		chats:    []model.Chat{chatWith("c1", "u1", "u2"), chatWith("c2", "u1", "u3")},
		contacts: []model.Participant{{ID: "u2", Name: "Bob"}, {ID: "u3", Name: "Carol"}},
	}
	s, _ := newTestStore(t, nil, backend)

	if got := len(s.Chats()); got != 2 {
		t.Errorf("got %d chats, want 2", got)
	}
	if got := len(s.Contacts()); got != 2 {
		t.Errorf("got %d contacts, want 2", got)
	}
}

func TestActivateDegradesToEmptyOnReadFailure(t *testing.T) {
	backend := &fakeBackend{listErr: errors.New("backend down")}
	s, _ := newTestStore(t, nil, backend)

	if got := len(s.Chats()); got != 0 {
		t.Errorf("got %d chats, want 0", got)
	}
	if got := len(s.Contacts()); got != 0 {
		t.Errorf("got %d contacts, want 0", got)
	}
}

func TestDuplicateDeliveryIsDiscarded(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, nil, backend)

	m := model.Message{ID: "m-1", ChatID: "c1", SenderID: "u2", Content: "hello"}
	d.PublishMessage(m)
	d.PublishMessage(m)

	msgs := s.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages after duplicate delivery, want 1", len(msgs))
	}
	if msgs[0].ID != "m-1" {
		t.Errorf("message id = %q, want m-1", msgs[0].ID)
	}
}

func TestMessagesKeepArrivalOrder(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, nil, backend)

	for _, id := range []string{"m-1", "m-2", "m-3"} {
		d.PublishMessage(model.Message{ID: id, ChatID: "c1", SenderID: "u2"})
	}

	msgs := s.Messages("c1")
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"m-1", "m-2", "m-3"} {
		if msgs[i].ID != want {
			t.Errorf("position %d = %q, want %q", i, msgs[i].ID, want)
		}
	}
}

func TestUnreadCountsOnlyWhenChatClosed(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2"), chatWith("c2", "u1", "u3")}}
	s, d := newTestStore(t, nil, backend)

	if err := s.OpenChat(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	d.PublishMessage(model.Message{ID: "m-1", ChatID: "c1", SenderID: "u2"})
	d.PublishMessage(model.Message{ID: "m-2", ChatID: "c2", SenderID: "u3"})

	open, _ := s.Chat("c1")
	if open.UnreadCount != 0 {
		t.Errorf("open chat unread = %d, want 0", open.UnreadCount)
	}
	closed, _ := s.Chat("c2")
	if closed.UnreadCount != 1 {
		t.Errorf("closed chat unread = %d, want 1", closed.UnreadCount)
	}

	// The open chat triggers an async read confirmation to the backend.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, id := range backend.readMarks() {
			if id == "c1" {
				return
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Error("no backend mark-read for the open chat")
}

func TestMessageForUnknownChatCreatesStub(t *testing.T) {
	s, d := newTestStore(t, nil, &fakeBackend{})

	d.PublishMessage(model.Message{ID: "m-1", ChatID: "c9", SenderID: "u2", SenderName: "Bob"})

	chat, ok := s.Chat("c9")
	if !ok {
		t.Fatal("chat stub not created")
	}
	if chat.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", chat.UnreadCount)
	}
}

func TestActivityOrderMostRecentFirst(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2"), chatWith("c2", "u1", "u3")}}
	s, d := newTestStore(t, nil, backend)

	d.PublishMessage(model.Message{ID: "m-1", ChatID: "c2", SenderID: "u3"})

	chats := s.Chats()
	if chats[0].ID != "c2" {
		t.Errorf("first chat = %q, want c2", chats[0].ID)
	}
}

func TestTypingIndicatorExpires(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, nil, backend)

	d.PublishTyping(model.TypingIndicator{ChatID: "c1", UserID: "u2", Typing: true})

	if _, ok := s.Typing("c1"); !ok {
		t.Fatal("typing indicator not set")
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := s.Typing("c1"); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("typing indicator never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTypingEventReArmsTimer(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, nil, backend)

	d.PublishTyping(model.TypingIndicator{ChatID: "c1", UserID: "u2", Typing: true})
	time.Sleep(20 * time.Millisecond)
	d.PublishTyping(model.TypingIndicator{ChatID: "c1", UserID: "u2", Typing: true})
	time.Sleep(20 * time.Millisecond)

	// 40ms after the first event the indicator must still be up because
	// the second event re-armed the 30ms expiry.
	if _, ok := s.Typing("c1"); !ok {
		t.Error("typing indicator expired despite re-arm")
	}
}

func TestTypingKeepsMostRecentIdentity(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, nil, backend)

	d.PublishTyping(model.TypingIndicator{ChatID: "c1", UserID: "u2", Typing: true})
	d.PublishTyping(model.TypingIndicator{ChatID: "c1", UserID: "u3", Typing: true})

	ind, ok := s.Typing("c1")
	if !ok {
		t.Fatal("typing indicator not set")
	}
	if ind.UserID != "u3" {
		t.Errorf("typing user = %q, want u3", ind.UserID)
	}
}

func TestTypingStopClearsIndicator(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, nil, backend)

	d.PublishTyping(model.TypingIndicator{ChatID: "c1", UserID: "u2", Typing: true})
	d.PublishTyping(model.TypingIndicator{ChatID: "c1", UserID: "u2", Typing: false})

	if _, ok := s.Typing("c1"); ok {
		t.Error("typing indicator survived an explicit stop")
	}
}

func TestOwnTypingIsIgnored(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, nil, backend)

	d.PublishTyping(model.TypingIndicator{ChatID: "c1", UserID: "u1", Typing: true})

	if _, ok := s.Typing("c1"); ok {
		t.Error("own typing echo set an indicator")
	}
}

func TestPresenceResolvedAtReadTime(t *testing.T) {
	backend := &fakeBackend{
		chats:    []model.Chat{chatWith("c1", "u1", "u2")},
		contacts: []model.Participant{{ID: "u2", Name: "Bob"}},
	}
	s, d := newTestStore(t, nil, backend)

	d.PublishPresence(dispatch.PresenceEvent{UserID: "u2", Online: true})

	chat, _ := s.Chat("c1")
	var bob *model.Participant
	for i := range chat.Participants {
		if chat.Participants[i].ID == "u2" {
			bob = &chat.Participants[i]
		}
	}
	if bob == nil || !bob.Online {
		t.Error("chat participant not shown online")
	}
	if contacts := s.Contacts(); !contacts[0].Online {
		t.Error("directory entry not shown online")
	}

	d.PublishPresence(dispatch.PresenceEvent{UserID: "u2", Online: false})
	if contacts := s.Contacts(); contacts[0].Online {
		t.Error("directory entry still online after offline event")
	}
}

func TestSendMessageConnectedPushesAndEchoReplaces(t *testing.T) {
	push := &fakePush{state: model.StateConnected}
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, push, backend)

	temp, err := s.SendMessage(context.Background(), "c1", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if temp.SenderID != "u1" || temp.Content != "hi" {
		t.Errorf("temp = %+v", temp)
	}

	frames := push.sent()
	if len(frames) != 1 || frames[0].Type != wire.FrameMessage {
		t.Fatalf("pushed frames = %+v, want one message frame", frames)
	}
	if backend.sendCalls != 0 {
		t.Errorf("backend send called %d times while connected, want 0", backend.sendCalls)
	}

	// Authoritative echo under the server-assigned identifier replaces the
	// optimistic entry at its position.
	d.PublishMessage(model.Message{ID: "m-1", ChatID: "c1", SenderID: "u1", SenderName: "Alice", Content: "hi"})

	msgs := s.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].ID != "m-1" {
		t.Errorf("message id = %q, want m-1", msgs[0].ID)
	}
	chat, _ := s.Chat("c1")
	if chat.LastMessage == nil || chat.LastMessage.ID != "m-1" {
		t.Error("chat summary not updated to the authoritative entry")
	}
}

func TestEchoRefreshesActivityTimestamp(t *testing.T) {
	push := &fakePush{state: model.StateConnected}
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, push, backend)

	if _, err := s.SendMessage(context.Background(), "c1", "hi"); err != nil {
		t.Fatal(err)
	}

	// The server timestamp wins over the optimistic local one.
	ts := time.Now().Add(5 * time.Second).Truncate(time.Millisecond)
	d.PublishMessage(model.Message{ID: "m-1", ChatID: "c1", SenderID: "u1", SenderName: "Alice", Content: "hi", Timestamp: ts})

	chat, _ := s.Chat("c1")
	if !chat.LastActivity.Equal(ts) {
		t.Errorf("LastActivity = %v, want %v", chat.LastActivity, ts)
	}
}

func TestEchoPreservesPosition(t *testing.T) {
	push := &fakePush{state: model.StateConnected}
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, push, backend)

	if _, err := s.SendMessage(context.Background(), "c1", "first"); err != nil {
		t.Fatal(err)
	}
	// Another participant's message lands after the optimistic entry.
	d.PublishMessage(model.Message{ID: "m-2", ChatID: "c1", SenderID: "u2", Content: "second"})
	// Then the echo for the optimistic entry arrives.
	d.PublishMessage(model.Message{ID: "m-1", ChatID: "c1", SenderID: "u1", Content: "first"})

	msgs := s.Messages("c1")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "m-1" || msgs[1].ID != "m-2" {
		t.Errorf("order = [%s %s], want [m-1 m-2]", msgs[0].ID, msgs[1].ID)
	}
}

func TestFallbackSendReplacesInPlace(t *testing.T) {
	push := &fakePush{state: model.StateDisconnected}
	backend := &fakeBackend{
		chats:      []model.Chat{chatWith("c1", "u1", "u2")},
		sendResult: model.Message{ID: "m-1", ChatID: "c1", SenderID: "u1", Content: "hi"},
	}
	s, _ := newTestStore(t, push, backend)

	confirmed, err := s.SendMessage(context.Background(), "c1", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if confirmed.ID != "m-1" {
		t.Errorf("confirmed id = %q, want m-1", confirmed.ID)
	}
	if len(push.sent()) != 0 {
		t.Error("frame pushed while disconnected")
	}

	msgs := s.Messages("c1")
	if len(msgs) != 1 || msgs[0].ID != "m-1" {
		t.Errorf("messages = %+v, want single m-1", msgs)
	}
}

func TestFallbackFailureRollsBack(t *testing.T) {
	push := &fakePush{state: model.StateDisconnected}
	backend := &fakeBackend{
		chats:   []model.Chat{chatWith("c1", "u1", "u2")},
		sendErr: errors.New("backend rejected"),
	}
	s, _ := newTestStore(t, push, backend)

	_, err := s.SendMessage(context.Background(), "c1", "hi")
	if err == nil {
		t.Fatal("send error not surfaced")
	}

	if msgs := s.Messages("c1"); len(msgs) != 0 {
		t.Errorf("got %d messages after rollback, want 0", len(msgs))
	}
	chat, _ := s.Chat("c1")
	if chat.LastMessage != nil {
		t.Error("chat summary survived rollback")
	}
}

func TestSendMessageValidation(t *testing.T) {
	s, _ := newTestStore(t, nil, &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}})

	if _, err := s.SendMessage(context.Background(), "", "hi"); !errors.Is(err, ErrNoChat) {
		t.Errorf("empty chat id: err = %v, want ErrNoChat", err)
	}
	if _, err := s.SendMessage(context.Background(), "c1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank content: err = %v, want ErrEmptyMessage", err)
	}
	if _, err := s.SendMessage(context.Background(), "c9", "hi"); !errors.Is(err, ErrNoChat) {
		t.Errorf("unknown chat: err = %v, want ErrNoChat", err)
	}
}

func TestOpenChatLoadsFirstPageOnce(t *testing.T) {
	backend := &fakeBackend{
		chats: []model.Chat{chatWith("c1", "u1", "u2")},
		pages: map[int][]model.Message{
			0: {
				{ID: "m-1", ChatID: "c1", SenderID: "u2", Content: "old"},
				{ID: "m-2", ChatID: "c1", SenderID: "u1", Content: "older"},
			},
		},
	}
	s, _ := newTestStore(t, nil, backend)

	if err := s.OpenChat(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if got := s.ActiveChat(); got != "c1" {
		t.Errorf("active chat = %q, want c1", got)
	}
	if msgs := s.Messages("c1"); len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}

	// A second open must not duplicate the page.
	if err := s.OpenChat(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if msgs := s.Messages("c1"); len(msgs) != 2 {
		t.Errorf("got %d messages after reopen, want 2", len(msgs))
	}
}

func TestOpenChatUnknown(t *testing.T) {
	s, _ := newTestStore(t, nil, &fakeBackend{})
	if err := s.OpenChat(context.Background(), "c9"); !errors.Is(err, ErrNoChat) {
		t.Errorf("err = %v, want ErrNoChat", err)
	}
}

func TestLoadOlderPrependsNextPage(t *testing.T) {
	backend := &fakeBackend{
		chats: []model.Chat{chatWith("c1", "u1", "u2")},
		pages: map[int][]model.Message{
			0: {{ID: "m-3", ChatID: "c1", SenderID: "u2"}},
			1: {{ID: "m-2", ChatID: "c1", SenderID: "u2"}, {ID: "m-1", ChatID: "c1", SenderID: "u2"}},
		},
	}
	s, _ := newTestStore(t, nil, backend)

	if err := s.OpenChat(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadOlder(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	msgs := s.Messages("c1")
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[len(msgs)-1].ID != "m-3" {
		t.Errorf("newest message = %q, want m-3", msgs[len(msgs)-1].ID)
	}
}

func TestLoadOlderDegradesOnReadFailure(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, _ := newTestStore(t, nil, backend)

	backend.mu.Lock()
	backend.listErr = errors.New("backend down")
	backend.mu.Unlock()

	if err := s.LoadOlder(context.Background(), "c1"); err != nil {
		t.Errorf("read failure surfaced: %v", err)
	}
}

func TestMarkReadZeroesAndPushesReceipt(t *testing.T) {
	push := &fakePush{state: model.StateConnected}
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, push, backend)

	d.PublishMessage(model.Message{ID: "m-1", ChatID: "c1", SenderID: "u2"})

	if err := s.MarkRead(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	chat, _ := s.Chat("c1")
	if chat.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", chat.UnreadCount)
	}

	var readFrame *wire.Frame
	for _, f := range push.sent() {
		if f.Type == wire.FrameRead {
			readFrame = &f
			break
		}
	}
	if readFrame == nil {
		t.Fatal("no read frame pushed")
	}
	if got := backend.readMarks(); len(got) == 0 || got[0] != "c1" {
		t.Errorf("backend mark-read calls = %v, want [c1]", got)
	}
}

func TestMarkReadOmitsUnconfirmedMessages(t *testing.T) {
	push := &fakePush{state: model.StateConnected}
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, push, backend)

	d.PublishMessage(model.Message{ID: "m-1", ChatID: "c1", SenderID: "u2"})
	if _, err := s.SendMessage(context.Background(), "c1", "hi"); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkRead(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	var readFrame *wire.Frame
	for _, f := range push.sent() {
		if f.Type == wire.FrameRead {
			readFrame = &f
			break
		}
	}
	if readFrame == nil {
		t.Fatal("no read frame pushed")
	}
	var receipt wire.Read
	if err := json.Unmarshal(readFrame.Payload, &receipt); err != nil {
		t.Fatal(err)
	}
	if len(receipt.MessageIDs) != 1 || receipt.MessageIDs[0] != "m-1" {
		t.Errorf("receipt ids = %v, want [m-1]; local identifiers must stay local", receipt.MessageIDs)
	}
}

func TestMarkReadPropagatesBackendError(t *testing.T) {
	backend := &fakeBackend{
		chats:       []model.Chat{chatWith("c1", "u1", "u2")},
		markReadErr: errors.New("backend down"),
	}
	s, _ := newTestStore(t, nil, backend)

	if err := s.MarkRead(context.Background(), "c1"); err == nil {
		t.Error("backend failure not surfaced")
	}
}

func TestCreateChatReusesExistingPrivateThread(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, _ := newTestStore(t, nil, backend)

	chat, err := s.CreateChat(context.Background(), "u2")
	if err != nil {
		t.Fatal(err)
	}
	if chat.ID != "c1" {
		t.Errorf("chat id = %q, want existing c1", chat.ID)
	}
	backend.mu.Lock()
	created := backend.createArgs
	backend.mu.Unlock()
	if created != nil {
		t.Error("backend create called despite existing thread")
	}
	if got := s.ActiveChat(); got != "c1" {
		t.Errorf("active chat = %q, want c1", got)
	}
}

func TestCreateChatNewThread(t *testing.T) {
	backend := &fakeBackend{created: chatWith("c2", "u1", "u3")}
	s, _ := newTestStore(t, nil, backend)

	chat, err := s.CreateChat(context.Background(), "u3")
	if err != nil {
		t.Fatal(err)
	}
	if chat.ID != "c2" {
		t.Errorf("chat id = %q, want c2", chat.ID)
	}
	if got := s.ActiveChat(); got != "c2" {
		t.Errorf("active chat = %q, want c2", got)
	}
	if _, ok := s.Chat("c2"); !ok {
		t.Error("new chat not held")
	}
}

func TestCreateGroupChatUnsupported(t *testing.T) {
	s, _ := newTestStore(t, nil, &fakeBackend{})
	if _, err := s.CreateGroupChat(context.Background(), "team", []string{"u2", "u3"}); !errors.Is(err, ErrGroupChatsUnsupported) {
		t.Errorf("err = %v, want ErrGroupChatsUnsupported", err)
	}
}

func TestSendTypingPushesFrame(t *testing.T) {
	push := &fakePush{state: model.StateConnected}
	s, _ := newTestStore(t, push, &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}})

	if err := s.SendTyping("c1", true); err != nil {
		t.Fatal(err)
	}
	frames := push.sent()
	if len(frames) != 1 || frames[0].Type != wire.FrameTyping {
		t.Fatalf("frames = %+v, want one typing frame", frames)
	}
	payload, err := frames[0].DecodeTyping()
	if err != nil {
		t.Fatal(err)
	}
	if payload.UserID != "u1" || !payload.IsTyping {
		t.Errorf("payload = %+v", payload)
	}
}

func TestCloseStopsEventHandling(t *testing.T) {
	backend := &fakeBackend{chats: []model.Chat{chatWith("c1", "u1", "u2")}}
	s, d := newTestStore(t, nil, backend)

	s.Close()
	s.Close() // idempotent

	d.PublishMessage(model.Message{ID: "m-1", ChatID: "c1", SenderID: "u2"})
	if msgs := s.Messages("c1"); len(msgs) != 0 {
		t.Errorf("got %d messages after close, want 0", len(msgs))
	}
}
