package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatd.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	res, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Error("second migrate reported changes")
	}
	if res.Dirty {
		t.Error("migration left database dirty")
	}
}

func TestUpsertChatSummaryOnlyMovesForward(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{ID: "c1", Name: "Bob", Kind: "private", LastMessageAt: 2000, LastMessagePreview: "newer"}); err != nil {
		t.Fatal(err)
	}
	// An older summary must not win.
	if err := db.UpsertChat(&Chat{ID: "c1", Name: "Bob", Kind: "private", LastMessageAt: 1000, LastMessagePreview: "older"}); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("chat not found")
	}
	if c.LastMessageAt != 2000 {
		t.Errorf("last_message_at = %d, want 2000", c.LastMessageAt)
	}
	if c.LastMessagePreview != "newer" {
		t.Errorf("preview = %q, want newer", c.LastMessagePreview)
	}
}

func TestUpsertChatKeepsNameWhenBlank(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{ID: "c1", Name: "Bob", Kind: "private"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertChat(&Chat{ID: "c1", Name: "", Kind: "private", LastMessageAt: 100}); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "Bob" {
		t.Errorf("name = %q, want Bob", c.Name)
	}
}

func TestListChatsOrderedByActivity(t *testing.T) {
	db := testDB(t)

	for _, c := range []Chat{
		{ID: "c1", Name: "old", LastMessageAt: 100},
		{ID: "c2", Name: "new", LastMessageAt: 300},
		{ID: "c3", Name: "mid", LastMessageAt: 200},
	} {
		if err := db.UpsertChat(&c); err != nil {
			t.Fatal(err)
		}
	}

	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c2", "c3", "c1"}
	if len(chats) != len(want) {
		t.Fatalf("got %d chats, want %d", len(chats), len(want))
	}
	for i, id := range want {
		if chats[i].ID != id {
			t.Errorf("position %d = %q, want %q", i, chats[i].ID, id)
		}
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := testDB(t)

	m := &Message{ChatID: "c1", MsgID: "m-1", SenderID: "u2", SenderName: "Bob", Body: "hello", Kind: "text", Timestamp: 100}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	count, err := db.MessageCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("got %d messages after double upsert, want 1", count)
	}
}

func TestListMessagesKeysetPagination(t *testing.T) {
	db := testDB(t)

	for i := int64(1); i <= 5; i++ {
		m := &Message{ChatID: "c1", MsgID: msgID(i), SenderID: "u2", Body: "msg", Kind: "text", Timestamp: i * 100}
		if err := db.UpsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	// First page: newest two.
	page, err := db.ListMessages("c1", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Timestamp != 500 || page[1].Timestamp != 400 {
		t.Fatalf("first page = %+v", page)
	}

	// Next page continues strictly before the oldest seen timestamp.
	page, err = db.ListMessages("c1", page[1].Timestamp, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Timestamp != 300 || page[1].Timestamp != 200 {
		t.Fatalf("second page = %+v", page)
	}
}

func msgID(i int64) string {
	return string(rune('a' + i))
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	msgs := []Message{
		{ChatID: "c1", MsgID: "m-1", SenderID: "u2", SenderName: "Bob", Body: "the quarterly report is ready", Kind: "text", Timestamp: 100},
		{ChatID: "c1", MsgID: "m-2", SenderID: "u2", SenderName: "Bob", Body: "lunch at noon?", Kind: "text", Timestamp: 200},
		{ChatID: "c2", MsgID: "m-3", SenderID: "u3", SenderName: "Carol", Body: "report deadline moved", Kind: "text", Timestamp: 300},
	}
	for i := range msgs {
		if err := db.UpsertMessage(&msgs[i]); err != nil {
			t.Fatal(err)
		}
	}

	results, err := db.SearchMessages("report", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Snippet == "" {
		t.Error("empty snippet")
	}

	// Restricted to one chat.
	results, err = db.SearchMessages("report", "c2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.MsgID != "m-3" {
		t.Fatalf("chat-scoped results = %+v", results)
	}
}

func TestSearchIndexFollowsUpdates(t *testing.T) {
	db := testDB(t)

	m := &Message{ChatID: "c1", MsgID: "m-1", SenderID: "u2", Body: "draft agenda", Kind: "text", Timestamp: 100}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	m.Body = "final agenda"
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	if results, err := db.SearchMessages("draft", "", 10); err != nil {
		t.Fatal(err)
	} else if len(results) != 0 {
		t.Errorf("stale index entry survived update: %+v", results)
	}
	if results, err := db.SearchMessages("final", "", 10); err != nil {
		t.Fatal(err)
	} else if len(results) != 1 {
		t.Errorf("updated body not indexed: got %d results", len(results))
	}
}
