package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a chat record. The summary only moves
// forward: an older last-message timestamp never overwrites a newer one.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (id, name, kind, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			kind = excluded.kind,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at > chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Kind, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// ListChats returns cached chats sorted by last message timestamp descending.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, name, kind, last_message_at, last_message_preview
		FROM chats
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single cached chat by id.
func (db *DB) GetChat(id string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT id, name, kind, last_message_at, last_message_preview
		FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Kind, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatCount returns the total number of cached chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
