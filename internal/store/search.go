package store

// SearchMessages performs a full-text search on cached message bodies.
func (db *DB) SearchMessages(query string, chatID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.rowid, m.chat_id, m.msg_id, m.sender_id, m.sender_name, m.body,
		       m.kind, m.from_me, m.timestamp,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if chatID != "" {
		q += " AND m.chat_id = ?"
		args = append(args, chatID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.RowID, &r.Message.ChatID, &r.Message.MsgID,
			&r.Message.SenderID, &r.Message.SenderName, &r.Message.Body,
			&r.Message.Kind, &r.Message.FromMe, &r.Message.Timestamp,
			&r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
