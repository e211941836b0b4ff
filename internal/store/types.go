package store

// Chat is a cached chat row.
type Chat struct {
	ID                 string
	Name               string
	Kind               string
	LastMessageAt      int64
	LastMessagePreview string
}

// Message is a cached message row.
type Message struct {
	RowID      int64
	ChatID     string
	MsgID      string
	SenderID   string
	SenderName string
	Body       string
	Kind       string
	FromMe     bool
	Timestamp  int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
