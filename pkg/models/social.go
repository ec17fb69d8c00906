package models

import "time"

type Profile struct {
	ID       int64  `json:"id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
	Avatar   string `json:"avatar"`
}

type Message struct {
	ID          int64     `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	IsRead      bool      `json:"is_read"`
}

// ChatPartner is one inbox row: a user the owner has exchanged messages with.
type ChatPartner struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	LastMessage string    `json:"last_message"`
	LastAt      time.Time `json:"last_at"`
	Unread      int       `json:"unread"`
}

// Suggestion is the compact live-search preview of a manga.
type Suggestion struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	URL     string `json:"url"`
	Cover   string `json:"cover"`
	Snippet string `json:"snippet"`
}
