package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mangaverse/pkg/models"
)

const MaxContentLen = 2000

var (
	ErrEmptyMessage     = errors.New("message content is required")
	ErrMessageTooLong   = errors.New("message must be at most 2000 chars")
	ErrSelfMessage      = errors.New("you cannot message yourself")
	ErrUnknownRecipient = errors.New("recipient does not exist")
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Validate normalizes and checks message content.
func Validate(content string) (string, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return "", ErrEmptyMessage
	case len([]rune(content)) > MaxContentLen:
		return "", ErrMessageTooLong
	}
	return content, nil
}

// Send stores a message after checking that both users exist.
func (r *Repo) Send(ctx context.Context, m *models.Message) error {
	content, err := Validate(m.Content)
	if err != nil {
		return err
	}
	if m.SenderID == m.RecipientID {
		return ErrSelfMessage
	}

	var n int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE id IN (?, ?)
	`, m.SenderID, m.RecipientID).Scan(&n); err != nil {
		return fmt.Errorf("check participants: %w", err)
	}
	if n != 2 {
		return ErrUnknownRecipient
	}

	m.Content = content
	m.Timestamp = time.Now().UTC()
	m.IsRead = false
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO messages (sender_id, recipient_id, content, created_at, is_read)
		VALUES (?, ?, ?, ?, 0)
	`, m.SenderID, m.RecipientID, m.Content, m.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

// Thread returns every message between me and other, oldest first, then
// marks the ones other sent to me as read. The returned rows keep the read
// state they had before the call.
func (r *Repo) Thread(ctx context.Context, me, other string) ([]models.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, sender_id, recipient_id, content, created_at, is_read
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at ASC, id ASC
	`, me, other, other, me)
	if err != nil {
		return nil, fmt.Errorf("list thread: %w", err)
	}
	defer rows.Close()

	out := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.Timestamp, &m.IsRead); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	rows.Close()

	if _, err := r.DB.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE sender_id = ? AND recipient_id = ? AND is_read = 0
	`, other, me); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return out, nil
}

// Inbox lists everyone me has exchanged messages with, most recent
// conversation first.
func (r *Repo) Inbox(ctx context.Context, me string) ([]models.ChatPartner, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT t.partner, u.username, m.content, m.created_at,
			(SELECT COUNT(*) FROM messages x
			 WHERE x.sender_id = t.partner AND x.recipient_id = ? AND x.is_read = 0)
		FROM (
			SELECT CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END AS partner,
				MAX(id) AS last_id
			FROM messages
			WHERE sender_id = ? OR recipient_id = ?
			GROUP BY partner
		) t
		JOIN messages m ON m.id = t.last_id
		JOIN users u ON u.id = t.partner
		ORDER BY m.created_at DESC, m.id DESC
	`, me, me, me, me)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	defer rows.Close()

	out := make([]models.ChatPartner, 0)
	for rows.Next() {
		var p models.ChatPartner
		if err := rows.Scan(&p.UserID, &p.Username, &p.LastMessage, &p.LastAt, &p.Unread); err != nil {
			return nil, fmt.Errorf("scan inbox row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// DeleteChat removes all messages between the two users in both directions.
func (r *Repo) DeleteChat(ctx context.Context, a, b string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
	`, a, b, b, a)
	if err != nil {
		return 0, fmt.Errorf("delete chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (r *Repo) UnreadCount(ctx context.Context, me string) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE recipient_id = ? AND is_read = 0
	`, me).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
