package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mangaverse/pkg/models"
)

const (
	PerPage      = 12
	SuggestLimit = 8
	SnippetLen   = 120
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// matchClause matches a manga whose title, synopsis or author, or any of
// whose chapter titles, contains the pattern. EXISTS keeps results distinct.
// ulower is registered by pkg/database and folds case like strings.ToLower.
const matchClause = `
	WHERE ulower(m.title) LIKE ? ESCAPE '\'
	   OR ulower(m.synopsis) LIKE ? ESCAPE '\'
	   OR ulower(m.author) LIKE ? ESCAPE '\'
	   OR EXISTS (
		SELECT 1 FROM chapters c
		WHERE c.manga_id = m.id AND ulower(c.title) LIKE ? ESCAPE '\'
	   )
`

// pattern builds a case-insensitive substring LIKE pattern with the
// wildcards of q escaped.
func pattern(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func matchArgs(q string) []any {
	p := pattern(q)
	return []any{p, p, p, p}
}

func (r *Repo) Count(ctx context.Context, q string) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM mangas m`+matchClause, matchArgs(q)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count search: %w", err)
	}
	return n, nil
}

// Search returns one page of matching mangas ordered by title.
func (r *Repo) Search(ctx context.Context, q string, limit, offset int) ([]models.Manga, error) {
	args := append(matchArgs(q), limit, offset)
	rows, err := r.DB.QueryContext(ctx, `
		SELECT m.id, m.title, m.author, m.genre, m.synopsis, m.cover, m.slug, m.owner_id, m.created_at, m.updated_at
		FROM mangas m`+matchClause+`
		ORDER BY m.title COLLATE NOCASE ASC, m.id ASC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("search mangas: %w", err)
	}
	defer rows.Close()

	out := make([]models.Manga, 0)
	for rows.Next() {
		var m models.Manga
		if err := rows.Scan(&m.ID, &m.Title, &m.Author, &m.Genre, &m.Synopsis, &m.Cover,
			&m.Slug, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Snippet cuts a synopsis down to the suggest preview length.
func Snippet(s string) string {
	r := []rune(s)
	if len(r) <= SnippetLen {
		return s
	}
	return string(r[:SnippetLen])
}
