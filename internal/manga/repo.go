package manga

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mangaverse/pkg/database"
	"mangaverse/pkg/models"
	"mangaverse/pkg/utils"
)

const PerPage = 12

var ErrArcNotInManga = errors.New("arc does not belong to this manga")

type Repo struct {
	DB *sql.DB
}

type ListQuery struct {
	Genre   models.Genre // empty: all genres
	OwnerID string
	Page    int // 1-based
	PerPage int
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const mangaColumns = `id, title, author, genre, synopsis, cover, slug, owner_id, created_at, updated_at`

func scanManga(row interface{ Scan(...any) error }) (*models.Manga, error) {
	var m models.Manga
	if err := row.Scan(&m.ID, &m.Title, &m.Author, &m.Genre, &m.Synopsis, &m.Cover,
		&m.Slug, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts m with a slug derived from its title. A taken slug gets the
// first free numeric suffix: "test", "test-1", "test-2"...
func (r *Repo) Create(ctx context.Context, m *models.Manga) error {
	base := utils.Slugify(m.Title)
	if base == "" {
		base = "manga"
	}
	if m.Genre == "" {
		m.Genre = models.GenreOther
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	// a concurrent insert can grab the computed slug; retry with a fresh scan
	for attempt := 0; attempt < 5; attempt++ {
		slug, err := r.uniqueSlug(ctx, base)
		if err != nil {
			return err
		}

		res, err := r.DB.ExecContext(ctx, `
			INSERT INTO mangas (title, author, genre, synopsis, cover, slug, owner_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.Title, m.Author, m.Genre, m.Synopsis, m.Cover, slug, m.OwnerID, m.CreatedAt, m.UpdatedAt)
		if err != nil {
			if database.IsUniqueViolation(err) {
				continue
			}
			return fmt.Errorf("insert manga: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		m.ID = id
		m.Slug = slug
		return nil
	}
	return fmt.Errorf("insert manga: no free slug for %q", base)
}

func (r *Repo) uniqueSlug(ctx context.Context, base string) (string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT slug FROM mangas WHERE slug = ? OR slug LIKE ?
	`, base, base+"-%")
	if err != nil {
		return "", fmt.Errorf("scan slugs: %w", err)
	}
	defer rows.Close()

	taken := make(map[string]struct{})
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return "", fmt.Errorf("scan slug row: %w", err)
		}
		taken[s] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows err: %w", err)
	}

	candidate := base
	for i := 1; ; i++ {
		if _, ok := taken[candidate]; !ok {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func (r *Repo) GetBySlug(ctx context.Context, slug string) (*models.Manga, error) {
	m, err := scanManga(r.DB.QueryRowContext(ctx, `
		SELECT `+mangaColumns+` FROM mangas WHERE slug = ?
	`, strings.TrimSpace(slug)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get manga by slug: %w", err)
	}
	return m, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Manga, error) {
	m, err := scanManga(r.DB.QueryRowContext(ctx, `
		SELECT `+mangaColumns+` FROM mangas WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get manga by id: %w", err)
	}
	return m, nil
}

// Update stores the editable fields. The slug is never regenerated so
// existing links keep working after a rename.
func (r *Repo) Update(ctx context.Context, m *models.Manga) error {
	m.UpdatedAt = time.Now().UTC()
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE mangas
		SET title = ?, author = ?, genre = ?, synopsis = ?, cover = ?, updated_at = ?
		WHERE id = ?
	`, m.Title, m.Author, m.Genre, m.Synopsis, m.Cover, m.UpdatedAt, m.ID); err != nil {
		return fmt.Errorf("update manga: %w", err)
	}
	return nil
}

// Delete removes the manga together with its favorites, arcs, chapters and
// panels in one transaction. It returns the media keys that became orphaned
// so the caller can remove the files.
func (r *Repo) Delete(ctx context.Context, id int64) (assets []string, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete manga: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT p.image FROM panels p
		JOIN chapters c ON c.id = p.chapter_id
		WHERE c.manga_id = ?
		UNION ALL
		SELECT cover FROM mangas WHERE id = ? AND cover <> ''
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("collect manga assets: %w", err)
	}
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan manga asset: %w", err)
		}
		assets = append(assets, key)
	}
	if err = rows.Close(); err != nil {
		return nil, fmt.Errorf("close asset rows: %w", err)
	}

	steps := []struct {
		name  string
		query string
	}{
		{"favorites", `DELETE FROM favorites WHERE manga_id = ?`},
		{"panels", `DELETE FROM panels WHERE chapter_id IN (SELECT id FROM chapters WHERE manga_id = ?)`},
		{"chapters", `DELETE FROM chapters WHERE manga_id = ?`},
		{"arcs", `DELETE FROM arcs WHERE manga_id = ?`},
		{"manga", `DELETE FROM mangas WHERE id = ?`},
	}
	for _, step := range steps {
		if _, err = tx.ExecContext(ctx, step.query, id); err != nil {
			return nil, fmt.Errorf("delete %s: %w", step.name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete manga: %w", err)
	}
	return assets, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	where, args := listFilter(q)
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM mangas`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count mangas: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Manga, error) {
	limit, offset := pageBounds(q.Page, q.PerPage)
	where, args := listFilter(q)
	args = append(args, limit, offset)

	return r.query(ctx, `
		SELECT `+mangaColumns+` FROM mangas`+where+`
		ORDER BY title COLLATE NOCASE ASC, id ASC
		LIMIT ? OFFSET ?
	`, args...)
}

// Latest returns the most recently created mangas for the home page.
func (r *Repo) Latest(ctx context.Context, n int) ([]models.Manga, error) {
	return r.query(ctx, `
		SELECT `+mangaColumns+` FROM mangas
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, n)
}

// Popular returns the mangas with the most favorites.
func (r *Repo) Popular(ctx context.Context, n int) ([]models.Manga, error) {
	return r.query(ctx, `
		SELECT `+prefixed("m", mangaColumns)+` FROM mangas m
		JOIN favorites f ON f.manga_id = m.id
		GROUP BY m.id
		ORDER BY COUNT(*) DESC, m.title COLLATE NOCASE ASC
		LIMIT ?
	`, n)
}

func (r *Repo) query(ctx context.Context, query string, args ...any) ([]models.Manga, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mangas: %w", err)
	}
	defer rows.Close()

	out := make([]models.Manga, 0)
	for rows.Next() {
		m, err := scanManga(rows)
		if err != nil {
			return nil, fmt.Errorf("scan manga row: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) FavoritesCount(ctx context.Context, mangaID int64) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM favorites WHERE manga_id = ?
	`, mangaID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count favorites: %w", err)
	}
	return n, nil
}

// IsFavorite reports whether the user owning a profile has favorited mangaID.
func (r *Repo) IsFavorite(ctx context.Context, userID string, mangaID int64) (bool, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM favorites f
		JOIN profiles p ON p.id = f.profile_id
		WHERE p.user_id = ? AND f.manga_id = ?
	`, userID, mangaID).Scan(&n); err != nil {
		return false, fmt.Errorf("check favorite: %w", err)
	}
	return n > 0, nil
}

// ListChapters returns the manga's chapters ordered by number.
func (r *Repo) ListChapters(ctx context.Context, mangaID int64) ([]models.Chapter, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, manga_id, arc_id, title, number, slug, created_at
		FROM chapters
		WHERE manga_id = ?
		ORDER BY number ASC
	`, mangaID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	out := make([]models.Chapter, 0)
	for rows.Next() {
		var (
			ch    models.Chapter
			arcID sql.NullInt64
		)
		if err := rows.Scan(&ch.ID, &ch.MangaID, &arcID, &ch.Title, &ch.Number, &ch.Slug, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chapter row: %w", err)
		}
		if arcID.Valid {
			v := arcID.Int64
			ch.ArcID = &v
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func listFilter(q ListQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.Genre != "" {
		where = append(where, "genre = ?")
		args = append(args, q.Genre)
	}
	if q.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func pageBounds(page, perPage int) (limit, offset int) {
	if perPage <= 0 || perPage > 100 {
		perPage = PerPage
	}
	if page < 1 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// FavoritedBy returns the mangas a profile has favorited, by title.
func (r *Repo) FavoritedBy(ctx context.Context, profileID int64) ([]models.Manga, error) {
	return r.query(ctx, `
		SELECT `+prefixed("m", mangaColumns)+` FROM mangas m
		JOIN favorites f ON f.manga_id = m.id
		WHERE f.profile_id = ?
		ORDER BY m.title COLLATE NOCASE ASC
	`, profileID)
}

func (r *Repo) ListByOwner(ctx context.Context, ownerID string) ([]models.Manga, error) {
	return r.query(ctx, `
		SELECT `+mangaColumns+` FROM mangas
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
	`, ownerID)
}
