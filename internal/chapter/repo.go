package chapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mangaverse/pkg/database"
	"mangaverse/pkg/models"
)

var (
	ErrDuplicateChapter = errors.New("a chapter with this number already exists")
	ErrReorderMismatch  = errors.New("order must list every panel of the chapter exactly once")
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func Slug(number int) string {
	return fmt.Sprintf("chapter-%d", number)
}

const chapterColumns = `id, manga_id, arc_id, title, number, slug, created_at`

func scanChapter(row interface{ Scan(...any) error }) (*models.Chapter, error) {
	var (
		ch    models.Chapter
		arcID sql.NullInt64
	)
	if err := row.Scan(&ch.ID, &ch.MangaID, &arcID, &ch.Title, &ch.Number, &ch.Slug, &ch.CreatedAt); err != nil {
		return nil, err
	}
	if arcID.Valid {
		v := arcID.Int64
		ch.ArcID = &v
	}
	return &ch, nil
}

func nullArc(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func (r *Repo) Create(ctx context.Context, ch *models.Chapter) error {
	ch.Title = strings.TrimSpace(ch.Title)
	ch.Slug = Slug(ch.Number)
	ch.CreatedAt = time.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO chapters (manga_id, arc_id, title, number, slug, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ch.MangaID, nullArc(ch.ArcID), ch.Title, ch.Number, ch.Slug, ch.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateChapter
		}
		return fmt.Errorf("insert chapter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	ch.ID = id
	return nil
}

func (r *Repo) GetBySlug(ctx context.Context, mangaID int64, slug string) (*models.Chapter, error) {
	ch, err := scanChapter(r.DB.QueryRowContext(ctx, `
		SELECT `+chapterColumns+` FROM chapters WHERE manga_id = ? AND slug = ?
	`, mangaID, strings.TrimSpace(slug)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chapter by slug: %w", err)
	}
	return ch, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Chapter, error) {
	ch, err := scanChapter(r.DB.QueryRowContext(ctx, `
		SELECT `+chapterColumns+` FROM chapters WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chapter by id: %w", err)
	}
	return ch, nil
}

// Update stores title, number and arc. The slug follows the number.
func (r *Repo) Update(ctx context.Context, ch *models.Chapter) error {
	ch.Title = strings.TrimSpace(ch.Title)
	ch.Slug = Slug(ch.Number)
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE chapters SET arc_id = ?, title = ?, number = ?, slug = ? WHERE id = ?
	`, nullArc(ch.ArcID), ch.Title, ch.Number, ch.Slug, ch.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateChapter
		}
		return fmt.Errorf("update chapter: %w", err)
	}
	return nil
}

// Delete removes the chapter and its panels, returning the panel image keys.
func (r *Repo) Delete(ctx context.Context, id int64) (assets []string, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete chapter: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `SELECT image FROM panels WHERE chapter_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("collect panel images: %w", err)
	}
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan panel image: %w", err)
		}
		assets = append(assets, key)
	}
	if err = rows.Close(); err != nil {
		return nil, fmt.Errorf("close panel rows: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM panels WHERE chapter_id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete panels: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM chapters WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete chapter: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete chapter: %w", err)
	}
	return assets, nil
}

// Neighbors returns the chapters immediately before and after number.
func (r *Repo) Neighbors(ctx context.Context, mangaID int64, number int) (prev, next *models.Chapter, err error) {
	prev, err = scanChapter(r.DB.QueryRowContext(ctx, `
		SELECT `+chapterColumns+` FROM chapters
		WHERE manga_id = ? AND number < ?
		ORDER BY number DESC LIMIT 1
	`, mangaID, number))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("previous chapter: %w", err)
	}
	next, err = scanChapter(r.DB.QueryRowContext(ctx, `
		SELECT `+chapterColumns+` FROM chapters
		WHERE manga_id = ? AND number > ?
		ORDER BY number ASC LIMIT 1
	`, mangaID, number))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("next chapter: %w", err)
	}
	return prev, next, nil
}
