package chapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mangaverse/pkg/models"
)

func (r *Repo) CountPanels(ctx context.Context, chapterID int64) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM panels WHERE chapter_id = ?
	`, chapterID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count panels: %w", err)
	}
	return n, nil
}

func (r *Repo) AddPanel(ctx context.Context, chapterID int64, image string, page int) (*models.Panel, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO panels (chapter_id, image, page_number) VALUES (?, ?, ?)
	`, chapterID, image, page)
	if err != nil {
		return nil, fmt.Errorf("insert panel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &models.Panel{ID: id, ChapterID: chapterID, Image: image, PageNumber: page}, nil
}

func (r *Repo) GetPanel(ctx context.Context, id int64) (*models.Panel, error) {
	var p models.Panel
	if err := r.DB.QueryRowContext(ctx, `
		SELECT id, chapter_id, image, page_number FROM panels WHERE id = ?
	`, id).Scan(&p.ID, &p.ChapterID, &p.Image, &p.PageNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get panel: %w", err)
	}
	return &p, nil
}

func (r *Repo) SetPanelImage(ctx context.Context, id int64, image string) error {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE panels SET image = ? WHERE id = ?
	`, image, id); err != nil {
		return fmt.Errorf("set panel image: %w", err)
	}
	return nil
}

func (r *Repo) ListPanels(ctx context.Context, chapterID int64) ([]models.Panel, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, chapter_id, image, page_number
		FROM panels
		WHERE chapter_id = ?
		ORDER BY page_number ASC, id ASC
	`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("list panels: %w", err)
	}
	defer rows.Close()

	out := make([]models.Panel, 0)
	for rows.Next() {
		var p models.Panel
		if err := rows.Scan(&p.ID, &p.ChapterID, &p.Image, &p.PageNumber); err != nil {
			return nil, fmt.Errorf("scan panel row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Reorder assigns page numbers 1..n following order, which must contain
// each panel id of the chapter exactly once.
func (r *Repo) Reorder(ctx context.Context, chapterID int64, order []int64) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := panelIDs(ctx, tx, chapterID)
	if err != nil {
		return err
	}
	if len(current) != len(order) {
		return ErrReorderMismatch
	}
	known := make(map[int64]bool, len(current))
	for _, id := range current {
		known[id] = false
	}
	for _, id := range order {
		seen, ok := known[id]
		if !ok || seen {
			return ErrReorderMismatch
		}
		known[id] = true
	}

	if err = renumber(ctx, tx, order); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

// DeletePanel removes one panel and closes the gap in the chapter's page
// numbers. It returns the deleted panel so the caller can drop its image.
func (r *Repo) DeletePanel(ctx context.Context, id int64) (p *models.Panel, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete panel: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var panel models.Panel
	if err = tx.QueryRowContext(ctx, `
		SELECT id, chapter_id, image, page_number FROM panels WHERE id = ?
	`, id).Scan(&panel.ID, &panel.ChapterID, &panel.Image, &panel.PageNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			_ = tx.Rollback()
			return nil, nil
		}
		return nil, fmt.Errorf("get panel: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM panels WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete panel: %w", err)
	}
	rest, err := panelIDs(ctx, tx, panel.ChapterID)
	if err != nil {
		return nil, err
	}
	if err = renumber(ctx, tx, rest); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete panel: %w", err)
	}
	return &panel, nil
}

func panelIDs(ctx context.Context, tx *sql.Tx, chapterID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM panels WHERE chapter_id = ? ORDER BY page_number ASC, id ASC
	`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("list panel ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan panel id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func renumber(ctx context.Context, tx *sql.Tx, ids []int64) error {
	stmt, err := tx.PrepareContext(ctx, `UPDATE panels SET page_number = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare renumber: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, i+1, id); err != nil {
			return fmt.Errorf("renumber panel %d: %w", id, err)
		}
	}
	return nil
}
