package manga

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mangaverse/pkg/models"
)

func (r *Repo) CreateArc(ctx context.Context, a *models.Arc) error {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO arcs (manga_id, title, sort_order) VALUES (?, ?, ?)
	`, a.MangaID, a.Title, a.Order)
	if err != nil {
		return fmt.Errorf("insert arc: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	a.ID = id
	return nil
}

func (r *Repo) GetArc(ctx context.Context, id int64) (*models.Arc, error) {
	var a models.Arc
	if err := r.DB.QueryRowContext(ctx, `
		SELECT id, manga_id, title, sort_order FROM arcs WHERE id = ?
	`, id).Scan(&a.ID, &a.MangaID, &a.Title, &a.Order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get arc: %w", err)
	}
	return &a, nil
}

func (r *Repo) UpdateArc(ctx context.Context, a *models.Arc) error {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE arcs SET title = ?, sort_order = ? WHERE id = ?
	`, a.Title, a.Order, a.ID); err != nil {
		return fmt.Errorf("update arc: %w", err)
	}
	return nil
}

// DeleteArc detaches the arc's chapters (arc_id = NULL) before removing the
// arc itself; chapters are never deleted with their arc.
func (r *Repo) DeleteArc(ctx context.Context, id int64) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete arc: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE chapters SET arc_id = NULL WHERE arc_id = ?`, id); err != nil {
		return fmt.Errorf("detach chapters: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM arcs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete arc: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete arc: %w", err)
	}
	return nil
}

func (r *Repo) ListArcs(ctx context.Context, mangaID int64) ([]models.Arc, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, manga_id, title, sort_order
		FROM arcs
		WHERE manga_id = ?
		ORDER BY sort_order ASC, id ASC
	`, mangaID)
	if err != nil {
		return nil, fmt.Errorf("list arcs: %w", err)
	}
	defer rows.Close()

	out := make([]models.Arc, 0)
	for rows.Next() {
		var a models.Arc
		if err := rows.Scan(&a.ID, &a.MangaID, &a.Title, &a.Order); err != nil {
			return nil, fmt.Errorf("scan arc row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// ArcBelongsTo checks that arcID is an arc of mangaID.
func (r *Repo) ArcBelongsTo(ctx context.Context, arcID, mangaID int64) error {
	a, err := r.GetArc(ctx, arcID)
	if err != nil {
		return err
	}
	if a == nil || a.MangaID != mangaID {
		return ErrArcNotInManga
	}
	return nil
}
