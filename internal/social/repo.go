package social

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mangaverse/pkg/models"
)

var ErrSelfFollow = errors.New("you cannot follow yourself")

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const profileSelect = `
	SELECT p.id, p.user_id, u.username, p.bio, p.avatar
	FROM profiles p
	JOIN users u ON u.id = p.user_id
`

func scanProfile(row interface{ Scan(...any) error }) (*models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.Username, &p.Bio, &p.Avatar); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := scanProfile(r.DB.QueryRowContext(ctx, profileSelect+` WHERE p.user_id = ?`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile by user: %w", err)
	}
	return p, nil
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	p, err := scanProfile(r.DB.QueryRowContext(ctx,
		profileSelect+` WHERE u.username = ? COLLATE NOCASE`, strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile by username: %w", err)
	}
	return p, nil
}

func (r *Repo) Update(ctx context.Context, p *models.Profile) error {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE profiles SET bio = ?, avatar = ? WHERE id = ?
	`, p.Bio, p.Avatar, p.ID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// toggle flips membership of a two-column relation inside one transaction.
// The composite primary key keeps the relation a set even when two toggles
// race: the loser's INSERT OR IGNORE is a no-op.
func (r *Repo) toggle(ctx context.Context, table, left, right string, a, b int64) (set bool, total int, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin toggle %s: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE `+left+` = ? AND `+right+` = ?`, a, b)
	if err != nil {
		return false, 0, fmt.Errorf("delete %s: %w", table, err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("rows affected: %w", err)
	}
	if removed == 0 {
		if _, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO `+table+` (`+left+`, `+right+`) VALUES (?, ?)`, a, b); err != nil {
			return false, 0, fmt.Errorf("insert %s: %w", table, err)
		}
		set = true
	}

	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE `+right+` = ?`, b).Scan(&total); err != nil {
		return false, 0, fmt.Errorf("count %s: %w", table, err)
	}
	if err = tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit toggle %s: %w", table, err)
	}
	return set, total, nil
}

// ToggleFavorite adds or removes mangaID from the profile's favorites and
// reports the new state with the manga's favorite count.
func (r *Repo) ToggleFavorite(ctx context.Context, profileID, mangaID int64) (liked bool, total int, err error) {
	return r.toggle(ctx, "favorites", "profile_id", "manga_id", profileID, mangaID)
}

// ToggleFollow makes follower follow followee, or stops it, and reports
// the new state with the followee's follower count.
func (r *Repo) ToggleFollow(ctx context.Context, followerID, followeeID int64) (following bool, followers int, err error) {
	if followerID == followeeID {
		return false, 0, ErrSelfFollow
	}
	return r.toggle(ctx, "follows", "follower_id", "followee_id", followerID, followeeID)
}

func (r *Repo) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM follows WHERE follower_id = ? AND followee_id = ?
	`, followerID, followeeID).Scan(&n); err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return n > 0, nil
}

// Following lists the profiles profileID follows.
func (r *Repo) Following(ctx context.Context, profileID int64) ([]models.Profile, error) {
	return r.listProfiles(ctx, profileSelect+`
		JOIN follows f ON f.followee_id = p.id
		WHERE f.follower_id = ?
		ORDER BY u.username COLLATE NOCASE
	`, profileID)
}

// Followers lists the profiles following profileID.
func (r *Repo) Followers(ctx context.Context, profileID int64) ([]models.Profile, error) {
	return r.listProfiles(ctx, profileSelect+`
		JOIN follows f ON f.follower_id = p.id
		WHERE f.followee_id = ?
		ORDER BY u.username COLLATE NOCASE
	`, profileID)
}

func (r *Repo) listProfiles(ctx context.Context, query string, args ...any) ([]models.Profile, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile row: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}
