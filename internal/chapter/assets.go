package chapter

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"mangaverse/internal/media"
	"mangaverse/pkg/models"
)

// MovePanelAssets relocates the panel images stored under the directory of
// oldSlug into the directory of the chapter's current slug, so a renumbered
// chapter keeps all of its panels in one place. Panels stored elsewhere are
// left untouched. It returns the number of panels moved.
func MovePanelAssets(ctx context.Context, repo *Repo, store media.Store, mangaSlug, oldSlug string, ch *models.Chapter) (int, error) {
	if oldSlug == ch.Slug {
		return 0, nil
	}
	panels, err := repo.ListPanels(ctx, ch.ID)
	if err != nil {
		return 0, err
	}

	oldDir := media.PanelDir(mangaSlug, oldSlug) + "/"
	newDir := media.PanelDir(mangaSlug, ch.Slug)
	moved := 0
	for _, p := range panels {
		if !strings.HasPrefix(p.Image, oldDir) {
			continue
		}
		key, err := copyAsset(ctx, store, p.Image, path.Join(newDir, path.Base(p.Image)))
		if err != nil {
			return moved, err
		}
		if err := repo.SetPanelImage(ctx, p.ID, key); err != nil {
			_ = store.Delete(ctx, key)
			return moved, err
		}
		if err := store.Delete(ctx, p.Image); err != nil {
			slog.Warn("delete moved panel failed", "key", p.Image, "error", err)
		}
		moved++
	}
	return moved, nil
}

func copyAsset(ctx context.Context, store media.Store, from, to string) (string, error) {
	rc, err := store.Open(ctx, from)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", from, err)
	}
	defer rc.Close()
	key, err := store.Save(ctx, to, rc)
	if err != nil {
		return "", fmt.Errorf("copy %s: %w", from, err)
	}
	return key, nil
}
