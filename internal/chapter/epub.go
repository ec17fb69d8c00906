package chapter

import (
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-epub"

	"mangaverse/internal/media"
	"mangaverse/pkg/models"
)

// WriteEPUB packs the chapter's panels, in page order, into an EPUB written
// to w. Panel images are copied out of the media store into a scratch
// directory first because the EPUB builder reads from paths.
func WriteEPUB(ctx context.Context, store media.Store, m *models.Manga, ch *models.Chapter, panels []models.Panel, w io.Writer) error {
	if len(panels) == 0 {
		return fmt.Errorf("chapter has no panels")
	}

	dir, err := os.MkdirTemp("", "mangaverse-epub-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	title := fmt.Sprintf("%s - Chapter %d", m.Title, ch.Number)
	e, err := epub.NewEpub(title)
	if err != nil {
		return fmt.Errorf("create epub: %w", err)
	}
	e.SetAuthor(m.Author)
	if m.Synopsis != "" {
		e.SetDescription(m.Synopsis)
	}

	heading := fmt.Sprintf("Chapter %d", ch.Number)
	if ch.Title != "" {
		heading += ": " + ch.Title
	}

	var body strings.Builder
	body.WriteString("<h1>" + html.EscapeString(heading) + "</h1>\n")
	for _, p := range panels {
		local := filepath.Join(dir, fmt.Sprintf("%04d%s", p.PageNumber, path.Ext(p.Image)))
		if err := copyOut(ctx, store, p.Image, local); err != nil {
			return err
		}
		internal, err := e.AddImage(local, "")
		if err != nil {
			return fmt.Errorf("add page %d: %w", p.PageNumber, err)
		}
		fmt.Fprintf(&body, `<div class="page"><img src="%s" alt="Page %d" style="width:100%%;height:auto;"/></div>`+"\n",
			internal, p.PageNumber)
	}
	if _, err := e.AddSection(body.String(), heading, "", ""); err != nil {
		return fmt.Errorf("add section: %w", err)
	}

	out := filepath.Join(dir, "chapter.epub")
	if err := e.Write(out); err != nil {
		return fmt.Errorf("write epub: %w", err)
	}
	f, err := os.Open(out)
	if err != nil {
		return fmt.Errorf("open epub: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy epub: %w", err)
	}
	return nil
}

func copyOut(ctx context.Context, store media.Store, key, dst string) error {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("open panel %s: %w", key, err)
	}
	defer rc.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return fmt.Errorf("copy panel %s: %w", key, err)
	}
	return f.Close()
}

// EPUBFilename is the download name offered for a chapter export.
func EPUBFilename(m *models.Manga, ch *models.Chapter) string {
	return fmt.Sprintf("%s-%s.epub", m.Slug, ch.Slug)
}
