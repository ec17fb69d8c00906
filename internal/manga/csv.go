package manga

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"mangaverse/pkg/models"
)

var csvHeader = []string{"slug", "title", "author", "genre", "synopsis", "cover", "owner", "chapters", "favorites", "created_at"}

// ExportCSV writes the whole catalog, one manga per row, ordered by title.
func (r *Repo) ExportCSV(ctx context.Context, out io.Writer) (int, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT m.slug, m.title, m.author, m.genre, m.synopsis, m.cover, u.username,
			(SELECT COUNT(*) FROM chapters c WHERE c.manga_id = m.id),
			(SELECT COUNT(*) FROM favorites f WHERE f.manga_id = m.id),
			m.created_at
		FROM mangas m
		JOIN users u ON u.id = m.owner_id
		ORDER BY m.title COLLATE NOCASE ASC, m.id ASC
	`)
	if err != nil {
		return 0, fmt.Errorf("export mangas: %w", err)
	}
	defer rows.Close()

	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return 0, err
	}

	n := 0
	for rows.Next() {
		var (
			m                   models.Manga
			owner               string
			chapters, favorites int
		)
		if err := rows.Scan(&m.Slug, &m.Title, &m.Author, &m.Genre, &m.Synopsis, &m.Cover, &owner,
			&chapters, &favorites, &m.CreatedAt); err != nil {
			return n, fmt.Errorf("scan export row: %w", err)
		}
		if err := w.Write([]string{
			m.Slug,
			m.Title,
			m.Author,
			string(m.Genre),
			m.Synopsis,
			m.Cover,
			owner,
			strconv.Itoa(chapters),
			strconv.Itoa(favorites),
			m.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("rows err: %w", err)
	}

	w.Flush()
	return n, w.Error()
}

type ImportResult struct {
	Created int
	Updated int
	Skipped int
}

// ImportCSV creates a manga owned by ownerID for every row. A row whose slug
// names a manga ownerID already owns updates it instead. Rows without a
// title or author are skipped; an unknown genre falls back to "other".
// Only the title, author, genre and synopsis columns are read.
func (r *Repo) ImportCSV(ctx context.Context, in io.Reader, ownerID string) (ImportResult, error) {
	var res ImportResult

	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1

	header, err := readHeader(cr)
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	if _, ok := header["title"]; !ok {
		return res, errors.New("csv has no title column")
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}

		m := models.Manga{
			Title:    valueAt(header, row, "title"),
			Author:   valueAt(header, row, "author"),
			Synopsis: valueAt(header, row, "synopsis"),
			Genre:    models.ParseGenre(valueAt(header, row, "genre")),
			OwnerID:  ownerID,
		}
		if m.Title == "" || m.Author == "" {
			res.Skipped++
			continue
		}
		if m.Genre == "" {
			m.Genre = models.GenreOther
		}

		if slug := valueAt(header, row, "slug"); slug != "" {
			existing, err := r.GetBySlug(ctx, slug)
			if err != nil {
				return res, fmt.Errorf("line %d: %w", line, err)
			}
			if existing != nil && existing.OwnerID == ownerID {
				existing.Title, existing.Author = m.Title, m.Author
				existing.Genre, existing.Synopsis = m.Genre, m.Synopsis
				if err := r.Update(ctx, existing); err != nil {
					return res, fmt.Errorf("line %d: %w", line, err)
				}
				res.Updated++
				continue
			}
		}

		if err := r.Create(ctx, &m); err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		res.Created++
	}
	return res, nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
