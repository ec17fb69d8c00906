// Package ingest turns uploaded files into ordered chapter panels.
//
// A PDF becomes one panel per page, a CBZ archive one panel per image entry
// and any other file a single panel stored as uploaded. Page numbers continue
// from the chapter's current panel count and stay contiguous: a file that
// cannot be decoded is reported and consumes no numbers.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"mangaverse/internal/media"
	"mangaverse/internal/notify"
	"mangaverse/pkg/models"
)

const jpegQuality = 85

type Kind int

const (
	KindImage Kind = iota
	KindPDF
	KindCBZ
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindCBZ:
		return "cbz"
	default:
		return "image"
	}
}

// Classify decides how a file is ingested, by extension only.
func Classify(filename string) Kind {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF
	case ".cbz":
		return KindCBZ
	default:
		return KindImage
	}
}

type Upload struct {
	Name string
	Open func() (io.ReadCloser, error)
}

func FromMultipart(fh *multipart.FileHeader) Upload {
	return Upload{
		Name: fh.Filename,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// FromBytes wraps in-memory content; used by the CLI and tests.
func FromBytes(name string, data []byte) Upload {
	return Upload{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// Target names the chapter receiving panels.
type Target struct {
	ChapterID   int64
	Number      int
	MangaSlug   string
	ChapterSlug string
}

type PanelStore interface {
	CountPanels(ctx context.Context, chapterID int64) (int, error)
	AddPanel(ctx context.Context, chapterID int64, image string, page int) (*models.Panel, error)
}

type Failure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type Result struct {
	Created []models.Panel `json:"created"`
	Failed  []Failure      `json:"failed"`
}

type Pipeline struct {
	Panels    PanelStore
	Media     media.Store
	Events    notify.Publisher
	Rasterize Rasterizer
	// MaxWidth caps decoded pages; wider pages are scaled down. Zero keeps
	// the source size.
	MaxWidth int
}

func NewPipeline(panels PanelStore, store media.Store, events notify.Publisher) *Pipeline {
	if events == nil {
		events = notify.Nop{}
	}
	return &Pipeline{
		Panels:    panels,
		Media:     store,
		Events:    events,
		Rasterize: FitzRasterizer{},
		MaxWidth:  2400,
	}
}

// page is one ready-to-store panel image.
type page struct {
	name string
	data []byte
}

// Ingest stores files as panels of t in upload order. Decode failures are
// collected in Result.Failed; storage and database errors abort the batch
// and are returned together with the panels created so far.
func (p *Pipeline) Ingest(ctx context.Context, t Target, files []Upload) (*Result, error) {
	res := &Result{Created: []models.Panel{}, Failed: []Failure{}}
	if len(files) == 0 {
		return res, nil
	}

	count, err := p.Panels.CountPanels(ctx, t.ChapterID)
	if err != nil {
		return res, fmt.Errorf("count panels: %w", err)
	}
	next := count + 1

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		pages, err := p.expand(f, next)
		if err != nil {
			slog.Warn("ingest file skipped", "file", f.Name, "chapter_id", t.ChapterID, "error", err)
			res.Failed = append(res.Failed, Failure{File: f.Name, Error: err.Error()})
			continue
		}

		for _, pg := range pages {
			key, err := p.Media.Save(ctx, media.PanelKey(t.MangaSlug, t.ChapterSlug, pg.name), bytes.NewReader(pg.data))
			if err != nil {
				return res, fmt.Errorf("store %s: %w", pg.name, err)
			}
			panel, err := p.Panels.AddPanel(ctx, t.ChapterID, key, next)
			if err != nil {
				_ = p.Media.Delete(ctx, key)
				return res, fmt.Errorf("add panel %d: %w", next, err)
			}
			res.Created = append(res.Created, *panel)
			next++
		}
	}

	if len(res.Created) > 0 {
		notify.Emit(ctx, p.Events, notify.SubjectChapterPublished, notify.ChapterPublished{
			MangaSlug:   t.MangaSlug,
			ChapterSlug: t.ChapterSlug,
			Number:      t.Number,
			NewPanels:   len(res.Created),
			At:          time.Now().UTC(),
		})
	}
	return res, nil
}

// expand decodes a whole upload before anything is stored, so a failing
// file leaves no partial pages behind. first is the page number the upload
// will start at; it only feeds generated file names.
func (p *Pipeline) expand(f Upload, first int) ([]page, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	kind := Classify(f.Name)
	if kind == KindImage {
		return []page{{name: f.Name, data: data}}, nil
	}

	var images [][]byte
	switch kind {
	case KindPDF:
		if p.Rasterize == nil {
			return nil, fmt.Errorf("pdf support is not configured")
		}
		images, err = p.pdfPages(data)
	case KindCBZ:
		images, err = p.cbzPages(data)
	}
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%s has no pages", kind)
	}

	out := make([]page, 0, len(images))
	for i, img := range images {
		out = append(out, page{
			name: fmt.Sprintf("%s_page_%d.jpg", kind, first+i),
			data: img,
		})
	}
	return out, nil
}
