package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangaverse/internal/media"
	"mangaverse/internal/notify"
	"mangaverse/pkg/models"
)

type memPanels struct {
	mu     sync.Mutex
	panels []models.Panel
	failAt int // page number whose insert fails, 0 = never
}

func (m *memPanels) CountPanels(_ context.Context, chapterID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.panels {
		if p.ChapterID == chapterID {
			n++
		}
	}
	return n, nil
}

func (m *memPanels) AddPanel(_ context.Context, chapterID int64, img string, page int) (*models.Panel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAt != 0 && page == m.failAt {
		return nil, errors.New("disk full")
	}
	p := models.Panel{ID: int64(len(m.panels) + 1), ChapterID: chapterID, Image: img, PageNumber: page}
	m.panels = append(m.panels, p)
	return &p, nil
}

type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) Publish(_ context.Context, subject string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type fakeRasterizer struct {
	pages int
	err   error
}

func (f fakeRasterizer) Pages([]byte) ([]image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]image.Image, 0, f.pages)
	for i := 0; i < f.pages; i++ {
		out = append(out, solid(4, 6))
	}
	return out, nil
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(3, 3)))
	return buf.Bytes()
}

func cbzBytes(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		if strings.HasSuffix(name, ".png") {
			_, err = w.Write(pngBytes(t))
		} else {
			_, err = w.Write([]byte("not an image"))
		}
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestPipeline(t *testing.T) (*Pipeline, *memPanels, *recorder) {
	t.Helper()
	panels := &memPanels{}
	events := &recorder{}
	p := NewPipeline(panels, media.NewLocalStore(t.TempDir(), "/media/"), events)
	p.Rasterize = fakeRasterizer{pages: 3}
	return p, panels, events
}

var target = Target{ChapterID: 7, Number: 1, MangaSlug: "test", ChapterSlug: "chapter-1"}

func pageNumbers(ps []models.Panel) []int {
	out := make([]int, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.PageNumber)
	}
	return out
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindPDF, Classify("vol1.PDF"))
	assert.Equal(t, KindCBZ, Classify("ch.cbz"))
	assert.Equal(t, KindImage, Classify("page.jpg"))
	assert.Equal(t, KindImage, Classify("noext"))
}

func TestIngestImagesNumbersFromOne(t *testing.T) {
	p, _, events := newTestPipeline(t)
	img := pngBytes(t)

	res, err := p.Ingest(context.Background(), target, []Upload{
		FromBytes("a.png", img), FromBytes("b.png", img), FromBytes("c.png", img),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pageNumbers(res.Created))
	assert.Empty(t, res.Failed)
	for _, panel := range res.Created {
		assert.True(t, strings.HasPrefix(panel.Image, "manga_panels/test/chapter-1/"), panel.Image)
	}

	require.Len(t, events.events, 1)
	ev := events.events[0].(notify.ChapterPublished)
	assert.Equal(t, 3, ev.NewPanels)
	assert.Equal(t, "chapter-1", ev.ChapterSlug)
}

func TestIngestContinuesFromExistingCount(t *testing.T) {
	p, panels, _ := newTestPipeline(t)
	img := pngBytes(t)
	ctx := context.Background()

	_, err := p.Ingest(ctx, target, []Upload{FromBytes("1.png", img), FromBytes("2.png", img), FromBytes("3.png", img)})
	require.NoError(t, err)

	res, err := p.Ingest(ctx, target, []Upload{FromBytes("4.png", img), FromBytes("5.png", img)})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, pageNumbers(res.Created))
	assert.Len(t, panels.panels, 5)
}

func TestIngestExpandsDocumentsInOrder(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	img := pngBytes(t)

	res, err := p.Ingest(context.Background(), target, []Upload{
		FromBytes("cover.png", img),
		FromBytes("scan.pdf", []byte("%PDF-1.4 fake")),
		FromBytes("extra.cbz", cbzBytes(t, "02.png", "01.png", "notes.txt")),
	})
	require.NoError(t, err)
	require.Len(t, res.Created, 6)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, pageNumbers(res.Created))

	assert.Contains(t, res.Created[1].Image, "pdf_page_2.jpg")
	assert.Contains(t, res.Created[3].Image, "pdf_page_4.jpg")
	assert.Contains(t, res.Created[4].Image, "cbz_page_5.jpg")
	assert.Contains(t, res.Created[5].Image, "cbz_page_6.jpg")
}

func TestIngestSkipsUndecodableFileWithoutGap(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	p.Rasterize = fakeRasterizer{err: errors.New("corrupt xref table")}
	img := pngBytes(t)

	res, err := p.Ingest(context.Background(), target, []Upload{
		FromBytes("a.png", img),
		FromBytes("broken.pdf", []byte("%PDF")),
		FromBytes("bad.cbz", cbzBytes(t, "01.jpg")),
		FromBytes("b.png", img),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, pageNumbers(res.Created))
	require.Len(t, res.Failed, 2)
	assert.Equal(t, "broken.pdf", res.Failed[0].File)
	assert.Equal(t, "bad.cbz", res.Failed[1].File)
}

func TestIngestEmptyArchiveFails(t *testing.T) {
	p, _, events := newTestPipeline(t)

	res, err := p.Ingest(context.Background(), target, []Upload{
		FromBytes("empty.cbz", cbzBytes(t, "readme.txt")),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	require.Len(t, res.Failed, 1)
	assert.Empty(t, events.events)
}

func TestIngestAbortsOnStoreError(t *testing.T) {
	p, panels, _ := newTestPipeline(t)
	panels.failAt = 2
	img := pngBytes(t)

	res, err := p.Ingest(context.Background(), target, []Upload{
		FromBytes("a.png", img), FromBytes("b.png", img), FromBytes("c.png", img),
	})
	require.Error(t, err)
	assert.Equal(t, []int{1}, pageNumbers(res.Created))
}

func TestEncodeJPEGScalesWidePages(t *testing.T) {
	p := &Pipeline{MaxWidth: 10}
	data, err := p.encodeJPEG(solid(40, 20))
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 5, cfg.Height)
}
