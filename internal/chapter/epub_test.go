package chapter

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangaverse/internal/media"
	"mangaverse/pkg/models"
)

func TestWriteEPUB(t *testing.T) {
	ctx := context.Background()
	store := media.NewLocalStore(t.TempDir(), "/media/")

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 2, 2))))

	var panels []models.Panel
	for i := 1; i <= 2; i++ {
		key, err := store.Save(ctx, media.PanelKey("series", "chapter-1", "page.png"), bytes.NewReader(img.Bytes()))
		require.NoError(t, err)
		panels = append(panels, models.Panel{ID: int64(i), Image: key, PageNumber: i})
	}

	m := &models.Manga{Title: "Series", Author: "A", Slug: "series"}
	ch := &models.Chapter{Number: 1, Slug: "chapter-1", Title: "Start"}

	var out bytes.Buffer
	require.NoError(t, WriteEPUB(ctx, store, m, ch, panels, &out))

	zr, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "mimetype")
	assert.Equal(t, "series-chapter-1.epub", EPUBFilename(m, ch))
}

func TestWriteEPUBNeedsPanels(t *testing.T) {
	store := media.NewLocalStore(t.TempDir(), "/media/")
	err := WriteEPUB(context.Background(), store, &models.Manga{Title: "X"}, &models.Chapter{Number: 1}, nil, &bytes.Buffer{})
	assert.Error(t, err)
}
