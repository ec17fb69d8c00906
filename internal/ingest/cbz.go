package ingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"io"
	"path"
	"sort"
	"strings"

	// registered decoders for archive entries
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const maxEntrySize = 64 << 20

// cbzPages decodes the image entries of a comic archive in name order.
func (p *Pipeline) cbzPages(data []byte) ([][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open cbz: %w", err)
	}

	entries := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isImageEntry(f.Name) {
			continue
		}
		entries = append(entries, f)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	out := make([][]byte, 0, len(entries))
	for _, f := range entries {
		img, err := decodeEntry(f)
		if err != nil {
			return nil, fmt.Errorf("cbz entry %s: %w", f.Name, err)
		}
		b, err := p.encodeJPEG(img)
		if err != nil {
			return nil, fmt.Errorf("encode cbz entry %s: %w", f.Name, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeEntry(f *zip.File) (image.Image, error) {
	if f.UncompressedSize64 > maxEntrySize {
		return nil, fmt.Errorf("entry too large")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	img, _, err := image.Decode(io.LimitReader(rc, maxEntrySize))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

func isImageEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), ".") {
		return false
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}
