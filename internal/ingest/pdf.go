package ingest

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// Rasterizer renders every page of a PDF document.
type Rasterizer interface {
	Pages(data []byte) ([]image.Image, error)
}

// FitzRasterizer renders pages with MuPDF.
type FitzRasterizer struct{}

func (FitzRasterizer) Pages(data []byte) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	out := make([]image.Image, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("render pdf page %d: %w", n+1, err)
		}
		out = append(out, img)
	}
	return out, nil
}

func (p *Pipeline) pdfPages(data []byte) ([][]byte, error) {
	images, err := p.Rasterize.Pages(data)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(images))
	for i, img := range images {
		b, err := p.encodeJPEG(img)
		if err != nil {
			return nil, fmt.Errorf("encode pdf page %d: %w", i+1, err)
		}
		out = append(out, b)
	}
	return out, nil
}
