// Package media stores uploaded assets (covers, avatars, panel images) under
// stable keys such as "manga_panels/<manga>/<chapter>/<file>".
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"mangaverse/pkg/utils"
)

var ErrNotFound = errors.New("media: asset not found")

type Store interface {
	// Save writes r under key and returns the key actually used.
	Save(ctx context.Context, key string, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

func CoverKey(filename string) string {
	return path.Join("portadas", uniqueName(filename))
}

func AvatarKey(filename string) string {
	return path.Join("avatars", uniqueName(filename))
}

func PanelKey(mangaSlug, chapterSlug, filename string) string {
	return path.Join(PanelDir(mangaSlug, chapterSlug), uniqueName(filename))
}

// PanelDir is the key prefix shared by every panel of one chapter.
func PanelDir(mangaSlug, chapterSlug string) string {
	return path.Join("manga_panels", mangaSlug, chapterSlug)
}

// uniqueName keeps the readable base name and extension of an upload and
// prefixes a short random token so repeated uploads never collide.
func uniqueName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		clean = "file"
	}
	if len(clean) > 80 {
		clean = clean[:80]
	}
	return uuid.NewString()[:8] + "_" + clean + ext
}

// ContentType sniffs the leading bytes of an asset.
func ContentType(head []byte) string {
	return mimetype.Detect(head).String()
}

// New picks the S3 store when a bucket is configured and the local disk
// store otherwise.
func New(cfg utils.MediaConfig) (Store, error) {
	if cfg.Bucket != "" {
		return NewS3Store(cfg.Bucket, cfg.Region, cfg.Endpoint, cfg.BaseURL)
	}
	return NewLocalStore(cfg.Root, cfg.BaseURL), nil
}

// SaveUpload copies a multipart upload into the store under key.
func SaveUpload(ctx context.Context, s Store, key string, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return s.Save(ctx, key, f)
}
