package external

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/apperr"
)

var allowedImages = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// FileStorage 基于 afero 的文件存储；内容类型按字节嗅探，只接受图片
type FileStorage struct {
	fs       afero.Fs
	baseURL  string
	maxBytes int64
}

func NewFileStorage(fs afero.Fs, cfg config.StorageConfig) *FileStorage {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	return &FileStorage{fs: fs, baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"), maxBytes: cfg.MaxUploadBytes}
}

// NewDiskStorage roots storage at cfg.Root on the local disk.
func NewDiskStorage(cfg config.StorageConfig) *FileStorage {
	return NewFileStorage(afero.NewBasePathFs(afero.NewOsFs(), cfg.Root), cfg)
}

// FS exposes the underlying filesystem for serving uploads.
func (s *FileStorage) FS() afero.Fs { return s.fs }

// Upload writes data under name (the extension is derived from the
// sniffed type) and returns the public URL.
func (s *FileStorage) Upload(_ context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.Validation("empty upload", apperr.FieldError{Field: "image", Message: "is empty"})
	}
	if int64(len(data)) > s.maxBytes {
		return "", apperr.Validation("upload too large",
			apperr.FieldError{Field: "image", Message: fmt.Sprintf("must be at most %d bytes", s.maxBytes)})
	}
	mt := mimetype.Detect(data)
	if !allowedImages[mt.String()] {
		return "", apperr.Validation("unsupported file type",
			apperr.FieldError{Field: "image", Message: "must be png, jpeg, gif or webp"})
	}

	clean := path.Clean("/" + name)
	if strings.Contains(clean, "..") {
		return "", apperr.Validation("invalid upload path")
	}
	full := strings.TrimPrefix(clean, "/") + mt.Extension()
	if err := s.fs.MkdirAll(path.Dir(full), 0o755); err != nil {
		return "", apperr.Persistence(err, "create upload dir")
	}
	if err := afero.WriteFile(s.fs, full, data, 0o644); err != nil {
		return "", apperr.Persistence(err, "write upload")
	}
	return s.baseURL + "/" + full, nil
}
