// Package upload checks incoming image files before any processing happens.
package upload

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"bgremover/internal/domain"
)

// Upload is one validated file. It lives for a single request.
type Upload struct {
	Filename string
	Size     int64
	Data     []byte
}

// sniffable lists the detected MIME types accepted when sniffing is on.
var sniffable = []string{"image/png", "image/jpeg", "image/webp"}

// Validator checks presence and filename extension. Body size is enforced by
// the transport before a handler runs, so it is not checked here.
type Validator struct {
	allowed map[string]struct{}
	sniff   bool
}

// NewValidator builds a Validator for the given extensions (without dots).
// With sniff set the file's leading bytes must also look like an image.
func NewValidator(extensions []string, sniff bool) *Validator {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &Validator{allowed: allowed, sniff: sniff}
}

// AllowedFile reports whether filename has an accepted extension: the part
// after the last dot, compared case-insensitively.
func (v *Validator) AllowedFile(filename string) bool {
	i := strings.LastIndexByte(filename, '.')
	if filename == "" || i < 0 {
		return false
	}
	_, ok := v.allowed[strings.ToLower(filename[i+1:])]
	return ok
}

// Validate checks fh and reads its contents. A nil header means the "image"
// field was absent.
func (v *Validator) Validate(fh *multipart.FileHeader) (*Upload, error) {
	if fh == nil {
		return nil, domain.ErrMissingFile
	}
	if !v.AllowedFile(fh.Filename) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidFileType, fh.Filename)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	if v.sniff {
		mt := mimetype.Detect(data)
		if !mimetype.EqualsAny(mt.String(), sniffable...) {
			return nil, fmt.Errorf("%w: detected %s", domain.ErrInvalidFileType, mt.String())
		}
	}

	return &Upload{Filename: fh.Filename, Size: fh.Size, Data: data}, nil
}
