// pkg/utils/validation/image.go
package validation

import (
	"errors"
	"mime/multipart"
	"path/filepath"
	"strings"
)

var (
	ErrFileSize     = errors.New("file size exceeds limit")
	ErrFileType     = errors.New("invalid file type")
	ErrFileRequired = errors.New("no file provided")
)

const (
	MaxImageSize = 5 * 1024 * 1024   // 5MB
	MaxVideoSize = 100 * 1024 * 1024 // 100MB
)

type UploadRule struct {
	MaxSize    int64
	Extensions map[string]bool
	MIMETypes  map[string]bool
}

var ImageRule = UploadRule{
	MaxSize: MaxImageSize,
	Extensions: map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".webp": true,
	},
	MIMETypes: map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/webp": true,
	},
}

var VideoRule = UploadRule{
	MaxSize: MaxVideoSize,
	Extensions: map[string]bool{
		".mp4":  true,
		".webm": true,
	},
	MIMETypes: map[string]bool{
		"video/mp4":  true,
		"video/webm": true,
	},
}

// ValidateUpload checks size, extension and declared content type.
func ValidateUpload(file *multipart.FileHeader, rule UploadRule) error {
	if file == nil {
		return ErrFileRequired
	}

	if file.Size > rule.MaxSize {
		return ErrFileSize
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !rule.Extensions[ext] {
		return ErrFileType
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(file.Header.Get("Content-Type"), ";", 2)[0]))
	if contentType != "" && !rule.MIMETypes[contentType] {
		return ErrFileType
	}

	return nil
}
