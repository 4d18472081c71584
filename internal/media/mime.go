package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dealsync/internal/services"
)

// Supported photo formats. HEIC is accepted as-is because iOS captures
// produce it; it is uploaded without recompression.
var mimeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
}

// MimeType resolves the upload MIME type from the file extension.
func MimeType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := mimeByExtension[ext]
	if !ok {
		return "", services.Wrap(services.ErrValidation, "media", "resolve mime", fmt.Sprintf("unsupported extension %q", ext), nil)
	}
	return mime, nil
}

// Validate checks that the source file exists, is regular, and is a
// supported photo format. It returns the MIME type and byte size.
func Validate(path string) (string, int64, error) {
	mime, err := MimeType(path)
	if err != nil {
		return "", 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, services.Wrap(services.ErrValidation, "media", "validate", "stat "+path, err)
	}
	if info.IsDir() {
		return "", 0, services.Wrap(services.ErrValidation, "media", "validate", path+" is a directory", nil)
	}
	if info.Size() == 0 {
		return "", 0, services.Wrap(services.ErrValidation, "media", "validate", path+" is empty", nil)
	}
	return mime, info.Size(), nil
}
