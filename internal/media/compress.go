package media

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"dealsync/internal/services"
)

// Result describes the file the upload stage should transfer. Path points at
// the original when no recompression happened.
type Result struct {
	Path       string
	MimeType   string
	Size       int64
	Width      int
	Height     int
	Compressed bool
}

// Compressor downsizes photos before upload so mobile captures do not push
// tens of megabytes over a flaky link.
type Compressor struct {
	CacheDir     string
	MaxDimension int
	JPEGQuality  int
}

// NewCompressor builds a compressor writing scratch output under cacheDir.
func NewCompressor(cacheDir string, maxDimension, quality int) *Compressor {
	if maxDimension <= 0 {
		maxDimension = 2048
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &Compressor{CacheDir: cacheDir, MaxDimension: maxDimension, JPEGQuality: quality}
}

// Compress bounds the image to MaxDimension on its longest edge and
// re-encodes it as JPEG. Formats we cannot decode (HEIC) and images already
// within bounds pass through untouched.
func (c *Compressor) Compress(path string) (Result, error) {
	mime, size, err := Validate(path)
	if err != nil {
		return Result{}, err
	}
	if mime == "image/heic" {
		return Result{Path: path, MimeType: mime, Size: size}, nil
	}

	src, err := decodeImage(path, mime)
	if err != nil {
		return Result{}, err
	}
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	targetW, targetH := boundDimensions(width, height, c.MaxDimension)
	scaled := src
	if targetW != width || targetH != height {
		dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		scaled = dst
	} else if mime == "image/jpeg" {
		// Already a bounded JPEG; recompressing only degrades it.
		return Result{Path: path, MimeType: mime, Size: size, Width: width, Height: height}, nil
	}

	if err := os.MkdirAll(c.CacheDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "media", "compress", "create cache dir", err)
	}
	out, err := os.CreateTemp(c.CacheDir, compressedName(path))
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "media", "compress", "create output", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, scaled, &jpeg.Options{Quality: c.JPEGQuality}); err != nil {
		os.Remove(out.Name())
		return Result{}, services.Wrap(services.ErrValidation, "media", "compress", "encode jpeg", err)
	}
	info, err := out.Stat()
	if err != nil {
		os.Remove(out.Name())
		return Result{}, services.Wrap(services.ErrValidation, "media", "compress", "stat output", err)
	}

	return Result{
		Path:       out.Name(),
		MimeType:   "image/jpeg",
		Size:       info.Size(),
		Width:      targetW,
		Height:     targetH,
		Compressed: true,
	}, nil
}

// Cleanup removes a scratch file produced by Compress. Originals are never
// touched.
func (c *Compressor) Cleanup(result Result) {
	if result.Compressed && result.Path != "" {
		_ = os.Remove(result.Path)
	}
}

func decodeImage(path, mime string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "media", "decode", "open "+path, err)
	}
	defer file.Close()

	var img image.Image
	switch mime {
	case "image/jpeg":
		img, err = jpeg.Decode(file)
	case "image/png":
		img, err = png.Decode(file)
	case "image/webp":
		img, err = webp.Decode(file)
	default:
		return nil, services.Wrap(services.ErrValidation, "media", "decode", "no decoder for "+mime, nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "media", "decode", path, err)
	}
	return img, nil
}

// boundDimensions scales (width, height) so the longest edge fits max while
// preserving aspect ratio. Images already within bounds are unchanged.
func boundDimensions(width, height, max int) (int, int) {
	if width <= max && height <= max {
		return width, height
	}
	if width >= height {
		scaled := height * max / width
		if scaled < 1 {
			scaled = 1
		}
		return max, scaled
	}
	scaled := width * max / height
	if scaled < 1 {
		scaled = 1
	}
	return scaled, max
}

func compressedName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return fmt.Sprintf("%s-*.jpg", base)
}
