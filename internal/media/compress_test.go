package media

import (
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"dealsync/internal/services"
	"dealsync/internal/testsupport"
)

func TestMimeTypeByExtension(t *testing.T) {
	cases := map[string]string{
		"a.jpg":  "image/jpeg",
		"a.JPEG": "image/jpeg",
		"a.png":  "image/png",
		"a.webp": "image/webp",
		"a.heic": "image/heic",
	}
	for path, want := range cases {
		got, err := MimeType(path)
		if err != nil {
			t.Fatalf("MimeType(%s): %v", path, err)
		}
		if got != want {
			t.Fatalf("MimeType(%s) = %s, want %s", path, got, want)
		}
	}
	if _, err := MimeType("clip.mp4"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for video, got %v", err)
	}
}

func TestValidateRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jpg")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, _, err := Validate(path); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty file, got %v", err)
	}
}

func TestValidateRejectsMissingFile(t *testing.T) {
	if _, _, err := Validate(filepath.Join(t.TempDir(), "nope.jpg")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing file, got %v", err)
	}
}

func TestCompressBoundsOversizedImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "wide.png")
	testsupport.WriteImage(t, src, 4096, 1024)

	compressor := NewCompressor(filepath.Join(dir, "cache"), 2048, 80)
	result, err := compressor.Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	t.Cleanup(func() { compressor.Cleanup(result) })

	if !result.Compressed {
		t.Fatal("oversized image should be recompressed")
	}
	if result.Width != 2048 || result.Height != 512 {
		t.Fatalf("dimensions %dx%d, want 2048x512", result.Width, result.Height)
	}
	if result.MimeType != "image/jpeg" {
		t.Fatalf("mime %s, want image/jpeg", result.MimeType)
	}

	file, err := os.Open(result.Path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer file.Close()
	decoded, err := jpeg.Decode(file)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 2048 || b.Dy() != 512 {
		t.Fatalf("output bounds %v", b)
	}
}

func TestCompressPassesThroughBoundedJPEG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "small.jpg")
	testsupport.WriteImage(t, src, 640, 480)

	compressor := NewCompressor(filepath.Join(dir, "cache"), 2048, 80)
	result, err := compressor.Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if result.Compressed {
		t.Fatal("bounded jpeg should not be recompressed")
	}
	if result.Path != src {
		t.Fatalf("path %s, want original %s", result.Path, src)
	}
	if result.Width != 640 || result.Height != 480 {
		t.Fatalf("dimensions %dx%d, want 640x480", result.Width, result.Height)
	}
}

func TestCompressConvertsBoundedPNG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "screenshot.png")
	testsupport.WriteImage(t, src, 800, 600)

	compressor := NewCompressor(filepath.Join(dir, "cache"), 2048, 80)
	result, err := compressor.Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	t.Cleanup(func() { compressor.Cleanup(result) })

	if !result.Compressed {
		t.Fatal("png should convert to jpeg even when within bounds")
	}
	if result.MimeType != "image/jpeg" {
		t.Fatalf("mime %s, want image/jpeg", result.MimeType)
	}
}

func TestCompressPassesThroughHEIC(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "capture.heic")
	testsupport.WriteFile(t, src, 2048)

	compressor := NewCompressor(filepath.Join(dir, "cache"), 2048, 80)
	result, err := compressor.Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if result.Compressed || result.Path != src {
		t.Fatalf("heic must pass through untouched, got %+v", result)
	}
	if result.MimeType != "image/heic" {
		t.Fatalf("mime %s, want image/heic", result.MimeType)
	}
}

func TestBoundDimensions(t *testing.T) {
	cases := []struct {
		w, h, max, wantW, wantH int
	}{
		{4096, 2048, 2048, 2048, 1024},
		{2048, 4096, 2048, 1024, 2048},
		{1000, 1000, 2048, 1000, 1000},
		{3000, 3000, 2048, 2048, 2048},
	}
	for _, tc := range cases {
		gotW, gotH := boundDimensions(tc.w, tc.h, tc.max)
		if gotW != tc.wantW || gotH != tc.wantH {
			t.Fatalf("boundDimensions(%d,%d,%d) = %d,%d want %d,%d", tc.w, tc.h, tc.max, gotW, gotH, tc.wantW, tc.wantH)
		}
	}
}
