// Copyright 2025 Joseph Cumines
//
// Package screenshot validates, scales and saves images captured by the
// automation provider.
//
// Captured bytes are sniffed by magic number rather than trusted, decoded,
// optionally downscaled to fit a maximum dimension, and written in the
// format implied by the destination file extension. Paths without an
// extension are saved as PNG.

package screenshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	// Register additional capture formats
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultExtension is appended to output paths that have none.
const DefaultExtension = ".png"

var (
	// ErrEmpty indicates the provider returned no image data.
	ErrEmpty = errors.New("capture returned no data")

	// ErrNotImage indicates the captured bytes are not a recognised image.
	ErrNotImage = errors.New("capture is not an image")

	// ErrUnsupportedFormat indicates the output extension has no encoder.
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// Info describes a saved image.
type Info struct {
	Path       string `json:"path"`
	SourceMIME string `json:"sourceMime"`
	Format     string `json:"format"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Scaled     bool   `json:"scaled,omitempty"`
}

// DetectMIME returns the MIME type from magic bytes (not file extension).
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// OutputPath resolves the file a capture for path will be written to.
func OutputPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("output path is empty")
	}
	if filepath.Ext(path) == "" {
		path += DefaultExtension
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path: %w", err)
	}
	return abs, nil
}

// Save writes data to path. When maxDimension is positive, images wider or
// taller than it are scaled down to fit, preserving aspect ratio.
func Save(path string, data []byte, maxDimension int) (*Info, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	mimeType := DetectMIME(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mimeType)
	}

	out, err := OutputPath(path)
	if err != nil {
		return nil, err
	}
	format, err := imaging.FormatFromFilename(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(out))
	}

	img, srcFormat, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s capture: %w", mimeType, err)
	}

	info := &Info{
		Path:       out,
		SourceMIME: mimeType,
		Format:     strings.ToLower(format.String()),
		Width:      img.Bounds().Dx(),
		Height:     img.Bounds().Dy(),
	}

	if maxDimension > 0 && (info.Width > maxDimension || info.Height > maxDimension) {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
		info.Width = img.Bounds().Dx()
		info.Height = img.Bounds().Dy()
		info.Scaled = true
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Unchanged captures already in the target format are written as-is.
	if !info.Scaled && srcFormat == info.Format {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write screenshot: %w", err)
		}
		return info, nil
	}

	if err := imaging.Save(img, out); err != nil {
		return nil, fmt.Errorf("failed to write screenshot: %w", err)
	}
	return info, nil
}
