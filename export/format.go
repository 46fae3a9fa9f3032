// Package export writes filtered images to deterministically named
// artifacts in PPM, BMP or TIFF, optionally zstd-compressed.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"edgedetect/ppm"
	"edgedetect/raster"
)

// Format is an output image format.
type Format string

const (
	FormatPPM  Format = "ppm"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// Compression is an output stream compression.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

var (
	ErrUnknownFormat      = errors.New("export: unknown output format")
	ErrUnknownCompression = errors.New("export: unknown output compression")
)

// ParseFormat accepts "ppm", "bmp", "tiff" (or "tif"), case-insensitive.
// Empty means ppm.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ppm":
		return FormatPPM, nil
	case "bmp":
		return FormatBMP, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ParseCompression accepts "none" or "zstd". Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Extension returns the suffix appended after the format extension.
func (c Compression) Extension() string {
	if c == CompressionZstd {
		return ".zst"
	}
	return ""
}

// Encoder writes one image.
type Encoder func(w io.Writer, img *raster.Buffer) error

// EncoderFor returns the encoder for f.
func EncoderFor(f Format) (Encoder, error) {
	switch f {
	case FormatPPM:
		return ppm.Encode, nil
	case FormatBMP:
		return encodeBMP, nil
	case FormatTIFF:
		return encodeTIFF, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

func encodeBMP(w io.Writer, img *raster.Buffer) error {
	if img == nil || img.Len() == 0 {
		return raster.ErrInvalidDimensions
	}
	bw := bufio.NewWriter(w)
	if err := bmp.Encode(bw, img); err != nil {
		return err
	}
	return bw.Flush()
}

func encodeTIFF(w io.Writer, img *raster.Buffer) error {
	if img == nil || img.Len() == 0 {
		return raster.ErrInvalidDimensions
	}
	return tiff.Encode(w, img.ToRGBA(), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
