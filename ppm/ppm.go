// Package ppm implements a decoder and encoder for binary PPM (P6) images
// with 8-bit channels.
//
// The format is a text header followed by raw RGB triples:
//
//	P6
//	# any number of comment lines
//	<width> <height>
//	255
//	<width*height*3 bytes>
//
// Inputs compressed with zstd are detected by their frame magic and
// decompressed transparently. The package registers itself with the
// standard library's image package so image.Decode can read P6 files.
package ppm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"edgedetect/raster"
)

func init() {
	image.RegisterFormat("ppm", "P6", DecodeImage, DecodeConfig)
}

// Magic is the header token of a binary PPM file.
const Magic = "P6"

// MaxColorValue is the only channel depth the decoder accepts.
const MaxColorValue = 255

// MaxPixels bounds width*height so corrupt headers cannot trigger huge
// allocations.
const MaxPixels = 1 << 28

// maxTokenLen bounds the digits read for a single header number.
const maxTokenLen = 10

// zstdMagic is the little-endian zstd frame magic number 0xFD2FB528.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Decoding errors. Malformed input yields an error wrapping one of these.
var (
	ErrBadMagic              = errors.New("ppm: invalid image format, must be 'P6'")
	ErrMalformedDimensions   = errors.New("ppm: invalid image size")
	ErrUnsupportedColorDepth = errors.New("ppm: max color value must be 255")
	ErrTruncatedPixels       = errors.New("ppm: pixel data truncated")
	ErrMalformedHeader       = errors.New("ppm: malformed header")
)

// Header describes the dimensions read from a P6 header.
type Header struct {
	Width    int
	Height   int
	MaxValue int
}

// IsZstd reports whether data starts with a zstd frame magic.
func IsZstd(data []byte) bool {
	return len(data) >= len(zstdMagic) && bytes.Equal(data[:len(zstdMagic)], zstdMagic)
}

// Decode reads a P6 image from r.
func Decode(r io.Reader) (*raster.Buffer, error) {
	br, closeFn, err := newReader(r)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	return readPixels(br, h)
}

// DecodeHeader reads only the header of a P6 image.
func DecodeHeader(r io.Reader) (Header, error) {
	br, closeFn, err := newReader(r)
	if err != nil {
		return Header{}, err
	}
	defer closeFn()
	return readHeader(br)
}

// DecodeImage is the image.Decode hook.
func DecodeImage(r io.Reader) (image.Image, error) {
	b, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeConfig is the image.DecodeConfig hook.
func DecodeConfig(r io.Reader) (image.Config, error) {
	h, err := DecodeHeader(r)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.RGBAModel, Width: h.Width, Height: h.Height}, nil
}

// newReader wraps r in a buffered reader, inserting a zstd decoder when the
// stream starts with a zstd frame.
func newReader(r io.Reader) (*bufio.Reader, func(), error) {
	br := bufio.NewReader(r)
	peek, _ := br.Peek(len(zstdMagic))
	if !IsZstd(peek) {
		return br, func() {}, nil
	}
	zr, err := zstd.NewReader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("ppm: opening zstd stream: %w", err)
	}
	return bufio.NewReader(zr), zr.Close, nil
}

func readHeader(br *bufio.Reader) (Header, error) {
	var magic [2]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil || string(magic[:]) != Magic {
		return Header{}, ErrBadMagic
	}
	c, err := br.ReadByte()
	if err != nil || !isSpace(c) {
		return Header{}, ErrBadMagic
	}

	if err := skipComments(br); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrMalformedDimensions, err)
	}

	width, err := readNumber(br)
	if err != nil {
		return Header{}, fmt.Errorf("%w: width: %v", ErrMalformedDimensions, err)
	}
	height, err := readNumber(br)
	if err != nil {
		return Header{}, fmt.Errorf("%w: height: %v", ErrMalformedDimensions, err)
	}
	if width <= 0 || height <= 0 {
		return Header{}, fmt.Errorf("%w: %dx%d", ErrMalformedDimensions, width, height)
	}
	if width > MaxPixels/height {
		return Header{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrMalformedDimensions, width, height, MaxPixels)
	}

	maxValue, err := readNumber(br)
	if err != nil {
		return Header{}, fmt.Errorf("%w: max value: %v", ErrMalformedHeader, err)
	}
	if maxValue != MaxColorValue {
		return Header{}, fmt.Errorf("%w: got %d", ErrUnsupportedColorDepth, maxValue)
	}

	// One whitespace byte separates the header from the raster. A CRLF
	// line ending counts as one separator.
	c, err = br.ReadByte()
	if err != nil || !isSpace(c) {
		return Header{}, fmt.Errorf("%w: missing separator after max value", ErrMalformedHeader)
	}
	if c == '\r' {
		if next, err := br.Peek(1); err == nil && next[0] == '\n' {
			_, _ = br.ReadByte()
		}
	}

	return Header{Width: width, Height: height, MaxValue: maxValue}, nil
}

// skipComments consumes whitespace and '#' lines preceding the dimensions.
func skipComments(br *bufio.Reader) error {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return err
		}
		switch {
		case isSpace(c):
			continue
		case c == '#':
			if _, err := br.ReadString('\n'); err != nil {
				return err
			}
		default:
			return br.UnreadByte()
		}
	}
}

// readNumber skips leading whitespace and parses one decimal token.
func readNumber(br *bufio.Reader) (int, error) {
	c, err := br.ReadByte()
	for err == nil && isSpace(c) {
		c, err = br.ReadByte()
	}
	if err != nil {
		return 0, err
	}

	var digits []byte
	for err == nil && c >= '0' && c <= '9' {
		digits = append(digits, c)
		if len(digits) > maxTokenLen {
			return 0, fmt.Errorf("number too long")
		}
		c, err = br.ReadByte()
	}
	if len(digits) == 0 {
		return 0, fmt.Errorf("unexpected byte %q", c)
	}
	if err == nil {
		// The terminator belongs to the caller (it may be the single
		// separator before the raster).
		if uerr := br.UnreadByte(); uerr != nil {
			return 0, uerr
		}
	} else if err != io.EOF {
		return 0, err
	}
	return strconv.Atoi(string(digits))
}

func readPixels(br *bufio.Reader, h Header) (*raster.Buffer, error) {
	buf, err := raster.New(h.Width, h.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDimensions, err)
	}
	row := make([]byte, h.Width*3)
	for y := 0; y < h.Height; y++ {
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, fmt.Errorf("%w: row %d of %d: %v", ErrTruncatedPixels, y, h.Height, err)
		}
		dst := buf.Row(y)
		for x := range dst {
			dst[x] = raster.Pixel{R: row[3*x], G: row[3*x+1], B: row[3*x+2]}
		}
	}
	return buf, nil
}

// Encode writes b to w as a P6 image with max value 255.
func Encode(w io.Writer, b *raster.Buffer) error {
	if b == nil || b.Len() == 0 {
		return raster.ErrInvalidDimensions
	}
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s\n%d %d\n%d\n", Magic, b.Width(), b.Height(), MaxColorValue); err != nil {
		return err
	}
	row := make([]byte, b.Width()*3)
	for y := 0; y < b.Height(); y++ {
		for x, p := range b.Row(y) {
			row[3*x] = p.R
			row[3*x+1] = p.G
			row[3*x+2] = p.B
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
