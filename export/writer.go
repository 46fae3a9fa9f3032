package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"edgedetect/raster"
)

// PartialPattern matches the temporary files Write creates next to the
// final artifact before renaming it into place.
const PartialPattern = ".*.partial-*"

var (
	// ErrOutputOpen wraps failures to create or move the output file.
	ErrOutputOpen = errors.New("export: unable to open output file")

	// ErrEncode wraps failures while producing the image bytes.
	ErrEncode = errors.New("export: unable to encode image")
)

// Namer derives artifact names from the 1-based input index:
// <Dir>/<Prefix><index><format ext>[<compression ext>].
type Namer struct {
	Dir         string
	Prefix      string
	Format      Format
	Compression Compression
}

// Name returns the file name for the input at index, e.g. "laplacian3.ppm".
func (n Namer) Name(index int) string {
	format := n.Format
	if format == "" {
		format = FormatPPM
	}
	return n.Prefix + strconv.Itoa(index) + format.Extension() + n.Compression.Extension()
}

// Path joins Dir and Name.
func (n Namer) Path(index int) string {
	return filepath.Join(n.Dir, n.Name(index))
}

// Artifact describes a written output file.
type Artifact struct {
	Path        string
	Bytes       int64
	Format      Format
	Compression Compression
}

// Writer encodes images to the paths given by its Namer.
// A Writer is safe for concurrent use as long as indexes differ.
type Writer struct {
	namer  Namer
	encode Encoder
}

// NewWriter validates n and returns a Writer for it.
func NewWriter(n Namer) (*Writer, error) {
	if n.Format == "" {
		n.Format = FormatPPM
	}
	if n.Compression == "" {
		n.Compression = CompressionNone
	}
	if n.Compression != CompressionNone && n.Compression != CompressionZstd {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, n.Compression)
	}
	enc, err := EncoderFor(n.Format)
	if err != nil {
		return nil, err
	}
	if n.Dir == "" {
		n.Dir = "."
	}
	return &Writer{namer: n, encode: enc}, nil
}

// Write encodes img as the artifact for index. The file appears under its
// final name only once fully written; on error nothing is left behind.
func (w *Writer) Write(index int, img *raster.Buffer) (Artifact, error) {
	path := w.namer.Path(index)

	tmp, err := os.CreateTemp(w.namer.Dir, "."+filepath.Base(path)+".partial-*")
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %s: %v", ErrOutputOpen, path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	cw := &countingWriter{w: tmp}
	if err := w.encodeTo(cw, img); err != nil {
		return Artifact{}, fmt.Errorf("%w: %s: %v", ErrEncode, path, err)
	}
	if err := tmp.Close(); err != nil {
		return Artifact{}, fmt.Errorf("%w: %s: %v", ErrOutputOpen, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return Artifact{}, fmt.Errorf("%w: %s: %v", ErrOutputOpen, path, err)
	}
	committed = true

	return Artifact{
		Path:        path,
		Bytes:       cw.n,
		Format:      w.namer.Format,
		Compression: w.namer.Compression,
	}, nil
}

func (w *Writer) encodeTo(dst io.Writer, img *raster.Buffer) error {
	if w.namer.Compression != CompressionZstd {
		return w.encode(dst, img)
	}
	zw, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := w.encode(zw, img); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
