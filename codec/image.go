package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"

	// Formats registered with the image package.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/ygrebnov/errorc"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	defaultBandHeight = 16
	defaultMaxPixels  = 64 << 20
)

// Image decodes any format registered with the image package
// (PNG, JPEG, GIF, BMP, TIFF, WebP) and emits the result as row bands.
type Image struct {
	bandHeight int
	maxPixels  int
}

var _ Codec = (*Image)(nil)

// Option configures Image.
type Option func(*Image)

// WithBandHeight sets the number of rows per emitted block. Values < 1 are ignored.
func WithBandHeight(rows int) Option {
	return func(c *Image) {
		if rows > 0 {
			c.bandHeight = rows
		}
	}
}

// WithMaxPixels rejects images whose width*height exceeds n. Values < 1 are ignored.
func WithMaxPixels(n int) Option {
	return func(c *Image) {
		if n > 0 {
			c.maxPixels = n
		}
	}
}

// NewImage returns an Image codec.
func NewImage(opts ...Option) *Image {
	c := &Image{bandHeight: defaultBandHeight, maxPixels: defaultMaxPixels}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Decode reads the header first to enforce the pixel limit, then decodes
// the whole image and emits it band by band. Cancellation is checked between bands.
func (c *Image) Decode(ctx context.Context, r io.Reader, emit func(Block)) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	sr := &streamReader{r: r}
	var head bytes.Buffer
	cfg, format, err := image.DecodeConfig(io.TeeReader(sr, &head))
	if err != nil {
		return Result{}, classify(err, format, sr)
	}
	if exceedsPixels(cfg.Width, cfg.Height, c.maxPixels) {
		return Result{}, errorc.With(ErrTooLarge,
			errorc.String("size", strconv.Itoa(cfg.Width)+"x"+strconv.Itoa(cfg.Height)))
	}

	img, format, err := image.Decode(io.MultiReader(&head, sr))
	if err != nil {
		return Result{}, classify(err, format, sr)
	}

	blocks, err := c.emitBands(ctx, img, emit)
	if err != nil {
		return Result{}, err
	}
	return Result{Image: img, Format: format, Blocks: blocks}, nil
}

// exceedsPixels reports whether w*h is above limit without computing the
// product, which can overflow int for hostile headers.
func exceedsPixels(w, h, limit int) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	return h > limit/w
}

func (c *Image) emitBands(ctx context.Context, img image.Image, emit func(Block)) (int, error) {
	b := img.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y += c.bandHeight {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rect := image.Rect(b.Min.X, y, b.Max.X, min(y+c.bandHeight, b.Max.Y))
		band := image.NewRGBA(rect)
		draw.Draw(band, rect, img, rect.Min, draw.Src)
		emit(Block{Index: n, Bounds: rect, Pixels: band})
		n++
	}
	return n, nil
}

// classify maps decoder errors onto the package taxonomy, keeping the cause.
// A failure of the source stream itself wins over whatever the decoder made of it.
func classify(err error, format string, sr *streamReader) error {
	switch {
	case sr.err != nil:
		return sr.err
	case errors.Is(err, image.ErrFormat):
		return fmt.Errorf("%w: %w", ErrUnknownFormat, err)
	default:
		return fmt.Errorf("%w: %w", errorc.With(ErrMalformed, errorc.String("format", format)), err)
	}
}

// streamReader remembers the first non-EOF read failure of the source stream.
type streamReader struct {
	r   io.Reader
	err error
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && s.err == nil {
		s.err = err
	}
	return n, err
}
