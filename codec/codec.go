// Package codec defines the byte-to-pixel transform consumed by image sources
// and provides an adapter over the Go image format registry.
package codec

import (
	"context"
	"image"
	"io"
)

// Block is one progressive unit of decoded pixels, typically a band of rows.
// Pixels must be treated as read-only by receivers.
type Block struct {
	// Index is the zero-based position of the block within one decode attempt.
	Index  int
	Bounds image.Rectangle
	Pixels image.Image
}

// Result is what a successful decode produces.
type Result struct {
	Image  image.Image
	Format string
	Blocks int
}

// Codec turns an encoded byte stream into pixel blocks.
//
// Decode is called once per decode attempt from a scheduler worker goroutine.
// It must call emit synchronously and must not retain emit after returning.
type Codec interface {
	Decode(ctx context.Context, r io.Reader, emit func(Block)) (Result, error)
}

// Func adapts a function to Codec.
type Func func(ctx context.Context, r io.Reader, emit func(Block)) (Result, error)

// Decode calls f.
func (f Func) Decode(ctx context.Context, r io.Reader, emit func(Block)) (Result, error) {
	return f(ctx, r, emit)
}
