package codec

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 200, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func collect(blocks *[]Block) func(Block) {
	return func(b Block) { *blocks = append(*blocks, b) }
}

func TestImage_Decode_EmitsBands(t *testing.T) {
	src := testImage(6, 10)
	var blocks []Block

	res, err := NewImage(WithBandHeight(4)).Decode(context.Background(), bytes.NewReader(encodePNG(t, src)), collect(&blocks))
	require.NoError(t, err)
	require.Equal(t, "png", res.Format)
	require.Equal(t, 3, res.Blocks)
	require.Equal(t, src.Bounds(), res.Image.Bounds())

	require.Len(t, blocks, 3)
	wantRows := []image.Rectangle{
		image.Rect(0, 0, 6, 4),
		image.Rect(0, 4, 6, 8),
		image.Rect(0, 8, 6, 10),
	}
	for i, b := range blocks {
		require.Equal(t, i, b.Index)
		require.Equal(t, wantRows[i], b.Bounds)
		require.Equal(t, wantRows[i], b.Pixels.Bounds())
	}

	r, g, _, _ := blocks[2].Pixels.At(3, 9).RGBA()
	wr, wg, _, _ := src.At(3, 9).RGBA()
	require.Equal(t, wr, r)
	require.Equal(t, wg, g)
}

func TestImage_Decode_BMP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, testImage(3, 3)))

	var blocks []Block
	res, err := NewImage().Decode(context.Background(), &buf, collect(&blocks))
	require.NoError(t, err)
	require.Equal(t, "bmp", res.Format)
	require.Len(t, blocks, 1)
}

func TestImage_Decode_Errors(t *testing.T) {
	valid := encodePNG(t, testImage(4, 4))
	errBoom := errors.New("disk unplugged")

	tests := []struct {
		name    string
		codec   *Image
		input   func() []byte
		wantErr error
	}{
		{
			name:    "unknown format",
			codec:   NewImage(),
			input:   func() []byte { return []byte("definitely not an image") },
			wantErr: ErrUnknownFormat,
		},
		{
			name:    "truncated data",
			codec:   NewImage(),
			input:   func() []byte { return valid[:len(valid)/2] },
			wantErr: ErrMalformed,
		},
		{
			name:    "pixel limit",
			codec:   NewImage(WithMaxPixels(10)),
			input:   func() []byte { return valid },
			wantErr: ErrTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emitted := 0
			_, err := tt.codec.Decode(context.Background(), bytes.NewReader(tt.input()), func(Block) { emitted++ })
			require.ErrorIs(t, err, tt.wantErr)
			require.Zero(t, emitted)
		})
	}

	t.Run("stream failure passes through", func(t *testing.T) {
		_, err := NewImage().Decode(context.Background(), iotest.ErrReader(errBoom), func(Block) {})
		require.ErrorIs(t, err, errBoom)
		require.NotErrorIs(t, err, ErrMalformed)
	})
}

func TestExceedsPixels(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		limit int
		want  bool
	}{
		{"at limit", 100, 100, 10000, false},
		{"one row over", 100, 101, 10000, true},
		{"below limit", 99, 101, 10000, false},
		{"limit not divisible", 3, 3, 10, false},
		{"limit not divisible over", 3, 4, 10, true},
		{"zero width", 0, math.MaxInt, 10, false},
		{"product overflows", math.MaxInt, 2, 1 << 20, true},
		{"both huge", math.MaxInt / 2, math.MaxInt / 2, 1 << 20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, exceedsPixels(tt.w, tt.h, tt.limit))
		})
	}
}

func TestImage_Decode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewImage().Decode(ctx, bytes.NewReader(encodePNG(t, testImage(2, 2))), func(Block) {})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFunc_Adapter(t *testing.T) {
	var c Codec = Func(func(_ context.Context, _ io.Reader, emit func(Block)) (Result, error) {
		emit(Block{Index: 0})
		return Result{Format: "fake", Blocks: 1}, nil
	})

	n := 0
	res, err := c.Decode(context.Background(), nil, func(Block) { n++ })
	require.NoError(t, err)
	require.Equal(t, "fake", res.Format)
	require.Equal(t, 1, n)
}
