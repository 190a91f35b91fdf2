package gpu

import (
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/draw"
)

// syntheticCheckerboard builds a w*h RGBA pixel buffer (row-major, 4
// bytes/pixel) tiling cw*ch blocks of a and b, for round-trip
// upload/download tests that need known, reproducible pixel data
// instead of a file on disk: PNG/JPEG decoding stays an external
// collaborator, but synthesizing a test fixture does not.
func syntheticCheckerboard(w, h, cw, ch int, a, b color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += ch {
		for x := 0; x < w; x += cw {
			c := a
			if (x/cw+y/ch)%2 == 1 {
				c = b
			}
			tile := image.Rect(x, y, x+cw, y+ch).Intersect(img.Bounds())
			draw.Draw(img, tile, image.NewUniform(c), image.Point{}, draw.Src)
		}
	}
	return img.Pix
}

func TestSyntheticCheckerboardIsDeterministicAndTiled(t *testing.T) {
	const w, h, tile = 8, 8, 4
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}

	pix := syntheticCheckerboard(w, h, tile, tile, red, blue)
	if len(pix) != w*h*4 {
		t.Fatalf("len(pix) = %d, want %d", len(pix), w*h*4)
	}

	again := syntheticCheckerboard(w, h, tile, tile, red, blue)
	for i := range pix {
		if pix[i] != again[i] {
			t.Fatal("synthesis is not deterministic")
		}
	}

	topLeft := pix[0:4]
	if topLeft[0] != 255 || topLeft[3] != 255 {
		t.Fatalf("top-left tile = %v, want opaque red", topLeft)
	}
	topRight := pix[tile*4 : tile*4+4]
	if topRight[2] != 255 || topRight[3] != 255 {
		t.Fatalf("top-right tile = %v, want opaque blue", topRight)
	}
}
