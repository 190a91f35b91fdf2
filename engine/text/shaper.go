package text

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/hut/engine/core"
	"github.com/spaghettifunk/hut/engine/gpu"
	gmath "github.com/spaghettifunk/hut/engine/math"
)

// ShapeCallback receives one shaped glyph: its index within the word
// (0-based), its pixel-space quad, the atlas subimage's UV box, and
// the atlas page it lives on.
type ShapeCallback func(index uint32, bbox IBox, uv [4]float32, atlasPage int)

// Shaper is the font/shaper collaborator: given a UTF-8 word, it
// invokes emit once per glyph. BitmapShaper is the one concrete
// implementation this module ships, backed by a bitmap Font; a
// HarfBuzz/FreeType-backed Shaper is a drop-in replacement outside
// this module's scope.
type Shaper interface {
	Shape(cb vk.CommandBuffer, atlas *gpu.Atlas, text string, emit ShapeCallback) error
}

// cachedGlyph pins one codepoint's atlas placement for the process
// lifetime: the shaper's own glyph cache never decrements reference
// counts, only the word-level cache in renderer.go does.
type cachedGlyph struct {
	sub    *gpu.Subimage
	glyph  Glyph
	uv     [4]float32
}

// BitmapShaper shapes words against a Font, packing each distinct
// glyph into the renderer's atlas on first use. Glyph lookups are
// mutex-guarded since a shaper is shared across concurrent callers.
type BitmapShaper struct {
	font *Font

	mu     sync.Mutex // serializes font-table lookups
	glyphs map[rune]*cachedGlyph
}

// NewBitmapShaper creates a shaper over font, with an empty glyph
// cache.
func NewBitmapShaper(font *Font) *BitmapShaper {
	return &BitmapShaper{font: font, glyphs: map[rune]*cachedGlyph{}}
}

// glyphAtlasPlacement returns (and lazily creates) the atlas subimage
// backing r, reading the glyph's source bitmap out of its font page.
func (s *BitmapShaper) glyphAtlasPlacement(cb vk.CommandBuffer, atlas *gpu.Atlas, r rune) (*cachedGlyph, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.glyphs[r]; ok {
		return cached, false, nil
	}

	glyph, ok := s.font.Glyphs[r]
	if !ok {
		return nil, false, nil
	}
	if glyph.Width == 0 || glyph.Height == 0 {
		// Zero-area glyphs (e.g. space) need no atlas placement; cache
		// them with a nil subimage so repeated lookups stay O(1).
		empty := &cachedGlyph{glyph: glyph}
		s.glyphs[r] = empty
		return empty, false, nil
	}

	page := s.font.PageData[glyph.PageID]
	rowPitch := uint64(s.font.PageWidth)
	srcBox := gmath.IBox{
		X0: int32(glyph.X), Y0: int32(glyph.Y),
		X1: int32(glyph.X) + int32(glyph.Width), Y1: int32(glyph.Y) + int32(glyph.Height),
	}
	offset := uint64(srcBox.Y0)*rowPitch + uint64(srcBox.X0)
	sub, err := atlas.Pack(cb, gmath.IBox{X1: int32(glyph.Width), Y1: int32(glyph.Height)},
		vk.FormatR8Unorm, page[offset:], rowPitch)
	if err != nil {
		return nil, false, err
	}

	uv := subimageUV(sub, atlas)
	entry := &cachedGlyph{sub: sub, glyph: glyph, uv: uv}
	s.glyphs[r] = entry
	return entry, true, nil
}

// subimageUV normalizes a subimage's pixel bbox against its atlas
// page's extent, in (u0,v0,u1,v1) order matching vertex order
// (top-left, bottom-left, top-right, bottom-right) consumed by Shape.
func subimageUV(sub *gpu.Subimage, atlas *gpu.Atlas) [4]float32 {
	pw, ph := atlas.PageExtent()
	return [4]float32{
		float32(sub.Bbox.X0) / float32(pw), float32(sub.Bbox.Y0) / float32(ph),
		float32(sub.Bbox.X1) / float32(pw), float32(sub.Bbox.Y1) / float32(ph),
	}
}

// Shape lays out text glyph-by-glyph along a single baseline, applying
// kerning, and invokes emit once per non-empty glyph with its
// pixel-space quad and atlas UV box. Bitmap fonts have no shaping
// engine to delegate to, so this inlines the advance/kerning walk
// directly.
func (s *BitmapShaper) Shape(cb vk.CommandBuffer, atlas *gpu.Atlas, text string, emit ShapeCallback) error {
	var pen int32
	var prev rune
	var glyphIndex uint32

	for _, r := range text {
		placement, _, err := s.glyphAtlasPlacement(cb, atlas, r)
		if err != nil {
			return err
		}
		if placement == nil {
			prev = 0
			continue
		}

		advance := s.font.Advance(prev, r, placement.glyph)
		if placement.sub != nil {
			x0 := pen + int32(placement.glyph.XOffset)
			y0 := int32(placement.glyph.YOffset)
			bbox := IBox{
				X0: x0, Y0: y0,
				X1: x0 + int32(placement.glyph.Width), Y1: y0 + int32(placement.glyph.Height),
			}
			page := placement.sub.Page()
			core.Assert(page < 4, "text: atlas page %d exceeds the 4-page UV sign encoding limit", page)
			emit(glyphIndex, bbox, placement.uv, page)
			glyphIndex++
		}
		pen += int32(advance)
		prev = r
	}
	return nil
}
