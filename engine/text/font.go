// Package text implements the word-level glyph-mesh cache and
// indirect-draw text renderer: a Shaper collaborator turns UTF-8 word
// strings into quad meshes packed into a shared atlas, a per-batch
// word cache avoids re-shaping repeated words, and drawing is a single
// indexed-indirect call per batch.
package text

import (
	"fmt"

	"github.com/fzipp/bmfont"
)

// Glyph is one codepoint's metrics within a bitmap font page, in the
// on-disk layout fzipp/bmfont decodes from a BMFont .fnt descriptor,
// trimmed to what glyph shaping needs.
type Glyph struct {
	Codepoint        rune
	X, Y             uint16
	Width, Height    uint16
	XOffset, YOffset int16
	XAdvance         int16
	PageID           uint8
}

// kerningPair keys the per-glyph-pair kerning adjustment table.
type kerningPair struct {
	Left, Right rune
}

// Font is a decoded bitmap font: per-codepoint glyph metrics plus the
// already-decoded pixel bytes of each font page (image *decoding*
// stays an external collaborator, so callers supply raw page pixels
// the same way engine/gpu.Atlas.Pack takes already-decoded bytes). One
// font page is one equally-sized grid of rasterized
// glyphs; Shaper re-packs individual glyph rectangles out of a page
// into the renderer's own atlas on first use.
type Font struct {
	Face       string
	LineHeight int32
	Baseline   int32
	PageWidth  uint32
	PageHeight uint32
	// PageData holds one raw, row-major pixel buffer per page (single
	// 8-bit alpha channel, the common BMFont page format); index
	// matches Glyph.PageID.
	PageData [][]byte
	Glyphs   map[rune]Glyph
	Kerning  map[kerningPair]int16
}

// LoadBitmapFont decodes a BMFont .fnt descriptor at path via
// github.com/fzipp/bmfont into this package's Font value. pages
// supplies each page's already-decoded pixel bytes, keyed by the
// descriptor's page index, since PNG/JPEG decoding stays outside this
// module's scope.
func LoadBitmapFont(path string, pages [][]byte, pageWidth, pageHeight uint32) (*Font, error) {
	descriptor, err := bmfont.Load(path)
	if err != nil {
		return nil, fmt.Errorf("text: failed to load bitmap font %q: %w", path, err)
	}

	f := &Font{
		Face:       descriptor.Descriptor.Info.Face,
		LineHeight: int32(descriptor.Descriptor.Common.LineHeight),
		Baseline:   int32(descriptor.Descriptor.Common.Base),
		PageWidth:  pageWidth,
		PageHeight: pageHeight,
		PageData:   pages,
		Glyphs:     make(map[rune]Glyph, len(descriptor.Descriptor.Chars)),
		Kerning:    make(map[kerningPair]int16, len(descriptor.Descriptor.Kerning)),
	}

	for _, g := range descriptor.Descriptor.Chars {
		f.Glyphs[rune(g.ID)] = Glyph{
			Codepoint: rune(g.ID),
			X:         uint16(g.X), Y: uint16(g.Y),
			Width: uint16(g.Width), Height: uint16(g.Height),
			XOffset: int16(g.XOffset), YOffset: int16(g.YOffset),
			XAdvance: int16(g.XAdvance), PageID: uint8(g.Page),
		}
	}
	for pair, k := range descriptor.Descriptor.Kerning {
		f.Kerning[kerningPair{Left: rune(pair.First), Right: rune(pair.Second)}] = int16(k.Amount)
	}
	return f, nil
}

// Advance returns the glyph's x-advance, adjusted by the kerning
// pair (prev, r) if the font defines one.
func (f *Font) Advance(prev, r rune, g Glyph) int16 {
	if prev == 0 {
		return g.XAdvance
	}
	if k, ok := f.Kerning[kerningPair{Left: prev, Right: r}]; ok {
		return g.XAdvance + k
	}
	return g.XAdvance
}
