package gpu

import (
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/spaghettifunk/hut/engine/core"
	"github.com/spaghettifunk/hut/engine/display"
	gmath "github.com/spaghettifunk/hut/engine/math"
	"github.com/spaghettifunk/hut/engine/suballoc"
)

// Padding surrounds every subimage allocation so neighboring
// glyphs/sprites never bleed into each other under linear filtering.
var Padding = gmath.Vec2{X: 1, Y: 1}

type atlasPage struct {
	image  *Image
	packer *suballoc.Shelf
}

// Atlas is a growable collection of equally-sized image pages, each
// packed by a 2-D shelf packer. Page 0 always exists.
type Atlas struct {
	disp       *display.Display
	pageWidth  uint16
	pageHeight uint16
	format     vk.Format
	usage      vk.ImageUsageFlags
	selector   suballoc.ShelfSelector
	pages      []*atlasPage
	debug      uuid.UUID
}

// NewAtlas creates an atlas with one page already allocated.
func NewAtlas(disp *display.Display, pageWidth, pageHeight uint16, format vk.Format, usage vk.ImageUsageFlags, selector suballoc.ShelfSelector) (*Atlas, error) {
	a := &Atlas{disp: disp, pageWidth: pageWidth, pageHeight: pageHeight, format: format, usage: usage, selector: selector, debug: uuid.New()}
	if err := a.appendPage(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Atlas) appendPage() error {
	img, err := NewImage(a.disp, uint32(a.pageWidth), uint32(a.pageHeight), a.format, a.usage, vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return err
	}
	a.pages = append(a.pages, &atlasPage{image: img, packer: suballoc.NewShelf(a.pageWidth, a.pageHeight, a.selector)})
	return nil
}

// PageCount returns the number of image pages, used by pipelines to
// size atlas descriptor arrays and detect growth via update_atlas.
func (a *Atlas) PageCount() int { return len(a.pages) }

// PageView returns the full-image view of page i, for descriptor
// writes.
func (a *Atlas) PageView(i int) vk.ImageView { return a.pages[i].image.view }

// PageExtent returns the atlas's configured per-page pixel size, used
// to normalize a subimage's bbox into UV coordinates.
func (a *Atlas) PageExtent() (uint16, uint16) { return a.pageWidth, a.pageHeight }

// Alloc reserves a padded size_px region, trying each existing page in
// order before appending a new one.
func (a *Atlas) Alloc(sizePx gmath.IBox) (*Subimage, error) {
	w := uint16(sizePx.Width()) + uint16(Padding.X)*2
	h := uint16(sizePx.Height()) + uint16(Padding.Y)*2

	for i, p := range a.pages {
		if box, ok := p.packer.Pack(w, h); ok {
			return a.newSubimage(i, box), nil
		}
	}

	if err := a.appendPage(); err != nil {
		return nil, err
	}
	last := len(a.pages) - 1
	box, ok := a.pages[last].packer.Pack(w, h)
	if !ok {
		return nil, core.NewError(core.ResourceExhausted, "gpu: subimage does not fit a fresh atlas page")
	}
	return a.newSubimage(last, box), nil
}

func (a *Atlas) newSubimage(page int, packedBox gmath.IBox) *Subimage {
	inner := gmath.IBox{
		X0: packedBox.X0 + int32(Padding.X), Y0: packedBox.Y0 + int32(Padding.Y),
		X1: packedBox.X1 - int32(Padding.X), Y1: packedBox.Y1 - int32(Padding.Y),
	}
	return &Subimage{atlas: a, page: page, packedBox: packedBox, Bbox: inner}
}

// formatBytesPerPixel returns the bytes-per-pixel of the atlas's pixel
// format; only the two formats this module exercises (alpha-only
// glyph bitmaps, BGRA sprites) are handled.
func formatBytesPerPixel(format vk.Format) (uint32, bool) {
	switch format {
	case vk.FormatR8Unorm:
		return 1, true
	case vk.FormatB8g8r8a8Unorm, vk.FormatR8g8b8a8Unorm:
		return 4, true
	default:
		return 0, false
	}
}

// Pack is alloc + image update, replicating an alpha-only source
// bitmap across all channels when the atlas format is BGRA/RGBA (spec
// §4.4's format-mismatch rule); any other mismatch is an error.
func (a *Atlas) Pack(cb vk.CommandBuffer, sizePx gmath.IBox, srcFormat vk.Format, data []byte, srcRowPitch uint64) (*Subimage, error) {
	sub, err := a.Alloc(sizePx)
	if err != nil {
		return nil, err
	}

	page := a.pages[sub.page]
	dstBpp, ok := formatBytesPerPixel(page.image.Format)
	if !ok {
		return nil, core.NewError(core.FormatMismatch, "gpu: unsupported atlas pixel format")
	}
	srcBpp, ok := formatBytesPerPixel(srcFormat)
	if !ok {
		return nil, core.NewError(core.FormatMismatch, "gpu: unsupported source pixel format")
	}

	updator, err := page.image.Update(sub.Bbox, dstBpp)
	if err != nil {
		return nil, err
	}

	height := int(sub.Bbox.Height())
	width := int(sub.Bbox.Width())
	switch {
	case srcBpp == dstBpp:
		for y := 0; y < height; y++ {
			srcRow := data[uint64(y)*srcRowPitch : uint64(y)*srcRowPitch+uint64(width)*uint64(srcBpp)]
			copy(updator.Row(y), srcRow)
		}
	case srcBpp == 1 && dstBpp == 4:
		for y := 0; y < height; y++ {
			srcRow := data[uint64(y)*srcRowPitch : uint64(y)*srcRowPitch+uint64(width)]
			dstRow := updator.Row(y)
			for x := 0; x < width; x++ {
				alpha := srcRow[x]
				dstRow[x*4+0] = alpha
				dstRow[x*4+1] = alpha
				dstRow[x*4+2] = alpha
				dstRow[x*4+3] = alpha
			}
		}
	default:
		return nil, core.NewError(core.FormatMismatch, "gpu: cannot reconcile source format with atlas format")
	}

	updator.Finalize(cb)
	return sub, nil
}

// Free returns a subimage's bbox to its page's shelf packer.
func (a *Atlas) Free(s *Subimage) {
	core.Invariant(s.atlas == a, "gpu: subimage freed on the wrong atlas")
	a.pages[s.page].packer.Offer(s.packedBox)
}

// Destroy releases every page's image.
func (a *Atlas) Destroy() {
	for _, p := range a.pages {
		p.image.Destroy()
	}
	a.pages = nil
}

// Subimage is a sub-rectangle inside one atlas page: a move-only
// handle that returns its bbox to the page packer via Atlas.Free. It
// is modeled as (atlas, page_index, bbox) rather than a pointer chain.
type Subimage struct {
	atlas     *Atlas
	page      int
	packedBox gmath.IBox
	// Bbox is the usable region, inset from packedBox by Padding on
	// every side.
	Bbox gmath.IBox
}

// Page returns the index of the atlas page this subimage lives on.
func (s *Subimage) Page() int { return s.page }
