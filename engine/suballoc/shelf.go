package suballoc

import (
	"sort"

	"github.com/spaghettifunk/hut/engine/math"
)

// ShelfSelector maps a requested height to the shelf height actually
// used to store it, so that items of similar height share a row
// instead of each opening a new one. Align buckets by a fixed step;
// Pow2 buckets by power-of-two, trading more wasted vertical space for
// fewer, more reusable shelves.
type ShelfSelector func(height uint16) uint16

// AlignSelector quantizes height up to the next multiple of step.
func AlignSelector(step uint16) ShelfSelector {
	if step == 0 {
		step = 1
	}
	return func(height uint16) uint16 {
		return uint16(math.AlignUp(int(height), int(step)))
	}
}

// Pow2Selector quantizes height up to the next power of two (floor 16).
func Pow2Selector() ShelfSelector {
	return math.NextPow2U16
}

// shelfRow is one horizontal strip of the atlas/page, width-packed by
// its own Linear1D.
type shelfRow struct {
	shelfHeight uint16
	y           uint16
	alloc       *Linear1D[uint16]
}

// Shelf packs rectangular regions into a fixed width x height 2-D area using the shelf (a.k.a. bin-packing by rows) strategy: items
// are grouped into rows by quantized height, each row's Y extent comes
// from a dedicated Linear1D over the Y axis, and each row is
// independently packed along X by its own Linear1D. Grounded on
// `original_source/inc/hut/utils/binpacks.hpp`'s `shelve<T,...>`, whose
// `shelves_allocator_` is the same Y-axis linear allocator.
type Shelf struct {
	width, height uint16
	selector      ShelfSelector
	yAlloc        *Linear1D[uint16]
	rows          []*shelfRow
}

// NewShelf creates a packer for a width x height area.
func NewShelf(width, height uint16, selector ShelfSelector) *Shelf {
	if selector == nil {
		selector = Pow2Selector()
	}
	return &Shelf{width: width, height: height, selector: selector, yAlloc: NewLinear1D[uint16](height)}
}

// Pack finds room for a w x h rectangle, opening a new shelf row if no
// existing row of the right quantized height has space and the Y
// allocator has room for another row. Returns the packed w x h box,
// with its top-left corner at (X0, Y0).
func (s *Shelf) Pack(w, h uint16) (math.IBox, bool) {
	shelfHeight := s.selector(h)
	if shelfHeight > s.height || w > s.width {
		return math.IBox{}, false
	}

	// Existing rows of the right quantized height are tried in
	// insertion order, mirroring the allocator's own first-fit policy.
	for _, row := range s.rows {
		if row.shelfHeight != shelfHeight {
			continue
		}
		if x, ok := row.alloc.Pack(w, 1); ok {
			return math.IBox{
				X0: int32(x), Y0: int32(row.y),
				X1: int32(x) + int32(w), Y1: int32(row.y) + int32(h),
			}, true
		}
	}

	// Open a new row, allocating its Y extent from the shared Y
	// allocator so a later Offer can free it back.
	y, ok := s.yAlloc.Pack(shelfHeight, 1)
	if !ok {
		return math.IBox{}, false
	}

	row := &shelfRow{shelfHeight: shelfHeight, y: y, alloc: NewLinear1D[uint16](s.width)}
	x, ok := row.alloc.Pack(w, 1)
	if !ok {
		s.yAlloc.Offer(y)
		return math.IBox{}, false
	}
	s.rows = append(s.rows, row)
	return math.IBox{
		X0: int32(x), Y0: int32(y),
		X1: int32(x) + int32(w), Y1: int32(y) + int32(h),
	}, true
}

// Offer returns a previously packed rectangle's X span to its row.
// box.Y0 identifies the row (it is always a row's exact y). When the
// row's X allocator becomes empty, its Y span is freed on the Y
// allocator and the row is dropped.
func (s *Shelf) Offer(box math.IBox) {
	for i, row := range s.rows {
		if int32(row.y) != box.Y0 {
			continue
		}
		row.alloc.Offer(uint16(box.X0))
		if row.alloc.Empty() {
			s.yAlloc.Offer(row.y)
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
		}
		return
	}
}

// Empty reports whether every row is empty. Since Offer erases empty
// rows immediately, this is equivalent to having no rows at all.
func (s *Shelf) Empty() bool {
	return len(s.rows) == 0
}

// Reset discards all rows and the Y allocator's state.
func (s *Shelf) Reset() {
	s.rows = nil
	s.yAlloc.Reset()
}

// UsedHeight returns the Y extent currently occupied by shelf rows,
// i.e. the portion of the area a caller needs to keep resident when
// growing by appending new width/height rather than repacking.
func (s *Shelf) UsedHeight() uint16 {
	return s.yAlloc.UpperBound()
}

// Rows returns row boundaries in Y order, for diagnostics/tests.
func (s *Shelf) Rows() []uint16 {
	ys := make([]uint16, 0, len(s.rows))
	for _, row := range s.rows {
		ys = append(ys, row.y)
	}
	sort.Slice(ys, func(i, j int) bool { return ys[i] < ys[j] })
	return ys
}
