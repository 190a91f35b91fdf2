// Package suballoc implements the two low-level allocators the rest of
// this module builds on: a 1-D linear free-list allocator (§4.1) and a
// 2-D shelf packer built on top of it (§4.2).
package suballoc

import (
	"golang.org/x/exp/constraints"

	"github.com/spaghettifunk/hut/engine/core"
	"github.com/spaghettifunk/hut/engine/math"
)

// Block describes one range tracked by a Linear1D, used by VisitBlocks
// for introspection.
type Block[T constraints.Integer] struct {
	Used   bool
	Offset T
	Size   T
	// requested is the size Pack was asked for, counted by Allocated.
	requested T
}

// Linear1D is a first-fit, splitting/coalescing linear allocator over
// [0, capacity). It is the allocator behind buffer pages, quad/text
// batches, and (via Shelf) atlas shelves.
type Linear1D[T constraints.Integer] struct {
	capacity      T
	allocated     T
	blocks        []Block[T]
	lastFoundFit  int
}

// NewLinear1D creates an allocator covering [0, capacity).
func NewLinear1D[T constraints.Integer](capacity T) *Linear1D[T] {
	l := &Linear1D[T]{capacity: capacity}
	l.Reset()
	return l
}

// Reset discards all allocations, returning the allocator to a single
// free block spanning the whole capacity.
func (l *Linear1D[T]) Reset() {
	l.blocks = []Block[T]{{Used: false, Offset: 0, Size: l.capacity}}
	l.allocated = 0
	l.lastFoundFit = 0
}

type fit[T constraints.Integer] struct {
	index          int
	offset         T
	alignedOffset  T
	alignedSize    T
}

func (l *Linear1D[T]) findFirstFit(size, align T) (fit[T], bool) {
	n := len(l.blocks)
	for i := 0; i < n; i++ {
		idx := (l.lastFoundFit + i) % n
		b := l.blocks[idx]
		if b.Used || b.Size < size {
			continue
		}
		alignedOffset := math.AlignUp(b.Offset, align)
		alignBytes := alignedOffset - b.Offset
		alignedSize := math.AlignUp(size+alignBytes, align)
		if b.Size >= alignedSize {
			return fit[T]{index: idx, offset: b.Offset, alignedOffset: alignedOffset, alignedSize: alignedSize}, true
		}
	}
	return fit[T]{}, false
}

func (l *Linear1D[T]) findOffset(offset T) (int, bool) {
	for i, b := range l.blocks {
		if b.Offset == offset {
			return i, true
		}
	}
	return 0, false
}

func (l *Linear1D[T]) split(f fit[T]) T {
	splitBlock := l.blocks[f.index]
	newBlockSize := splitBlock.Size - f.alignedSize
	newBlockOffset := splitBlock.Offset + f.alignedSize

	if alignBytes := f.alignedOffset - f.offset; alignBytes != 0 {
		l.blocks[f.index-1].Size += alignBytes
		l.blocks[f.index].Offset = f.alignedOffset
	}
	l.blocks[f.index].Used = true
	l.blocks[f.index].Size = f.alignedSize - (f.alignedOffset - f.offset)
	core.Invariant(f.alignedSize > 0, "suballoc: split produced a zero-size block")

	if newBlockSize > 0 {
		idx := f.index + 1
		l.blocks = append(l.blocks, Block[T]{})
		copy(l.blocks[idx+1:], l.blocks[idx:])
		l.blocks[idx] = Block[T]{Used: false, Offset: newBlockOffset, Size: newBlockSize}
	}
	return f.alignedOffset
}

func (l *Linear1D[T]) merge(index int) {
	core.Invariant(l.blocks[index].Used, "suballoc: merge called on a free block")
	l.blocks[index].Used = false
	l.blocks[index].requested = 0

	accumulated := l.blocks[index].Size
	begin, end := index, index
	for i := index + 1; i < len(l.blocks); i++ {
		if l.blocks[i].Used {
			break
		}
		accumulated += l.blocks[i].Size
		end = i
	}
	for i := index - 1; i >= 0; i-- {
		if l.blocks[i].Used {
			break
		}
		accumulated += l.blocks[i].Size
		begin = i
	}
	if begin == end {
		return
	}
	l.blocks[begin].Size = accumulated
	l.blocks = append(l.blocks[:begin+1], l.blocks[end+1:]...)
}

// Pack finds the first free block that fits size bytes at the given
// alignment, splits it, and returns the aligned offset. Returns
// (0, false) if nothing fits; callers respond by growing their
// container and retrying.
func (l *Linear1D[T]) Pack(size, align T) (T, bool) {
	core.Invariant(size > 0, "suballoc: pack requires size > 0")
	f, ok := l.findFirstFit(size, align)
	if !ok {
		return 0, false
	}
	l.lastFoundFit = f.index
	l.allocated += size
	offset := l.split(f)
	l.blocks[f.index].requested = size
	return offset, true
}

// TryFit is a non-mutating probe: does a block exist that would fit
// size bytes at the given alignment?
func (l *Linear1D[T]) TryFit(size, align T) bool {
	_, ok := l.findFirstFit(size, align)
	return ok
}

// Offer returns the block at offset to the free list, coalescing it
// with any contiguous free neighbors.
func (l *Linear1D[T]) Offer(offset T) {
	idx, ok := l.findOffset(offset)
	core.Invariant(ok, "suballoc: offer of unknown offset %v", offset)
	l.allocated -= l.blocks[idx].requested
	l.merge(idx)
}

// Capacity returns the total size of the allocator's range.
func (l *Linear1D[T]) Capacity() T { return l.capacity }

// Allocated returns the sum of the sizes requested by the live Pack
// calls; alignment rounding and padding are not counted.
func (l *Linear1D[T]) Allocated() T { return l.allocated }

// Free returns Capacity() - Allocated().
func (l *Linear1D[T]) Free() T { return l.capacity - l.allocated }

// Empty reports whether the allocator has no live allocations.
func (l *Linear1D[T]) Empty() bool {
	return len(l.blocks) == 1 && !l.blocks[0].Used
}

// UpperBound returns the end of the highest used block, or 0 if none
// are in use. Used to bound indirect draw counts.
func (l *Linear1D[T]) UpperBound() T {
	for i := len(l.blocks) - 1; i >= 0; i-- {
		if l.blocks[i].Used {
			return l.blocks[i].Offset + l.blocks[i].Size
		}
	}
	return 0
}

// VisitBlocks calls visit for every tracked block in offset order,
// stopping early if visit returns false.
func (l *Linear1D[T]) VisitBlocks(visit func(Block[T]) bool) {
	for _, b := range l.blocks {
		if !visit(b) {
			return
		}
	}
}
