package suballoc

import (
	"testing"

	"golang.org/x/exp/rand"
)

func TestLinear1DPackOffer(t *testing.T) {
	l := NewLinear1D[uint32](1024)
	if !l.Empty() {
		t.Fatal("fresh allocator should be empty")
	}

	off1, ok := l.Pack(100, 16)
	if !ok || off1 != 0 {
		t.Fatalf("first pack: got offset %d ok %v, want 0 true", off1, ok)
	}
	off2, ok := l.Pack(200, 16)
	if !ok {
		t.Fatal("second pack should succeed")
	}
	if off2 < off1+100 {
		t.Fatalf("second allocation %d overlaps first (ends at %d)", off2, off1+100)
	}
	if l.Allocated() != 300 {
		t.Fatalf("allocated = %d, want 300", l.Allocated())
	}

	l.Offer(off1)
	if l.Allocated() != 200 {
		t.Fatalf("allocated after offer = %d, want 200", l.Allocated())
	}

	// The freed block should be reusable by a same-size request.
	off3, ok := l.Pack(100, 16)
	if !ok {
		t.Fatal("pack after offer should succeed")
	}
	if off3 != off1 {
		t.Fatalf("expected reuse of offset %d, got %d", off1, off3)
	}
}

func TestLinear1DCoalesce(t *testing.T) {
	l := NewLinear1D[uint32](300)
	a, _ := l.Pack(100, 1)
	b, _ := l.Pack(100, 1)
	c, _ := l.Pack(100, 1)

	l.Offer(a)
	l.Offer(c)
	l.Offer(b)

	if !l.Empty() {
		t.Fatal("releasing all blocks should fully coalesce back to one free block")
	}
	// A single allocation spanning the whole capacity should now fit,
	// proving the three releases merged into one contiguous block.
	if _, ok := l.Pack(300, 1); !ok {
		t.Fatal("expected full-capacity allocation to succeed after coalescing")
	}
}

func TestLinear1DExhaustion(t *testing.T) {
	l := NewLinear1D[uint32](64)
	if _, ok := l.Pack(64, 1); !ok {
		t.Fatal("exact-capacity allocation should succeed")
	}
	if _, ok := l.Pack(1, 1); ok {
		t.Fatal("allocation past capacity should fail")
	}
}

func TestLinear1DUpperBound(t *testing.T) {
	l := NewLinear1D[uint32](1024)
	if l.UpperBound() != 0 {
		t.Fatal("empty allocator should have upper bound 0")
	}
	a, _ := l.Pack(10, 1)
	b, _ := l.Pack(10, 1)
	if want := b + 10; l.UpperBound() != want {
		t.Fatalf("upper bound = %d, want %d", l.UpperBound(), want)
	}
	l.Offer(b)
	if want := a + 10; l.UpperBound() != want {
		t.Fatalf("upper bound after releasing trailing block = %d, want %d", l.UpperBound(), want)
	}
}

// TestLinear1DStress runs a long randomized pack/offer sequence and
// checks the allocator never reports overlapping live ranges and that
// Allocated() always matches the sum of sizes it handed out.
func TestLinear1DStress(t *testing.T) {
	const capacity = 1 << 16
	l := NewLinear1D[uint32](capacity)
	src := rand.New(rand.NewSource(42))

	type live struct {
		offset, size uint32
	}
	var outstanding []live
	var wantAllocated uint32

	for i := 0; i < 20000; i++ {
		if len(outstanding) > 0 && (src.Intn(3) == 0 || !l.TryFit(1, 1)) {
			idx := src.Intn(len(outstanding))
			b := outstanding[idx]
			l.Offer(b.offset)
			wantAllocated -= b.size
			outstanding = append(outstanding[:idx], outstanding[idx+1:]...)
			continue
		}

		size := uint32(src.Intn(128) + 1)
		align := uint32(1 << uint(src.Intn(4)))
		off, ok := l.Pack(size, align)
		if !ok {
			continue
		}
		if off%align != 0 {
			t.Fatalf("offset %d not aligned to %d", off, align)
		}
		for _, o := range outstanding {
			if off < o.offset+o.size && o.offset < off+size {
				t.Fatalf("new allocation [%d,%d) overlaps existing [%d,%d)", off, off+size, o.offset, o.offset+o.size)
			}
		}
		outstanding = append(outstanding, live{off, size})
		wantAllocated += size
	}

	if l.Allocated() != wantAllocated {
		t.Fatalf("allocated = %d, want %d", l.Allocated(), wantAllocated)
	}

	for _, o := range outstanding {
		l.Offer(o.offset)
	}
	if !l.Empty() {
		t.Fatal("releasing every outstanding allocation should fully coalesce the allocator")
	}
}
