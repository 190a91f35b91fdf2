package suballoc

import "testing"

func TestShelfPacksSameHeightIntoSameRow(t *testing.T) {
	s := NewShelf(256, 256, AlignSelector(16))

	a, ok := s.Pack(32, 10)
	if !ok {
		t.Fatal("first pack should succeed")
	}
	b, ok := s.Pack(32, 12)
	if !ok {
		t.Fatal("second pack should succeed")
	}
	if a.Y0 != b.Y0 {
		t.Fatalf("items quantized to the same shelf height should share a row: a.Y0=%d b.Y0=%d", a.Y0, b.Y0)
	}
	if b.X0 < a.X1 {
		t.Fatalf("items in the same row must not overlap: a=%v b=%v", a, b)
	}
}

func TestShelfOpensNewRowForTallerItem(t *testing.T) {
	s := NewShelf(256, 256, AlignSelector(16))

	a, _ := s.Pack(32, 10)
	c, ok := s.Pack(32, 64)
	if !ok {
		t.Fatal("taller pack should succeed")
	}
	if c.Y0 == a.Y0 {
		t.Fatal("a much taller item should open a new row, not share the short one")
	}
	if c.Y0 < a.Y1 {
		t.Fatalf("new row must not overlap the previous row's height: a.Y1=%d c.Y0=%d", a.Y1, c.Y0)
	}
}

func TestShelfOfferFreesSpaceForReuse(t *testing.T) {
	// One 16-pixel row is the whole area, so a full row leaves no room
	// for another.
	s := NewShelf(64, 16, AlignSelector(16))

	a, ok := s.Pack(64, 10)
	if !ok {
		t.Fatal("pack should succeed")
	}
	if _, ok := s.Pack(1, 10); ok {
		t.Fatal("row should be full after the first pack consumed the whole width")
	}

	s.Offer(a)
	if !s.Empty() {
		t.Fatal("shelf should be empty after offering back the only allocation")
	}
	if _, ok := s.Pack(64, 10); !ok {
		t.Fatal("space should be reusable after Offer")
	}
}

func TestShelfRejectsOversizedItem(t *testing.T) {
	s := NewShelf(64, 64, Pow2Selector())
	if _, ok := s.Pack(128, 10); ok {
		t.Fatal("item wider than the shelf should be rejected")
	}
	if _, ok := s.Pack(10, 128); ok {
		t.Fatal("item taller than the shelf should be rejected")
	}
}

func TestPow2SelectorQuantizes(t *testing.T) {
	sel := Pow2Selector()
	cases := map[uint16]uint16{
		1:  16,
		15: 16,
		17: 32,
		64: 64,
		65: 128,
	}
	for in, want := range cases {
		if got := sel(in); got != want {
			t.Fatalf("Pow2Selector(%d) = %d, want %d", in, got, want)
		}
	}
}
