package text

import "testing"

func TestBatchStateWordCacheRefCounting(t *testing.T) {
	b := newBatchState(1024, 16)

	words := []string{"foo", "bar", "foo"}
	hashes := make([]uint64, len(words))
	for i, w := range words {
		hashes[i] = hashWord(w)
	}

	seen := map[uint64]bool{}
	for i, w := range words {
		entry, isNew, ok := b.lookupOrReserve(hashes[i], uint32(len(w)))
		if !ok {
			t.Fatalf("lookupOrReserve(%q) failed to fit", w)
		}
		if isNew != !seen[hashes[i]] {
			t.Fatalf("lookupOrReserve(%q) isNew=%v, want %v", w, isNew, !seen[hashes[i]])
		}
		seen[hashes[i]] = true
		if isNew {
			entry.glyphs = uint32(len(w))
		}
		entry.refCount++
	}

	fooHash, barHash := hashWord("foo"), hashWord("bar")
	if got := b.cache[fooHash].refCount; got != 2 {
		t.Fatalf("foo refCount = %d, want 2", got)
	}
	if got := b.cache[barHash].refCount; got != 1 {
		t.Fatalf("bar refCount = %d, want 1", got)
	}

	// Releasing the holder that referenced "foo" once and "bar" once
	// should leave foo cached (still referenced by the duplicate) and
	// erase bar entirely.
	b.release([]uint64{hashes[0], hashes[1]})

	if got := b.cache[fooHash].refCount; got != 1 {
		t.Fatalf("foo refCount after first release = %d, want 1", got)
	}
	if _, ok := b.cache[barHash]; ok {
		t.Fatal("bar should have been erased from the cache once its ref count reached zero")
	}

	b.release([]uint64{hashes[2]})
	if _, ok := b.cache[fooHash]; ok {
		t.Fatal("foo should have been erased from the cache once its last ref was released")
	}
}

func TestBatchStateScoreRewardsReuseAndPenalizesMisfit(t *testing.T) {
	b := newBatchState(16, 4)

	hello := hashWord("hello")
	entry, _, ok := b.lookupOrReserve(hello, 5)
	if !ok {
		t.Fatal("lookupOrReserve(hello) should fit in a fresh 16-slot mesh store")
	}
	entry.glyphs = 5

	// A word set containing only the cached word should score using the
	// full reuse bonus, with no extra mesh slots requested.
	score, ok := b.score([]uint64{hello}, 5, 1)
	if !ok {
		t.Fatal("scoring a cached word against a batch with free draw/mesh slots should fit")
	}
	if score == 0 {
		t.Fatal("a batch holding a fully cached word should score above zero")
	}

	// A request that can't possibly fit the remaining mesh budget (11
	// slots left after the 5 already reserved) must report ok=false.
	if _, ok := b.score([]uint64{hashWord("nope")}, 1000, 1); ok {
		t.Fatal("scoring a request exceeding remaining mesh capacity should not fit")
	}

	// A request whose word count exceeds the draw-store capacity must
	// also report ok=false regardless of mesh availability.
	if _, ok := b.score([]uint64{hello}, 5, 1000); ok {
		t.Fatal("scoring a request exceeding draw-store capacity should not fit")
	}
}

func TestGrowSizeDoublingRule(t *testing.T) {
	cases := []struct {
		requested, previous, want uint32
	}{
		{requested: 100, previous: 0, want: 100},
		{requested: 100, previous: 40, want: 100},
		{requested: 100, previous: 60, want: 120},
		{requested: 10, previous: 512, want: 1024},
	}
	for _, c := range cases {
		if got := growSize(c.requested, c.previous); got != c.want {
			t.Fatalf("growSize(%d, %d) = %d, want %d", c.requested, c.previous, got, c.want)
		}
	}
}

func TestIBoxUnion(t *testing.T) {
	a := IBox{X0: 0, Y0: 0, X1: 10, Y1: 5}
	b := IBox{X0: -2, Y0: 3, X1: 8, Y1: 20}

	got := a.Union(b)
	want := IBox{X0: -2, Y0: 0, X1: 10, Y1: 20}
	if got != want {
		t.Fatalf("Union = %+v, want %+v", got, want)
	}

	empty := IBox{}
	if got := empty.Union(a); got != a {
		t.Fatalf("Union of empty box should return the other box unchanged, got %+v", got)
	}
}
