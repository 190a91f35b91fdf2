package display

import "testing"

// The Vulkan-backed half of Display (device/buffer/memory creation)
// needs a real device and is exercised by integration tests outside
// this package; the allocator bookkeeping underneath it is pure and
// tested directly here.
func TestStagingAllocatorPackOffer(t *testing.T) {
	a := newStagingAllocator(4096)

	off1, ok := a.ranges.Pack(256, 16)
	if !ok {
		t.Fatal("first pack should succeed")
	}
	off2, ok := a.ranges.Pack(256, 16)
	if !ok {
		t.Fatal("second pack should succeed")
	}
	if off2 == off1 {
		t.Fatal("distinct allocations must not share an offset")
	}

	a.ranges.Offer(off1)
	if a.ranges.Allocated() != 256 {
		t.Fatalf("allocated after offer = %d, want 256", a.ranges.Allocated())
	}
}
