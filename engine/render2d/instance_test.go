package render2d

import (
	"encoding/binary"
	"testing"
)

func TestEncodePositionAndPackedFields(t *testing.T) {
	inst := Instance{
		X0: 10, Y0: 20, X1: 110, Y1: 120,
		CornerRadius: 3, CornerSoftness: 1, AtlasPage: 2, Gradient: GradientTL2BR,
		ColorFrom: Color{255, 0, 0, 255}, ColorTo: Color{0, 0, 255, 255},
	}
	buf := make([]byte, InstanceSize)
	Encode(inst, buf)

	x0 := binary.LittleEndian.Uint16(buf[0:2])
	if pos, hi := x0&0xFFF, uint8(x0>>12); pos != 10 || hi != 3 {
		t.Fatalf("x0 field: pos=%d hi=%d, want pos=10 hi=3", pos, hi)
	}
	y0 := binary.LittleEndian.Uint16(buf[2:4])
	if pos, hi := y0&0xFFF, uint8(y0>>12); pos != 20 || hi != 1 {
		t.Fatalf("y0 field: pos=%d hi=%d, want pos=20 hi=1", pos, hi)
	}
	x1 := binary.LittleEndian.Uint16(buf[4:6])
	if pos, hi := x1&0xFFF, uint8(x1>>12); pos != 110 || hi != 2 {
		t.Fatalf("x1 field: pos=%d hi=%d, want pos=110 hi=2", pos, hi)
	}
	y1 := binary.LittleEndian.Uint16(buf[6:8])
	if pos, hi := y1&0xFFF, uint8(y1>>12); pos != 120 || hi != uint8(GradientTL2BR) {
		t.Fatalf("y1 field: pos=%d hi=%d, want pos=120 hi=%d", pos, hi, GradientTL2BR)
	}

	if buf[16] != 255 || buf[17] != 0 || buf[18] != 0 || buf[19] != 255 {
		t.Fatalf("color_from bytes = %v, want [255 0 0 255]", buf[16:20])
	}
	if buf[20] != 0 || buf[21] != 0 || buf[22] != 255 || buf[23] != 255 {
		t.Fatalf("color_to bytes = %v, want [0 0 255 255]", buf[20:24])
	}
}

func TestEncodeClampsPositionTo12Bits(t *testing.T) {
	inst := Instance{X0: -5, Y0: 0x2000, X1: 0, Y1: 0}
	buf := make([]byte, InstanceSize)
	Encode(inst, buf)

	x0 := binary.LittleEndian.Uint16(buf[0:2]) & 0xFFF
	if x0 != 0 {
		t.Fatalf("negative X0 should clamp to 0, got %d", x0)
	}
	y0 := binary.LittleEndian.Uint16(buf[2:4]) & 0xFFF
	if y0 != 0xFFF {
		t.Fatalf("oversized Y0 should clamp to 0xFFF, got %d", y0)
	}
}

func TestEncodeWithoutUVZeroesUVBytes(t *testing.T) {
	inst := Instance{HasUV: false}
	buf := make([]byte, InstanceSize)
	Encode(inst, buf)
	for i := 8; i < 16; i++ {
		if buf[i] != 0 {
			t.Fatalf("UV bytes should be zero when HasUV is false, byte %d = %d", i, buf[i])
		}
	}
}

func TestZeroDegeneratesInstance(t *testing.T) {
	buf := make([]byte, InstanceSize)
	Encode(Instance{X0: 1, Y0: 2, X1: 3, Y1: 4, ColorFrom: Color{1, 2, 3, 4}}, buf)
	Zero(buf)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %d after Zero, want 0", i, b)
		}
	}
}
