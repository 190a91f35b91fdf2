// Package render2d implements the instanced quad renderer: a
// rounded-box shader with gradient colors and optional atlas
// sampling, allocating packed instance records in growable batches.
package render2d

import (
	"encoding/binary"

	"github.com/spaghettifunk/hut/engine/math"
)

// Gradient selects how col_from/col_to interpolate across a quad.
type Gradient uint8

const (
	GradientT2B Gradient = iota
	GradientL2R
	GradientTL2BR
	GradientTR2BL
)

// Color is a straightforward RGBA color in [0,255] per channel.
type Color struct{ R, G, B, A uint8 }

// Instance describes one quad before packing. UV fields are left zero
// when the quad has no atlas subimage.
type Instance struct {
	X0, Y0, X1, Y1               int32
	CornerRadius, CornerSoftness uint8
	AtlasPage                    uint8
	Gradient                     Gradient
	U0, V0, U1, V1               float32
	HasUV                        bool
	ColorFrom, ColorTo           Color
}

// InstanceSize is the packed wire size of one instance record.
const InstanceSize = 32

// Encode packs inst into its 32-byte wire layout: four position
// components (low 12 bits) each carrying one packed 4-bit field in
// their high nibble, four snorm16 UV components, and two RGBA color
// endpoints.
func Encode(inst Instance, dst []byte) {
	pack := func(v int32, hi uint8) uint16 {
		clamped := v
		if clamped < 0 {
			clamped = 0
		}
		if clamped > 0xFFF {
			clamped = 0xFFF
		}
		return uint16(clamped) | uint16(hi&0xF)<<12
	}

	binary.LittleEndian.PutUint16(dst[0:2], pack(inst.X0, inst.CornerRadius))
	binary.LittleEndian.PutUint16(dst[2:4], pack(inst.Y0, inst.CornerSoftness))
	binary.LittleEndian.PutUint16(dst[4:6], pack(inst.X1, inst.AtlasPage))
	binary.LittleEndian.PutUint16(dst[6:8], pack(inst.Y1, uint8(inst.Gradient)))

	if inst.HasUV {
		binary.LittleEndian.PutUint16(dst[8:10], uint16(math.PackSnorm16(inst.U0)))
		binary.LittleEndian.PutUint16(dst[10:12], uint16(math.PackSnorm16(inst.V0)))
		binary.LittleEndian.PutUint16(dst[12:14], uint16(math.PackSnorm16(inst.U1)))
		binary.LittleEndian.PutUint16(dst[14:16], uint16(math.PackSnorm16(inst.V1)))
	} else {
		for i := 8; i < 16; i++ {
			dst[i] = 0
		}
	}

	dst[16], dst[17], dst[18], dst[19] = inst.ColorFrom.R, inst.ColorFrom.G, inst.ColorFrom.B, inst.ColorFrom.A
	dst[20], dst[21], dst[22], dst[23] = inst.ColorTo.R, inst.ColorTo.G, inst.ColorTo.B, inst.ColorTo.A
	for i := 24; i < InstanceSize; i++ {
		dst[i] = 0
	}
}

// Zero writes the degenerate "hidden" instance: a freed instance range
// is zeroed so it becomes a (0,0,0,0) box producing no fragments.
func Zero(dst []byte) {
	for i := range dst[:InstanceSize] {
		dst[i] = 0
	}
}
