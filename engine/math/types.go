package math

// Vec2 represents a 2D vector.
type Vec2 struct {
	X, Y float32
}

// Vec4 represents a 4D vector, most commonly an RGBA colour or a
// (x0,y0,x1,y1) box.
type Vec4 struct {
	X, Y, Z, W float32
}

/**
 * @brief Represents the pixel-space extents of a 2d object.
 */
type Extents2D struct {
	/** @brief The minimum extents of the object. */
	Min Vec2
	/** @brief The maximum extents of the object. */
	Max Vec2
}

/**
 * @brief A single vertex used by the 2D renderers (quads, glyphs).
 */
type Vertex2D struct {
	/** @brief The position of the vertex, in pixels. */
	Position Vec2
	/** @brief The texture coordinate of the vertex, as unpacked floats. */
	Texcoord Vec2
}

// IBox is an integer pixel-space box, used by the suballocator/atlas/packer
// (which never deal in fractional pixels).
type IBox struct {
	X0, Y0, X1, Y1 int32
}

func (b IBox) Width() int32  { return b.X1 - b.X0 }
func (b IBox) Height() int32 { return b.Y1 - b.Y0 }

// Union returns the smallest box containing both b and o.
func (b IBox) Union(o IBox) IBox {
	return IBox{
		X0: min32(b.X0, o.X0),
		Y0: min32(b.Y0, o.Y0),
		X1: max32(b.X1, o.X1),
		Y1: max32(b.Y1, o.Y1),
	}
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
