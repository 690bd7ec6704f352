package math

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

/**
 * @brief An integer rectangle, used for viewports, scissors and copy regions.
 */
type Rectangle struct {
	X, Y          int32
	Width, Height uint32
}

func (r Rectangle) IsEmpty() bool {
	return r.Width == 0 || r.Height == 0
}

/**
 * @brief A floating point viewport with a depth range.
 */
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

func (v Viewport) Rectangle() Rectangle {
	return Rectangle{X: int32(v.X), Y: int32(v.Y), Width: uint32(v.Width), Height: uint32(v.Height)}
}
