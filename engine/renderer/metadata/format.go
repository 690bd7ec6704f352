package metadata

/**
 * @brief The element formats understood by the device. Conversion between
 * formats is left to the caller.
 */
type ResourceFormat uint8

const (
	ResourceFormatInvalid ResourceFormat = iota

	ResourceFormatRGBAFloat
	ResourceFormatRGBAUInt
	ResourceFormatRGBAInt
	ResourceFormatRGBFloat
	ResourceFormatRGFloat
	ResourceFormatRFloat
	ResourceFormatRUInt
	ResourceFormatRInt
	ResourceFormatRUShort
	ResourceFormatRGBAHalf
	ResourceFormatRGHalf
	ResourceFormatRHalf

	ResourceFormatRGBAUByteNormalized
	ResourceFormatRGBAUByteNormalizedsRGB
	ResourceFormatBGRAUByteNormalized
	ResourceFormatBGRAUByteNormalizedsRGB
	ResourceFormatRGUByteNormalized
	ResourceFormatRUByteNormalized
	ResourceFormatRGB10A2UIntNormalized
	ResourceFormatRG11B10Float

	ResourceFormatD16
	ResourceFormatD24S8
	ResourceFormatD32Float
	ResourceFormatD32FloatS8

	ResourceFormatCount
)

type formatInfo struct {
	name    string
	size    uint32
	depth   bool
	stencil bool
	srgb    bool
}

var formatTable = [ResourceFormatCount]formatInfo{
	ResourceFormatInvalid:                 {name: "Invalid"},
	ResourceFormatRGBAFloat:               {name: "RGBAFloat", size: 16},
	ResourceFormatRGBAUInt:                {name: "RGBAUInt", size: 16},
	ResourceFormatRGBAInt:                 {name: "RGBAInt", size: 16},
	ResourceFormatRGBFloat:                {name: "RGBFloat", size: 12},
	ResourceFormatRGFloat:                 {name: "RGFloat", size: 8},
	ResourceFormatRFloat:                  {name: "RFloat", size: 4},
	ResourceFormatRUInt:                   {name: "RUInt", size: 4},
	ResourceFormatRInt:                    {name: "RInt", size: 4},
	ResourceFormatRUShort:                 {name: "RUShort", size: 2},
	ResourceFormatRGBAHalf:                {name: "RGBAHalf", size: 8},
	ResourceFormatRGHalf:                  {name: "RGHalf", size: 4},
	ResourceFormatRHalf:                   {name: "RHalf", size: 2},
	ResourceFormatRGBAUByteNormalized:     {name: "RGBAUByteNormalized", size: 4},
	ResourceFormatRGBAUByteNormalizedsRGB: {name: "RGBAUByteNormalizedsRGB", size: 4, srgb: true},
	ResourceFormatBGRAUByteNormalized:     {name: "BGRAUByteNormalized", size: 4},
	ResourceFormatBGRAUByteNormalizedsRGB: {name: "BGRAUByteNormalizedsRGB", size: 4, srgb: true},
	ResourceFormatRGUByteNormalized:       {name: "RGUByteNormalized", size: 2},
	ResourceFormatRUByteNormalized:        {name: "RUByteNormalized", size: 1},
	ResourceFormatRGB10A2UIntNormalized:   {name: "RGB10A2UIntNormalized", size: 4},
	ResourceFormatRG11B10Float:            {name: "RG11B10Float", size: 4},
	ResourceFormatD16:                     {name: "D16", size: 2, depth: true},
	ResourceFormatD24S8:                   {name: "D24S8", size: 4, depth: true, stencil: true},
	ResourceFormatD32Float:                {name: "D32Float", size: 4, depth: true},
	ResourceFormatD32FloatS8:              {name: "D32FloatS8", size: 8, depth: true, stencil: true},
}

func (f ResourceFormat) info() formatInfo {
	if f >= ResourceFormatCount {
		return formatTable[ResourceFormatInvalid]
	}
	return formatTable[f]
}

func (f ResourceFormat) String() string {
	return f.info().name
}

// Size returns the size of one element (texel or vertex component) in bytes.
func (f ResourceFormat) Size() uint32 {
	return f.info().size
}

func (f ResourceFormat) IsValid() bool {
	return f != ResourceFormatInvalid && f < ResourceFormatCount
}

func (f ResourceFormat) IsDepth() bool {
	return f.info().depth
}

func (f ResourceFormat) IsStencil() bool {
	return f.info().stencil
}

func (f ResourceFormat) IsSRGB() bool {
	return f.info().srgb
}
