package barrier

/** @brief Pipeline stages a resource access happens in. */
type Stage uint32

const (
	StageNone Stage = 0
	StageTop  Stage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StagePixelShader
	StageEarlyDepth
	StageLateDepth
	StageColorOutput
	StageComputeShader
	StageTransfer
	StageHost
	StageBottom

	StageAllGraphics = StageDrawIndirect | StageVertexInput | StageVertexShader | StagePixelShader |
		StageEarlyDepth | StageLateDepth | StageColorOutput
	StageAllCommands = StageAllGraphics | StageComputeShader | StageTransfer
)

/** @brief Memory access kinds. */
type Access uint32

const (
	AccessNone         Access = 0
	AccessIndirectRead Access = 1 << iota
	AccessIndexRead
	AccessVertexRead
	AccessUniformRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorRead
	AccessColorWrite
	AccessDepthRead
	AccessDepthWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite

	accessWriteMask = AccessShaderWrite | AccessColorWrite | AccessDepthWrite | AccessTransferWrite | AccessHostWrite
)

func (a Access) IsWrite() bool {
	return a&accessWriteMask != 0
}

/** @brief Image layouts. Buffers always use LayoutUndefined. */
type Layout uint8

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

func (l Layout) String() string {
	switch l {
	case LayoutGeneral:
		return "general"
	case LayoutColorAttachment:
		return "color-attachment"
	case LayoutDepthStencilAttachment:
		return "depth-stencil-attachment"
	case LayoutDepthStencilReadOnly:
		return "depth-stencil-read-only"
	case LayoutShaderReadOnly:
		return "shader-read-only"
	case LayoutTransferSrc:
		return "transfer-src"
	case LayoutTransferDst:
		return "transfer-dst"
	case LayoutPresent:
		return "present"
	default:
		return "undefined"
	}
}

/**
 * @brief Last known use of a resource.
 */
type State struct {
	Stages Stage
	Access Access
	Layout Layout
}

// Common states used by the command encoder.
var (
	StateVertexBuffer   = State{Stages: StageVertexInput, Access: AccessVertexRead}
	StateIndexBuffer    = State{Stages: StageVertexInput, Access: AccessIndexRead}
	StateConstantBuffer = State{Stages: StageVertexShader | StagePixelShader | StageComputeShader, Access: AccessUniformRead}
	StateIndirect       = State{Stages: StageDrawIndirect, Access: AccessIndirectRead}
	StateShaderRead     = State{Stages: StageVertexShader | StagePixelShader | StageComputeShader, Access: AccessShaderRead, Layout: LayoutShaderReadOnly}
	StateShaderWrite    = State{Stages: StagePixelShader | StageComputeShader, Access: AccessShaderRead | AccessShaderWrite, Layout: LayoutGeneral}
	StateBufferRead     = State{Stages: StageVertexShader | StagePixelShader | StageComputeShader, Access: AccessShaderRead}
	StateBufferWrite    = State{Stages: StagePixelShader | StageComputeShader, Access: AccessShaderRead | AccessShaderWrite}
	StateColorTarget    = State{Stages: StageColorOutput, Access: AccessColorRead | AccessColorWrite, Layout: LayoutColorAttachment}
	StateDepthTarget    = State{Stages: StageEarlyDepth | StageLateDepth, Access: AccessDepthRead | AccessDepthWrite, Layout: LayoutDepthStencilAttachment}
	StateDepthRead      = State{Stages: StageEarlyDepth | StageLateDepth | StagePixelShader, Access: AccessDepthRead | AccessShaderRead, Layout: LayoutDepthStencilReadOnly}
	StateCopySrc        = State{Stages: StageTransfer, Access: AccessTransferRead, Layout: LayoutTransferSrc}
	StateCopyDst        = State{Stages: StageTransfer, Access: AccessTransferWrite, Layout: LayoutTransferDst}
	StateBufferCopySrc  = State{Stages: StageTransfer, Access: AccessTransferRead}
	StateBufferCopyDst  = State{Stages: StageTransfer, Access: AccessTransferWrite}
	StatePresent        = State{Stages: StageBottom, Layout: LayoutPresent}
)

/**
 * @brief A recorded transition of one resource. Native is whatever the
 * backend needs to emit the barrier (an image or a buffer).
 */
type Barrier[K comparable] struct {
	Key    K
	Native any
	Before State
	After  State
	/** @brief The previous content may be thrown away. */
	Discard bool
}

func (b *Barrier[K]) IsLayoutTransition() bool {
	return b.Before.Layout != b.After.Layout
}

/**
 * @brief A set of barriers applied by one backend call.
 */
type Batch[K comparable] struct {
	Barriers []Barrier[K]
	/** @brief A full memory barrier over all stages precedes the transitions. */
	Full bool
}

/**
 * @brief Identifies a tracked resource across the buffer and texture tables.
 */
type ResourceKey struct {
	Texture bool
	Handle  uint64
}
