package vulkan

import (
	"encoding/binary"
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

func TestFormatRoundTrip(t *testing.T) {
	for f := metadata.ResourceFormat(1); f < metadata.ResourceFormatCount; f++ {
		vf := toVkFormat(f)
		if vf == vk.FormatUndefined {
			t.Fatalf("format %s has no Vulkan equivalent", f)
		}
		if back := fromVkFormat(vf); back != f {
			t.Fatalf("fromVkFormat(toVkFormat(%s)) = %s", f, back)
		}
	}
	if got := toVkFormat(metadata.ResourceFormatCount + 3); got != vk.FormatUndefined {
		t.Fatalf("out of range format mapped to %d", got)
	}
	if got := fromVkFormat(vk.FormatUndefined); got != metadata.ResourceFormatInvalid {
		t.Fatalf("undefined format mapped to %s", got)
	}
}

func TestAspectOf(t *testing.T) {
	tests := []struct {
		format metadata.ResourceFormat
		want   vk.ImageAspectFlags
	}{
		{metadata.ResourceFormatRGBAUByteNormalized, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{metadata.ResourceFormatD32Float, vk.ImageAspectFlags(vk.ImageAspectDepthBit)},
		{metadata.ResourceFormatD24S8, vk.ImageAspectFlags(vk.ImageAspectDepthBit) | vk.ImageAspectFlags(vk.ImageAspectStencilBit)},
	}
	for _, tt := range tests {
		if got := aspectOf(tt.format); got != tt.want {
			t.Fatalf("aspectOf(%s) = %#x, want %#x", tt.format, got, tt.want)
		}
	}
}

func TestRepackUint32(t *testing.T) {
	code := make([]byte, 8)
	binary.LittleEndian.PutUint32(code, spirvMagic)
	binary.LittleEndian.PutUint32(code[4:], 0x00010300)

	words, err := repackUint32(code)
	if err != nil {
		t.Fatalf("repackUint32: %v", err)
	}
	if len(words) != 2 || words[0] != spirvMagic || words[1] != 0x00010300 {
		t.Fatalf("unexpected words %#x", words)
	}

	bad := [][]byte{
		nil,
		code[:7],
		{1, 2, 3, 4},
	}
	for _, b := range bad {
		if _, err := repackUint32(b); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("repackUint32(%v) error = %v, want ErrValidation", b, err)
		}
	}
}

func TestBufferViewRange(t *testing.T) {
	buf := &Buffer{Size: 256}
	desc := &metadata.BufferCreationDescription{TotalSize: 256, StructSize: 16}

	tests := []struct {
		name         string
		first, count uint32
		raw          bool
		offset, size uint64
	}{
		{"whole structured", 0, 0, false, 0, 256},
		{"structured window", 2, 4, false, 32, 64},
		{"raw words", 8, 4, true, 32, 16},
		{"clamped to end", 14, 8, false, 224, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := bufferViewRange(buf, desc, tt.first, tt.count, tt.raw)
			if err != nil {
				t.Fatalf("bufferViewRange: %v", err)
			}
			if v.Offset != tt.offset || v.Range != tt.size {
				t.Fatalf("got offset %d range %d, want %d and %d", v.Offset, v.Range, tt.offset, tt.size)
			}
		})
	}

	if _, err := bufferViewRange(buf, desc, 16, 1, false); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("view past the end error = %v, want ErrValidation", err)
	}
}

func TestBuildVertexInput(t *testing.T) {
	desc := &metadata.VertexDeclarationCreationDescription{
		Attributes: []metadata.VertexAttribute{
			{Semantic: metadata.VertexAttributeSemanticPosition, Format: metadata.ResourceFormatRGBFloat, Slot: 0, Offset: 0},
			{Semantic: metadata.VertexAttributeSemanticTexCoord0, Format: metadata.ResourceFormatRGFloat, Slot: 0, Offset: 12},
			{Semantic: metadata.VertexAttributeSemanticColor0, Format: metadata.ResourceFormatRGBAUByteNormalized, Slot: 2, Offset: 0, PerInstance: true},
		},
	}
	desc.Strides[0] = 20
	desc.Strides[2] = 4

	input, err := buildVertexInput(desc)
	if err != nil {
		t.Fatalf("buildVertexInput: %v", err)
	}
	if len(input.Attributes) != 3 {
		t.Fatalf("got %d attributes, want 3", len(input.Attributes))
	}
	for i, a := range input.Attributes {
		if a.Location != uint32(i) {
			t.Fatalf("attribute %d has location %d", i, a.Location)
		}
	}
	if input.Attributes[1].Offset != 12 || input.Attributes[1].Format != vk.FormatR32g32Sfloat {
		t.Fatalf("unexpected texcoord attribute %+v", input.Attributes[1])
	}
	if len(input.Bindings) != 2 {
		t.Fatalf("got %d bindings, want 2", len(input.Bindings))
	}
	if b := input.Bindings[0]; b.Binding != 0 || b.Stride != 20 || b.InputRate != vk.VertexInputRateVertex {
		t.Fatalf("unexpected binding 0 %+v", b)
	}
	if b := input.Bindings[1]; b.Binding != 2 || b.Stride != 4 || b.InputRate != vk.VertexInputRateInstance {
		t.Fatalf("unexpected binding 2 %+v", b)
	}

	empty, err := buildVertexInput(nil)
	if err != nil || len(empty.Attributes) != 0 || len(empty.Bindings) != 0 {
		t.Fatalf("nil declaration = %+v, %v", empty, err)
	}

	desc.Attributes[0].Format = metadata.ResourceFormatInvalid
	if _, err := buildVertexInput(desc); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("invalid attribute format error = %v, want ErrValidation", err)
	}
}

func TestToVkStages(t *testing.T) {
	tests := []struct {
		name   string
		stages barrier.Stage
		src    bool
		want   vk.PipelineStageFlags
	}{
		{"empty source", barrier.StageNone, true, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)},
		{"empty destination", barrier.StageNone, false, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)},
		{"transfer", barrier.StageTransfer, true, vk.PipelineStageFlags(vk.PipelineStageTransferBit)},
		{
			"depth", barrier.StageEarlyDepth | barrier.StageLateDepth, false,
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) | vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit),
		},
	}
	for _, tt := range tests {
		if got := toVkStages(tt.stages, tt.src); got != tt.want {
			t.Fatalf("%s: got %#x, want %#x", tt.name, got, tt.want)
		}
	}
}

func TestBarrierStateMapping(t *testing.T) {
	if got := toVkLayout(barrier.StateShaderRead.Layout); got != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("shader read layout = %d", got)
	}
	if got := toVkLayout(barrier.StatePresent.Layout); got != vk.ImageLayoutPresentSrc {
		t.Fatalf("present layout = %d", got)
	}
	want := vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessShaderWriteBit)
	if got := toVkAccess(barrier.StateShaderWrite.Access); got != want {
		t.Fatalf("shader write access = %#x, want %#x", got, want)
	}
	if got := toVkAccess(barrier.AccessNone); got != 0 {
		t.Fatalf("no access mapped to %#x", got)
	}
}

func TestChoosePresentMode(t *testing.T) {
	all := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox, vk.PresentModeImmediate}
	tests := []struct {
		name  string
		modes []vk.PresentMode
		mode  metadata.PresentMode
		want  vk.PresentMode
	}{
		{"vsync", all, metadata.PresentModeVSync, vk.PresentModeFifo},
		{"immediate", all, metadata.PresentModeImmediate, vk.PresentModeImmediate},
		{"mailbox fallback", []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox}, metadata.PresentModeImmediate, vk.PresentModeMailbox},
		{"fifo fallback", []vk.PresentMode{vk.PresentModeFifo}, metadata.PresentModeImmediate, vk.PresentModeFifo},
	}
	for _, tt := range tests {
		if got := choosePresentMode(tt.modes, tt.mode); got != tt.want {
			t.Fatalf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestDepthLayout(t *testing.T) {
	desc := cache.RenderPassDescription{DepthFormat: metadata.ResourceFormatD32Float, DepthStore: cache.StoreOpStore}
	if got := depthLayout(&desc); got != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Fatalf("writable depth layout = %d", got)
	}
	desc.DepthStore = cache.StoreOpDontCare
	if got := depthLayout(&desc); got != vk.ImageLayoutDepthStencilReadOnlyOptimal {
		t.Fatalf("read-only depth layout = %d", got)
	}
}

func TestToVkDescriptorType(t *testing.T) {
	tests := []struct {
		in   metadata.ShaderResourceType
		want vk.DescriptorType
	}{
		{metadata.ShaderResourceTypeConstantBuffer, vk.DescriptorTypeUniformBuffer},
		{metadata.ShaderResourceTypeTexture, vk.DescriptorTypeSampledImage},
		{metadata.ShaderResourceTypeCombinedTextureSampler, vk.DescriptorTypeCombinedImageSampler},
		{metadata.ShaderResourceTypeSampler, vk.DescriptorTypeSampler},
		{metadata.ShaderResourceTypeTextureUAV, vk.DescriptorTypeStorageImage},
		{metadata.ShaderResourceTypeBuffer, vk.DescriptorTypeStorageBuffer},
		{metadata.ShaderResourceTypeBufferUAV, vk.DescriptorTypeStorageBuffer},
	}
	for _, tt := range tests {
		if got := toVkDescriptorType(tt.in); got != tt.want {
			t.Fatalf("toVkDescriptorType(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClampExtent(t *testing.T) {
	low := vk.Extent2D{Width: 64, Height: 64}
	high := vk.Extent2D{Width: 4096, Height: 2048}
	tests := []struct {
		in, want vk.Extent2D
	}{
		{vk.Extent2D{Width: 1280, Height: 720}, vk.Extent2D{Width: 1280, Height: 720}},
		{vk.Extent2D{Width: 8, Height: 720}, vk.Extent2D{Width: 64, Height: 720}},
		{vk.Extent2D{Width: 8192, Height: 4096}, vk.Extent2D{Width: 4096, Height: 2048}},
	}
	for _, tt := range tests {
		got := clampExtent(tt.in, low, high)
		if got.Width != tt.want.Width || got.Height != tt.want.Height {
			t.Fatalf("clampExtent(%dx%d) = %dx%d, want %dx%d",
				tt.in.Width, tt.in.Height, got.Width, got.Height, tt.want.Width, tt.want.Height)
		}
	}
}

func TestNextDescriptorPool(t *testing.T) {
	tests := []struct {
		name    string
		res     vk.Result
		fresh   bool
		wantErr bool
	}{
		{"used pool ran dry", vk.ErrorOutOfPoolMemory, false, false},
		{"used pool fragmented", vk.ErrorFragmentedPool, false, false},
		{"fresh pool too small", vk.ErrorOutOfPoolMemory, true, true},
		{"device out of memory", vk.ErrorOutOfDeviceMemory, false, true},
	}
	for _, tt := range tests {
		err := nextDescriptorPool(tt.res, tt.fresh)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: nextDescriptorPool() error = %v, want error %t", tt.name, err, tt.wantErr)
		}
	}
	if err := nextDescriptorPool(vk.ErrorOutOfPoolMemory, true); !errors.Is(err, errDescriptorSetTooLarge) {
		t.Fatalf("fresh pool error = %v, want errDescriptorSetTooLarge", err)
	}
}
