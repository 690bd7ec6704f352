package null

import (
	"github.com/spaghettifunk/anima-gal/engine/math"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

type CommandKind uint8

const (
	CommandBeginRenderPass CommandKind = iota
	CommandEndRenderPass
	CommandBindPipeline
	CommandSetViewport
	CommandSetScissor
	CommandBindVertexBuffers
	CommandBindIndexBuffer
	CommandBindDescriptorSet
	CommandPushConstants
	CommandPipelineBarrier
	CommandDraw
	CommandDrawIndexed
	CommandDrawIndirect
	CommandDispatch
	CommandDispatchIndirect
	CommandCopyBuffer
	CommandUpdateBuffer
	CommandCopyTexture
	CommandClearUnorderedAccessView
	CommandBeginQuery
	CommandEndQuery
	CommandBeginDebugMarker
	CommandEndDebugMarker
	CommandUpload
)

var commandNames = map[CommandKind]string{
	CommandBeginRenderPass:          "BeginRenderPass",
	CommandEndRenderPass:            "EndRenderPass",
	CommandBindPipeline:             "BindPipeline",
	CommandSetViewport:              "SetViewport",
	CommandSetScissor:               "SetScissor",
	CommandBindVertexBuffers:        "BindVertexBuffers",
	CommandBindIndexBuffer:          "BindIndexBuffer",
	CommandBindDescriptorSet:        "BindDescriptorSet",
	CommandPushConstants:            "PushConstants",
	CommandPipelineBarrier:          "PipelineBarrier",
	CommandDraw:                     "Draw",
	CommandDrawIndexed:              "DrawIndexed",
	CommandDrawIndirect:             "DrawIndirect",
	CommandDispatch:                 "Dispatch",
	CommandDispatchIndirect:         "DispatchIndirect",
	CommandCopyBuffer:               "CopyBuffer",
	CommandUpdateBuffer:             "UpdateBuffer",
	CommandCopyTexture:              "CopyTexture",
	CommandClearUnorderedAccessView: "ClearUnorderedAccessView",
	CommandBeginQuery:               "BeginQuery",
	CommandEndQuery:                 "EndQuery",
	CommandBeginDebugMarker:         "BeginDebugMarker",
	CommandEndDebugMarker:           "EndDebugMarker",
	CommandUpload:                   "Upload",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "Unknown"
}

/**
 * @brief One recorded command. Only the fields relevant to the kind are set.
 */
type Command struct {
	Kind          CommandKind
	CommandBuffer uint64

	Pipeline *cache.Pipeline
	Viewport math.Viewport
	Scissor  math.Rectangle

	/** @brief First slot and slot count of a vertex buffer bind. */
	FirstSlot uint32
	Count     uint32

	Set     uint32
	Entries []cache.DescriptorEntry
	Compute bool

	Barriers barrier.Batch[barrier.ResourceKey]
	Resource any
	Data     []byte
	Args     [4]uint32
	Name     string
}

func (b *Backend) record(cb any, cmd Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := cb.(*CommandBuffer); ok && c != nil {
		cmd.CommandBuffer = c.ID
		c.Commands = append(c.Commands, cmd)
	}
	b.commands = append(b.commands, cmd)
}

// Recorded returns every command recorded since the last ResetRecorded.
func (b *Backend) Recorded() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Command(nil), b.commands...)
}

// RecordedKinds returns the kinds of the recorded commands, in order.
func (b *Backend) RecordedKinds() []CommandKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]CommandKind, len(b.commands))
	for i, c := range b.commands {
		kinds[i] = c.Kind
	}
	return kinds
}

func (b *Backend) ResetRecorded() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = b.commands[:0]
}

func (b *Backend) CmdBeginRenderPass(cb any, info *cache.RenderPassBeginInfo) {
	b.record(cb, Command{Kind: CommandBeginRenderPass, Args: [4]uint32{info.Width, info.Height}})
}

func (b *Backend) CmdEndRenderPass(cb any) {
	b.record(cb, Command{Kind: CommandEndRenderPass})
}

func (b *Backend) CmdBindPipeline(cb any, pipeline *cache.Pipeline) {
	b.record(cb, Command{Kind: CommandBindPipeline, Pipeline: pipeline, Compute: pipeline.Compute})
}

func (b *Backend) CmdSetViewport(cb any, viewport math.Viewport) {
	b.record(cb, Command{Kind: CommandSetViewport, Viewport: viewport})
}

func (b *Backend) CmdSetScissor(cb any, scissor math.Rectangle) {
	b.record(cb, Command{Kind: CommandSetScissor, Scissor: scissor})
}

func (b *Backend) CmdBindVertexBuffers(cb any, firstSlot uint32, buffers []any, offsets []uint64) {
	b.record(cb, Command{Kind: CommandBindVertexBuffers, FirstSlot: firstSlot, Count: uint32(len(buffers))})
}

func (b *Backend) CmdBindIndexBuffer(cb any, buffer any, offset uint64, indexType metadata.IndexType) {
	b.record(cb, Command{Kind: CommandBindIndexBuffer, Resource: buffer, Args: [4]uint32{uint32(offset), uint32(indexType)}})
}

func (b *Backend) CmdBindDescriptorSet(cb any, layout *cache.PipelineLayout, set uint32, entries []cache.DescriptorEntry, compute bool) error {
	b.mu.Lock()
	if b.failBinds > 0 {
		b.failBinds--
		b.mu.Unlock()
		return ErrInjectedFailure
	}
	b.mu.Unlock()
	b.record(cb, Command{
		Kind:    CommandBindDescriptorSet,
		Set:     set,
		Entries: append([]cache.DescriptorEntry(nil), entries...),
		Compute: compute,
	})
	return nil
}

func (b *Backend) CmdPushConstants(cb any, layout *cache.PipelineLayout, offset uint32, data []byte) {
	b.record(cb, Command{Kind: CommandPushConstants, Data: append([]byte(nil), data...), Args: [4]uint32{offset}})
}

func (b *Backend) CmdPipelineBarrier(cb any, batch barrier.Batch[barrier.ResourceKey]) {
	batch.Barriers = append([]barrier.Barrier[barrier.ResourceKey](nil), batch.Barriers...)
	b.record(cb, Command{Kind: CommandPipelineBarrier, Barriers: batch})
}

func (b *Backend) CmdDraw(cb any, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	b.record(cb, Command{Kind: CommandDraw, Args: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (b *Backend) CmdDrawIndexed(cb any, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	b.record(cb, Command{Kind: CommandDrawIndexed, Args: [4]uint32{indexCount, instanceCount, firstIndex, uint32(vertexOffset)}})
}

func (b *Backend) CmdDrawIndirect(cb any, buffer any, offset uint64, drawCount, stride uint32, indexed bool) {
	b.record(cb, Command{Kind: CommandDrawIndirect, Resource: buffer, Args: [4]uint32{uint32(offset), drawCount, stride}})
}

func (b *Backend) CmdDispatch(cb any, x, y, z uint32) {
	b.record(cb, Command{Kind: CommandDispatch, Args: [4]uint32{x, y, z}})
}

func (b *Backend) CmdDispatchIndirect(cb any, buffer any, offset uint64) {
	b.record(cb, Command{Kind: CommandDispatchIndirect, Resource: buffer, Args: [4]uint32{uint32(offset)}})
}

func (b *Backend) CmdCopyBuffer(cb any, src, dst any, regions []metadata.BufferCopyRegion) {
	s, _ := asObject(src)
	d, _ := asObject(dst)
	if s != nil && d != nil {
		for _, r := range regions {
			copy(d.Data[r.DstOffset:r.DstOffset+r.Size], s.Data[r.SrcOffset:r.SrcOffset+r.Size])
		}
	}
	b.record(cb, Command{Kind: CommandCopyBuffer, Resource: dst, Count: uint32(len(regions))})
}

func (b *Backend) CmdUpdateBuffer(cb any, dst any, offset uint64, data []byte) {
	if d, _ := asObject(dst); d != nil {
		copy(d.Data[offset:], data)
	}
	b.record(cb, Command{Kind: CommandUpdateBuffer, Resource: dst, Data: append([]byte(nil), data...)})
}

func (b *Backend) CmdCopyTexture(cb any, src, dst any, region metadata.TextureCopyRegion) {
	b.record(cb, Command{Kind: CommandCopyTexture, Resource: dst, Args: [4]uint32{region.Width, region.Height}})
}

func (b *Backend) CmdClearUnorderedAccessView(cb any, view any, values [4]uint32) {
	b.record(cb, Command{Kind: CommandClearUnorderedAccessView, Resource: view, Args: values})
}

func (b *Backend) CmdBeginQuery(cb any, query any) {
	b.record(cb, Command{Kind: CommandBeginQuery, Resource: query})
}

func (b *Backend) CmdEndQuery(cb any, query any) {
	b.record(cb, Command{Kind: CommandEndQuery, Resource: query})
}

func (b *Backend) CmdBeginDebugMarker(cb any, name string) {
	b.record(cb, Command{Kind: CommandBeginDebugMarker, Name: name})
}

func (b *Backend) CmdEndDebugMarker(cb any) {
	b.record(cb, Command{Kind: CommandEndDebugMarker})
}
