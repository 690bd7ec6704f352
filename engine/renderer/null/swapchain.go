package null

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

/**
 * @brief An offscreen swap chain: a fixed set of back buffer objects cycled on
 * every Acquire.
 */
type SwapChain struct {
	desc        metadata.SwapChainCreationDescription
	mode        metadata.PresentMode
	backBuffers []any
	current     int
	presented   uint64
	acquired    bool
	destroyed   bool
}

func NewSwapChain(desc *metadata.SwapChainCreationDescription) (*SwapChain, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("null: swap chain size %dx%d is invalid", desc.Width, desc.Height)
	}
	count := 3
	if desc.DoubleBuffered {
		count = 2
	}
	sc := &SwapChain{
		desc:    *desc,
		mode:    desc.InitialPresentMode,
		current: -1,
	}
	for i := 0; i < count; i++ {
		sc.backBuffers = append(sc.backBuffers, &Object{ID: uint64(i + 1), Kind: metadata.ObjectTypeTexture})
	}
	return sc, nil
}

func (s *SwapChain) BackBufferDescription() metadata.TextureCreationDescription {
	format := s.desc.BackBufferFormat
	if format == metadata.ResourceFormatInvalid {
		format = metadata.ResourceFormatBGRAUByteNormalized
	}
	desc := metadata.DefaultTextureCreationDescription()
	desc.SetAsRenderTarget(s.desc.Width, s.desc.Height, format, metadata.MSAASampleCountNone)
	desc.AllowShaderResourceView = false
	return desc
}

func (s *SwapChain) BackBuffers() []any {
	return s.backBuffers
}

func (s *SwapChain) Acquire(time.Duration) (int, any, error) {
	s.current = (s.current + 1) % len(s.backBuffers)
	s.acquired = true
	return s.current, nil, nil
}

func (s *SwapChain) RenderFinished() any {
	return nil
}

func (s *SwapChain) Present() error {
	if !s.acquired {
		return fmt.Errorf("null: present without acquire")
	}
	s.acquired = false
	s.presented++
	return nil
}

func (s *SwapChain) Update(mode metadata.PresentMode) (bool, error) {
	s.mode = mode
	return false, nil
}

func (s *SwapChain) Destroy() {
	s.destroyed = true
}

func (s *SwapChain) PresentMode() metadata.PresentMode {
	return s.mode
}

func (s *SwapChain) Presented() uint64 {
	return s.presented
}

func (s *SwapChain) IsDestroyed() bool {
	return s.destroyed
}
