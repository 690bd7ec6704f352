package core

import (
	"errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrUnknown          = errors.New("unknown")

	ErrInvalidHandle     = errors.New("invalid handle")
	ErrValidation        = errors.New("invalid creation description")
	ErrNestedBracket     = errors.New("begin called while the previous bracket is still open")
	ErrUnbalancedBracket = errors.New("end called without a matching begin")
	ErrNoShaderBound     = errors.New("no shader bound")
	ErrNotRecording      = errors.New("command encoder is not recording")
	ErrFenceTimeout      = errors.New("timed out waiting for fences")
	ErrDeviceLost        = errors.New("device lost")
	ErrNotSupported      = errors.New("operation not supported by the backend")
)
