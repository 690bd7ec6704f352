package engine

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// The application name used in windowing, if applicable.
	Name string
	// Headless runs without a window or swap chain. Frames are submitted but
	// never presented.
	Headless bool
	// MaxFrames stops the loop after that many frames. Zero runs until the
	// window closes or Stop is called.
	MaxFrames uint64
}
