package scenegraph

// Config holds the enumerated configuration values from spec §6. All
// fields are plain, zero-value-friendly struct fields in the same idiom as
// the teacher's RunConfig (scene.go) and EmitterConfig (particle.go); there
// is no builder or functional-options layer.
type Config struct {
	// AppWidth and AppHeight are the logical viewport size in device-
	// independent pixels.
	AppWidth, AppHeight int

	// DevicePhysicalPixelRatio and DeviceLogicalPixelRatio scale logical
	// pixels to physical device pixels and back.
	DevicePhysicalPixelRatio float64
	DeviceLogicalPixelRatio  float64

	// ClearColor fills the screen at the start of the main pass.
	ClearColor Color

	// BoundsMargin expands the viewport for out-of-bounds testing. Either
	// set Margin (applied to all four sides) or MarginTRBL for independent
	// top/right/bottom/left values; MarginTRBL takes priority when any of
	// its components is non-zero.
	Margin     float64
	MarginTRBL [4]float64 // top, right, bottom, left

	// TxMemByteThreshold triggers texture eviction once TextureCache's
	// accounted bytes exceed it.
	TxMemByteThreshold int64

	// QuadBufferSize is the interleaved vertex arena size in bytes.
	QuadBufferSize int

	// MaxTextureImageUnits bounds a RenderOp's texture-unit array (the
	// local equivalent of MAX_TEXTURE_IMAGE_UNITS).
	MaxTextureImageUnits int

	// NumImageWorkers is the image decode worker pool size.
	NumImageWorkers int

	// ForceWebGL2 is carried for API parity with spec §6; this backend is
	// Ebitengine, which selects its own graphics API, so the flag is
	// inert here beyond being reported back by Config itself.
	ForceWebGL2 bool

	// EnableInspector and EnableContextSpy gate verbose logging in
	// errors.go's logEvent/logf.
	EnableInspector  bool
	EnableContextSpy bool

	// FPSUpdateInterval is a refresh interval in ticks. Nothing in the
	// package reads it: the FPS widget (fps.go) refreshes its label about
	// every 0.5 seconds regardless of this value.
	FPSUpdateInterval int

	// RTTPoolSizeClasses are the framebuffer-pool region sizes (spec §4.5,
	// §9 open question). Requests larger than the largest class in either
	// dimension fall back to a dedicated framebuffer.
	RTTPoolSizeClasses []int
}

// NewConfig returns the documented defaults from spec §6.
func NewConfig() Config {
	return Config{
		AppWidth:                 1920,
		AppHeight:                1080,
		DevicePhysicalPixelRatio: 1,
		DeviceLogicalPixelRatio:  1,
		ClearColor:               Color{0, 0, 0, 0},
		TxMemByteThreshold:       124 * 1024 * 1024,
		QuadBufferSize:           1024 * 1024,
		MaxTextureImageUnits:     8,
		NumImageWorkers:          2,
		FPSUpdateInterval:        30,
		RTTPoolSizeClasses:       []int{256, 512, 1024},
	}
}

// boundsMarginRect resolves Margin/MarginTRBL into the [top, right, bottom,
// left] form expandRect expects.
func (c Config) boundsMarginRect() [4]float64 {
	if c.MarginTRBL != ([4]float64{}) {
		return c.MarginTRBL
	}
	return [4]float64{c.Margin, c.Margin, c.Margin, c.Margin}
}

// Viewport returns the logical-pixel viewport rect implied by AppWidth/AppHeight.
func (c Config) Viewport() Rect {
	return Rect{X: 0, Y: 0, Width: float64(c.AppWidth), Height: float64(c.AppHeight)}
}
