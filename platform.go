package scenegraph

import (
	"bytes"
	"image"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
)

// Platform isolates every direct call into the windowing/GPU backend (spec
// §6's external-interfaces boundary: create_canvas, create_gl_context,
// load_image, decode_blob, fetch_bytes, timestamp, register_font,
// start_frame_loop). Grounded on scene.go's Run/gameShell, which is the
// teacher's own single concrete point of contact with Ebitengine's window
// and run-loop APIs; Platform generalizes that boundary into an interface.
// FrameDriver (framedriver.go) uses it for CreateCanvas and CreateGLContext
// and still calls ebiten.RunGame itself.
type Platform interface {
	// CreateCanvas sizes the output window/surface in logical pixels.
	CreateCanvas(width, height int, title string) error
	// CreateGLContext is a no-op hook on this backend: Ebitengine selects
	// its own graphics API during RunGame, so context creation happens
	// implicitly at StartFrameLoop rather than as a separate step.
	CreateGLContext() error
	// LoadImage decodes image bytes into a GPU-backed image synchronously,
	// for platform-level assets (fonts, startup textures) that must be
	// ready before the first frame. Runtime content loading goes through
	// ImageDecodePool instead.
	LoadImage(data []byte) (*ebiten.Image, error)
	// DecodeBlob parses raw bytes with an image format decoder without
	// uploading to the GPU, used when only pixel data is needed (atlas
	// preprocessing, SDF page inspection).
	DecodeBlob(data []byte) (image.Image, error)
	// FetchBytes reads a local asset by path. There is no network fetch:
	// this backend targets a packaged device application, not a browser.
	FetchBytes(path string) ([]byte, error)
	// Timestamp returns the current monotonic time, used for
	// lastUsedFrame/time-based animation instead of calling time.Now
	// directly from library code.
	Timestamp() time.Time
	// RegisterFont makes a TTF face available to TTFFont/LoadTTFFont.
	RegisterFont(data []byte) (*text.GoTextFaceSource, error)
	// StartFrameLoop hands control to the backend's run loop, calling tick
	// once per frame until the loop exits or the platform is closed.
	StartFrameLoop(tick func() error) error
}

// EbitenPlatform is the default Platform backed directly by Ebitengine,
// mirroring scene.go's Run/gameShell wiring.
type EbitenPlatform struct {
	width, height int
}

// NewEbitenPlatform constructs the default platform implementation.
func NewEbitenPlatform() *EbitenPlatform {
	return &EbitenPlatform{}
}

func (p *EbitenPlatform) CreateCanvas(width, height int, title string) error {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	p.width, p.height = width, height
	ebiten.SetWindowSize(width, height)
	if title != "" {
		ebiten.SetWindowTitle(title)
	}
	return nil
}

func (p *EbitenPlatform) CreateGLContext() error {
	return nil
}

func (p *EbitenPlatform) LoadImage(data []byte) (*ebiten.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return ebiten.NewImageFromImage(img), nil
}

func (p *EbitenPlatform) DecodeBlob(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func (p *EbitenPlatform) FetchBytes(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (p *EbitenPlatform) Timestamp() time.Time {
	return time.Now()
}

func (p *EbitenPlatform) RegisterFont(data []byte) (*text.GoTextFaceSource, error) {
	return text.NewGoTextFaceSource(bytes.NewReader(data))
}

// frameLoopShell adapts a plain tick function to ebiten.Game for
// StartFrameLoop. FrameDriver does not use it; FrameDriver.Run drives its
// own frameDriverGame.
type frameLoopShell struct {
	tick          func() error
	width, height int
}

func (g *frameLoopShell) Update() error { return g.tick() }
func (g *frameLoopShell) Draw(screen *ebiten.Image) {
	// The tick func runs in Update and receives no screen image; nothing
	// is drawn here.
}
func (g *frameLoopShell) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.width, g.height
}

func (p *EbitenPlatform) StartFrameLoop(tick func() error) error {
	return ebiten.RunGame(&frameLoopShell{tick: tick, width: p.width, height: p.height})
}
