package scenegraph

import (
	"github.com/hajimehoshi/ebiten/v2"
)

// FrameDriver runs the single-threaded tick order spec §5 names: Update →
// RTT pass → main pass → present. Grounded on scene.go's gameShell, which
// is the teacher's own Update/Draw pair driven by ebiten.RunGame; FrameDriver
// generalizes that into an explicit, Platform-backed driver so the same
// sequencing can run under EbitenPlatform or a future headless/test
// platform without duplicating the ordering logic.
type FrameDriver struct {
	Platform Platform
	Scene    *Scene
	Decode   *ImageDecodePool
	Textures *TextureCache
	GPU      *GPUContext

	frame *Frame
}

// NewFrameDriver wires a Scene to its decode pool and texture cache so a
// completed background decode (ImageDecodePool.Drain) flows directly into
// TextureCache.Fulfill once per tick, closing the loop between
// imagedecode.go and texture.go that those two files leave unconnected on
// their own.
func NewFrameDriver(platform Platform, scene *Scene, cfg *Config) *FrameDriver {
	gpu := NewGPUContext(cfg)
	d := &FrameDriver{
		Platform: platform,
		Scene:    scene,
		Decode:   NewImageDecodePool(cfg),
		Textures: NewTextureCache(cfg),
		GPU:      gpu,
		frame:    NewFrame(),
	}
	scene.SetGPUContext(gpu)
	return d
}

// RequestTexture enqueues an async decode for key and returns a
// TextureStateLoading placeholder Texture immediately; the real image is
// installed by a future Tick's drain once decoding finishes.
func (d *FrameDriver) RequestTexture(key string, data []byte) *Texture {
	if t := d.Textures.Lookup(key); t != nil {
		return t
	}
	t := d.Textures.CreateTexture(key, nil)
	d.Decode.Submit(key, data)
	return t
}

// drainDecodes empties this tick's completed decode results into the
// texture cache (spec §4.7's "completion channel drained non-blockingly
// once per tick").
func (d *FrameDriver) drainDecodes() {
	d.Decode.Drain(func(key string, img *ebiten.Image, err error) {
		d.Textures.Fulfill(key, img, err)
	})
}

// Tick runs one full frame: advance the texture cache's frame counter,
// drain decodes, update the scene graph, render due RTT subtrees, render
// the main pass into screen, then evict over-budget textures.
func (d *FrameDriver) Tick(screen *ebiten.Image) error {
	d.frame.reset()
	d.Textures.BeginFrame(d.Textures.frame + 1)

	d.drainDecodes()

	d.Scene.Update()

	if rtt := d.Scene.RTT(); rtt != nil {
		rtt.RunRTTPass(func(n *Node, target *ebiten.Image) {
			d.frame.recordPass(FramePass{Node: n, Target: target})
			d.Scene.renderRTTSubtree(n, target)
		})
	}

	if d.Scene.ClearColor.A > 0 {
		screen.Fill(d.Scene.ClearColor.toRGBA())
	}
	d.frame.recordPass(FramePass{Target: screen, ClearColor: d.Scene.ClearColor})
	d.Scene.Draw(screen)

	d.Textures.EndFrame()
	return nil
}

// Run sizes the canvas and creates the context through Platform, then
// calls ebiten.RunGame directly with a small adapter game that calls Tick
// once per frame, mirroring scene.go's Run. It does not use
// Platform.StartFrameLoop: platform.go's frameLoopShell only knows about a
// plain tick func and passes it no screen image.
func (d *FrameDriver) Run(cfg RunConfig) error {
	w, h := cfg.Width, cfg.Height
	if w == 0 {
		w = 640
	}
	if h == 0 {
		h = 480
	}
	if err := d.Platform.CreateCanvas(w, h, cfg.Title); err != nil {
		return err
	}
	if err := d.Platform.CreateGLContext(); err != nil {
		return err
	}

	g := &frameDriverGame{driver: d, w: w, h: h}
	return ebiten.RunGame(g)
}

// frameDriverGame adapts FrameDriver.Tick to ebiten.Game, analogous to
// scene.go's gameShell but delegating the whole Update/Draw sequence to
// FrameDriver.Tick instead of calling Scene.Update/Scene.Draw separately.
type frameDriverGame struct {
	driver *FrameDriver
	w, h   int
}

func (g *frameDriverGame) Update() error { return nil }

func (g *frameDriverGame) Draw(screen *ebiten.Image) {
	_ = g.driver.Tick(screen)
}

func (g *frameDriverGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.w, g.h
}
