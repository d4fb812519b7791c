// Package scenegraph is a retained-mode 2D scene-graph renderer for
// [Ebitengine], tuned for television-class constrained devices.
//
// Applications build a tree of [Node] values — rectangles, images,
// gradients, text — with per-frame animated properties. Each tick the
// [FrameDriver] flattens that tree into batched draw calls: it runs the
// update pass (transform/alpha propagation, clipping, render-state
// classification), schedules any render-to-texture subtrees in
// children-before-parents order, batches the visible quads into
// [RenderOp] values, and flushes them through the [GPUContext].
//
// Full documentation, tutorials, and examples are available at:
//
// https://phanxgames.github.io/willow/
//
// # Quick start
//
//	scene := scenegraph.NewScene()
//	// ... add nodes ...
//	scenegraph.Run(scene, scenegraph.RunConfig{
//		Title: "My Game", Width: 640, Height: 480,
//	})
//
// For full control, implement [ebiten.Game] yourself and call
// [Scene.Update] and [Scene.Draw] directly:
//
//	type Game struct{ scene *scenegraph.Scene }
//
//	func (g *Game) Update() error         { g.scene.Update(); return nil }
//	func (g *Game) Draw(s *ebiten.Image)  { g.scene.Draw(s) }
//	func (g *Game) Layout(w, h int) (int, int) { return w, h }
//
// # Scene graph
//
// Every visual element is a [Node]. Nodes form a tree rooted at
// [Scene.Root]. Children inherit their parent's transform and alpha.
//
// Create nodes with typed constructors: [NewContainer], [NewSprite],
// [NewText], [NewParticleEmitter], [NewMesh], [NewPolygon], and others.
// SDF text is attached to a node with [Node.SetSDFText].
//
//	container := scenegraph.NewContainer("ui")
//	scene.Root().AddChild(container)
//
//	sprite := scenegraph.NewSprite("hero", atlas.Region("hero_idle"))
//	sprite.X, sprite.Y = 100, 50
//	container.AddChild(sprite)
//
// For solid-color rectangles, use [NewSprite] with a zero-value
// [TextureRegion] and set [Node.Color] and [Node.ScaleX]/[Node.ScaleY]:
//
//	box := scenegraph.NewSprite("box", scenegraph.TextureRegion{})
//	box.ScaleX, box.ScaleY = 80, 40
//	box.Color = scenegraph.Color{R: 0.3, G: 0.7, B: 1, A: 1}
//
// # Key features
//
// The package includes render-to-texture nodes with automatic ordering
// (rtt.go), a reference-counted texture cache with byte-budget eviction
// (texture.go), an off-thread image decode pool (imagedecode.go), SDF text
// layout and glyph emission alongside the original bitmap/TTF text paths
// (sdftext.go, text.go), cameras with follow/scroll-to/zoom, CPU-simulated
// particles, mesh/polygon/rope geometry, Kage shader filters, masking,
// blend modes, lighting layers, tweens (via [gween]), and ECS integration
// (via [Donburi] adapter in scenegraph/ecs).
//
// See the full docs for guides on each feature:
// https://phanxgames.github.io/willow/
//
// [Ebitengine]: https://ebitengine.org
// [gween]: https://github.com/tanema/gween
// [Donburi]: https://github.com/yohamta/donburi
package scenegraph
