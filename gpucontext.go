package scenegraph

import (
	"github.com/hajimehoshi/ebiten/v2"
)

// maxEbitenShaderImages is Ebitengine's own per-draw-call texture-unit
// bound: a Kage shader call (DrawTrianglesShader) accepts up to 4 source
// images (Images[0..3]). That is this backend's MAX_TEXTURE_IMAGE_UNITS
// (spec §4.4); Config.MaxTextureImageUnits is clamped to it.
const maxEbitenShaderImages = 4

// GPUContext shadows the subset of GPU state spec §4.1 names (bound
// texture per unit, scissor rect, blend mode, current shader program,
// uniform values) so that redundant state changes collapse to no-ops
// before an Ebitengine draw-options value is even built. Grounded on the
// teacher's single-reused-DrawImageOptions idiom in batch.go
// (submitBatches avoids allocating one op per draw); GPUContext
// generalizes that into an explicit, testable shadow.
type GPUContext struct {
	cfg *Config

	texUnits      []*ebiten.Image
	scissor       Rect
	scissorActive bool
	blend         BlendMode
	blendSet      bool
	program       *ShaderProgram
	uniforms      map[string]any
}

// NewGPUContext creates a context wrapper with cfg.MaxTextureImageUnits
// texture-unit slots (clamped to the backend's real limit).
func NewGPUContext(cfg *Config) *GPUContext {
	units := maxEbitenShaderImages
	if cfg != nil && cfg.MaxTextureImageUnits > 0 && cfg.MaxTextureImageUnits < units {
		units = cfg.MaxTextureImageUnits
	}
	return &GPUContext{
		cfg:      cfg,
		texUnits: make([]*ebiten.Image, units),
		uniforms: make(map[string]any, 8),
	}
}

// BindTexture binds img to texture unit i, returning false (a no-op) if
// that unit already holds img.
func (g *GPUContext) BindTexture(unit int, img *ebiten.Image) bool {
	if unit < 0 || unit >= len(g.texUnits) {
		return false
	}
	if g.texUnits[unit] == img {
		return false
	}
	g.texUnits[unit] = img
	logf(g.cfg, "gpucontext: bind unit=%d", unit)
	return true
}

// BoundTexture returns the image currently shadowed as bound to unit, or
// nil if the unit is unbound or out of range.
func (g *GPUContext) BoundTexture(unit int) *ebiten.Image {
	if unit < 0 || unit >= len(g.texUnits) {
		return nil
	}
	return g.texUnits[unit]
}

// SetScissor updates the shadowed scissor rect. Returns false (a no-op) if
// the requested state already matches.
func (g *GPUContext) SetScissor(r Rect, active bool) bool {
	if active == g.scissorActive && (!active || r == g.scissor) {
		return false
	}
	g.scissor = r
	g.scissorActive = active
	logf(g.cfg, "gpucontext: scissor active=%v rect=%+v", active, r)
	return true
}

// Scissor returns the current shadowed scissor rect and whether it is active.
func (g *GPUContext) Scissor() (Rect, bool) {
	return g.scissor, g.scissorActive
}

// SetBlend updates the shadowed blend mode. Returns false if unchanged.
func (g *GPUContext) SetBlend(b BlendMode) bool {
	if g.blendSet && g.blend == b {
		return false
	}
	g.blend = b
	g.blendSet = true
	return true
}

// SetProgram updates the shadowed current shader program. Returns false if
// unchanged; clears the uniform cache on an actual change since uniform
// locations are meaningful only relative to the bound program.
func (g *GPUContext) SetProgram(p *ShaderProgram) bool {
	if g.program == p {
		return false
	}
	g.program = p
	for k := range g.uniforms {
		delete(g.uniforms, k)
	}
	return true
}

// SetUniform caches a uniform value by name for the currently bound
// program, returning false (a no-op) if the value is unchanged. Uniform
// values are compared with == ; callers pass comparable types (float64,
// [4]float32, etc.) matching Ebitengine Kage uniform conventions.
func (g *GPUContext) SetUniform(name string, value any) bool {
	if cur, ok := g.uniforms[name]; ok && cur == value {
		return false
	}
	g.uniforms[name] = value
	return true
}

// Reset clears all shadowed state, used after a context-lost recovery
// (spec §7) since every underlying GPU resource is invalid at that point.
func (g *GPUContext) Reset() {
	for i := range g.texUnits {
		g.texUnits[i] = nil
	}
	g.scissorActive = false
	g.blendSet = false
	g.program = nil
	for k := range g.uniforms {
		delete(g.uniforms, k)
	}
}

// --- RenderOp (spec §3 data model, §4.4) ---

// RenderOp is a contiguous slice of a Frame's interleaved vertex buffer
// plus the shader/texture/clip/target state it was batched under. Grounded
// on the teacher's batchKey + DrawTriangles32 call in batch.go, generalized
// with an explicit bounded texture-unit array per spec §4.4.
type RenderOp struct {
	Shader      *ShaderProgram
	TextureUnit [maxEbitenShaderImages]*ebiten.Image
	unitCount   int
	Blend       BlendMode
	Clip        Rect
	ClipActive  bool
	Target      *ebiten.Image // nil means the screen/back-buffer
	QuadCount   int

	vertexStart int // offset into the Frame's vertex arena
	vertexLen   int // number of float32 words written
}

// reset clears op for reuse as a fresh accumulator, keeping its backing
// TextureUnit array allocation.
func (op *RenderOp) reset() {
	*op = RenderOp{TextureUnit: op.TextureUnit}
}

// textureUnitIndex reports the unit index tex is bound to in this op, or
// -1 if not present.
func (op *RenderOp) textureUnitIndex(tex *ebiten.Image) int {
	for i := 0; i < op.unitCount; i++ {
		if op.TextureUnit[i] == tex {
			return i
		}
	}
	return -1
}

// tryAddTexture returns the unit index tex occupies in this op, binding it
// to a free slot if not already present. ok is false only when the op's
// texture-unit array is full and tex isn't already bound — spec §4.4 step 4
// treats that as grounds to close the op and start a new one; a caller that
// sees !ok on a freshly opened RenderOp has hit the fatal batching
// invariant (ErrBatchInvariant), since an empty op always has free slots.
func (op *RenderOp) tryAddTexture(tex *ebiten.Image, maxUnits int) (unit int, ok bool) {
	if idx := op.textureUnitIndex(tex); idx >= 0 {
		return idx, true
	}
	limit := maxUnits
	if limit > len(op.TextureUnit) || limit <= 0 {
		limit = len(op.TextureUnit)
	}
	if op.unitCount >= limit {
		return 0, false
	}
	op.TextureUnit[op.unitCount] = tex
	op.unitCount++
	return op.unitCount - 1, true
}

// canJoin reports whether a quad bound for shader/blend/clip/target/texture can
// be appended to op without closing it, per spec §4.4 step 3. The RTT
// boundary check is the caller's responsibility (it depends on scene-graph
// ancestry, not RenderOp state).
func (op *RenderOp) canJoin(shader *ShaderProgram, blend BlendMode, clip Rect, clipActive bool, target *ebiten.Image, tex *ebiten.Image, maxUnits int) bool {
	if op.Shader != shader {
		return false
	}
	if op.Blend != blend {
		return false
	}
	if op.Target != target {
		return false
	}
	if op.ClipActive != clipActive || (clipActive && op.Clip != clip) {
		return false
	}
	if op.textureUnitIndex(tex) >= 0 {
		return true
	}
	limit := maxUnits
	if limit > len(op.TextureUnit) || limit <= 0 {
		limit = len(op.TextureUnit)
	}
	return op.unitCount < limit
}
