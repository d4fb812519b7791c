package scenegraph

import "github.com/hajimehoshi/ebiten/v2"

// sdfTextShaderSrc renders a multi-channel/single-channel signed-distance
// field glyph atlas: the stored distance crosses 0.5 at the glyph edge, and
// AA width is derived from the screen-space derivative of the texture
// coordinate so outlines stay crisp under scale. Grounded on filter.go's
// Kage shaders (colorMatrixShaderSrc etc.) for source layout and on
// Chlumsky's msdfgen median-of-three convention for the MSDF branch.
const sdfTextShaderSrc = `//kage:unit pixels
package main

var DistanceRange float
var IsMSDF float

func median(r, g, b float) float {
	return max(min(r, g), min(max(r, g), b))
}

func Fragment(dst vec4, src vec2, color vec4) vec4 {
	texel := imageSrc0At(src)
	var dist float
	if IsMSDF > 0.5 {
		dist = median(texel.r, texel.g, texel.b)
	} else {
		dist = texel.r
	}
	width := fwidth(dist) * DistanceRange
	if width <= 0 {
		width = 1.0 / 256.0
	}
	alpha := clamp((dist-0.5)/width+0.5, 0.0, 1.0)
	return vec4(color.rgb*alpha, alpha) * color.a
}
`

var sdfTextShader *ebiten.Shader

func ensureSDFTextShader() *ebiten.Shader {
	if sdfTextShader == nil {
		s, err := ebiten.NewShader([]byte(sdfTextShaderSrc))
		if err != nil {
			// Logged, not fatal: a nil Shader makes batch.go draw SDF glyph
			// quads through the default submitMesh path instead.
			logEvent(nil, &RenderError{Code: ErrShaderCompile, Name: shaderKindSDFText, Operation: "compile: " + err.Error()})
			return nil
		}
		sdfTextShader = s
	}
	return sdfTextShader
}

// PropertyBag is the minimal per-draw uniform/option set a ShaderProgram's
// Reuse predicate compares, avoiding a hard dependency on any one
// node kind's fields (spec §4.4 "shader.ReuseRenderOp(a, b) predicate").
type PropertyBag map[string]any

// ShaderProgram wraps an *ebiten.Shader together with the predicate that
// decides whether two draws using it may share one RenderOp. Grounded on
// filter.go's per-effect Kage shaders, generalized into a registry keyed by
// a shader "kind" so the batcher can look one up without knowing about
// filters, SDF text, or custom shaders individually.
type ShaderProgram struct {
	Kind    string
	Shader  *ebiten.Shader
	Reuse   func(a, b PropertyBag) bool
}

var shaderRegistry = map[string]*ShaderProgram{}

// defaultReuse allows batching whenever the two property bags are
// byte-for-byte equal — the conservative default for shader kinds that
// don't register a custom predicate.
func defaultReuse(a, b PropertyBag) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		if bv, ok := b[k]; !ok || bv != av {
			return false
		}
	}
	return true
}

// RegisterShaderProgram installs or replaces the program for kind.
func RegisterShaderProgram(kind string, shader *ebiten.Shader, reuse func(a, b PropertyBag) bool) *ShaderProgram {
	if reuse == nil {
		reuse = defaultReuse
	}
	p := &ShaderProgram{Kind: kind, Shader: shader, Reuse: reuse}
	shaderRegistry[kind] = p
	return p
}

// ShaderProgramByKind looks up a previously registered program.
func ShaderProgramByKind(kind string) *ShaderProgram {
	return shaderRegistry[kind]
}

const shaderKindSDFText = "sdf-text"
const shaderKindDefaultSprite = "sprite"

func init() {
	RegisterShaderProgram(shaderKindDefaultSprite, nil, defaultReuse)
	RegisterShaderProgram(shaderKindSDFText, ensureSDFTextShader(), func(a, b PropertyBag) bool {
		// SDF glyph quads batch together regardless of per-glyph UV rect —
		// only the font's distance-range/MSDF-ness and tint actually change
		// the shader's uniforms as a whole, and those are per-draw uniforms
		// (DistanceRange, IsMSDF, color) already compared by defaultReuse.
		return defaultReuse(a, b)
	})
}
