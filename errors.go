package scenegraph

import "log"

// ErrorCode enumerates the error kinds from spec §7.
type ErrorCode uint8

const (
	// ErrContextLost means the GPU context was invalidated. The frame
	// loop suspends; all GPU resources are marked freed until recovery.
	ErrContextLost ErrorCode = iota
	// ErrShaderCompile means a shader failed to compile or link. The SDF
	// text shader logs it and its glyph quads fall back to the default mesh
	// draw; filter.go's built-in filter shaders panic on compile failure
	// instead of reporting it.
	ErrShaderCompile
	// ErrTextureLoad means a texture's source data failed to load.
	ErrTextureLoad
	// ErrTextureTooLarge means a texture exceeds the device's maximum
	// texture size.
	ErrTextureTooLarge
	// ErrRTTAllocation means a framebuffer could not be allocated for an
	// RTT node this frame.
	ErrRTTAllocation
	// ErrBatchInvariant means a quad could not be fit into a fresh
	// RenderOp — a programming error, since a fresh op has every texture
	// slot free. This is the one fatal kind (see RenderError.Fatal).
	ErrBatchInvariant
	// ErrImageWorker means a single image-decode request failed; it has
	// no effect on other in-flight requests.
	ErrImageWorker
)

// String names the error kind for log output.
func (c ErrorCode) String() string {
	switch c {
	case ErrContextLost:
		return "context-lost"
	case ErrShaderCompile:
		return "shader-compile"
	case ErrTextureLoad:
		return "texture-load"
	case ErrTextureTooLarge:
		return "texture-too-large"
	case ErrRTTAllocation:
		return "rtt-allocation"
	case ErrBatchInvariant:
		return "batch-invariant"
	case ErrImageWorker:
		return "image-worker"
	default:
		return "unknown"
	}
}

// RenderError is the structured error record spec §7 requires. Recoverable
// kinds are logged and update entity state (Texture.state, Node.HasRTTUpdates,
// etc.) rather than propagating through the frame tick; only ErrBatchInvariant
// is fatal, surfaced as a panic by submitBatchesCoalesced (batch.go) when
// RenderOp.tryAddTexture rejects a texture.
type RenderError struct {
	Code      ErrorCode
	Name      string // the entity the error concerns (texture key, shader kind, node name)
	Operation string // what was being attempted
}

func (e *RenderError) Error() string {
	return e.Code.String() + ": " + e.Operation + " (" + e.Name + ")"
}

// Fatal reports whether this error kind should never be swallowed. Only
// ErrBatchInvariant qualifies (spec §7's "fatal; indicates a programming
// error").
func (e *RenderError) Fatal() bool {
	return e.Code == ErrBatchInvariant
}

// logEvent records a recoverable RenderError. Mirrors the teacher's
// debug.go idiom (log.Printf gated by a flag) rather than a logging
// library — see DESIGN.md for why no third-party logger is wired.
func logEvent(cfg *Config, err *RenderError) {
	if cfg == nil || cfg.EnableInspector || cfg.EnableContextSpy {
		log.Printf("scenegraph: %s", err.Error())
	}
}

// logf is the plain formatted-log helper used outside the RenderError path
// (e.g. context-spy GL call tracing in gpucontext.go).
func logf(cfg *Config, format string, args ...any) {
	if cfg != nil && cfg.EnableContextSpy {
		log.Printf(format, args...)
	}
}
