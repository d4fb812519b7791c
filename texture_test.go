package scenegraph

import (
	"image"
	"testing"

	"github.com/hajimehoshi/ebiten/v2"
)

func newTestImage(w, h int) *ebiten.Image {
	return ebiten.NewImage(w, h)
}

func TestTextureCacheCreateAndLookup(t *testing.T) {
	c := NewTextureCache(NewConfig())
	img := newTestImage(64, 32)
	tex := c.CreateTexture("a", img)

	if tex.state != TextureStateLoaded {
		t.Fatalf("expected loaded state, got %v", tex.state)
	}
	if tex.Width != 64 || tex.Height != 32 {
		t.Fatalf("unexpected dimensions: %dx%d", tex.Width, tex.Height)
	}
	if got := c.Lookup("a"); got != tex {
		t.Fatalf("Lookup did not return the created texture")
	}
	if c.TotalBytes() != 64*32*4 {
		t.Fatalf("expected memory cost %d, got %d", 64*32*4, c.TotalBytes())
	}
}

func TestTextureCacheCreatePlaceholderThenFulfill(t *testing.T) {
	c := NewTextureCache(NewConfig())
	tex := c.CreateTexture("b", nil)
	if tex.state != TextureStateLoading {
		t.Fatalf("expected loading state for a nil-image create, got %v", tex.state)
	}

	img := newTestImage(8, 8)
	c.Fulfill("b", img, nil)
	if tex.state != TextureStateLoaded || tex.Image != img {
		t.Fatalf("Fulfill did not install the decoded image")
	}
}

func TestTextureCacheFulfillError(t *testing.T) {
	c := NewTextureCache(NewConfig())
	tex := c.CreateTexture("c", nil)
	c.Fulfill("c", nil, errDecodeFailedForTest)
	if tex.state != TextureStateFailed {
		t.Fatalf("expected failed state after an error Fulfill, got %v", tex.state)
	}
}

func TestTextureCacheSubTextureIsZeroCost(t *testing.T) {
	c := NewTextureCache(NewConfig())
	parent := c.CreateTexture("atlas", newTestImage(256, 256))
	before := c.TotalBytes()

	sub := c.SubTexture(parent, image.Rect(0, 0, 32, 32))
	if sub.Width != 32 || sub.Height != 32 {
		t.Fatalf("unexpected subtexture dimensions")
	}
	if memoryCostOf(sub.Width, sub.Height, true) != 0 {
		t.Fatalf("subtexture memory cost should be zero")
	}
	if c.TotalBytes() != before {
		t.Fatalf("creating a subtexture should not change accounted bytes: before=%d after=%d", before, c.TotalBytes())
	}
}

func TestTextureCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cfg := NewConfig()
	cfg.TxMemByteThreshold = 100 * 100 * 4 // room for one 100x100 texture
	c := NewTextureCache(cfg)

	old := c.CreateTexture("old", newTestImage(100, 100))
	c.BeginFrame(1)
	old.markUsed(1)

	fresh := c.CreateTexture("fresh", newTestImage(100, 100))
	c.BeginFrame(2)
	fresh.markUsed(2)

	c.EndFrame()

	if c.Lookup("old") != nil {
		t.Fatalf("expected the least-recently-used texture to be evicted")
	}
	if c.Lookup("fresh") == nil {
		t.Fatalf("expected the most-recently-used texture to survive eviction")
	}
}

func TestTextureCacheRefCountedTextureSurvivesEviction(t *testing.T) {
	cfg := NewConfig()
	cfg.TxMemByteThreshold = 100 * 100 * 4
	c := NewTextureCache(cfg)

	pinned := c.CreateTexture("pinned", newTestImage(100, 100))
	pinned.retain()
	c.BeginFrame(1)
	pinned.markUsed(1)

	_ = c.CreateTexture("second", newTestImage(100, 100))
	c.BeginFrame(2)

	c.EndFrame()

	if c.Lookup("pinned") == nil {
		t.Fatalf("a texture with a positive refcount must never be evicted")
	}
}

func TestTextureCacheEvictsOutOfBoundsTextureWhileReferenced(t *testing.T) {
	cfg := NewConfig()
	cfg.TxMemByteThreshold = 100 * 100 * 4
	c := NewTextureCache(cfg)

	tex := c.CreateTexture("owned", newTestImage(100, 100))
	n := NewContainer("n")
	n.SetTexture(tex)
	n.RenderState = RenderStateOutOfBounds

	c.BeginFrame(1)
	tex.markUsed(1)

	c.BeginFrame(2)
	_ = c.CreateTexture("second", newTestImage(100, 100))

	c.EndFrame()

	if c.Lookup("owned") != nil {
		t.Fatalf("a referenced texture whose only owner is OutOfBounds must still be evicted")
	}
}

func TestNodeSetTextureRetainsAndReleases(t *testing.T) {
	c := NewTextureCache(NewConfig())
	a := c.CreateTexture("a", newTestImage(4, 4))
	b := c.CreateTexture("b", newTestImage(4, 4))

	n := NewContainer("n")
	n.SetTexture(a)
	if a.refCount != 1 {
		t.Fatalf("expected refCount 1 after SetTexture, got %d", a.refCount)
	}

	n.SetTexture(b)
	if a.refCount != 0 {
		t.Fatalf("expected the old texture to be released, got refCount %d", a.refCount)
	}
	if b.refCount != 1 {
		t.Fatalf("expected the new texture to be retained, got refCount %d", b.refCount)
	}
	if n.Texture() != b {
		t.Fatalf("Texture() should return the currently bound texture")
	}
}

var errDecodeFailedForTest = &RenderError{Code: ErrTextureLoad, Name: "test", Operation: "decode"}
