package scenegraph

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"
)

// TextureState enumerates a Texture's lifecycle (spec §4.2).
type TextureState uint8

const (
	// TextureStateFree means no GPU resource is allocated yet.
	TextureStateFree TextureState = iota
	// TextureStateLoading means a load request is in flight — see
	// imagedecode.go for the worker pool that fills these.
	TextureStateLoading
	// TextureStateLoaded means Image is valid and ready to bind.
	TextureStateLoaded
	// TextureStateFailed means the load errored; Image stays nil and the
	// cache does not retry (CreateTexture returns the failed entry for its
	// key).
	TextureStateFailed
)

func (s TextureState) String() string {
	switch s {
	case TextureStateFree:
		return "free"
	case TextureStateLoading:
		return "loading"
	case TextureStateLoaded:
		return "loaded"
	case TextureStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Texture is a cache-managed GPU resource keyed by a content fingerprint.
// Grounded on the teacher's Atlas/TextureRegion pairing (atlas.go) — Atlas
// pages are pre-baked at load time and never evicted, whereas Texture here
// is the individually-evictable, reference-counted unit spec §4.2 names.
// A Texture wraps either a loaded full ebiten.Image or a SubImage view onto
// a parent Texture (the "subtextures are zero-cost logical views" rule).
type Texture struct {
	key    string
	Image  *ebiten.Image
	Width  int
	Height int

	state         TextureState
	refCount      int
	memoryBytes   int64
	lastUsedFrame uint64
	preventCleanup bool

	parent *Texture // non-nil for a subtexture view; parent owns the GPU memory
	cache  *TextureCache
	owners []*Node // nodes currently bound to this texture via SetTexture
}

// addOwner records n as holding a reference to t, for the OutOfBounds
// eviction-eligibility check in TextureCache.EndFrame.
func (t *Texture) addOwner(n *Node) {
	t.owners = append(t.owners, n)
}

// removeOwner drops n from t's owner list (SetTexture rebinding, node
// teardown). Owner lists stay small — one entry per node currently
// displaying this texture — so a linear scan is the right tool.
func (t *Texture) removeOwner(n *Node) {
	for i, o := range t.owners {
		if o == n {
			t.owners = append(t.owners[:i], t.owners[i+1:]...)
			return
		}
	}
}

// evictionEligible reports whether t may be reclaimed by the budget pass:
// either genuinely unreferenced, or referenced only by nodes currently
// classified RenderStateOutOfBounds (spec §4.2's "or whose owning nodes are
// currently OutOfBounds beyond the bounds margin" clause) — a node parked
// far outside the viewport still holds a ref, but its texture is exactly
// the memory EndFrame should reclaim before anything still on screen.
func (t *Texture) evictionEligible() bool {
	if t.refCount == 0 {
		return true
	}
	if len(t.owners) == 0 {
		return false
	}
	for _, n := range t.owners {
		if n.RenderState != RenderStateOutOfBounds {
			return false
		}
	}
	return true
}

// memoryCostOf returns the accounted byte cost of the texture: RGBA8, 4 bytes
// per pixel, zero for subtexture views since they own no GPU memory of
// their own (spec §4.2 "subtextures are zero-cost").
func memoryCostOf(w, h int, isSubtexture bool) int64 {
	if isSubtexture {
		return 0
	}
	return int64(w) * int64(h) * 4
}

// retain increments the reference count. Nodes call this indirectly via
// Node.SetTexture.
func (t *Texture) retain() {
	t.refCount++
}

// release decrements the reference count. The texture becomes eligible for
// eviction (if not PreventCleanup) once the count reaches zero; it is not
// freed immediately, since another node may reacquire the same key before
// the next eviction pass runs.
func (t *Texture) release() {
	if t == nil {
		return
	}
	t.refCount--
	if t.refCount < 0 {
		t.refCount = 0
	}
}

// markUsed stamps the texture as referenced this frame, read by the
// eviction pass to implement least-recently-used ordering.
func (t *Texture) markUsed(frame uint64) {
	t.lastUsedFrame = frame
	if t.parent != nil {
		t.parent.markUsed(frame)
	}
}

// SetPreventCleanup exempts the texture from byte-budget eviction
// regardless of reference count — for resources the application knows it
// will need again shortly (e.g. a RenderTexture reused every frame).
func (t *Texture) SetPreventCleanup(prevent bool) {
	t.preventCleanup = prevent
}

// --- TextureCache ---

// pendingLoad tracks an in-flight decode request so a second node
// requesting the same key attaches to the existing load instead of issuing
// a duplicate one (spec §4.2 "at most one in-flight load per key").
type pendingLoad struct {
	waiters []*Texture
}

// TextureCache owns every Texture keyed by content fingerprint, accounts
// total bytes against Config.TxMemByteThreshold, and evicts by
// lastUsedFrame ascending once the budget is exceeded. Grounded on the
// teacher's renderTexturePool (rendertarget.go), generalized from a
// fixed-size-class pool of *ebiten.Image into a keyed, refcounted,
// byte-budgeted cache of Texture.
type TextureCache struct {
	cfg *Config

	byKey   map[string]*Texture
	loading map[string]*pendingLoad

	totalBytes  int64
	frame       uint64
	evictionBuf []*Texture // reused scratch slice for the eviction sort
}

// NewTextureCache creates an empty cache governed by cfg.
func NewTextureCache(cfg *Config) *TextureCache {
	return &TextureCache{
		cfg:     cfg,
		byKey:   make(map[string]*Texture),
		loading: make(map[string]*pendingLoad),
	}
}

// Lookup returns the cached texture for key, or nil if absent.
func (c *TextureCache) Lookup(key string) *Texture {
	return c.byKey[key]
}

// CreateTexture registers img under key. If key is already present, the
// existing entry is returned unchanged and img is ignored. img may be nil to create a
// TextureStateLoading placeholder that imagedecode.go's worker pool will
// fill in later via Fulfill.
func (c *TextureCache) CreateTexture(key string, img *ebiten.Image) *Texture {
	if existing, ok := c.byKey[key]; ok {
		return existing
	}
	t := &Texture{key: key, cache: c, lastUsedFrame: c.frame}
	if img != nil {
		c.installImage(t, img)
	} else {
		t.state = TextureStateLoading
	}
	c.byKey[key] = t
	return t
}

func (c *TextureCache) installImage(t *Texture, img *ebiten.Image) {
	b := img.Bounds()
	t.Image = img
	t.Width = b.Dx()
	t.Height = b.Dy()
	t.state = TextureStateLoaded
	t.memoryBytes = memoryCostOf(t.Width, t.Height, t.parent != nil)
	c.totalBytes += t.memoryBytes
}

// Fulfill completes a TextureStateLoading entry once imagedecode.go's
// worker pool finishes decoding it, notifying any attached waiters.
func (c *TextureCache) Fulfill(key string, img *ebiten.Image, err error) {
	t, ok := c.byKey[key]
	if !ok {
		return
	}
	if err != nil || img == nil {
		t.state = TextureStateFailed
		logEvent(c.cfg, &RenderError{Code: ErrTextureLoad, Name: key, Operation: "decode"})
	} else {
		c.installImage(t, img)
	}
	if pending, ok := c.loading[key]; ok {
		for _, waiter := range pending.waiters {
			if waiter != t {
				waiter.state = t.state
				waiter.Image = t.Image
			}
		}
		delete(c.loading, key)
	}
}

// SubTexture creates a zero-memory-cost logical view onto parent, covering
// the pixel rect r within it. Its own lifetime is independent (it is
// refcounted separately) but its GPU memory is always parent's.
func (c *TextureCache) SubTexture(parent *Texture, r image.Rectangle) *Texture {
	var img *ebiten.Image
	if parent.Image != nil {
		img = parent.Image.SubImage(r).(*ebiten.Image)
	}
	return &Texture{
		key:    parent.key + ":sub",
		Image:  img,
		Width:  r.Dx(),
		Height: r.Dy(),
		state:  parent.state,
		parent: parent,
		cache:  c,
	}
}

// BeginFrame stamps the current frame number, used by markUsed/eviction.
func (c *TextureCache) BeginFrame(frame uint64) {
	c.frame = frame
}

// ReleaseTexture is the inverse of retain: decrements the refcount and
// lets the next EndFrame eviction pass reclaim the memory if needed.
func (c *TextureCache) ReleaseTexture(t *Texture) {
	t.release()
}

// EndFrame runs the eviction pass: while totalBytes exceeds
// Config.TxMemByteThreshold, free the oldest (lowest lastUsedFrame)
// non-PreventCleanup texture that is either zero-refcount or referenced
// only by OutOfBounds nodes (evictionEligible), per spec §4.2's LRU-by-
// lastUsedFrame eviction rule.
func (c *TextureCache) EndFrame() {
	if c.cfg == nil || c.cfg.TxMemByteThreshold <= 0 {
		return
	}
	if c.totalBytes <= c.cfg.TxMemByteThreshold {
		return
	}

	c.evictionBuf = c.evictionBuf[:0]
	for _, t := range c.byKey {
		if t.preventCleanup || t.parent != nil || t.state != TextureStateLoaded {
			continue
		}
		if !t.evictionEligible() {
			continue
		}
		c.evictionBuf = append(c.evictionBuf, t)
	}
	binaryInsertSortByLastUsed(c.evictionBuf)

	for _, t := range c.evictionBuf {
		if c.totalBytes <= c.cfg.TxMemByteThreshold {
			break
		}
		c.evict(t)
	}
}

func (c *TextureCache) evict(t *Texture) {
	if t.Image != nil {
		t.Image.Deallocate()
	}
	c.totalBytes -= t.memoryBytes
	t.Image = nil
	t.state = TextureStateFree
	delete(c.byKey, t.key)
}

// TotalBytes reports the cache's current accounted GPU memory use.
func (c *TextureCache) TotalBytes() int64 {
	return c.totalBytes
}

// binaryInsertSortByLastUsed sorts textures ascending by lastUsedFrame
// with binary-search insertion — the eviction candidate set is expected
// to be small relative to the whole cache, matching the rationale
// scenegraph.go's binaryInsertSortByZIndex documents for small slices.
func binaryInsertSortByLastUsed(s []*Texture) {
	for i := 1; i < len(s); i++ {
		key := s[i]
		lo, hi := 0, i
		for lo < hi {
			mid := (lo + hi) / 2
			if s[mid].lastUsedFrame <= key.lastUsedFrame {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		copy(s[lo+1:i+1], s[lo:i])
		s[lo] = key
	}
}

// --- Node integration ---

// SetTexture binds the cache-managed texture t to this node, releasing any
// previously bound texture. Passing nil clears the node's texture.
func (n *Node) SetTexture(t *Texture) {
	if n.texture == t {
		return
	}
	if n.texture != nil {
		n.texture.release()
		n.texture.removeOwner(n)
	}
	n.texture = t
	if t != nil {
		t.retain()
		t.addOwner(n)
	}
	markSubtreeDirtyRTT(n)
}

// Texture returns the node's currently bound cache-managed texture, or nil.
func (n *Node) Texture() *Texture {
	return n.texture
}
