package scenegraph

import (
	"image"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
)

// rttTarget is the per-node RTT bookkeeping referenced from Node.rttTarget.
// Grounded on rendertarget.go's CacheAsTexture fields (cacheTexture,
// cacheDirty), generalized into an explicit scheduler entry with its own
// pooled framebuffer and sibling-ordering bookkeeping (spec §4.5).
type rttTarget struct {
	node       *Node
	fb         *ebiten.Image // the framebuffer this node renders into
	sizeClass  int           // the pool bucket fb was acquired from, or 0 for dedicated
	listIndex  int           // position in scene.rttNodes, maintained by insertRTTNode
	lastFailed bool
}

// rttFramebufferPool hands out framebuffers from size-classed buckets
// (Config.RTTPoolSizeClasses, default 256/512/1024) and falls back to a
// dedicated, never-pooled image above the largest class. Grounded on
// rendertarget.go's renderTexturePool; generalized from one power-of-two
// bucket set to the explicit tiers spec §4.5 names.
type rttFramebufferPool struct {
	classes []int
	buckets map[int][]*ebiten.Image
}

func newRTTFramebufferPool(classes []int) *rttFramebufferPool {
	c := append([]int(nil), classes...)
	sort.Ints(c)
	return &rttFramebufferPool{classes: c, buckets: make(map[int][]*ebiten.Image)}
}

// classFor returns the smallest size class that fits (w, h) in both
// dimensions, or 0 if none does (dedicated framebuffer required).
func (p *rttFramebufferPool) classFor(w, h int) int {
	need := w
	if h > need {
		need = h
	}
	for _, c := range p.classes {
		if need <= c {
			return c
		}
	}
	return 0
}

func (p *rttFramebufferPool) acquire(w, h int) (img *ebiten.Image, sizeClass int) {
	class := p.classFor(w, h)
	if class == 0 {
		return ebiten.NewImageWithOptions(image.Rect(0, 0, w, h), &ebiten.NewImageOptions{Unmanaged: true}), 0
	}
	if stack := p.buckets[class]; len(stack) > 0 {
		img = stack[len(stack)-1]
		p.buckets[class] = stack[:len(stack)-1]
		img.Clear()
		return img, class
	}
	return ebiten.NewImageWithOptions(image.Rect(0, 0, class, class), &ebiten.NewImageOptions{Unmanaged: true}), class
}

func (p *rttFramebufferPool) release(img *ebiten.Image, sizeClass int) {
	if img == nil {
		return
	}
	if sizeClass == 0 {
		img.Deallocate()
		return
	}
	p.buckets[sizeClass] = append(p.buckets[sizeClass], img)
}

// releaseRTTTarget returns rt's framebuffer to its pool (or deallocates a
// dedicated one). Called from Node.dispose.
func releaseRTTTarget(rt *rttTarget) {
	if rt == nil || rt.fb == nil {
		return
	}
	if rt.node != nil && rt.node.rttScheduler != nil {
		rt.node.rttScheduler.pool.release(rt.fb, rt.sizeClass)
		rt.node.rttScheduler.remove(rt.node)
	}
	rt.fb = nil
}

// RTTScheduler maintains the ordered list of RTT nodes so that, whenever
// one RTT node is nested inside another, the descendant always renders
// before the ancestor samples it (spec §4.5's "index(B) < index(A)"
// invariant for an RTT ancestor A and RTT descendant B). Grounded on
// rendertarget.go's renderSubtree/renderSpecialSubtreeNode recursive
// render-to-texture mechanism, generalized into an explicit ordered list so
// the whole pass can run as one flat loop instead of being reentered from
// inside Scene.traverse.
type RTTScheduler struct {
	cfg      *Config
	pool     *rttFramebufferPool
	rttNodes []*Node
}

// NewRTTScheduler creates a scheduler governed by cfg's RTTPoolSizeClasses.
func NewRTTScheduler(cfg *Config) *RTTScheduler {
	classes := []int{256, 512, 1024}
	if cfg != nil && len(cfg.RTTPoolSizeClasses) > 0 {
		classes = cfg.RTTPoolSizeClasses
	}
	return &RTTScheduler{cfg: cfg, pool: newRTTFramebufferPool(classes)}
}

// insertRTTNode inserts n into rttNodes such that every ancestor of n
// already in the list sits after n, and every descendant already in the
// list sits before n (spec §4.5). It walks up from n to find the nearest
// listed ancestor (the upper bound on n's insertion point) and scans the
// existing list for the furthest listed descendant of n (the lower bound),
// then inserts at the tighter of the two.
func (s *RTTScheduler) insertRTTNode(n *Node) {
	lower := 0
	upper := len(s.rttNodes)

	for p := n.Parent; p != nil; p = p.Parent {
		if p.rttTarget != nil && p.rttTarget.listIndex >= 0 && p.rttTarget.listIndex < len(s.rttNodes) {
			upper = p.rttTarget.listIndex
			break
		}
	}

	for i, other := range s.rttNodes {
		if other != n && isAncestor(n, other) && i >= lower {
			lower = i + 1
		}
	}
	if lower > upper {
		lower = upper
	}

	s.rttNodes = append(s.rttNodes, nil)
	copy(s.rttNodes[lower+1:], s.rttNodes[lower:len(s.rttNodes)-1])
	s.rttNodes[lower] = n
	s.reindex(lower)
}

// remove deletes n from rttNodes, used when RTT is disabled or the node is
// disposed.
func (s *RTTScheduler) remove(n *Node) {
	for i, other := range s.rttNodes {
		if other == n {
			s.rttNodes = append(s.rttNodes[:i], s.rttNodes[i+1:]...)
			s.reindex(i)
			return
		}
	}
}

func (s *RTTScheduler) reindex(from int) {
	for i := from; i < len(s.rttNodes); i++ {
		if rt := s.rttNodes[i].rttTarget; rt != nil {
			rt.listIndex = i
		}
	}
}

// ensureRTTTarget lazily creates n's rttTarget and registers n with the
// scheduler the first time RTT is toggled on.
func (s *RTTScheduler) ensureRTTTarget(n *Node) *rttTarget {
	if n.rttTarget != nil {
		return n.rttTarget
	}
	rt := &rttTarget{node: n, listIndex: -1}
	n.rttTarget = rt
	n.rttScheduler = s
	s.insertRTTNode(n)
	return rt
}

// RunRTTPass renders every RTT node's subtree into its framebuffer, in
// rttNodes order (descendants-before-ancestors), then clears HasRTTUpdates.
// A node whose framebuffer can't be allocated this frame renders nothing
// into its target and is retried next frame (spec §4.5 failure handling);
// emitSubtree performs the actual draw, provided by the caller (framedriver
// wires this to the batch pipeline in batch.go).
func (s *RTTScheduler) RunRTTPass(emitSubtree func(n *Node, target *ebiten.Image)) {
	for _, n := range s.rttNodes {
		if !n.HasRTTUpdates {
			continue
		}
		rt := n.rttTarget
		if rt == nil {
			continue
		}
		if rt.fb == nil {
			w, h := n.RTTWidth, n.RTTHeight
			if w <= 0 || h <= 0 {
				w, h = 1, 1
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						rt.lastFailed = true
						logEvent(s.cfg, &RenderError{Code: ErrRTTAllocation, Name: n.Name, Operation: "acquire framebuffer"})
					}
				}()
				rt.fb, rt.sizeClass = s.pool.acquire(w, h)
			}()
			if rt.fb == nil {
				continue
			}
		}
		rt.fb.Clear()
		emitSubtree(n, rt.fb)
		n.HasRTTUpdates = false
		rt.lastFailed = false
	}
}
