package scenegraph

import "math"

// alphaEpsilon is the worldAlpha threshold below which the update pass
// classifies a node as RenderStateOutOfBounds.
const alphaEpsilon = 1.0 / 255.0

// updateCtx bundles the per-frame constants needed by the update pass so
// they don't have to be threaded through every recursive call by value.
type updateCtx struct {
	viewport     Rect // the camera/screen viewport in world space
	boundsMargin Rect // viewport expanded by Config.BoundsMargin
	rtt          *RTTScheduler // registers/unregisters RTT nodes as they're encountered; nil disables RTT
}

// rectIntersect returns the intersection of a and b. If they don't overlap
// the result has non-positive Width or Height.
func rectIntersect(a, b Rect) Rect {
	x0 := math.Max(a.X, b.X)
	y0 := math.Max(a.Y, b.Y)
	x1 := math.Min(a.X+a.Width, b.X+b.Width)
	y1 := math.Min(a.Y+a.Height, b.Y+b.Height)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// expandRect grows r by margin on all four sides. A negative component in
// margin shrinks that side. Supports both the scalar and 4-tuple forms of
// Config.BoundsMargin (see config.go).
func expandRect(r Rect, margin [4]float64) Rect {
	top, right, bottom, left := margin[0], margin[1], margin[2], margin[3]
	return Rect{
		X:      r.X - left,
		Y:      r.Y - top,
		Width:  r.Width + left + right,
		Height: r.Height + top + bottom,
	}
}

// runUpdatePass walks the scene graph depth-first, pre-order, recomputing
// world transforms, world alpha, clipping rectangles, and RenderState for
// every node (spec §4.3). It replaces the teacher's bare
// updateWorldTransform with the full update pass; transform math itself
// (computeLocalTransform, multiplyAffine) is unchanged and lives in
// transform.go.
func runUpdatePass(root *Node, ctx updateCtx) {
	updateNode(root, identityTransform, 1.0, false, Rect{}, false, ctx)
}

// updateNode implements one step of the traversal described in spec §4.3.
// parentClipActive distinguishes "no clipping ancestor" from "clipped to a
// zero-area rect", since Rect's zero value is not a sentinel.
func updateNode(n *Node, parentTransform [6]float64, parentAlpha float64, parentRecomputed bool, parentClip Rect, parentClipActive bool, ctx updateCtx) {
	recompute := n.transformDirty || n.alphaDirty || parentRecomputed
	if recompute {
		local := computeLocalTransform(n)
		n.worldTransform = multiplyAffine(parentTransform, local)
		n.worldAlpha = parentAlpha * n.Alpha
		n.transformDirty = false
		n.alphaDirty = false
	}

	// Step: rotated clipping nodes silently behave as non-clippers (spec §3,
	// §4.3 edge cases). Children see the enclosing rect of the nearest
	// non-rotated clipping ancestor.
	clip := parentClip
	clipActive := parentClipActive
	isClipper := n.Clipping && n.Rotation == 0
	if isClipper {
		w, h := nodeDimensions(n)
		self := worldAABB(n.worldTransform, w, h)
		if clipActive {
			clip = rectIntersect(clip, self)
		} else {
			clip = self
		}
		clipActive = true
	}
	n.WorldClippingRect = clip
	n.ClipActive = clipActive

	// Step: worldAlpha below alphaEpsilon marks OutOfBounds, but children
	// are still visited so every invariant (transform, clip) stays
	// maintained. traverse does not read RenderState, so this classification
	// does not by itself stop quad emission.
	if n.worldAlpha < alphaEpsilon {
		n.RenderState = RenderStateOutOfBounds
	} else {
		w, h := nodeDimensions(n)
		aabb := worldAABB(n.worldTransform, w, h)
		switch {
		case aabb.Intersects(ctx.viewport):
			n.RenderState = RenderStateInViewport
		case aabb.Intersects(ctx.boundsMargin):
			n.RenderState = RenderStateInBounds
		default:
			n.RenderState = RenderStateOutOfBounds
		}
	}

	if ctx.rtt != nil {
		switch {
		case n.RTT && n.rttTarget == nil:
			ctx.rtt.ensureRTTTarget(n)
		case !n.RTT && n.rttTarget != nil:
			releaseRTTTarget(n.rttTarget)
			n.rttTarget = nil
		}
	}

	if !n.childrenSorted {
		resortChildren(n)
	}

	for _, child := range n.children {
		updateNode(child, n.worldTransform, n.worldAlpha, recompute, clip, clipActive, ctx)
	}
}

// screenClipRect converts n's WorldClippingRect (computed in world space by
// the update pass) into the screen space a given frame's draw calls are
// submitted in, for scissor application at submit time (spec §4.1/§4.3). The
// rect is re-derived here, rather than cached on the node, because the same
// world-space clip maps to a different screen rect under each camera/view.
func screenClipRect(n *Node, viewTransform [6]float64) (Rect, bool) {
	if !n.ClipActive {
		return Rect{}, false
	}
	return transformRect(viewTransform, n.WorldClippingRect), true
}

// transformRect maps a rect through an affine transform and returns the
// resulting axis-aligned bounding box (the rect may come out rotated by a
// non axis-aligned transform; scissor rects are always axis-aligned, so the
// enclosing box is the correct conservative clip).
func transformRect(m [6]float64, r Rect) Rect {
	x0, y0 := transformPoint(m, r.X, r.Y)
	x1, y1 := transformPoint(m, r.X+r.Width, r.Y)
	x2, y2 := transformPoint(m, r.X, r.Y+r.Height)
	x3, y3 := transformPoint(m, r.X+r.Width, r.Y+r.Height)
	minX := math.Min(math.Min(x0, x1), math.Min(x2, x3))
	minY := math.Min(math.Min(y0, y1), math.Min(y2, y3))
	maxX := math.Max(math.Max(x0, x1), math.Max(x2, x3))
	maxY := math.Max(math.Max(y0, y1), math.Max(y2, y3))
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// markSubtreeDirtyRTT walks up from n to the nearest RTT ancestor (if any)
// and marks it HasRTTUpdates, per spec §4.3 step 6. Called at mutation time
// (property setters, tree edits) rather than during the update pass, since
// the mutation — not the traversal — is the event that makes an RTT
// ancestor's cached texture stale.
func markSubtreeDirtyRTT(n *Node) {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.RTT {
			p.HasRTTUpdates = true
			return
		}
	}
}

// --- z-order maintenance (spec §4.3 "z-order maintenance") ---

// zOrderChangeBatchThreshold is the number of children that must have a
// pending ZIndex change in the same frame before resortChildren falls back
// to a full bucket sort instead of incremental binary-search insertion.
const zOrderChangeBatchThreshold = 4

// resortChildren rebuilds n's render-order child list (n.sortedChildren)
// from n.children, stable on ZIndex with insertion order breaking ties.
// SetZIndex marks the parent unsorted; this is invoked lazily by the update
// pass the next time the parent is visited.
func resortChildren(n *Node) {
	count := len(n.children)
	if cap(n.sortedChildren) < count {
		n.sortedChildren = make([]*Node, count)
	} else {
		n.sortedChildren = n.sortedChildren[:count]
	}
	copy(n.sortedChildren, n.children)

	if count > 1 {
		if count <= zOrderChangeBatchThreshold {
			binaryInsertSortByZIndex(n.sortedChildren)
		} else {
			bucketSortByZIndex(n.sortedChildren)
		}
	}
	n.childrenSorted = true
}

// binaryInsertSortByZIndex sorts a small slice in place with binary-search
// insertion, stable because insertion always goes after equal keys (which
// preserves the original insertion-order-as-tiebreak relative sequence
// since the input is already in insertion order).
func binaryInsertSortByZIndex(s []*Node) {
	for i := 1; i < len(s); i++ {
		key := s[i]
		lo, hi := 0, i
		for lo < hi {
			mid := (lo + hi) / 2
			if s[mid].ZIndex <= key.ZIndex {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		copy(s[lo+1:i+1], s[lo:i])
		s[lo] = key
	}
}

// bucketSortByZIndex sorts by bucketing children into contiguous ZIndex
// runs, which is linear when the ZIndex range is small (the common case:
// a handful of distinct UI layers) and falls back gracefully otherwise
// since it is driven by a map, not an array indexed by ZIndex directly.
func bucketSortByZIndex(s []*Node) {
	buckets := make(map[int][]*Node, len(s))
	keys := make([]int, 0, len(s))
	for _, n := range s {
		if _, ok := buckets[n.ZIndex]; !ok {
			keys = append(keys, n.ZIndex)
		}
		buckets[n.ZIndex] = append(buckets[n.ZIndex], n)
	}
	// Simple insertion sort over the (typically small) distinct-key set.
	for i := 1; i < len(keys); i++ {
		k := keys[i]
		j := i - 1
		for j >= 0 && keys[j] > k {
			keys[j+1] = keys[j]
			j--
		}
		keys[j+1] = k
	}
	idx := 0
	for _, k := range keys {
		for _, n := range buckets[k] {
			s[idx] = n
			idx++
		}
	}
}
