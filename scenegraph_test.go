package scenegraph

import "testing"

func TestUpdateNodeClippingIntersectsAncestors(t *testing.T) {
	root := NewContainer("root")
	outer := NewSprite("outer", TextureRegion{OriginalW: 200, OriginalH: 200})
	outer.SetClipping(true)
	inner := NewSprite("inner", TextureRegion{OriginalW: 50, OriginalH: 50})
	inner.X = 300 // placed outside outer's clip rect
	inner.SetClipping(true)

	root.AddChild(outer)
	outer.AddChild(inner)

	runUpdatePass(root, updateCtx{})

	if !outer.ClipActive {
		t.Fatalf("outer should be an active clipper")
	}
	if outer.WorldClippingRect != (Rect{X: 0, Y: 0, Width: 200, Height: 200}) {
		t.Fatalf("outer clip rect = %+v", outer.WorldClippingRect)
	}
	if !inner.ClipActive {
		t.Fatalf("inner should inherit and combine with outer's clip")
	}
	// inner's own 50x50 box at x=300 does not overlap outer's 0..200 box,
	// so the intersection collapses to a non-positive rect.
	if inner.WorldClippingRect.Width > 0 && inner.WorldClippingRect.Height > 0 {
		t.Fatalf("expected inner clip rect to be empty after intersecting with outer, got %+v", inner.WorldClippingRect)
	}
}

func TestUpdateNodeClippingInactiveWithoutAncestor(t *testing.T) {
	root := NewContainer("root")
	child := NewSprite("child", TextureRegion{OriginalW: 10, OriginalH: 10})
	root.AddChild(child)

	runUpdatePass(root, updateCtx{})

	if child.ClipActive {
		t.Fatalf("a node with no clipping ancestor should not be ClipActive")
	}
}

func TestUpdateNodeRotatedClipperIsIgnored(t *testing.T) {
	root := NewContainer("root")
	clipper := NewSprite("clipper", TextureRegion{OriginalW: 100, OriginalH: 100})
	clipper.SetClipping(true)
	clipper.Rotation = 0.4
	child := NewSprite("child", TextureRegion{OriginalW: 10, OriginalH: 10})
	root.AddChild(clipper)
	clipper.AddChild(child)

	runUpdatePass(root, updateCtx{})

	if child.ClipActive {
		t.Fatalf("a rotated Clipping node must behave as a non-clipper")
	}
}

func TestUpdateNodeRenderStateClassification(t *testing.T) {
	root := NewContainer("root")
	inViewport := NewSprite("in", TextureRegion{OriginalW: 10, OriginalH: 10})
	inBounds := NewSprite("bounds", TextureRegion{OriginalW: 10, OriginalH: 10})
	inBounds.X = 150
	farAway := NewSprite("far", TextureRegion{OriginalW: 10, OriginalH: 10})
	farAway.X = 10000

	root.AddChild(inViewport)
	root.AddChild(inBounds)
	root.AddChild(farAway)

	ctx := updateCtx{
		viewport:     Rect{X: 0, Y: 0, Width: 100, Height: 100},
		boundsMargin: Rect{X: -100, Y: -100, Width: 300, Height: 300},
	}
	runUpdatePass(root, ctx)

	if inViewport.RenderState != RenderStateInViewport {
		t.Errorf("inViewport.RenderState = %v, want RenderStateInViewport", inViewport.RenderState)
	}
	if inBounds.RenderState != RenderStateInBounds {
		t.Errorf("inBounds.RenderState = %v, want RenderStateInBounds", inBounds.RenderState)
	}
	if farAway.RenderState != RenderStateOutOfBounds {
		t.Errorf("farAway.RenderState = %v, want RenderStateOutOfBounds", farAway.RenderState)
	}
}

func TestUpdateNodeZeroAlphaIsOutOfBounds(t *testing.T) {
	root := NewContainer("root")
	n := NewSprite("invisible", TextureRegion{OriginalW: 10, OriginalH: 10})
	n.Alpha = 0
	root.AddChild(n)

	ctx := updateCtx{viewport: Rect{X: 0, Y: 0, Width: 1000, Height: 1000}}
	runUpdatePass(root, ctx)

	if n.RenderState != RenderStateOutOfBounds {
		t.Fatalf("a fully transparent node must classify OutOfBounds regardless of position")
	}
}

func TestScreenClipRectInactiveWithoutClipper(t *testing.T) {
	n := NewContainer("n")
	if _, active := screenClipRect(n, identityTransform); active {
		t.Fatalf("screenClipRect should report inactive when ClipActive is false")
	}
}

func TestScreenClipRectAppliesViewTransform(t *testing.T) {
	n := NewContainer("n")
	n.ClipActive = true
	n.WorldClippingRect = Rect{X: 10, Y: 20, Width: 30, Height: 40}

	view := [6]float64{1, 0, 0, 1, -5, -5} // screen = world translated by (-5,-5)
	rect, active := screenClipRect(n, view)
	if !active {
		t.Fatalf("expected an active clip rect")
	}
	want := Rect{X: 5, Y: 15, Width: 30, Height: 40}
	if rect != want {
		t.Fatalf("screenClipRect = %+v, want %+v", rect, want)
	}
}

func TestTransformRectEnclosesRotatedCorners(t *testing.T) {
	// A 90-degree rotation: (a,b,c,d,tx,ty) = (0,1,-1,0,0,0).
	rot90 := [6]float64{0, 1, -1, 0, 0, 0}
	got := transformRect(rot90, Rect{X: 0, Y: 0, Width: 10, Height: 20})
	// Corners (0,0),(10,0),(0,20),(10,20) rotate to (0,0),(0,10),(-20,0),(-20,10).
	want := Rect{X: -20, Y: 0, Width: 20, Height: 10}
	if got != want {
		t.Fatalf("transformRect = %+v, want %+v", got, want)
	}
}

func TestRectIntersectNonOverlapping(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	b := Rect{X: 100, Y: 100, Width: 10, Height: 10}
	got := rectIntersect(a, b)
	if got.Width > 0 && got.Height > 0 {
		t.Fatalf("non-overlapping rects should intersect to a non-positive rect, got %+v", got)
	}
}

func TestExpandRectAsymmetricMargin(t *testing.T) {
	r := Rect{X: 0, Y: 0, Width: 100, Height: 100}
	// margin is [top, right, bottom, left]
	got := expandRect(r, [4]float64{1, 2, 3, 4})
	want := Rect{X: -4, Y: -1, Width: 100 + 4 + 2, Height: 100 + 1 + 3}
	if got != want {
		t.Fatalf("expandRect = %+v, want %+v", got, want)
	}
}
