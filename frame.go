package scenegraph

import "github.com/hajimehoshi/ebiten/v2"

// FramePass describes one target a tick renders into: either an RTT node's
// framebuffer or the final screen. Grounded on rendertarget.go's
// renderSubtree (which already renders a node's subtree into an arbitrary
// target image) and generalized into an explicit, inspectable pass list so
// FrameDriver can log and time each pass without re-entering Scene.traverse
// from inside itself the way renderSpecialNode does for masks/filters.
type FramePass struct {
	Node       *Node       // nil for the main (screen) pass
	Target     *ebiten.Image
	ClearColor Color
}

// Frame is the per-tick scratch state FrameDriver reuses across calls: the
// list of passes run this tick and an Ops slice of RenderOp. Both slices are
// truncated to :0 each tick rather than reallocated; Passes is refilled by
// recordPass, while nothing in this package appends to Ops. This mirrors the
// arena-reuse pattern already used for Scene.batchVerts/batchInds
// (batch.go) and Scene.offscreenCmds (rendertarget.go).
type Frame struct {
	Passes []FramePass
	Ops    []RenderOp

	rttPassCount int
}

// NewFrame returns an empty, ready-to-reuse Frame.
func NewFrame() *Frame {
	return &Frame{}
}

// reset truncates the frame's slices in place for the next tick.
func (f *Frame) reset() {
	f.Passes = f.Passes[:0]
	f.Ops = f.Ops[:0]
	f.rttPassCount = 0
}

// recordPass appends a completed pass descriptor, used for
// ErrorCode-free introspection (Config.EnableInspector) rather than for
// driving any rendering decision.
func (f *Frame) recordPass(p FramePass) {
	f.Passes = append(f.Passes, p)
	if p.Node != nil {
		f.rttPassCount++
	}
}

// renderRTTSubtree renders n's subtree into target, the callback
// RTTScheduler.RunRTTPass invokes for each due RTT node (spec §4.5). It
// reuses Scene's offscreen command buffer the same way renderSubtree does
// for masked/cached/filtered nodes, so an RTT node nested under a cache or
// filter still shares the one offscreen-command arena instead of growing a
// second one.
func (s *Scene) renderRTTSubtree(n *Node, target *ebiten.Image) {
	savedCmds := s.commands
	s.commands = s.offscreenCmds[:0]

	treeOrder := 0
	offsetTransform := identityTransform
	emitNodeCommand(s, n, offsetTransform, 1.0, &treeOrder)

	children := n.children
	if !n.childrenSorted {
		resortChildren(n)
	}
	if n.sortedChildren != nil {
		children = n.sortedChildren
	}
	for _, child := range children {
		renderSubtreeWalk(s, child, offsetTransform, 1.0, &treeOrder)
	}

	s.mergeSort()
	s.submitBatches(target)

	s.offscreenCmds = s.commands[:0]
	s.commands = savedCmds
}
