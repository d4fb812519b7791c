package scenegraph

import (
	"testing"

	"github.com/hajimehoshi/ebiten/v2"
)

// buildRTTChain wires grandparent -> parent -> child, each flagged for RTT,
// and returns them in that order.
func buildRTTChain() (grandparent, parent, child *Node) {
	grandparent = NewContainer("grandparent")
	parent = NewContainer("parent")
	child = NewContainer("child")
	grandparent.AddChild(parent)
	parent.AddChild(child)

	grandparent.SetRTT(true, 512, 512)
	parent.SetRTT(true, 256, 256)
	child.SetRTT(true, 64, 64)
	return
}

func TestRTTSchedulerOrdersDescendantsBeforeAncestors(t *testing.T) {
	s := NewRTTScheduler(NewConfig())
	grandparent, parent, child := buildRTTChain()

	// Register out of nesting order to prove insertRTTNode (not registration
	// order) determines the final ordering.
	s.ensureRTTTarget(grandparent)
	s.ensureRTTTarget(child)
	s.ensureRTTTarget(parent)

	idx := func(n *Node) int { return n.rttTarget.listIndex }
	if !(idx(child) < idx(parent) && idx(parent) < idx(grandparent)) {
		t.Fatalf("expected child < parent < grandparent, got child=%d parent=%d grandparent=%d",
			idx(child), idx(parent), idx(grandparent))
	}
}

func TestRTTSchedulerRemoveReindexes(t *testing.T) {
	s := NewRTTScheduler(NewConfig())
	grandparent, parent, child := buildRTTChain()
	s.ensureRTTTarget(child)
	s.ensureRTTTarget(parent)
	s.ensureRTTTarget(grandparent)

	s.remove(parent)
	if len(s.rttNodes) != 2 {
		t.Fatalf("expected 2 nodes remaining after remove, got %d", len(s.rttNodes))
	}
	if child.rttTarget.listIndex >= grandparent.rttTarget.listIndex {
		t.Fatalf("reindex after remove broke the descendant-before-ancestor invariant")
	}
}

func TestRTTFramebufferPoolSizeClasses(t *testing.T) {
	pool := newRTTFramebufferPool([]int{256, 512, 1024})

	img, class := pool.acquire(200, 100)
	if class != 256 {
		t.Fatalf("expected 200x100 to round up to size class 256, got %d", class)
	}
	pool.release(img, class)

	img2, class2 := pool.acquire(100, 100)
	if img2 != img {
		t.Fatalf("expected the released framebuffer to be reused from its size-class bucket")
	}
	_ = class2

	_, dedicated := pool.acquire(2000, 2000)
	if dedicated != 0 {
		t.Fatalf("expected a request larger than every size class to use a dedicated framebuffer (class 0), got %d", dedicated)
	}
}

func TestRTTSchedulerRunRTTPassSkipsUnchangedNodes(t *testing.T) {
	s := NewRTTScheduler(NewConfig())
	n := NewContainer("n")
	n.SetRTT(true, 64, 64)
	s.ensureRTTTarget(n)
	n.HasRTTUpdates = false

	called := false
	s.RunRTTPass(func(node *Node, target *ebiten.Image) {
		called = true
	})
	if called {
		t.Fatalf("RunRTTPass should skip nodes without HasRTTUpdates set")
	}
}
