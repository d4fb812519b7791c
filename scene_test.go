package scenegraph

import "testing"

func TestNewScene(t *testing.T) {
	s := NewScene()
	if s.root == nil {
		t.Fatal("root should not be nil")
	}
	if s.root.Name != "root" {
		t.Errorf("root.Name = %q, want %q", s.root.Name, "root")
	}
	if s.root.Type != NodeTypeContainer {
		t.Errorf("root.Type = %d, want NodeTypeContainer", s.root.Type)
	}
}

func TestSceneRoot(t *testing.T) {
	s := NewScene()
	if s.Root() != s.root {
		t.Error("Root() should return the internal root node")
	}
}

func TestSceneSetEntityStore(t *testing.T) {
	s := NewScene()
	s.SetEntityStore(nil) // should not panic
	if s.store != nil {
		t.Error("store should be nil")
	}
}

func TestSceneSetDebugMode(t *testing.T) {
	s := NewScene()
	s.SetDebugMode(true)
	if !s.debug {
		t.Error("debug should be true")
	}
	s.SetDebugMode(false)
	if s.debug {
		t.Error("debug should be false")
	}
}

func TestSceneRegisterPage(t *testing.T) {
	s := NewScene()
	s.RegisterPage(0, nil)
	s.RegisterPage(2, nil)
	if len(s.pages) != 3 {
		t.Errorf("pages len = %d, want 3", len(s.pages))
	}
}
