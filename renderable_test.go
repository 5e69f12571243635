package lumenvk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMeshValidate(t *testing.T) {
	tests := []struct {
		name string
		mesh Mesh
		ok   bool
	}{
		{"quad", quadMesh(), true},
		{"grid", gridMesh(3), true},
		{"empty", Mesh{}, false},
		{"partial triangle", Mesh{Vertices: quadMesh().Vertices, Indices: []uint32{0, 1}}, false},
		{"index out of range", Mesh{Vertices: quadMesh().Vertices, Indices: []uint32{0, 1, 4}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mesh.validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestMeshBytes(t *testing.T) {
	m := quadMesh()
	if n := len(m.vertexBytes()); n != 4*VertexStride {
		t.Errorf("expected %d vertex bytes, got %d", 4*VertexStride, n)
	}
	if n := len(m.indexBytes()); n != 6*4 {
		t.Errorf("expected 24 index bytes, got %d", n)
	}
	offsets := []uint32{0, 12, 24, 32}
	for i, a := range vertexAttributes() {
		if a.Offset != offsets[i] {
			t.Errorf("attribute %d: expected offset %d, got %d", i, offsets[i], a.Offset)
		}
	}
}

func TestNewRenderable(t *testing.T) {
	a := NewRenderable("a", testProgram(), quadMesh())
	b := NewRenderable("a", testProgram(), quadMesh())
	if a.ID == b.ID {
		t.Error("renderables share an ID")
	}
	if !a.Dirty() || a.Loaded() || a.TriangleCount() != 2 {
		t.Errorf("unexpected initial state: dirty=%v loaded=%v triangles=%d", a.Dirty(), a.Loaded(), a.TriangleCount())
	}
	if a.Model != identity() {
		t.Error("model is not the identity")
	}
}

func TestLoadShaderProgram(t *testing.T) {
	dir := t.TempDir()
	p := testProgram()
	vert, frag := filepath.Join(dir, "vert.spv"), filepath.Join(dir, "frag.spv")
	if err := os.WriteFile(vert, p.Vertex, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(frag, p.Fragment, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadShaderProgram(context.Background(), vert, frag)
	if err != nil {
		t.Fatalf("LoadShaderProgram failed: %v", err)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("loaded program does not validate: %v", err)
	}

	bad := filepath.Join(dir, "bad.spv")
	if err := os.WriteFile(bad, []byte("#version 450\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadShaderProgram(context.Background(), vert, bad); err == nil {
		t.Error("expected GLSL source to be rejected")
	}
	if _, err := LoadShaderProgram(context.Background(), vert, filepath.Join(dir, "missing.spv")); err == nil {
		t.Error("expected a missing file error")
	}
}

func TestFrameStats(t *testing.T) {
	start := time.Unix(0, 0)
	s := newFrameStats(start)
	for i := 1; i <= 59; i++ {
		if s.tick(start.Add(time.Duration(i) * 16 * time.Millisecond)) {
			t.Fatalf("fps refreshed early at frame %d", i)
		}
	}
	if !s.tick(start.Add(time.Second)) {
		t.Fatal("expected fps refreshed after one second")
	}
	if s.Frame != 60 || s.FPS != 60 {
		t.Errorf("expected 60 frames at 60 fps, got %d at %.1f", s.Frame, s.FPS)
	}
}
