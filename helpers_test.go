package lumenvk

import (
	"encoding/binary"
	"testing"

	"github.com/andewx/lumenvk/hal"
	"github.com/andewx/lumenvk/hal/noop"
)

// fakeDisplay is a window whose size, close flag and display mode are set by
// the test.
type fakeDisplay struct {
	w, h       int
	closed     bool
	polls      int
	fullscreen bool
	refresh    int
	onResize   func(w, h int)
}

func newFakeDisplay(w, h int) *fakeDisplay { return &fakeDisplay{w: w, h: h} }

func (d *fakeDisplay) FramebufferSize() (int, int)              { return d.w, d.h }
func (d *fakeDisplay) RequiredInstanceExtensions() []string     { return []string{"VK_KHR_surface"} }
func (d *fakeDisplay) CreateWindowSurface(any) (uintptr, error) { return 0, nil }
func (d *fakeDisplay) ShouldClose() bool                        { return d.closed }
func (d *fakeDisplay) PollEvents()                              { d.polls++ }
func (d *fakeDisplay) SetResizeCallback(fn func(w, h int))      { d.onResize = fn }

func (d *fakeDisplay) SetFullscreen(fullscreen bool, w, h, refresh int) error {
	d.fullscreen, d.refresh = fullscreen, refresh
	d.resize(w, h)
	return nil
}

// resize changes the framebuffer size and fires the callback like a window
// system would.
func (d *fakeDisplay) resize(w, h int) {
	d.w, d.h = w, h
	if d.onResize != nil {
		d.onResize(w, h)
	}
}

func allGroups() []FeatureGroup {
	return []FeatureGroup{GroupAnisotropy, GroupSampleShading, GroupRayTracing}
}

func newTestContext(t *testing.T, api noop.API) (*GraphicsContext, *noop.Device) {
	t.Helper()
	ctx, err := NewGraphicsContext(api, newFakeDisplay(800, 600), ContextOptions{
		AppName:    "test",
		APIVersion: hal.MakeVersion(1, 2, 0),
		Groups:     allGroups(),
	})
	if err != nil {
		t.Fatalf("NewGraphicsContext failed: %v", err)
	}
	t.Cleanup(ctx.Destroy)
	return ctx, ctx.Device.(*noop.Device)
}

func newTestEngine(t *testing.T, api noop.API, mutate func(*Settings)) (*Engine, *noop.Device, *fakeDisplay) {
	t.Helper()
	s := DefaultSettings()
	if mutate != nil {
		mutate(&s)
	}
	display := newFakeDisplay(s.Resolution.Width, s.Resolution.Height)
	e, err := Create(api, display, s)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(e.Destroy)
	return e, e.Context().Device.(*noop.Device), display
}

// testProgram is the smallest byte string that passes the SPIR-V checks.
func testProgram() ShaderProgram {
	word := func() []byte {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint32(b, spirvMagic)
		return b
	}
	return ShaderProgram{Vertex: word(), Fragment: word()}
}

func quadMesh() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{Position: [3]float32{-1, -1, 0}, UV: [2]float32{0, 0}, Color: [3]float32{1, 0, 0}},
			{Position: [3]float32{1, -1, 0}, UV: [2]float32{1, 0}, Color: [3]float32{0, 1, 0}},
			{Position: [3]float32{1, 1, 0}, UV: [2]float32{1, 1}, Color: [3]float32{0, 0, 1}},
			{Position: [3]float32{-1, 1, 0}, UV: [2]float32{0, 1}, Color: [3]float32{1, 1, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

// gridMesh is an n by n grid of quads, 2*n*n triangles.
func gridMesh(n int) Mesh {
	var m Mesh
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			m.Vertices = append(m.Vertices, Vertex{Position: [3]float32{float32(x), float32(y), float32(x+y) / 10}})
		}
	}
	row := uint32(n + 1)
	for y := uint32(0); y < uint32(n); y++ {
		for x := uint32(0); x < uint32(n); x++ {
			i := y*row + x
			m.Indices = append(m.Indices, i, i+1, i+row, i+1, i+row+1, i+row)
		}
	}
	return m
}

func checkerTexture(w, h int) TextureData {
	px := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * 4
			if (x/4+y/4)%2 == 0 {
				px[o], px[o+1], px[o+2] = 0xFF, 0xFF, 0xFF
			}
			px[o+3] = 0xFF
		}
	}
	return TextureData{Pixels: px, Width: w, Height: h, Channels: 4}
}

func texturedQuad(name string) *Renderable {
	r := NewRenderable(name, testProgram(), quadMesh())
	r.Textures = []TextureData{checkerTexture(16, 16)}
	return r
}

func checkNoLeaks(t *testing.T, dev *noop.Device) {
	t.Helper()
	if n := dev.LiveTotal(); n != 0 {
		t.Errorf("expected no live objects, got %d: %v", n, dev.LiveKinds())
	}
	if s := dev.Stats(); s.DoubleFrees != 0 {
		t.Errorf("expected no double frees, got %d", s.DoubleFrees)
	}
}

func checkClean(t *testing.T, dev *noop.Device) {
	t.Helper()
	s := dev.Stats()
	if s.LayoutErrors != 0 || s.SemaphoreErrors != 0 || s.DoubleFrees != 0 {
		t.Errorf("unexpected validation errors: layout=%d semaphore=%d double-free=%d",
			s.LayoutErrors, s.SemaphoreErrors, s.DoubleFrees)
	}
}
