// Command lumen opens a window and renders a textured, spinning quad with the
// lumenvk engine.
package main

import (
	"context"
	"flag"
	"image"
	"image/color"
	"log/slog"
	"math"
	"os"
	"runtime"
	"time"

	lin "github.com/xlab/linmath"
	xdraw "golang.org/x/image/draw"

	"github.com/andewx/lumenvk"
	"github.com/andewx/lumenvk/display"
	"github.com/andewx/lumenvk/hal/vulkan"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	var (
		settingsPath = flag.String("settings", "", "YAML settings file")
		vertPath     = flag.String("vert", "shaders/mesh.vert.spv", "vertex shader SPIR-V")
		fragPath     = flag.String("frag", "shaders/mesh.frag.spv", "fragment shader SPIR-V")
		verbose      = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	lumenvk.SetLogger(log)

	if err := run(log, *settingsPath, *vertPath, *fragPath); err != nil {
		log.Error("lumen exited", "err", err, "fatal", lumenvk.IsFatal(err))
		os.Exit(1)
	}
}

func run(log *slog.Logger, settingsPath, vertPath, fragPath string) error {
	settings := lumenvk.DefaultSettings()
	if settingsPath != "" {
		var err error
		if settings, err = lumenvk.LoadSettings(settingsPath); err != nil {
			return err
		}
	}

	program, err := lumenvk.LoadShaderProgram(context.Background(), vertPath, fragPath)
	if err != nil {
		return err
	}

	if err := display.Init(); err != nil {
		return err
	}
	defer display.Terminate()

	win, err := display.New(settings.AppName, settings.Resolution.Width, settings.Resolution.Height)
	if err != nil {
		return err
	}
	defer win.Destroy()

	engine, err := lumenvk.Create(vulkan.API{}, win, settings)
	if err != nil {
		return err
	}
	defer engine.Destroy()

	quad := lumenvk.NewRenderable("quad", program, quadMesh())
	quad.Textures = append(quad.Textures, checkerTexture(256, 8))
	if err := engine.LoadRenderable(quad, true); err != nil {
		return err
	}

	start := time.Now()
	for {
		quad.SetModel(spinZ(time.Since(start).Seconds(), 3))

		ok, err := engine.Update()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	stats := engine.Stats()
	log.Info("closed", "frames", stats.Frame, "fps", stats.FPS)
	return nil
}

// spinZ rotates by angle radians around Z and moves depth units forward.
func spinZ(angle float64, depth float32) lin.Mat4x4 {
	sin, cos := float32(math.Sin(angle)), float32(math.Cos(angle))
	return lin.Mat4x4{
		{cos, sin, 0, 0},
		{-sin, cos, 0, 0},
		{0, 0, 1, 0},
		{0, 0, depth, 1},
	}
}

func quadMesh() lumenvk.Mesh {
	return lumenvk.Mesh{
		Vertices: []lumenvk.Vertex{
			{Position: [3]float32{-1, -1, 0}, Normal: [3]float32{0, 0, -1}, UV: [2]float32{0, 0}, Color: [3]float32{1, 1, 1}},
			{Position: [3]float32{1, -1, 0}, Normal: [3]float32{0, 0, -1}, UV: [2]float32{1, 0}, Color: [3]float32{1, 1, 1}},
			{Position: [3]float32{1, 1, 0}, Normal: [3]float32{0, 0, -1}, UV: [2]float32{1, 1}, Color: [3]float32{1, 1, 1}},
			{Position: [3]float32{-1, 1, 0}, Normal: [3]float32{0, 0, -1}, UV: [2]float32{0, 1}, Color: [3]float32{1, 1, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

// checkerTexture draws a cells x cells checkerboard and scales it up to
// size x size pixels.
func checkerTexture(size, cells int) lumenvk.TextureData {
	small := image.NewRGBA(image.Rect(0, 0, cells, cells))
	for y := 0; y < cells; y++ {
		for x := 0; x < cells; x++ {
			c := color.RGBA{R: 40, G: 40, B: 48, A: 255}
			if (x+y)%2 == 0 {
				c = color.RGBA{R: 230, G: 200, B: 90, A: 255}
			}
			small.SetRGBA(x, y, c)
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), small, small.Bounds(), xdraw.Src, nil)
	return lumenvk.TextureData{Pixels: dst.Pix, Width: size, Height: size, Channels: 4}
}
