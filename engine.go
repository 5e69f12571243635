package lumenvk

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/andewx/lumenvk/hal"
)

// Display is the window the engine renders to.
type Display interface {
	hal.Window
	ShouldClose() bool
	PollEvents()
	SetResizeCallback(fn func(width, height int))
	// SetFullscreen switches to a fullscreen mode of the given size, or
	// back to a window of that size.
	SetFullscreen(fullscreen bool, width, height, refresh int) error
}

// Engine ties the graphics context, the swapchain, the frame loop and the
// loaded renderables together. It is driven from one goroutine.
type Engine struct {
	settings Settings
	max      MaxSettings
	display  Display

	ctx       *GraphicsContext
	swapchain *SwapchainCoordinator
	scheduler *FrameScheduler
	builder   *AccelerationStructureBuilder
	camera    *Camera

	renderables []*Renderable
	stats       FrameStats

	deletion  DeletionQueue
	destroyed bool
}

// Create builds the engine and runs the initial full recreation. Every
// failure is a FatalError; whatever was built is released before returning.
func Create(api hal.API, display Display, settings Settings) (e *Engine, err error) {
	if err := settings.Validate(); err != nil {
		return nil, fatal("create engine", err)
	}
	version, _ := settings.Version()
	e = &Engine{settings: settings, display: display}
	defer func() {
		if err != nil {
			e.Destroy()
			e = nil
			err = fatal("create engine", err)
		}
	}()

	e.ctx, err = NewGraphicsContext(api, display, ContextOptions{
		AppName:    settings.AppName,
		APIVersion: version,
		Validation: settings.Validation,
		Groups:     []FeatureGroup{GroupAnisotropy, GroupSampleShading, GroupRayTracing},
	})
	if err != nil {
		return e, err
	}
	e.deletion.PushResource(e.ctx)

	e.max = findMaxSettings(e.ctx.Limits, e.ctx.Features)
	e.settings.clamp(e.max)
	if e.settings.RayTracing && !e.ctx.Enabled(GroupRayTracing) {
		Logger().Warn("ray tracing disabled", "err", ErrFeatureUnsupported)
		e.settings.RayTracing = false
	}
	e.camera = NewCamera(e.settings)

	e.swapchain = NewSwapchainCoordinator(e.ctx, display, &e.settings)
	e.deletion.PushResource(e.swapchain)
	e.scheduler = NewFrameScheduler(e.ctx, e.swapchain, e.record)
	e.swapchain.OnRecreate(e.onRecreate)

	e.deletion.Push(func() {
		if e.builder != nil {
			e.builder.Destroy()
			e.builder = nil
		}
	})
	if e.settings.RayTracing {
		if e.builder, err = NewAccelerationStructureBuilder(e.ctx, e.settings.Rebuild); err != nil {
			return e, err
		}
	}

	display.SetResizeCallback(func(int, int) { e.swapchain.NotifyResize() })
	if e.settings.Fullscreen {
		if err := e.applyDisplayMode(); err != nil {
			return e, err
		}
	}
	if err := e.swapchain.Recreate(true); err != nil {
		return e, err
	}
	e.stats = newFrameStats(time.Now())
	Logger().Info("engine created", "app", e.settings.AppName, "msaa", e.settings.MSAA,
		"ray-tracing", e.settings.RayTracing, "images", e.swapchain.State().ImageCount())
	return e, nil
}

func (e *Engine) Settings() Settings                     { return e.settings }
func (e *Engine) MaxSettings() MaxSettings               { return e.max }
func (e *Engine) Camera() *Camera                        { return e.camera }
func (e *Engine) Context() *GraphicsContext              { return e.ctx }
func (e *Engine) Swapchain() *SwapchainCoordinator       { return e.swapchain }
func (e *Engine) FrameSlots() []*FrameSlot               { return e.scheduler.Slots() }
func (e *Engine) Stats() FrameStats                      { return e.stats }
func (e *Engine) Renderables() []*Renderable             { return e.renderables }
func (e *Engine) Builder() *AccelerationStructureBuilder { return e.builder }

// Renderable looks up a registered renderable. Unknown IDs return nil and
// log a warning.
func (e *Engine) Renderable(id uuid.UUID) *Renderable {
	for _, r := range e.renderables {
		if r.ID == id {
			return r
		}
	}
	Logger().Warn("unknown renderable", "id", id)
	return nil
}

// LoadRenderable uploads r and builds its descriptor set and pipeline, and
// with ray tracing its bottom-level structures. A renderable that was
// loaded before is torn down first. With register set, r is added to the
// drawn renderables unless it already is.
func (e *Engine) LoadRenderable(r *Renderable, register bool) error {
	if e.destroyed {
		return ErrDestroyed
	}
	if r.loaded || r.gpu.Len() > 0 || r.pipelines.Len() > 0 {
		if err := e.ctx.Device.WaitIdle(); err != nil {
			return err
		}
		r.Destroy()
	}
	if err := e.load(r); err != nil {
		r.Destroy()
		return fmt.Errorf("load renderable %q: %w", r.Name, err)
	}
	if register && !slices.Contains(e.renderables, r) {
		e.renderables = append(e.renderables, r)
	}
	if e.builder != nil {
		// a grown top level releases the structure the last frame used
		if err := e.ctx.Device.WaitIdle(); err != nil {
			return err
		}
		if err := e.refreshTopLevel(); err != nil {
			return err
		}
	}
	if err := e.buildPipeline(r); err != nil {
		r.Destroy()
		return fmt.Errorf("load renderable %q: %w", r.Name, err)
	}
	r.loaded = true
	Logger().Info("renderable loaded", "name", r.Name, "id", r.ID, "triangles", r.TriangleCount(),
		"textures", len(r.textures))
	return nil
}

func (e *Engine) load(r *Renderable) error {
	if err := r.upload(e.ctx, e.textureOptions(), e.builder != nil); err != nil {
		return err
	}
	if e.builder == nil {
		return nil
	}
	if err := e.builder.BuildBottomLevels(r.geometry()); err != nil {
		return err
	}
	r.dirty = false
	return nil
}

func (e *Engine) buildPipeline(r *Renderable) error {
	var tlas *AccelerationStructure
	if e.builder != nil {
		tlas = e.builder.TopLevel()
	}
	return r.buildPipeline(e.ctx, e.swapchain.RenderPass(), tlas)
}

// releasePipelines drops the descriptor set and pipeline of every
// registered renderable. It is pushed on the optional queue once per full
// recreation, so it runs before the render pass they were built against is
// destroyed.
func (e *Engine) releasePipelines() {
	for _, r := range e.renderables {
		r.pipelines.Flush()
	}
}

// RemoveRenderable destroys a registered renderable and stops drawing it.
func (e *Engine) RemoveRenderable(id uuid.UUID) bool {
	i := slices.IndexFunc(e.renderables, func(r *Renderable) bool { return r.ID == id })
	if i < 0 {
		Logger().Warn("unknown renderable", "id", id)
		return false
	}
	if err := e.ctx.Device.WaitIdle(); err != nil {
		Logger().Warn("wait idle before remove", "err", err)
	}
	r := e.renderables[i]
	e.renderables = slices.Delete(e.renderables, i, i+1)
	r.Destroy()
	if err := e.refreshTopLevel(); err != nil {
		Logger().Warn("rebuild top level after remove", "err", err)
	}
	return true
}

// Update polls the display and renders one frame. It returns false once the
// display asked to close.
func (e *Engine) Update() (bool, error) {
	if e.destroyed {
		return false, ErrDestroyed
	}
	e.display.PollEvents()
	if e.display.ShouldClose() {
		return false, nil
	}
	if err := e.refreshAccelerationStructures(); err != nil {
		return false, err
	}
	if err := e.scheduler.Frame(); err != nil {
		return false, err
	}
	if e.stats.tick(time.Now()) {
		Logger().Debug("frame stats", "frame", e.stats.Frame, "fps", e.stats.FPS,
			"frame-time", e.stats.LastFrameTime)
	}
	return true, nil
}

func (e *Engine) record(cb hal.CommandBuffer, _ *SwapchainState, _ *RenderPass, _ uint32) error {
	for _, r := range e.renderables {
		if !r.loaded {
			continue
		}
		if err := r.writeUniform(e.camera); err != nil {
			return err
		}
		r.record(cb)
	}
	return nil
}

// onRecreate keeps the camera aspect in step with the swapchain and, on a
// full recreation, rebuilds every renderable pipeline against the new
// render pass.
func (e *Engine) onRecreate(full bool, st *SwapchainState) error {
	e.camera.SetExtent(st.Extent)
	if !full {
		return nil
	}
	e.swapchain.Optional().Push(e.releasePipelines)
	for _, r := range e.renderables {
		if !r.loaded {
			continue
		}
		if err := e.buildPipeline(r); err != nil {
			return err
		}
	}
	return nil
}

// refreshAccelerationStructures rebuilds the bottom levels due under the
// rebuild policy, then the top level over all of them.
func (e *Engine) refreshAccelerationStructures() error {
	if e.builder == nil {
		return nil
	}
	var (
		levels []BottomLevel
		due    []*Renderable
	)
	every := e.builder.Policy() == RebuildEveryFrame
	for _, r := range e.renderables {
		if r.loaded && (every || r.dirty) {
			levels = append(levels, r.geometry()...)
			due = append(due, r)
		}
	}
	if len(due) == 0 {
		return nil
	}
	if err := e.ctx.Device.WaitIdle(); err != nil {
		return err
	}
	for _, r := range due {
		if err := r.refreshTransform(); err != nil {
			return err
		}
	}
	if err := e.builder.BuildBottomLevels(levels); err != nil {
		return err
	}
	for _, r := range due {
		r.dirty = false
	}
	return e.refreshTopLevel()
}

// refreshTopLevel rebuilds the top-level structure and rebinds it when its
// handle changed.
func (e *Engine) refreshTopLevel() error {
	if e.builder == nil {
		return nil
	}
	var blas []*AccelerationStructure
	for _, r := range e.renderables {
		if len(r.blas) > 0 && r.blas[0].Handle() != nil {
			blas = append(blas, r.blas...)
		}
	}
	replaced, err := e.builder.BuildTopLevel(blas)
	if err != nil {
		return err
	}
	if !replaced {
		return nil
	}
	for _, r := range e.renderables {
		// sets built without ray tracing are replaced by their own reload
		if r.set == nil || !r.set.Has(r.accelSlot(), hal.DescriptorTypeAccelerationStructure) {
			continue
		}
		if err := r.set.Rebind(r.accelSlot(), e.builder.TopLevel()); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) textureOptions() TextureOptions {
	return TextureOptions{
		MipMapping:  e.settings.MipMapping,
		MipMapLevel: e.settings.MipMapLevel,
		Anisotropy:  e.settings.Anisotropy,
	}
}

func (e *Engine) applyDisplayMode() error {
	s := e.settings
	res := s.WindowedResolution
	if s.Fullscreen {
		res = s.Resolution
	}
	if err := e.display.SetFullscreen(s.Fullscreen, res.Width, res.Height, s.RefreshRate); err != nil {
		return fmt.Errorf("switch display mode: %w", err)
	}
	return nil
}

// UpdateSettings applies fn to the settings and schedules what the change
// needs: display mode, resolution, MSAA and ray tracing changes run a full
// recreation at the end of the next frame, vsync and image count changes a
// soft one. Texture changes, a ray tracing toggle or updateAll reload every
// renderable right away.
func (e *Engine) UpdateSettings(fn func(*Settings), updateAll bool) error {
	if e.destroyed {
		return ErrDestroyed
	}
	prev := e.settings
	next := prev
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	next.clamp(e.max)
	if next.RayTracing && !e.ctx.Enabled(GroupRayTracing) {
		Logger().Warn("ray tracing disabled", "err", ErrFeatureUnsupported)
		next.RayTracing = false
	}
	e.settings = next

	e.camera.FOV = next.FOV
	e.camera.Far = next.RenderDistance

	displayChanged := prev.Fullscreen != next.Fullscreen ||
		(next.Fullscreen && prev.Resolution != next.Resolution) ||
		(!next.Fullscreen && prev.WindowedResolution != next.WindowedResolution)
	if displayChanged {
		if err := e.applyDisplayMode(); err != nil {
			return err
		}
	}
	if displayChanged || prev.MSAA != next.MSAA || prev.RayTracing != next.RayTracing {
		e.swapchain.RequestFull()
	} else if prev.VSync != next.VSync || prev.SwapchainImages != next.SwapchainImages {
		e.swapchain.NotifyResize()
	}

	texturesChanged := prev.MipMapping != next.MipMapping || prev.MipMapLevel != next.MipMapLevel ||
		prev.Anisotropy != next.Anisotropy
	if prev.RayTracing != next.RayTracing {
		return e.switchRayTracing(next)
	}
	if e.builder != nil {
		e.builder.policy = next.Rebuild
	}
	if updateAll || texturesChanged {
		return e.reloadAll()
	}
	return nil
}

// switchRayTracing replaces the builder and reloads every renderable so its
// buffers and descriptor set match.
func (e *Engine) switchRayTracing(s Settings) error {
	if err := e.ctx.Device.WaitIdle(); err != nil {
		return err
	}
	old := e.builder
	e.builder = nil
	if s.RayTracing {
		b, err := NewAccelerationStructureBuilder(e.ctx, s.Rebuild)
		if err != nil {
			return err
		}
		e.builder = b
	}
	err := e.reloadAll()
	if old != nil {
		old.Destroy()
	}
	return err
}

func (e *Engine) reloadAll() error {
	for _, r := range slices.Clone(e.renderables) {
		if err := e.LoadRenderable(r, false); err != nil {
			return err
		}
	}
	return nil
}

// Destroy waits for the device and releases everything in reverse order of
// creation: renderables, the acceleration structure builder, the swapchain
// generation with frame slots and render pass, then the context. Calling it
// again does nothing.
func (e *Engine) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	if e.ctx != nil && e.ctx.Device != nil {
		if err := e.ctx.Device.WaitIdle(); err != nil {
			Logger().Warn("wait idle before teardown", "err", err)
		}
	}
	for _, r := range e.renderables {
		r.Destroy()
	}
	e.renderables = nil
	e.deletion.Flush()
	Logger().Info("engine destroyed")
}
