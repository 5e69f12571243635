package lumenvk

import (
	"fmt"

	"github.com/andewx/lumenvk/hal"
)

// Binding ties one resource to a descriptor slot. Resource must match Type:
// a *Buffer for uniform and storage buffers, a *Texture for combined image
// samplers and an *AccelerationStructure for acceleration structures.
type Binding struct {
	Slot     uint32
	Type     hal.DescriptorType
	Stages   hal.ShaderStage
	Resource any
}

func validateBindings(bindings []Binding) error {
	if len(bindings) == 0 {
		return fmt.Errorf("%w: no bindings", ErrInvalidBinding)
	}
	seen := make(map[uint32]bool, len(bindings))
	for _, b := range bindings {
		if seen[b.Slot] {
			return fmt.Errorf("%w: slot %d bound twice", ErrInvalidBinding, b.Slot)
		}
		seen[b.Slot] = true
		if b.Stages == 0 {
			return fmt.Errorf("%w: slot %d has no shader stages", ErrInvalidBinding, b.Slot)
		}
		if _, err := b.write(); err != nil {
			return err
		}
	}
	return nil
}

func (b Binding) write() (hal.DescriptorWrite, error) {
	w := hal.DescriptorWrite{Binding: b.Slot, Type: b.Type}
	switch b.Type {
	case hal.DescriptorTypeUniformBuffer, hal.DescriptorTypeStorageBuffer:
		buf, ok := b.Resource.(*Buffer)
		if !ok || buf == nil {
			return w, fmt.Errorf("%w: slot %d (%s) needs a *Buffer, got %T", ErrInvalidBinding, b.Slot, b.Type, b.Resource)
		}
		if buf.Handle() == nil {
			return w, fmt.Errorf("%w: slot %d buffer %q is not uploaded", ErrInvalidBinding, b.Slot, buf.Name())
		}
		w.Buffer, w.Range = buf.Handle(), buf.Size()
	case hal.DescriptorTypeCombinedImageSampler:
		tex, ok := b.Resource.(*Texture)
		if !ok || tex == nil {
			return w, fmt.Errorf("%w: slot %d (%s) needs a *Texture, got %T", ErrInvalidBinding, b.Slot, b.Type, b.Resource)
		}
		if tex.View() == nil || tex.Sampler() == nil {
			return w, fmt.Errorf("%w: slot %d texture %q is not uploaded", ErrInvalidBinding, b.Slot, tex.Name())
		}
		w.View, w.Sampler = tex.View(), tex.Sampler()
	case hal.DescriptorTypeAccelerationStructure:
		as, ok := b.Resource.(*AccelerationStructure)
		if !ok || as == nil {
			return w, fmt.Errorf("%w: slot %d (%s) needs an *AccelerationStructure, got %T", ErrInvalidBinding, b.Slot, b.Type, b.Resource)
		}
		if as.Handle() == nil {
			return w, fmt.Errorf("%w: slot %d acceleration structure is not built", ErrInvalidBinding, b.Slot)
		}
		w.AccelerationStructure = as.Handle()
	default:
		return w, fmt.Errorf("%w: slot %d has unsupported type %s", ErrInvalidBinding, b.Slot, b.Type)
	}
	return w, nil
}

// DescriptorSet owns a layout, a pool sized for its bindings and the one
// set allocated from it.
type DescriptorSet struct {
	resource
	layout   hal.DescriptorSetLayout
	handle   hal.DescriptorSet
	bindings []Binding
}

// NewDescriptorSet validates bindings, creates the set and writes every
// binding.
func NewDescriptorSet(ctx *GraphicsContext, name string, bindings []Binding) (ds *DescriptorSet, err error) {
	if err := validateBindings(bindings); err != nil {
		return nil, err
	}
	ds = &DescriptorSet{resource: resource{name: name}, bindings: append([]Binding(nil), bindings...)}
	defer func() {
		if err != nil {
			ds.Destroy()
			ds = nil
		}
	}()

	layoutBindings := make([]hal.DescriptorSetLayoutBinding, len(bindings))
	counts := make(map[hal.DescriptorType]uint32)
	var types []hal.DescriptorType
	for i, b := range bindings {
		layoutBindings[i] = hal.DescriptorSetLayoutBinding{Binding: b.Slot, Type: b.Type, Count: 1, Stages: b.Stages}
		if counts[b.Type] == 0 {
			types = append(types, b.Type)
		}
		counts[b.Type]++
	}
	ds.layout, err = ctx.Device.CreateDescriptorSetLayout(layoutBindings)
	if err != nil {
		return ds, fmt.Errorf("create descriptor set layout %q: %w", name, err)
	}
	ds.deletion.PushResource(ds.layout)

	sizes := make([]hal.DescriptorPoolSize, len(types))
	for i, t := range types {
		sizes[i] = hal.DescriptorPoolSize{Type: t, Count: counts[t]}
	}
	pool, err := ctx.Device.CreateDescriptorPool(&hal.DescriptorPoolDescriptor{MaxSets: 1, Sizes: sizes})
	if err != nil {
		return ds, fmt.Errorf("create descriptor pool %q: %w", name, err)
	}
	ds.deletion.PushResource(pool)

	ds.handle, err = pool.Allocate(ds.layout)
	if err != nil {
		return ds, fmt.Errorf("allocate descriptor set %q: %w", name, err)
	}
	writes := make([]hal.DescriptorWrite, len(bindings))
	for i, b := range bindings {
		writes[i], _ = b.write()
	}
	if err = ds.handle.Update(writes); err != nil {
		return ds, fmt.Errorf("write descriptor set %q: %w", name, err)
	}
	ds.set(StatusCreated)
	return ds, nil
}

func (d *DescriptorSet) Layout() hal.DescriptorSetLayout { return d.layout }
func (d *DescriptorSet) Handle() hal.DescriptorSet       { return d.handle }
func (d *DescriptorSet) Bindings() []Binding             { return d.bindings }

// Has reports whether the set binds slot with descriptor type t.
func (d *DescriptorSet) Has(slot uint32, t hal.DescriptorType) bool {
	for _, b := range d.bindings {
		if b.Slot == slot {
			return b.Type == t
		}
	}
	return false
}

// Rebind points slot at a new resource of the slot's type.
func (d *DescriptorSet) Rebind(slot uint32, res any) error {
	if d.destroyed() {
		return fmt.Errorf("rebind %q: %w", d.name, ErrDestroyed)
	}
	for i, b := range d.bindings {
		if b.Slot != slot {
			continue
		}
		b.Resource = res
		w, err := b.write()
		if err != nil {
			return err
		}
		if err := d.handle.Update([]hal.DescriptorWrite{w}); err != nil {
			return err
		}
		d.bindings[i] = b
		return nil
	}
	return fmt.Errorf("%w: slot %d not in set %q", ErrInvalidBinding, slot, d.name)
}
