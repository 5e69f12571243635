package lumenvk

import (
	"errors"
	"testing"

	"github.com/andewx/lumenvk/hal"
	"github.com/andewx/lumenvk/hal/noop"
)

func uploadedBuffer(t *testing.T, ctx *GraphicsContext, name string, size int) *Buffer {
	t.Helper()
	b := NewBuffer(ctx, name, hal.BufferUsageUniform, true)
	b.SetData(make([]byte, size))
	if err := b.Upload(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Destroy)
	return b
}

func TestDescriptorSetValidation(t *testing.T) {
	ctx, dev := newTestContext(t, noop.API{})
	ubo := uploadedBuffer(t, ctx, "ubo", 16)
	pending := NewBuffer(ctx, "pending", hal.BufferUsageUniform, true)
	const vf = hal.ShaderStageVertex | hal.ShaderStageFragment

	tests := []struct {
		name     string
		bindings []Binding
	}{
		{"empty", nil},
		{"duplicate slot", []Binding{
			{Slot: 0, Type: hal.DescriptorTypeUniformBuffer, Stages: vf, Resource: ubo},
			{Slot: 0, Type: hal.DescriptorTypeUniformBuffer, Stages: vf, Resource: ubo},
		}},
		{"no stages", []Binding{{Slot: 0, Type: hal.DescriptorTypeUniformBuffer, Resource: ubo}}},
		{"wrong resource", []Binding{{Slot: 0, Type: hal.DescriptorTypeCombinedImageSampler, Stages: vf, Resource: ubo}}},
		{"nil resource", []Binding{{Slot: 0, Type: hal.DescriptorTypeUniformBuffer, Stages: vf}}},
		{"not uploaded", []Binding{{Slot: 0, Type: hal.DescriptorTypeUniformBuffer, Stages: vf, Resource: pending}}},
		{"unbuilt acceleration structure", []Binding{
			{Slot: 0, Type: hal.DescriptorTypeAccelerationStructure, Stages: vf, Resource: NewAccelerationStructure("tlas", hal.AccelerationStructureTopLevel)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := NewDescriptorSet(ctx, tt.name, tt.bindings)
			if !errors.Is(err, ErrInvalidBinding) {
				t.Errorf("expected ErrInvalidBinding, got %v", err)
			}
			if ds != nil {
				t.Error("expected no set on error")
			}
		})
	}
	for _, kind := range []string{"descriptor-set-layout", "descriptor-pool"} {
		if n := dev.Live(kind); n != 0 {
			t.Errorf("invalid bindings left %d live %s", n, kind)
		}
	}
}

func TestDescriptorSetWritesAndRebind(t *testing.T) {
	ctx, dev := newTestContext(t, noop.API{})
	ubo := uploadedBuffer(t, ctx, "ubo", 64)
	tex := NewTexture(ctx, "tex", TextureOptions{})
	t.Cleanup(tex.Destroy)
	if err := tex.SetPixels(checkerTexture(4, 4)); err != nil {
		t.Fatal(err)
	}
	if err := tex.Upload(); err != nil {
		t.Fatal(err)
	}

	ds, err := NewDescriptorSet(ctx, "set", []Binding{
		{Slot: 0, Type: hal.DescriptorTypeUniformBuffer, Stages: hal.ShaderStageVertex, Resource: ubo},
		{Slot: 1, Type: hal.DescriptorTypeCombinedImageSampler, Stages: hal.ShaderStageFragment, Resource: tex},
	})
	if err != nil {
		t.Fatal(err)
	}
	set := ds.Handle().(*noop.DescriptorSet)
	if w, ok := set.Write(0); !ok || w.Buffer != ubo.Handle() || w.Range != 64 {
		t.Errorf("slot 0 not written with the uniform buffer: %+v", w)
	}
	if w, ok := set.Write(1); !ok || w.View != tex.View() || w.Sampler != tex.Sampler() {
		t.Errorf("slot 1 not written with the texture: %+v", w)
	}

	other := uploadedBuffer(t, ctx, "other", 32)
	if err := ds.Rebind(0, other); err != nil {
		t.Fatal(err)
	}
	if w, _ := set.Write(0); w.Buffer != other.Handle() {
		t.Error("rebind did not rewrite slot 0")
	}
	if ds.Bindings()[0].Resource != other {
		t.Error("rebind did not record the new resource")
	}
	if err := ds.Rebind(1, other); !errors.Is(err, ErrInvalidBinding) {
		t.Errorf("expected a type mismatch, got %v", err)
	}
	if err := ds.Rebind(7, other); !errors.Is(err, ErrInvalidBinding) {
		t.Errorf("expected an unknown slot error, got %v", err)
	}

	ds.Destroy()
	if err := ds.Rebind(0, ubo); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
	if n := dev.Live("descriptor-pool") + dev.Live("descriptor-set-layout"); n != 0 {
		t.Errorf("destroy left %d descriptor objects", n)
	}
}
