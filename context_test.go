package lumenvk

import (
	"errors"
	"slices"
	"testing"

	"github.com/andewx/lumenvk/hal"
	"github.com/andewx/lumenvk/hal/noop"
)

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name      string
		supported []hal.Feature
		desired   []FeatureGroup
		groups    map[FeatureGroup]bool
		enabled   []hal.Feature
	}{
		{
			name:      "everything",
			supported: noop.DefaultFeatures(),
			desired:   allGroups(),
			groups:    map[FeatureGroup]bool{GroupAnisotropy: true, GroupSampleShading: true, GroupRayTracing: true},
			enabled:   noop.DefaultFeatures(),
		},
		{
			name:      "ray tracing missing one member",
			supported: []hal.Feature{hal.FeatureSamplerAnisotropy, hal.FeatureBufferDeviceAddress, hal.FeatureAccelerationStructure, hal.FeatureRayQuery},
			desired:   allGroups(),
			groups:    map[FeatureGroup]bool{GroupAnisotropy: true, GroupSampleShading: false, GroupRayTracing: false},
			enabled:   []hal.Feature{hal.FeatureSamplerAnisotropy},
		},
		{
			name: "host builds are optional",
			supported: []hal.Feature{
				hal.FeatureBufferDeviceAddress, hal.FeatureDescriptorIndexing,
				hal.FeatureAccelerationStructure, hal.FeatureRayQuery,
			},
			desired: []FeatureGroup{GroupRayTracing},
			groups:  map[FeatureGroup]bool{GroupRayTracing: true},
			enabled: []hal.Feature{
				hal.FeatureBufferDeviceAddress, hal.FeatureDescriptorIndexing,
				hal.FeatureAccelerationStructure, hal.FeatureRayQuery,
			},
		},
		{
			name:      "undesired groups stay off",
			supported: noop.DefaultFeatures(),
			desired:   []FeatureGroup{GroupSampleShading},
			groups:    map[FeatureGroup]bool{GroupSampleShading: true},
			enabled:   []hal.Feature{hal.FeatureSampleRateShading},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			supported := hal.NewFeatureSet(tt.supported...)
			// a stale enabled bit on the input must not leak through
			supported.Enable(hal.FeatureSamplerAnisotropy)
			got, groups := negotiate(supported, tt.desired)
			for g, want := range tt.groups {
				if groups[g] != want {
					t.Errorf("group %s: expected %v, got %v", g, want, groups[g])
				}
			}
			list := got.EnabledList()
			if len(list) != len(tt.enabled) {
				t.Fatalf("expected enabled %v, got %v", tt.enabled, list)
			}
			for _, f := range tt.enabled {
				if !got.Enabled(f) {
					t.Errorf("expected %s enabled", f)
				}
			}
		})
	}
}

func TestGraphicsContextDisablesUnsupportedGroup(t *testing.T) {
	ctx, dev := newTestContext(t, noop.API{Features: []hal.Feature{hal.FeatureSamplerAnisotropy, hal.FeatureSampleRateShading}})
	if !ctx.Enabled(GroupAnisotropy) || !ctx.Enabled(GroupSampleShading) {
		t.Error("expected anisotropy and sample shading enabled")
	}
	if ctx.Enabled(GroupRayTracing) {
		t.Error("expected ray tracing disabled")
	}
	if ctx.Features.Enabled(hal.FeatureRayQuery) {
		t.Error("ray query enabled on the final device")
	}
	if dev.Label() != "test" {
		t.Errorf("expected the final device, got %q", dev.Label())
	}
}

func TestSingleTimeCommandsRunSynchronously(t *testing.T) {
	ctx, dev := newTestContext(t, noop.API{})
	buf, err := ctx.Device.CreateBuffer(&hal.BufferDescriptor{Size: 4, Usage: hal.BufferUsageTransferDst, Memory: hal.MemoryDeviceLocal})
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()

	err = ctx.stage("copy", []byte{1, 2, 3, 4}, func(cb hal.CommandBuffer, staging hal.Buffer) {
		cb.CopyBuffer(staging, buf, []hal.BufferCopy{{Size: 4}})
	})
	if err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if got := buf.(*noop.Buffer).Bytes(); got[3] != 4 {
		t.Errorf("copy not executed before return: %v", got)
	}
	if n := dev.Live("command-buffer"); n != 0 {
		t.Errorf("expected the command buffer freed, %d live", n)
	}
	if n := dev.Live("fence"); n != 0 {
		t.Errorf("expected the fence destroyed, %d live", n)
	}
	if n := dev.Live("buffer"); n != 1 {
		t.Errorf("expected the staging buffer destroyed, %d buffers live", n)
	}
}

func TestSingleTimeCommandsPanicIsFatal(t *testing.T) {
	ctx, dev := newTestContext(t, noop.API{})
	boom := errors.New("boom")
	err := ctx.SingleTimeCommands(func(hal.CommandBuffer) { panic(boom) })
	if !IsFatal(err) || !errors.Is(err, boom) {
		t.Fatalf("expected a fatal error wrapping boom, got %v", err)
	}
	if n := dev.Live("command-buffer"); n != 0 {
		t.Errorf("expected the command buffer freed, %d live", n)
	}
}

func TestValidationEnablesLayer(t *testing.T) {
	for _, validation := range []bool{false, true} {
		ctx, err := NewGraphicsContext(noop.API{}, newFakeDisplay(64, 64), ContextOptions{Validation: validation})
		if err != nil {
			t.Fatal(err)
		}
		desc := ctx.Instance.(*noop.Instance).Desc()
		ctx.Destroy()
		if desc.Debug != validation {
			t.Errorf("validation=%v: expected debug %v", validation, validation)
		}
		hasLayer := slices.Contains(desc.Layers, ValidationLayer)
		if hasLayer != validation {
			t.Errorf("validation=%v: layers %v", validation, desc.Layers)
		}
	}
}

func TestGraphicsContextDestroyTwice(t *testing.T) {
	ctx, err := NewGraphicsContext(noop.API{}, newFakeDisplay(64, 64), ContextOptions{Groups: allGroups()})
	if err != nil {
		t.Fatal(err)
	}
	dev := ctx.Device.(*noop.Device)
	ctx.Destroy()
	ctx.Destroy()
	checkNoLeaks(t, dev)
}

type failingAPI struct{ err error }

func (a failingAPI) CreateInstance(*hal.InstanceDescriptor) (hal.Instance, error) { return nil, a.err }

func TestGraphicsContextFailureIsFatal(t *testing.T) {
	cause := errors.New("no driver")
	_, err := NewGraphicsContext(failingAPI{cause}, newFakeDisplay(64, 64), ContextOptions{})
	if !IsFatal(err) || !errors.Is(err, cause) {
		t.Fatalf("expected a fatal error wrapping the cause, got %v", err)
	}
}
