package hal

import "sort"

// Feature identifies an optional device capability.
type Feature int

const (
	FeatureSamplerAnisotropy Feature = iota + 1
	FeatureSampleRateShading
	FeatureBufferDeviceAddress
	FeatureDescriptorIndexing
	FeatureAccelerationStructure
	FeatureRayQuery
	// FeatureAccelerationStructureHostCommands allows building acceleration
	// structures on the CPU without a command buffer.
	FeatureAccelerationStructureHostCommands
)

var featureNames = map[Feature]string{
	FeatureSamplerAnisotropy:                 "samplerAnisotropy",
	FeatureSampleRateShading:                 "sampleRateShading",
	FeatureBufferDeviceAddress:               "bufferDeviceAddress",
	FeatureDescriptorIndexing:                "descriptorIndexing",
	FeatureAccelerationStructure:             "accelerationStructure",
	FeatureRayQuery:                          "rayQuery",
	FeatureAccelerationStructureHostCommands: "accelerationStructureHostCommands",
}

func (f Feature) String() string {
	if n, ok := featureNames[f]; ok {
		return n
	}
	return "unknown"
}

// FeatureState is one row of the feature table.
type FeatureState struct {
	Supported bool
	Enabled   bool
}

// FeatureSet maps a feature identifier to its supported/enabled state.
// Features missing from the map are neither supported nor enabled.
type FeatureSet map[Feature]FeatureState

// NewFeatureSet returns a set where every listed feature is supported and
// nothing is enabled yet.
func NewFeatureSet(supported ...Feature) FeatureSet {
	s := make(FeatureSet, len(supported))
	for _, f := range supported {
		s[f] = FeatureState{Supported: true}
	}
	return s
}

func (s FeatureSet) Supported(f Feature) bool { return s[f].Supported }
func (s FeatureSet) Enabled(f Feature) bool   { return s[f].Enabled }

// Enable marks f enabled if it is supported and reports whether it was.
func (s FeatureSet) Enable(f Feature) bool {
	st := s[f]
	if !st.Supported {
		return false
	}
	st.Enabled = true
	s[f] = st
	return true
}

func (s FeatureSet) Disable(f Feature) {
	st := s[f]
	st.Enabled = false
	s[f] = st
}

// EnabledList returns the enabled features in identifier order.
func (s FeatureSet) EnabledList() []Feature {
	out := make([]Feature, 0, len(s))
	for f, st := range s {
		if st.Enabled {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (s FeatureSet) Clone() FeatureSet {
	out := make(FeatureSet, len(s))
	for f, st := range s {
		out[f] = st
	}
	return out
}

// Limits reports the device limits the engine clamps its settings against.
type Limits struct {
	MaxSamplerAnisotropy float32
	// Masks of supported framebuffer sample counts.
	ColorSampleCounts   SampleCount
	DepthSampleCounts   SampleCount
	MaxImageDimension2D uint32
}
