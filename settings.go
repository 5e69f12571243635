package lumenvk

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/andewx/lumenvk/hal"
)

// RebuildPolicy controls how often bottom-level acceleration structures are
// rebuilt.
type RebuildPolicy string

const (
	// RebuildOnChange rebuilds a renderable's structure only after
	// Renderable.MarkDirty.
	RebuildOnChange RebuildPolicy = "on-change"
	// RebuildEveryFrame rebuilds every structure once per frame.
	RebuildEveryFrame RebuildPolicy = "every-frame"
)

type Resolution struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Settings is the mutable engine configuration. It is read at creation and
// at every swapchain recreation; change it through Engine.UpdateSettings.
type Settings struct {
	AppName            string        `yaml:"app_name"`
	Resolution         Resolution    `yaml:"resolution"`
	WindowedResolution Resolution    `yaml:"windowed_resolution"`
	Fullscreen         bool          `yaml:"fullscreen"`
	VSync              bool          `yaml:"vsync"`
	MSAA               int           `yaml:"msaa"`
	RayTracing         bool          `yaml:"ray_tracing"`
	MipMapping         bool          `yaml:"mip_mapping"`
	MipMapLevel        int           `yaml:"mip_map_level"`
	Anisotropy         float32       `yaml:"anisotropy"`
	FOV                float32       `yaml:"fov"`
	RenderDistance     float32       `yaml:"render_distance"`
	RefreshRate        int           `yaml:"refresh_rate"`
	APIVersion         string        `yaml:"api_version"`
	Validation         bool          `yaml:"validation"`
	Rebuild            RebuildPolicy `yaml:"rebuild"`
	// SwapchainImages is the requested image count, clamped to the surface.
	SwapchainImages int `yaml:"swapchain_images"`
}

func DefaultSettings() Settings {
	return Settings{
		AppName:            "Crystal Engine",
		Resolution:         Resolution{Width: 800, Height: 600},
		WindowedResolution: Resolution{Width: 800, Height: 600},
		VSync:              true,
		MSAA:               8,
		MipMapping:         true,
		FOV:                90,
		RenderDistance:     1000,
		RefreshRate:        144,
		APIVersion:         "1.2",
		Rebuild:            RebuildOnChange,
		SwapchainImages:    3,
	}
}

// LoadSettings reads a YAML settings file. Keys missing from the file keep
// their default values.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Save writes the settings as YAML.
func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

func (s Settings) Validate() error {
	if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 {
		return fmt.Errorf("settings: invalid resolution %dx%d", s.Resolution.Width, s.Resolution.Height)
	}
	if s.MSAA < 1 || s.MSAA > 64 || s.MSAA&(s.MSAA-1) != 0 {
		return fmt.Errorf("settings: msaa must be a power of two between 1 and 64, got %d", s.MSAA)
	}
	if s.MipMapLevel < 0 || s.Anisotropy < 0 {
		return fmt.Errorf("settings: negative mip level or anisotropy")
	}
	if s.FOV <= 0 || s.FOV >= 180 {
		return fmt.Errorf("settings: fov %.1f out of range", s.FOV)
	}
	switch s.Rebuild {
	case RebuildOnChange, RebuildEveryFrame:
	default:
		return fmt.Errorf("settings: unknown rebuild policy %q", s.Rebuild)
	}
	if _, err := s.Version(); err != nil {
		return err
	}
	return nil
}

// Version parses APIVersion ("major.minor" or "major.minor.patch").
func (s Settings) Version() (hal.Version, error) {
	parts := strings.Split(s.APIVersion, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("settings: malformed api version %q", s.APIVersion)
	}
	var n [3]uint32
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 10)
		if err != nil {
			return 0, fmt.Errorf("settings: malformed api version %q: %w", s.APIVersion, err)
		}
		n[i] = uint32(v)
	}
	return hal.MakeVersion(n[0], n[1], n[2]), nil
}

// MaxSettings are the largest values the device accepts.
type MaxSettings struct {
	MSAA       int
	Anisotropy float32
}

// findMaxSettings derives the usable maxima from device limits and the
// enabled features.
func findMaxSettings(limits hal.Limits, features hal.FeatureSet) MaxSettings {
	m := MaxSettings{MSAA: int((limits.ColorSampleCounts & limits.DepthSampleCounts).Highest())}
	if features.Enabled(hal.FeatureSamplerAnisotropy) {
		m.Anisotropy = limits.MaxSamplerAnisotropy
	}
	return m
}

// clamp lowers MSAA and anisotropy to what the device supports.
func (s *Settings) clamp(m MaxSettings) {
	for s.MSAA > m.MSAA {
		s.MSAA >>= 1
	}
	s.MSAA = max(s.MSAA, 1)
	s.Anisotropy = min(s.Anisotropy, m.Anisotropy)
}

func (s Settings) sampleCount() hal.SampleCount { return hal.SampleCount(s.MSAA) }
