package capture

import (
	"fmt"
	"sort"
	"strings"
)

// Resolution is a requested capture size. The zero value keeps the driver default.
type Resolution struct {
	Width  int
	Height int
}

// Preset names for common capture sizes.
const (
	PresetDefault = "default"
	PresetVGA     = "vga"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
)

var presets = map[string]Resolution{
	PresetDefault: {},
	PresetVGA:     {Width: 640, Height: 480},
	Preset720p:    {Width: 1280, Height: 720},
	Preset1080p:   {Width: 1920, Height: 1080},
}

// PresetNames returns the available preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupResolution resolves a preset name or a "WIDTHxHEIGHT" string.
// An empty name is the driver default.
func LookupResolution(name string) (Resolution, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Resolution{}, nil
	}
	if r, ok := presets[name]; ok {
		return r, nil
	}

	var r Resolution
	if _, err := fmt.Sscanf(name, "%dx%d", &r.Width, &r.Height); err != nil || r.Width <= 0 || r.Height <= 0 {
		return Resolution{}, fmt.Errorf("capture: unknown resolution %q (presets: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return r, nil
}
