package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// sceneConfig describes a device layout and a set of layers to allocate
// against it, read from a TOML file so a plane allocation can be
// exercised and inspected without a real DRM device.
type sceneConfig struct {
	Device deviceConfig  `toml:"device"`
	Layers []layerConfig `toml:"layers"`
}

type deviceConfig struct {
	CRTCs  []uint32       `toml:"crtcs"`
	Planes []planeConfig  `toml:"planes"`
}

type planeConfig struct {
	ID       uint32 `toml:"id"`
	Type     string `toml:"type"` // "primary", "overlay", or "cursor"
	CRTC     uint32 `toml:"crtc"`
	Zpos     *int64 `toml:"zpos"`
	Format   string `toml:"format"`
	Modifier uint64 `toml:"modifier"`
}

type layerConfig struct {
	FBID       uint32 `toml:"fb_id"`
	Format     string `toml:"format"`
	Width      uint32 `toml:"width"`
	Height     uint32 `toml:"height"`
	X          int64  `toml:"x"`
	Y          int64  `toml:"y"`
	W          int64  `toml:"w"`
	H          int64  `toml:"h"`
	Composited bool   `toml:"composited"`
}

// knownFormats maps the TOML-friendly format names this tool accepts to
// their DRM fourcc values. Only the formats the sample scenes need are
// listed; a real deployment would read these from the driver instead.
var knownFormats = map[string]uint32{
	"XR24": 0x34325258,
	"AR24": 0x34325241,
}

func loadScene(path string) (*sceneConfig, error) {
	var cfg sceneConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("liftoffctl: reading %s: %w", path, err)
	}
	if len(cfg.Device.CRTCs) == 0 {
		return nil, fmt.Errorf("liftoffctl: %s: device.crtcs must not be empty", path)
	}
	return &cfg, nil
}

func formatValue(name string) (uint32, error) {
	if name == "" {
		return knownFormats["XR24"], nil
	}
	f, ok := knownFormats[name]
	if !ok {
		return 0, fmt.Errorf("liftoffctl: unknown format %q", name)
	}
	return f, nil
}

func writeSampleScene(path string) error {
	const sample = `# liftoffctl scene: one primary plane, one overlay, two layers.
[device]
crtcs = [1]

[[device.planes]]
id = 10
type = "primary"
crtc = 1
zpos = 0

[[device.planes]]
id = 11
type = "overlay"
crtc = 1
zpos = 1

[[layers]]
fb_id = 1
width = 1920
height = 1080
x = 0
y = 0
w = 1920
h = 1080

[[layers]]
fb_id = 2
width = 200
height = 200
x = 50
y = 50
w = 200
h = 200
`
	return os.WriteFile(path, []byte(sample), 0644)
}
