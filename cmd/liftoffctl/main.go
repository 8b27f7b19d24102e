// Command liftoffctl exercises the plane allocation engine against a
// scene described in a TOML file, without requiring a real DRM device.
// It's a diagnostic tool: point it at a scene, and it reports which
// layers the allocator could place on real hardware planes and which
// would need GPU composition.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/raspberrypi-ui/libliftoff"
	"github.com/raspberrypi-ui/libliftoff/drm"
	"github.com/raspberrypi-ui/libliftoff/drm/drmtest"
	"github.com/raspberrypi-ui/libliftoff/logging"
)

func main() {
	var (
		scenePath  = flag.String("scene", "", "path to a scene TOML file (required unless -init)")
		initPath   = flag.String("init", "", "write a sample scene TOML file to this path and exit")
		verbosity  = flag.String("v", "error", "log priority: silent, error, or debug")
	)
	flag.Parse()

	if *initPath != "" {
		if err := writeSampleScene(*initPath); err != nil {
			fatal(err)
		}
		fmt.Printf("wrote sample scene to %s\n", *initPath)
		return
	}

	prio, ok := logging.ParsePriority(*verbosity)
	if !ok {
		fatal(fmt.Errorf("liftoffctl: unknown log priority %q", *verbosity))
	}
	logging.SetPriority(prio)

	if *scenePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	scene, err := loadScene(*scenePath)
	if err != nil {
		fatal(err)
	}

	dev, out, layers, err := buildScene(scene)
	if err != nil {
		fatal(err)
	}
	_ = dev

	req := drmtest.NewRequest()
	if err := out.Apply(req, 0); err != nil {
		fatal(fmt.Errorf("liftoffctl: allocation failed: %w", err))
	}

	for i, l := range layers {
		if p := l.Plane(); p != nil {
			fmt.Printf("layer %d -> plane %d (%s)\n", scene.Layers[i].FBID, p.ID(), p.Type())
		} else {
			fmt.Printf("layer %d -> composition\n", scene.Layers[i].FBID)
		}
	}
	fmt.Printf("composition needed: %v\n", out.NeedsComposition())
}

func buildScene(scene *sceneConfig) (*liftoff.Device, *liftoff.Output, []*liftoff.Layer, error) {
	fake := drmtest.NewFake(scene.Device.CRTCs...)

	blob := &drm.FormatModifierBlob{Modifiers: []drm.FormatModifier{{Modifier: 0, Offset: 0, FormatMask: 0xFFFFFFFFFFFFFFFF}}}
	formatSet := map[uint32]int{}

	for _, pc := range scene.Device.Planes {
		f, err := formatValue(pc.Format)
		if err != nil {
			return nil, nil, nil, err
		}
		if _, ok := formatSet[f]; !ok {
			formatSet[f] = len(blob.Formats)
			blob.Formats = append(blob.Formats, f)
		}
	}

	for _, pc := range scene.Device.Planes {
		typ, err := planeTypeValue(pc.Type)
		if err != nil {
			return nil, nil, nil, err
		}
		fake.AddPlane(drmtest.PlaneConfig{
			ID:            pc.ID,
			Type:          typ,
			PossibleCRTCs: crtcMask(scene.Device.CRTCs, pc.CRTC),
			Zpos:          pc.Zpos,
			Formats:       blob,
		})
	}

	dev, err := liftoff.NewDevice(fake)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := dev.RegisterPlanes(); err != nil {
		return nil, nil, nil, err
	}
	out, err := liftoff.NewOutput(dev, scene.Device.CRTCs[0])
	if err != nil {
		return nil, nil, nil, err
	}

	layers := make([]*liftoff.Layer, len(scene.Layers))
	for i, lc := range scene.Layers {
		f, err := formatValue(lc.Format)
		if err != nil {
			return nil, nil, nil, err
		}
		fake.SetFB(drm.FBInfo{
			FBID: lc.FBID, Width: lc.Width, Height: lc.Height,
			PixelFormat: f, Handles: []uint32{0x1000 + lc.FBID},
		})

		l := liftoff.NewLayer(out)
		set := func(name drm.PropName, v uint64) {
			_ = l.SetProperty(name, v)
		}
		set(drm.PropFBID, uint64(lc.FBID))
		set(drm.PropCRTCX, uint64(lc.X))
		set(drm.PropCRTCY, uint64(lc.Y))
		set(drm.PropCRTCW, uint64(lc.W))
		set(drm.PropCRTCH, uint64(lc.H))
		set(drm.PropSRCX, 0)
		set(drm.PropSRCY, 0)
		set(drm.PropSRCW, uint64(lc.W)<<16)
		set(drm.PropSRCH, uint64(lc.H)<<16)
		if lc.Composited {
			l.SetFBComposited(true)
		}
		layers[i] = l
	}

	return dev, out, layers, nil
}

func planeTypeValue(name string) (uint64, error) {
	switch name {
	case "primary":
		return uint64(liftoff.PlanePrimary), nil
	case "overlay", "":
		return uint64(liftoff.PlaneOverlay), nil
	case "cursor":
		return uint64(liftoff.PlaneCursor), nil
	default:
		return 0, fmt.Errorf("liftoffctl: unknown plane type %q", name)
	}
}

func crtcMask(crtcs []uint32, crtc uint32) uint32 {
	for i, id := range crtcs {
		if id == crtc {
			return 1 << uint(i)
		}
	}
	return 0
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
