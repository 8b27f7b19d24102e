package liftoff

import (
	"errors"
	"testing"

	"github.com/raspberrypi-ui/libliftoff/drm"
	"github.com/raspberrypi-ui/libliftoff/drm/drmtest"
)

const testFormat = 0x34325258 // DRM_FORMAT_XR24

func fp16(v uint64) uint64 { return v << 16 }

func newTestDevice(t *testing.T) (*Device, *Output, *drmtest.Fake) {
	t.Helper()

	fake := drmtest.NewFake(1)
	blob := &drm.FormatModifierBlob{
		Formats:   []uint32{testFormat},
		Modifiers: []drm.FormatModifier{{Modifier: 0, Offset: 0, FormatMask: 1}},
	}
	zpos := func(z int64) *int64 { return &z }

	fake.AddPlane(drmtest.PlaneConfig{ID: 10, Type: uint64(PlanePrimary), PossibleCRTCs: 1, Zpos: zpos(0), Formats: blob})
	fake.AddPlane(drmtest.PlaneConfig{ID: 11, Type: uint64(PlaneOverlay), PossibleCRTCs: 1, Zpos: zpos(1), Formats: blob})
	fake.AddPlane(drmtest.PlaneConfig{ID: 12, Type: uint64(PlaneCursor), PossibleCRTCs: 1, Zpos: zpos(2), Formats: blob})

	dev, err := NewDevice(fake)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	if err := dev.RegisterPlanes(); err != nil {
		t.Fatalf("RegisterPlanes: %v", err)
	}
	out, err := NewOutput(dev, 1)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	return dev, out, fake
}

func newTestDeviceTwoPlanes(t *testing.T) (*Device, *Output, *drmtest.Fake) {
	t.Helper()

	fake := drmtest.NewFake(1)
	blob := &drm.FormatModifierBlob{
		Formats:   []uint32{testFormat},
		Modifiers: []drm.FormatModifier{{Modifier: 0, Offset: 0, FormatMask: 1}},
	}
	zpos := func(z int64) *int64 { return &z }

	fake.AddPlane(drmtest.PlaneConfig{ID: 10, Type: uint64(PlanePrimary), PossibleCRTCs: 1, Zpos: zpos(0), Formats: blob})
	fake.AddPlane(drmtest.PlaneConfig{ID: 11, Type: uint64(PlaneOverlay), PossibleCRTCs: 1, Zpos: zpos(1), Formats: blob})

	dev, err := NewDevice(fake)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	if err := dev.RegisterPlanes(); err != nil {
		t.Fatalf("RegisterPlanes: %v", err)
	}
	out, err := NewOutput(dev, 1)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	return dev, out, fake
}

func addVisibleLayer(t *testing.T, out *Output, fake *drmtest.Fake, fbID uint32, x, y, w, h int64) *Layer {
	t.Helper()
	fake.SetFB(drm.FBInfo{FBID: fbID, Width: uint32(w), Height: uint32(h), PixelFormat: testFormat, Handles: []uint32{fbID + 1000}})

	l := NewLayer(out)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("SetProperty: %v", err)
		}
	}
	must(l.SetProperty(drm.PropFBID, uint64(fbID)))
	must(l.SetProperty(drm.PropCRTCX, uint64(x)))
	must(l.SetProperty(drm.PropCRTCY, uint64(y)))
	must(l.SetProperty(drm.PropCRTCW, uint64(w)))
	must(l.SetProperty(drm.PropCRTCH, uint64(h)))
	must(l.SetProperty(drm.PropSRCX, 0))
	must(l.SetProperty(drm.PropSRCY, 0))
	must(l.SetProperty(drm.PropSRCW, fp16(uint64(w))))
	must(l.SetProperty(drm.PropSRCH, fp16(uint64(h))))
	return l
}

// Two visible, format-compatible layers without ZPOS: each gets its own
// plane, and neither needs composition.
func TestAllocatePrimaryAndOverlay(t *testing.T) {
	_, out, fake := newTestDevice(t)
	bottom := addVisibleLayer(t, out, fake, 1, 0, 0, 100, 100)
	top := addVisibleLayer(t, out, fake, 2, 10, 10, 20, 20)

	req := drmtest.NewRequest()
	if err := out.Apply(req, 0); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if bottom.Plane() == nil {
		t.Fatalf("bottom layer:\nhave no plane\nwant a plane")
	}
	if top.Plane() == nil {
		t.Fatalf("top layer:\nhave no plane\nwant a plane")
	}
	if bottom.Plane() == top.Plane() {
		t.Fatalf("bottom and top layers share plane %d, want distinct planes", bottom.Plane().ID())
	}
	if out.NeedsComposition() {
		t.Fatalf("NeedsComposition:\nhave true\nwant false")
	}
}

// Two overlapping layers with explicit ZPOS values: the layer with the
// higher ZPOS may not be bound to a plane with a lower zpos than the
// plane holding the layer beneath it.
func TestZOrderPreserved(t *testing.T) {
	_, out, fake := newTestDevice(t)
	bottom := addVisibleLayer(t, out, fake, 1, 0, 0, 100, 100)
	top := addVisibleLayer(t, out, fake, 2, 0, 0, 100, 100)
	if err := bottom.SetProperty(drm.PropZPos, 0); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if err := top.SetProperty(drm.PropZPos, 1); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}

	req := drmtest.NewRequest()
	if err := out.Apply(req, 0); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if bottom.Plane() != nil && top.Plane() != nil {
		if bottom.Plane().zpos > top.Plane().zpos {
			t.Fatalf("z-order violated: bottom layer on zpos %d, top layer on zpos %d", bottom.Plane().zpos, top.Plane().zpos)
		}
	}
}

// When the driver's test commit rejects every binding of the overlay
// plane, the allocator must place the layer on another plane rather
// than failing Apply.
func TestDriverRejectsOverlay(t *testing.T) {
	_, out, fake := newTestDevice(t)
	fake.Reject = func(objID, propID uint32, value uint64) error {
		if objID == 11 && value != 0 {
			return drm.ErrInvalidProperty
		}
		return nil
	}

	l := addVisibleLayer(t, out, fake, 1, 0, 0, 50, 50)

	req := drmtest.NewRequest()
	if err := out.Apply(req, 0); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if l.Plane() == nil {
		t.Fatalf("layer:\nhave no plane\nwant a plane other than the rejected overlay")
	}
	if l.Plane().ID() == 11 {
		t.Fatalf("layer bound to rejected plane 11")
	}
}

// More visible layers than planes: the layer that doesn't fit must
// report NeedsComposition.
func TestCompositionNecessity(t *testing.T) {
	_, out, fake := newTestDeviceTwoPlanes(t)
	a := addVisibleLayer(t, out, fake, 1, 0, 0, 10, 10)
	b := addVisibleLayer(t, out, fake, 2, 20, 20, 10, 10)
	c := addVisibleLayer(t, out, fake, 3, 40, 40, 10, 10)

	req := drmtest.NewRequest()
	if err := out.Apply(req, 0); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	bound := 0
	for _, l := range []*Layer{a, b, c} {
		if l.Plane() != nil {
			bound++
		}
	}
	if bound != 2 {
		t.Fatalf("bound layers:\nhave %d\nwant 2", bound)
	}
	if !out.NeedsComposition() {
		t.Fatalf("NeedsComposition:\nhave false\nwant true")
	}
}

// A composition layer set on an output that has enough real planes for
// every layer is never itself bound, and NeedsComposition stays false.
func TestCompositionRefusedWhenUnnecessary(t *testing.T) {
	_, out, fake := newTestDevice(t)
	a := addVisibleLayer(t, out, fake, 1, 0, 0, 10, 10)
	comp := addVisibleLayer(t, out, fake, 2, 0, 0, 100, 100)
	out.SetCompositionLayer(comp)

	req := drmtest.NewRequest()
	if err := out.Apply(req, 0); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if out.NeedsComposition() {
		t.Fatalf("NeedsComposition:\nhave true\nwant false")
	}
	_ = a
}

// A second Apply with no layer changes takes the reuse fast path: it
// issues at most one test commit instead of re-running the search.
func TestReuseFastPath(t *testing.T) {
	_, out, fake := newTestDevice(t)
	addVisibleLayer(t, out, fake, 1, 0, 0, 50, 50)
	addVisibleLayer(t, out, fake, 2, 60, 60, 20, 20)

	req := drmtest.NewRequest()
	if err := out.Apply(req, 0); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	firstCommits := fake.Commits()

	req2 := drmtest.NewRequest()
	if err := out.Apply(req2, 0); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	secondCommits := fake.Commits() - firstCommits

	if secondCommits > 1 {
		t.Fatalf("commits on reuse:\nhave %d\nwant at most 1", secondCommits)
	}
}

func TestApplyPropagatesHardFailure(t *testing.T) {
	_, out, fake := newTestDevice(t)
	addVisibleLayer(t, out, fake, 1, 0, 0, 50, 50)

	wantErr := errors.New("boom")
	fake.Reject = func(objID, propID uint32, value uint64) error {
		return wantErr
	}

	req := drmtest.NewRequest()
	if err := out.Apply(req, 0); !errors.Is(err, wantErr) {
		t.Fatalf("Apply error:\nhave %v\nwant %v", err, wantErr)
	}
}
