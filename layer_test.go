package liftoff

import (
	"testing"

	"github.com/raspberrypi-ui/libliftoff/drm"
	"github.com/raspberrypi-ui/libliftoff/drm/drmtest"
)

func newTestLayerOutput(t *testing.T) (*Device, *Output) {
	t.Helper()
	fake := drmtest.NewFake(1)
	fake.AddPlane(drmtest.PlaneConfig{ID: 10, Type: uint64(PlanePrimary), PossibleCRTCs: 1})
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
	return dev, out
}

func TestLayerSetPropertyRejectsCRTCID(t *testing.T) {
	_, out := newTestLayerOutput(t)
	l := NewLayer(out)
	if err := l.SetProperty(drm.PropCRTCID, 1); err != ErrInvalidArgument {
		t.Fatalf("SetProperty(CRTC_ID):\nhave %v\nwant %v", err, ErrInvalidArgument)
	}
}

func TestLayerVisibility(t *testing.T) {
	_, out := newTestLayerOutput(t)
	l := NewLayer(out)
	if l.visible() {
		t.Fatalf("visible() on fresh layer:\nhave true\nwant false")
	}
	_ = l.SetProperty(drm.PropFBID, 1)
	_ = l.SetProperty(drm.PropCRTCW, 100)
	_ = l.SetProperty(drm.PropCRTCH, 100)
	if !l.visible() {
		t.Fatalf("visible() after setting FB/size:\nhave false\nwant true")
	}
}

func TestLayerIntersects(t *testing.T) {
	_, out := newTestLayerOutput(t)
	a := NewLayer(out)
	_ = a.SetProperty(drm.PropFBID, 1)
	_ = a.SetProperty(drm.PropCRTCX, 0)
	_ = a.SetProperty(drm.PropCRTCY, 0)
	_ = a.SetProperty(drm.PropCRTCW, 100)
	_ = a.SetProperty(drm.PropCRTCH, 100)

	b := NewLayer(out)
	_ = b.SetProperty(drm.PropFBID, 2)
	_ = b.SetProperty(drm.PropCRTCX, 50)
	_ = b.SetProperty(drm.PropCRTCY, 50)
	_ = b.SetProperty(drm.PropCRTCW, 100)
	_ = b.SetProperty(drm.PropCRTCH, 100)

	c := NewLayer(out)
	_ = c.SetProperty(drm.PropFBID, 3)
	_ = c.SetProperty(drm.PropCRTCX, 200)
	_ = c.SetProperty(drm.PropCRTCY, 200)
	_ = c.SetProperty(drm.PropCRTCW, 50)
	_ = c.SetProperty(drm.PropCRTCH, 50)

	if !a.intersects(b) {
		t.Fatalf("a.intersects(b):\nhave false\nwant true")
	}
	if a.intersects(c) {
		t.Fatalf("a.intersects(c):\nhave true\nwant false")
	}

	// An invisible layer (ALPHA == 0) never intersects, regardless of
	// its rectangle overlapping another's.
	d := NewLayer(out)
	_ = d.SetProperty(drm.PropFBID, 4)
	_ = d.SetProperty(drm.PropCRTCX, 0)
	_ = d.SetProperty(drm.PropCRTCY, 0)
	_ = d.SetProperty(drm.PropCRTCW, 100)
	_ = d.SetProperty(drm.PropCRTCH, 100)
	_ = d.SetProperty(drm.PropAlpha, 0)
	if a.intersects(d) {
		t.Fatalf("a.intersects(d) with d.ALPHA == 0:\nhave true\nwant false")
	}
}

func TestLayerNeedsComposition(t *testing.T) {
	_, out := newTestLayerOutput(t)
	l := NewLayer(out)
	if l.NeedsComposition() {
		t.Fatalf("NeedsComposition() on invisible layer:\nhave true\nwant false")
	}

	_ = l.SetProperty(drm.PropFBID, 1)
	_ = l.SetProperty(drm.PropCRTCW, 10)
	_ = l.SetProperty(drm.PropCRTCH, 10)
	if !l.NeedsComposition() {
		t.Fatalf("NeedsComposition() visible and unbound:\nhave false\nwant true")
	}

	l.SetFBComposited(false)
	l.plane = &Plane{}
	if l.NeedsComposition() {
		t.Fatalf("NeedsComposition() visible and bound:\nhave true\nwant false")
	}

	l.forceComp = true
	if !l.NeedsComposition() {
		t.Fatalf("NeedsComposition() forced despite being bound:\nhave false\nwant true")
	}
}

func TestLayerDestroyClearsCompositionLayer(t *testing.T) {
	_, out := newTestLayerOutput(t)
	l := NewLayer(out)
	out.SetCompositionLayer(l)
	if out.CompositionLayer() != l {
		t.Fatalf("CompositionLayer() before Destroy:\nhave %v\nwant %v", out.CompositionLayer(), l)
	}
	l.Destroy()
	if out.CompositionLayer() != nil {
		t.Fatalf("CompositionLayer() after Destroy:\nhave %v\nwant nil", out.CompositionLayer())
	}
}

func TestLayerCleanAndChanged(t *testing.T) {
	_, out := newTestLayerOutput(t)
	l := NewLayer(out)
	_ = l.SetProperty(drm.PropCRTCX, 1)
	if !l.changed() {
		t.Fatalf("changed() after SetProperty:\nhave false\nwant true")
	}
	l.clean()
	if l.changed() {
		t.Fatalf("changed() after clean():\nhave true\nwant false")
	}
	_ = l.SetProperty(drm.PropCRTCX, 2)
	if !l.changed() {
		t.Fatalf("changed() after second SetProperty:\nhave false\nwant true")
	}
}

// FB_ID, IN_FENCE_FD and FB_DAMAGE_CLIPS changes never mark a layer
// changed: the reuse guard relies on needsRealloc (for FB_ID) and simply
// tolerates the other two, per the harmless-change exceptions.
func TestLayerChangedToleratesHarmlessProperties(t *testing.T) {
	_, out := newTestLayerOutput(t)
	l := NewLayer(out)
	_ = l.SetProperty(drm.PropFBID, 1)
	_ = l.SetProperty(drm.PropInFenceFD, 1)
	_ = l.SetProperty(drm.PropFBDamageClips, 1)
	l.clean()

	_ = l.SetProperty(drm.PropFBID, 2)
	_ = l.SetProperty(drm.PropInFenceFD, 2)
	_ = l.SetProperty(drm.PropFBDamageClips, 2)
	if l.changed() {
		t.Fatalf("changed() after only FB_ID/IN_FENCE_FD/FB_DAMAGE_CLIPS changed:\nhave true\nwant false")
	}
}

// ALPHA transitions between non-edge values are harmless; a transition
// crossing 0 or 0xFFFF is not.
func TestLayerChangedAlphaEdges(t *testing.T) {
	_, out := newTestLayerOutput(t)
	l := NewLayer(out)
	_ = l.SetProperty(drm.PropAlpha, 0x8000)
	l.clean()

	_ = l.SetProperty(drm.PropAlpha, 0x4000)
	if l.changed() {
		t.Fatalf("changed() after non-edge ALPHA transition:\nhave true\nwant false")
	}

	_ = l.SetProperty(drm.PropAlpha, 0xFFFF)
	if !l.changed() {
		t.Fatalf("changed() after ALPHA transition crossing 0xFFFF:\nhave false\nwant true")
	}
}
