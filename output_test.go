package liftoff

import (
	"testing"

	"github.com/raspberrypi-ui/libliftoff/drm"
	"github.com/raspberrypi-ui/libliftoff/drm/drmtest"
)

func TestNewOutputRejectsUnknownCRTC(t *testing.T) {
	fake := drmtest.NewFake(1)
	dev, err := NewDevice(fake)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	if _, err := NewOutput(dev, 99); err != ErrInvalidArgument {
		t.Fatalf("NewOutput(99):\nhave %v\nwant %v", err, ErrInvalidArgument)
	}
}

func TestSetCompositionLayerRejectsForeignLayer(t *testing.T) {
	_, outA := newTestLayerOutput(t)
	_, outB := newTestLayerOutput(t)

	foreign := NewLayer(outB)
	outA.SetCompositionLayer(foreign)
	if outA.CompositionLayer() != nil {
		t.Fatalf("CompositionLayer() after foreign assignment:\nhave %v\nwant nil", outA.CompositionLayer())
	}
}

func TestOutputDestroyRemovesFromDevice(t *testing.T) {
	dev, out := newTestLayerOutput(t)
	out.Destroy()
	if n := len(dev.outputs.All()); n != 0 {
		t.Fatalf("output count after Destroy:\nhave %d\nwant 0", n)
	}
}

func TestOutputNeedsCompositionIgnoresCompLayer(t *testing.T) {
	_, out := newTestLayerOutput(t)
	comp := NewLayer(out)
	_ = comp.SetProperty(drm.PropFBID, 1)
	_ = comp.SetProperty(drm.PropCRTCW, 100)
	_ = comp.SetProperty(drm.PropCRTCH, 100)
	out.SetCompositionLayer(comp)

	if out.NeedsComposition() {
		t.Fatalf("NeedsComposition() with only an unbound composition layer:\nhave true\nwant false")
	}
}
