// Package liftoff implements the hardware plane allocation engine for a
// DRM/KMS display pipeline: the recursive, driver-test-commit-guided
// search that maps client-provided layers onto a display controller's
// fixed set of hardware planes. See SPEC_FULL.md for the full design.
package liftoff

import (
	"io"

	"github.com/raspberrypi-ui/libliftoff/drm"
	"github.com/raspberrypi-ui/libliftoff/internal/llist"
)

// priorityPeriod is the number of Apply calls (page flips) between
// priority commits, mirroring LIFTOFF_RPI_PRIORITY_PERIOD in the original.
const priorityPeriod = 60

// Device is the global context bound to one DRM Backend. It owns the
// ordered list of planes (primary first, then descending zpos), the list
// of outputs, and the CRTC table.
type Device struct {
	backend drm.Backend

	planes  llist.List[*Plane]
	outputs llist.List[*Output]

	crtcs []uint32

	testCommitCounter int
	pageFlipCounter    int
}

// NewDevice creates a Device bound to backend. The caller owns backend's
// lifetime management (opening/duplicating the underlying DRM file
// descriptor, if any, is the Backend implementation's concern).
func NewDevice(backend drm.Backend) (*Device, error) {
	d := &Device{backend: backend}
	d.crtcs = append([]uint32(nil), backend.CRTCs()...)
	return d, nil
}

// Destroy releases the device's planes. It does not destroy outputs or
// their layers (caller contract, matching liftoff_rpi_device_destroy's
// relationship with liftoff_rpi_output_destroy). If the Backend also
// implements io.Closer, it is closed.
func (d *Device) Destroy() {
	for _, p := range d.planes.Snapshot() {
		p.Destroy()
	}
	if c, ok := d.backend.(io.Closer); ok {
		c.Close()
	}
}

// RegisterPlanes discovers and registers every plane reported by the
// Backend. It is the Go equivalent of
// liftoff_rpi_device_register_planes.
func (d *Device) RegisterPlanes() error {
	infos, err := d.backend.Planes()
	if err != nil {
		return err
	}
	for _, pi := range infos {
		if _, err := NewPlane(d, pi.ID); err != nil {
			return err
		}
	}
	return nil
}

// crtcIndex returns the index of crtcID within the device's CRTC table,
// or -1 if it isn't present.
func (d *Device) crtcIndex(crtcID uint32) int {
	for i, id := range d.crtcs {
		if id == crtcID {
			return i
		}
	}
	return -1
}
