package liftoff

import (
	"fmt"

	"github.com/raspberrypi-ui/libliftoff/drm"
	"github.com/raspberrypi-ui/libliftoff/internal/llist"
)

// PlaneType is a hardware plane's KMS type. Values match the kernel's
// drm_plane_type enum so a Backend can report them directly from the
// plane's "type" property.
type PlaneType uint64

const (
	PlaneOverlay PlaneType = 0
	PlanePrimary PlaneType = 1
	PlaneCursor  PlaneType = 2
)

func (t PlaneType) String() string {
	switch t {
	case PlanePrimary:
		return "PRIMARY"
	case PlaneCursor:
		return "CURSOR"
	case PlaneOverlay:
		return "OVERLAY"
	default:
		return fmt.Sprintf("PLANE_TYPE(%d)", uint64(t))
	}
}

// Plane is a hardware overlay/primary/cursor plane belonging to a Device.
// Planes are created and destroyed explicitly; destroying a plane breaks
// the binding to any layer currently assigned to it.
type Plane struct {
	dev           *Device
	id            uint32
	typ           PlaneType
	possibleCRTCs uint32
	zpos          int
	props         []drm.PropertyMeta
	inFormats     *drm.FormatModifierBlob

	layer *Layer // weak back-reference, nil when unbound
}

// planeZposGuess mirrors original_source/plane.c's plane_zpos_guess: used
// only when the driver does not expose a zpos property on the plane.
func planeZposGuess(dev *Device, id uint32, typ PlaneType) int {
	switch typ {
	case PlanePrimary:
		return 0
	case PlaneCursor:
		return 2
	case PlaneOverlay:
		if len(dev.planes.All()) == 0 {
			return 0
		}
		primary := dev.planes.All()[0]
		if id < primary.id {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// NewPlane registers a plane with the device by KMS object ID, fetching
// its property metadata from the device's Backend. It fails with
// ErrAlreadyExists if a plane with this ID is already registered.
func NewPlane(dev *Device, id uint32) (*Plane, error) {
	for _, p := range dev.planes.All() {
		if p.id == id {
			return nil, ErrAlreadyExists
		}
	}

	metas, err := dev.backend.PlaneProperties(id)
	if err != nil {
		return nil, err
	}

	p := &Plane{dev: dev, id: id, props: metas}

	infos, err := dev.backend.Planes()
	if err != nil {
		return nil, err
	}
	for _, pi := range infos {
		if pi.ID == id {
			p.possibleCRTCs = pi.PossibleCRTCs
			break
		}
	}

	var hasType, hasZpos bool
	for _, m := range metas {
		switch m.Name {
		case drm.PropType:
			hasType = true
			p.typ = PlaneType(m.Value)
		case drm.PropZPos:
			hasZpos = true
			p.zpos = int(int64(m.Value))
		case drm.PropInFormats:
			if m.ID != 0 {
				blob, err := dev.backend.FormatsBlob(m.ID)
				if err == nil {
					p.inFormats = blob
				}
			}
		}
	}

	if !hasType {
		return nil, fmt.Errorf("liftoff: plane %d is missing the 'type' property: %w", id, ErrInvalidArgument)
	}
	if !hasZpos {
		p.zpos = planeZposGuess(dev, id, p.typ)
	}

	dev.addPlane(p)
	return p, nil
}

// addPlane inserts p into the device's plane list, keeping the invariant
// that the primary plane leads and the rest are ordered by descending
// zpos (original_source/plane.c, liftoff_rpi_plane_create).
func (d *Device) addPlane(p *Plane) {
	if p.typ == PlanePrimary {
		// The primary is always the head of the list: prepend by
		// rebuilding, since InsertSorted only orders relative to
		// existing elements and the primary must precede all of them
		// regardless of zpos.
		rest := d.planes.Snapshot()
		d.planes = llist.List[*Plane]{}
		d.planes.Append(p)
		for _, q := range rest {
			d.planes.Append(q)
		}
		return
	}
	d.planes.InsertSorted(p, func(v, e *Plane) bool {
		if e.typ == PlanePrimary {
			return false
		}
		return v.zpos >= e.zpos
	})
}

// Destroy unregisters the plane, unbinding its layer if any.
func (p *Plane) Destroy() {
	if p.layer != nil {
		p.layer.plane = nil
		p.layer = nil
	}
	p.dev.planes.Remove(func(q *Plane) bool { return q == p })
}

// ID returns the plane's KMS object ID.
func (p *Plane) ID() uint32 { return p.id }

// Type returns the plane's KMS type.
func (p *Plane) Type() PlaneType { return p.typ }

// Layer returns the layer currently bound to the plane, or nil.
func (p *Plane) Layer() *Layer { return p.layer }

func (p *Plane) propertyMeta(name drm.PropName) (drm.PropertyMeta, bool) {
	for _, m := range p.props {
		if m.Name == name {
			return m, true
		}
	}
	return drm.PropertyMeta{}, false
}
