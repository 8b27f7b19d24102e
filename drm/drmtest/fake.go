// Package drmtest provides an in-memory drm.Backend, for use by the
// engine's own tests and by cmd/liftoffctl when no real DRM device is
// available. It has no relationship to any real kernel driver; every
// test commit succeeds unless the test installs a Reject hook.
package drmtest

import (
	"fmt"

	"github.com/raspberrypi-ui/libliftoff/drm"
)

// PlaneConfig describes a plane to add to a Fake backend. Type uses the
// same raw values as the KMS "type" enum property: 0 overlay, 1 primary,
// 2 cursor.
type PlaneConfig struct {
	ID            uint32
	Type          uint64
	PossibleCRTCs uint32
	Zpos          *int64 // nil omits the zpos property entirely
	Formats       *drm.FormatModifierBlob
}

type fakeProp struct {
	id   uint32
	meta drm.PropertyMeta
}

type fakePlane struct {
	info    drm.PlaneInfo
	props   []fakeProp
	formats *drm.FormatModifierBlob
}

// Fake is an in-memory drm.Backend.
type Fake struct {
	crtcs  []uint32
	planes []*fakePlane
	fbs    map[uint32]drm.FBInfo
	open   map[uint32]int // GEM handle -> outstanding reference count

	nextPropID uint32
	nextBlobID uint32
	blobs      map[uint32]*drm.FormatModifierBlob

	// Reject, if set, is consulted by TestCommit for every property
	// staged in the request, in staging order; the first non-nil error
	// it returns becomes the test commit's result.
	Reject func(objID, propID uint32, value uint64) error

	commits int
}

// NewFake creates a Fake backend with the given CRTC object IDs.
func NewFake(crtcs ...uint32) *Fake {
	return &Fake{
		crtcs: append([]uint32(nil), crtcs...),
		fbs:   make(map[uint32]drm.FBInfo),
		open:  make(map[uint32]int),
		blobs: make(map[uint32]*drm.FormatModifierBlob),
	}
}

// AddPlane registers a plane with the backend, assigning KMS property
// IDs for "type", "zpos" (if cfg.Zpos is set), and IN_FORMATS (if
// cfg.Formats is set).
func (f *Fake) AddPlane(cfg PlaneConfig) {
	p := &fakePlane{
		info:    drm.PlaneInfo{ID: cfg.ID, PossibleCRTCs: cfg.PossibleCRTCs},
		formats: cfg.Formats,
	}

	f.nextPropID++
	p.props = append(p.props, fakeProp{
		id: f.nextPropID,
		meta: drm.PropertyMeta{
			ID: f.nextPropID, Name: drm.PropType, Kind: drm.KindEnum,
			Immutable: true, EnumValues: []uint64{cfg.Type}, Value: cfg.Type,
		},
	})

	if cfg.Zpos != nil {
		f.nextPropID++
		p.props = append(p.props, fakeProp{
			id: f.nextPropID,
			meta: drm.PropertyMeta{
				ID: f.nextPropID, Name: drm.PropZPos, Kind: drm.KindSignedRange,
				SignedMin: -128, SignedMax: 128, Value: uint64(*cfg.Zpos),
			},
		})
	}

	for _, name := range []drm.PropName{
		drm.PropCRTCID, drm.PropFBID,
		drm.PropCRTCX, drm.PropCRTCY, drm.PropCRTCW, drm.PropCRTCH,
		drm.PropSRCX, drm.PropSRCY, drm.PropSRCW, drm.PropSRCH,
		drm.PropAlpha, drm.PropRotation,
	} {
		f.nextPropID++
		p.props = append(p.props, fakeProp{
			id: f.nextPropID,
			meta: drm.PropertyMeta{
				ID: f.nextPropID, Name: name, Kind: drm.KindRange,
				RangeMin: 0, RangeMax: ^uint64(0),
			},
		})
	}

	if cfg.Formats != nil {
		f.nextBlobID++
		f.blobs[f.nextBlobID] = cfg.Formats
		// The engine looks up IN_FORMATS via the property's own KMS ID
		// rather than a separately staged blob value (see NewPlane in
		// plane.go), so the property's ID doubles as the blob ID here.
		p.props = append(p.props, fakeProp{
			id: f.nextBlobID,
			meta: drm.PropertyMeta{
				ID: f.nextBlobID, Name: drm.PropInFormats, Kind: drm.KindRange,
				Immutable: true, RangeMin: 0, RangeMax: ^uint64(0),
			},
		})
	}

	f.planes = append(f.planes, p)
}

// SetFB registers a framebuffer's layout, as if returned by a prior
// addfb2 ioctl. Each entry of info.Handles counts as one outstanding
// reference until closed via CloseHandle; GetFB returns info as stored
// and opens no further references.
func (f *Fake) SetFB(info drm.FBInfo) {
	f.fbs[info.FBID] = info
	for _, h := range info.Handles {
		f.open[h]++
	}
}

// OpenHandles returns the number of GEM handles the test has not yet
// closed via CloseHandle, for leak assertions.
func (f *Fake) OpenHandles() int {
	n := 0
	for _, c := range f.open {
		if c > 0 {
			n++
		}
	}
	return n
}

func (f *Fake) CRTCs() []uint32 { return append([]uint32(nil), f.crtcs...) }

func (f *Fake) Planes() ([]drm.PlaneInfo, error) {
	infos := make([]drm.PlaneInfo, len(f.planes))
	for i, p := range f.planes {
		infos[i] = p.info
	}
	return infos, nil
}

func (f *Fake) PlaneProperties(planeID uint32) ([]drm.PropertyMeta, error) {
	for _, p := range f.planes {
		if p.info.ID == planeID {
			metas := make([]drm.PropertyMeta, len(p.props))
			for i, fp := range p.props {
				metas[i] = fp.meta
			}
			return metas, nil
		}
	}
	return nil, fmt.Errorf("drmtest: unknown plane %d", planeID)
}

func (f *Fake) FormatsBlob(blobID uint32) (*drm.FormatModifierBlob, error) {
	b, ok := f.blobs[blobID]
	if !ok {
		return nil, fmt.Errorf("drmtest: unknown blob %d", blobID)
	}
	return b, nil
}

func (f *Fake) GetFB(fbID uint32) (drm.FBInfo, error) {
	info, ok := f.fbs[fbID]
	if !ok {
		return drm.FBInfo{}, fmt.Errorf("drmtest: unknown FB %d", fbID)
	}
	return info, nil
}

func (f *Fake) CloseHandle(handle uint32) error {
	if f.open[handle] <= 0 {
		return fmt.Errorf("drmtest: handle %d already closed", handle)
	}
	f.open[handle]--
	return nil
}

// Commits returns the number of test commits issued so far.
func (f *Fake) Commits() int { return f.commits }

func (f *Fake) TestCommit(req drm.AtomicRequest, flags uint32) error {
	f.commits++
	r, ok := req.(*Request)
	if !ok {
		return fmt.Errorf("drmtest: foreign AtomicRequest type %T", req)
	}
	if f.Reject == nil {
		return nil
	}
	for _, e := range r.entries {
		if err := f.Reject(e.objID, e.propID, e.value); err != nil {
			return err
		}
	}
	return nil
}

type entry struct {
	objID, propID uint32
	value         uint64
}

// Request is the Fake backend's drm.AtomicRequest implementation: an
// append-only log of staged properties, rewindable via SetCursor.
type Request struct {
	entries []entry
}

// NewRequest creates an empty atomic request for use with Fake.
func NewRequest() *Request { return &Request{} }

func (r *Request) AddProperty(objID, propID uint32, value uint64) error {
	r.entries = append(r.entries, entry{objID, propID, value})
	return nil
}

func (r *Request) Cursor() int { return len(r.entries) }

func (r *Request) SetCursor(c int) { r.entries = r.entries[:c] }

// Value returns the last staged value of propID on objID, and whether
// any entry set it.
func (r *Request) Value(objID, propID uint32) (uint64, bool) {
	v, ok := uint64(0), false
	for _, e := range r.entries {
		if e.objID == objID && e.propID == propID {
			v, ok = e.value, true
		}
	}
	return v, ok
}
