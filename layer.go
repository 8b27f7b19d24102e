package liftoff

import (
	"github.com/raspberrypi-ui/libliftoff/drm"
	"github.com/raspberrypi-ui/libliftoff/internal/bitvec"
	"github.com/raspberrypi-ui/libliftoff/logging"
)

// Property holds one DRM property's current and last-clean values. The
// prev value is what clean() last captured; comparing against it is how
// the reuse guard and priority bookkeeping detect change without
// re-running the search.
type Property struct {
	name  drm.PropName
	value uint64
	prev  uint64
}

func (p *Property) dirty() bool { return p.value != p.prev }

// Layer is a client-provided image to be scanned out, either directly
// from a hardware plane or, failing that, via GPU composition. A Layer
// belongs to exactly one Output for its lifetime.
type Layer struct {
	dev    *Device
	output *Output
	plane  *Plane // weak back-reference, nil when unbound

	props [drm.NumProps]*Property

	forceComp bool

	fbInfo      drm.FBInfo
	fbInfoValid bool
	prevFBInfo  drm.FBInfo
	prevFBValid bool

	// rejectedPlanes memoizes, for the allocation attempt in progress,
	// which device planes (indexed as in dev.planes.All()) are known
	// incompatible with this layer, so the search need not re-test them
	// on a later branch. It is cleared at the start of every attempt.
	rejectedPlanes bitvec.V[uint64]

	// pendingPriority accrues between priority-period rollovers; currentPriority
	// is what pendingPriority held as of the last rollover. See updatePriority.
	pendingPriority int
	currentPriority int
}

// NewLayer creates a layer belonging to output.
func NewLayer(output *Output) *Layer {
	l := &Layer{dev: output.dev, output: output}
	output.layers.Append(l)
	output.layersChanged = true
	return l
}

// Destroy removes the layer from its output, unbinding its plane if any.
func (l *Layer) Destroy() {
	if l.plane != nil {
		l.plane.layer = nil
		l.plane = nil
	}
	l.output.layers.Remove(func(q *Layer) bool { return q == l })
	l.output.layersChanged = true
	if l.output.compLayer == l {
		l.output.compLayer = nil
	}
}

// Plane returns the hardware plane currently bound to the layer, or nil
// if the layer is being (or needs to be) composited.
func (l *Layer) Plane() *Plane { return l.plane }

// SetProperty stages name = value on the layer. CRTC_ID may not be set
// this way: plane binding is the allocator's exclusive responsibility.
func (l *Layer) SetProperty(name drm.PropName, value uint64) error {
	if name == drm.PropCRTCID {
		return ErrInvalidArgument
	}
	p := l.props[name]
	if p == nil {
		p = &Property{name: name}
		l.props[name] = p
		l.output.layersChanged = true
	}
	if p.value != value {
		p.value = value
		if name == drm.PropFBID {
			l.fbInfoValid = false
		}
	}
	return nil
}

// UnsetProperty removes name from the layer, reverting to the plane's
// default for it.
func (l *Layer) UnsetProperty(name drm.PropName) error {
	if name == drm.PropCRTCID {
		return ErrInvalidArgument
	}
	if l.props[name] != nil {
		l.props[name] = nil
		l.output.layersChanged = true
	}
	return nil
}

// SetFBComposited marks the layer as requiring GPU composition
// regardless of whether a plane could otherwise be found for it,
// matching liftoff_rpi_layer_fb_composited_set.
func (l *Layer) SetFBComposited(composited bool) {
	if l.forceComp != composited {
		l.output.layersChanged = true
	}
	l.forceComp = composited
}

func (l *Layer) propValue(name drm.PropName) uint64 {
	if p := l.props[name]; p != nil {
		return p.value
	}
	return 0
}

// zposValue returns the layer's explicit ZPOS property value, and whether
// one is set. A layer with no ZPOS imposes no z-order constraint.
func (l *Layer) zposValue() (int, bool) {
	p := l.props[drm.PropZPos]
	if p == nil {
		return 0, false
	}
	return int(int64(p.value)), true
}

// visible reports whether the layer would show up on screen at all if
// given a plane, matching layer_visible_get: a layer with ALPHA explicitly
// set to 0 is never visible regardless of anything else; otherwise it's
// visible if forced into composition or it carries a non-zero framebuffer.
func (l *Layer) visible() bool {
	if p := l.props[drm.PropAlpha]; p != nil && p.value == 0 {
		return false
	}
	return l.forceComp || l.propValue(drm.PropFBID) != 0
}

// NeedsComposition reports whether the layer currently requires GPU
// composition: either it was forced to, or it's visible but unbound.
func (l *Layer) NeedsComposition() bool {
	return l.forceComp || (l.visible() && l.plane == nil)
}

type rect struct{ x1, y1, x2, y2 int32 }

func (l *Layer) rect() rect {
	x := int32(l.propValue(drm.PropCRTCX))
	y := int32(l.propValue(drm.PropCRTCY))
	w := int32(l.propValue(drm.PropCRTCW))
	h := int32(l.propValue(drm.PropCRTCH))
	return rect{x, y, x + w, y + h}
}

// intersects reports whether l and o's destination rectangles overlap.
// Invisible layers never intersect anything.
func (l *Layer) intersects(o *Layer) bool {
	if !l.visible() || !o.visible() {
		return false
	}
	a, b := l.rect(), o.rect()
	return a.x1 < b.x2 && b.x1 < a.x2 && a.y1 < b.y2 && b.y1 < a.y2
}

// resetCandidatePlanes clears the per-attempt rejection memo, growing it
// to cover every plane currently on the device.
func (l *Layer) resetCandidatePlanes() {
	n := l.dev.planes.Len()
	l.rejectedPlanes.Clear()
	if grown := l.rejectedPlanes.Len(); grown < n {
		l.rejectedPlanes.Grow(n - grown)
	}
}

func (l *Layer) rejectPlane(index int) {
	if index < l.rejectedPlanes.Len() {
		l.rejectedPlanes.Set(index)
	}
}

func (l *Layer) planeRejected(index int) bool {
	if index >= l.rejectedPlanes.Len() {
		return false
	}
	return l.rejectedPlanes.IsSet(index)
}

// cacheFBInfo refreshes the layer's framebuffer metadata from the
// device's Backend if the bound FB_ID changed since the last call,
// closing any GEM handles the previous lookup held that the new one no
// longer references.
func (l *Layer) cacheFBInfo() {
	fbID := uint32(l.propValue(drm.PropFBID))
	if fbID == 0 {
		return
	}
	if l.fbInfoValid && l.fbInfo.FBID == fbID {
		return
	}
	info, err := l.dev.backend.GetFB(fbID)
	if err != nil {
		logging.Logf(logging.Error, "failed to get FB %d: %v", fbID, err)
		return
	}
	l.closeStaleHandles(info)
	l.fbInfo = info
	l.fbInfoValid = true
}

func (l *Layer) closeStaleHandles(next drm.FBInfo) {
	if l.fbInfo.FBID == 0 {
		return
	}
	for _, h := range l.fbInfo.Handles {
		keep := false
		for _, nh := range next.Handles {
			if nh == h {
				keep = true
				break
			}
		}
		if !keep {
			if err := l.dev.backend.CloseHandle(h); err != nil {
				logging.Logf(logging.Error, "failed to close GEM handle %d: %v", h, err)
			}
		}
	}
}

// needsRealloc reports whether the layer's framebuffer layout changed
// enough, relative to the last clean allocation, that a previous plane
// binding cannot be trusted without re-testing.
func (l *Layer) needsRealloc() bool {
	if !l.fbInfoValid || !l.prevFBValid {
		return l.fbInfoValid != l.prevFBValid
	}
	return l.prevFBInfo.NeedsRealloc(l.fbInfo)
}

// clean captures the layer's current property and framebuffer state as
// the new last-clean snapshot, used by the reuse guard and priority
// bookkeeping on the next Apply.
func (l *Layer) clean() {
	for _, p := range l.props {
		if p != nil {
			p.prev = p.value
		}
	}
	l.prevFBInfo = l.fbInfo
	l.prevFBValid = l.fbInfoValid
}

// changed reports whether any property differs from its last-clean value
// in a way the reuse guard cannot ignore. IN_FENCE_FD and FB_DAMAGE_CLIPS
// changes are always harmless; ALPHA transitions between non-edge values
// (neither 0 nor 0xFFFF) are harmless; FB_ID changes are harmless here
// because needsRealloc separately catches the cases that actually matter
// (dimension/format/modifier changes and 0-to-nonzero transitions).
func (l *Layer) changed() bool {
	for _, p := range l.props {
		if p != nil && p.dirty() && !l.changeHarmless(p) {
			return true
		}
	}
	return false
}

func (l *Layer) changeHarmless(p *Property) bool {
	switch p.name {
	case drm.PropInFenceFD, drm.PropFBDamageClips, drm.PropFBID:
		return true
	case drm.PropAlpha:
		edge := func(v uint64) bool { return v == 0 || v == 0xFFFF }
		return !edge(p.value) && !edge(p.prev)
	default:
		return false
	}
}

// updatePriority accrues pendingPriority whenever FB_ID differs from its
// last-clean snapshot — a proxy for "this layer is actively updating" —
// and on rollover commits the accrued value to currentPriority and resets,
// matching layer_priority_update.
func (l *Layer) updatePriority(rollover bool) {
	if p := l.props[drm.PropFBID]; p != nil && p.dirty() {
		l.pendingPriority++
	}
	if rollover {
		l.currentPriority = l.pendingPriority
		l.pendingPriority = 0
	}
}
