package liftoff

import (
	"github.com/raspberrypi-ui/libliftoff/drm"
	"github.com/raspberrypi-ui/libliftoff/internal/llist"
	"github.com/raspberrypi-ui/libliftoff/logging"
)

// Output is a CRTC binding: it owns an ordered list of layers in
// insertion order and, optionally, a composition layer — a client-
// provided GPU-composited fallback that may only be bound to the
// primary plane.
type Output struct {
	dev       *Device
	crtcID    uint32
	crtcIndex int

	layers    llist.List[*Layer]
	compLayer *Layer // weak, non-owning; must belong to this output

	layersChanged       bool
	allocReusedCounter int
}

// NewOutput creates an Output bound to crtcID, which must exist in the
// device's CRTC table.
func NewOutput(dev *Device, crtcID uint32) (*Output, error) {
	idx := dev.crtcIndex(crtcID)
	if idx < 0 {
		return nil, ErrInvalidArgument
	}
	o := &Output{dev: dev, crtcID: crtcID, crtcIndex: idx}
	dev.outputs.Append(o)
	return o, nil
}

// Destroy removes the output from its device. It does not destroy the
// output's layers; the caller is responsible for them (matching
// liftoff_rpi_output_destroy's documented contract).
func (o *Output) Destroy() {
	o.dev.outputs.Remove(func(q *Output) bool { return q == o })
}

// SetCompositionLayer designates layer as the output's composition
// fallback. layer must already belong to this output, or the call is a
// no-op.
func (o *Output) SetCompositionLayer(layer *Layer) {
	if layer != nil && layer.output != o {
		return
	}
	if layer != o.compLayer {
		o.layersChanged = true
	}
	o.compLayer = layer
}

// CompositionLayer returns the output's current composition layer, or
// nil.
func (o *Output) CompositionLayer() *Layer { return o.compLayer }

// NeedsComposition reports whether any visible, non-bound layer on the
// output requires GPU composition.
func (o *Output) NeedsComposition() bool {
	for _, l := range o.layers.All() {
		if l == o.compLayer {
			continue
		}
		if l.NeedsComposition() {
			return true
		}
	}
	return false
}

func (o *Output) nonCompLayersLen() int {
	n := 0
	for _, l := range o.layers.All() {
		if l.visible() && l != o.compLayer {
			n++
		}
	}
	return n
}

// fp16ToDouble converts a DRM 16.16 fixed-point value (used by SRC_*
// properties) to a float64, for diagnostic logging.
func fp16ToDouble(val uint64) float64 {
	return float64(val>>16) + float64(val&0xFFFF)/0xFFFF
}

// logLayers dumps each layer's key properties at Debug priority, mirroring
// output_log_layers. It is only assembled when debug logging is active.
func (o *Output) logLayers() {
	if !logging.Has(logging.Debug) {
		return
	}
	logging.Logf(logging.Debug, "Layers on CRTC %d (%d total):", o.crtcID, o.layers.Len())
	for _, l := range o.layers.All() {
		if l.forceComp {
			logging.Logf(logging.Debug, "  Layer %p (forced composition):", l)
		} else {
			suffix := ""
			if o.compLayer == l {
				suffix = " (composition layer)"
			}
			logging.Logf(logging.Debug, "  Layer %p%s:", l, suffix)
		}
		for _, p := range l.props {
			if p == nil {
				continue
			}
			switch p.name {
			case drm.PropCRTCX, drm.PropCRTCY:
				logging.Logf(logging.Debug, "    %s = %+d", p.name, int32(p.value))
			case drm.PropSRCX, drm.PropSRCY, drm.PropSRCW, drm.PropSRCH:
				logging.Logf(logging.Debug, "    %s = %f", p.name, fp16ToDouble(p.value))
			case drm.PropFBID, drm.PropType:
				logging.Logf(logging.Debug, "    %s = %d", p.name, p.value)
			}
		}
	}
}

// Apply computes (or reuses) a plane allocation for the output's current
// layers and stages it into req. Flags are passed to the driver verbatim,
// except PageFlipEvent, which is stripped before every test commit.
//
// On success, req holds the property settings realizing the chosen
// mapping, plane/layer bindings are updated, and every layer is marked
// clean. See SPEC_FULL.md / spec.md §7 for the failure semantics: a
// failure after the search has completed still leaves the best-found
// bindings installed; a failure during the search leaves prior bindings
// cleared.
func (o *Output) Apply(req drm.AtomicRequest, flags uint32) error {
	dev := o.dev

	dev.updatePriorities()
	o.updateFBInfo()

	if err := o.reusePrevAlloc(req, flags); err == nil {
		o.logReuse()
		return nil
	}
	o.logNoReuse()

	for _, l := range o.layers.All() {
		l.resetCandidatePlanes()
	}
	dev.testCommitCounter = 0

	o.logLayers()

	for _, p := range dev.planes.All() {
		if p.layer != nil && p.layer.output == o {
			p.layer.plane = nil
			p.layer = nil
		}
	}

	disabled := 0
	for _, p := range dev.planes.All() {
		if p.layer == nil {
			disabled++
			logging.Logf(logging.Debug, "Disabling plane %d", p.id)
			if err := applyToRequest(p, nil, req); err != nil {
				return err
			}
		}
	}

	best, bestScore, err := o.chooseLayers(req, flags)
	if err != nil {
		return err
	}

	logging.Logf(logging.Debug, "Found plane allocation for output %p (score: %d/%d non-composited layers, disabled planes: %d, tests: %d):",
		o, bestScore, o.nonCompLayersLen(), disabled, dev.testCommitCounter)

	planes := dev.planes.All()
	bound := 0
	for i, p := range planes {
		l := best[i]
		if l == nil {
			continue
		}
		logging.Logf(logging.Debug, "  Layer %p -> plane %d %s", l, p.id, p.typ)
		p.layer = l
		l.plane = p
		bound++
	}
	if bound == 0 {
		logging.Logf(logging.Debug, "No layer has a plane")
	}

	if err := o.applyCurrent(req); err != nil {
		return err
	}

	o.markClean()
	return nil
}

// applyCurrent re-stages every device plane's current binding (bound or
// nil) into req, matching apply_current.
func (o *Output) applyCurrent(req drm.AtomicRequest) error {
	cur := req.Cursor()
	for _, p := range o.dev.planes.All() {
		if err := applyToRequest(p, p.layer, req); err != nil {
			req.SetCursor(cur)
			return err
		}
	}
	return nil
}

func (o *Output) logReuse() {
	if o.allocReusedCounter == 0 {
		logging.Logf(logging.Debug, "Reusing previous plane allocation on output %p", o)
	}
	o.allocReusedCounter++
}

func (o *Output) logNoReuse() {
	logging.Logf(logging.Debug, "Computing plane allocation on output %p", o)
	if o.allocReusedCounter != 0 {
		logging.Logf(logging.Debug, "Stopped reusing previous plane allocation on output %p (had reused it %d times)", o, o.allocReusedCounter)
		o.allocReusedCounter = 0
	}
}

func (o *Output) updateFBInfo() {
	for _, l := range o.layers.All() {
		l.cacheFBInfo()
	}
}

func (o *Output) markClean() {
	o.layersChanged = false
	for _, l := range o.layers.All() {
		l.clean()
	}
}
