package liftoff

import (
	"errors"
	"math"

	"github.com/raspberrypi-ui/libliftoff/drm"
)

// allocSearch holds the mutable state of one recursive plane allocation
// attempt: the device's planes in their fixed (primary-first,
// zpos-descending) order, the output's visible layers (including the
// composition layer and any forced-composition layers, which are ordinary
// candidates subject to their own rejection rules), and the best complete
// assignment found so far. Recursion depth is bounded by len(planes),
// since exactly one decision is made per plane.
type allocSearch struct {
	dev       *Device
	out       *Output
	planes    []*Plane
	layers    []*Layer
	compLayer *Layer

	assigned  []*Layer // parallel to planes
	usedLayer []bool   // parallel to layers

	// lastLayerZpos, primaryLayerZpos and primaryPlaneZpos are the scalar
	// z-order state threaded through the recursion; see zorder.go.
	lastLayerZpos    int
	primaryLayerZpos int
	primaryPlaneZpos int
	composited       bool // whether compLayer has been placed in this branch
	score            int  // assigned non-composition layers in this branch

	req   drm.AtomicRequest
	flags uint32

	best      []*Layer
	bestScore int
}

// chooseLayers searches for the plane assignment that maximizes the
// number of layers taken off the GPU composition path, verifying every
// candidate assignment with a driver test commit before accepting it.
// It is the Go equivalent of output_layers_choose.
func (o *Output) chooseLayers(req drm.AtomicRequest, flags uint32) ([]*Layer, int, error) {
	planes := o.dev.planes.All()

	var layers []*Layer
	for _, l := range o.layers.All() {
		if l.visible() {
			layers = append(layers, l)
		}
	}

	s := &allocSearch{
		dev:              o.dev,
		out:              o,
		planes:           planes,
		layers:           layers,
		compLayer:        o.compLayer,
		assigned:         make([]*Layer, len(planes)),
		usedLayer:        make([]bool, len(layers)),
		lastLayerZpos:    math.MaxInt,
		primaryLayerZpos: math.MinInt,
		primaryPlaneZpos: math.MaxInt,
		req:              req,
		flags:            flags,
	}

	if err := s.recurse(0); err != nil {
		return nil, 0, err
	}
	if s.best == nil {
		s.best = make([]*Layer, len(planes))
	}
	return s.best, s.bestScore, nil
}

// valid implements the "Validity of a terminal state S" rule: with a
// composition layer present, every visible non-composition layer must
// either have a plane or the composition layer must be in use, and the
// composition layer must never be placed when it isn't needed.
func (s *allocSearch) valid() bool {
	if s.compLayer == nil {
		return true
	}
	k := s.out.nonCompLayersLen()
	if !s.composited && s.score != k {
		return false
	}
	if s.composited && s.score == k {
		return false
	}
	return true
}

// recurse decides, for planes[planeIdx], whether to leave it disabled or
// bind it to one of the remaining candidate layers, then moves on to the
// next plane. The skip branch (leave the plane empty) is always explored
// first; a plane that's already bound or CRTC-incompatible with this
// output only has the skip branch available. Every binding attempt is
// validated with a live test commit before the search descends into it:
// an invalid-property report from the Plane Applier, or a force_comp/
// format-incompatible layer, rewinds without a test commit and continues;
// the three sentinel errors drm.Backend documents as expected
// (ErrInvalidProperty/ErrRange/ErrNoSpace) from the test commit itself
// prune just that branch; any other error aborts the whole attempt.
func (s *allocSearch) recurse(planeIdx int) error {
	if planeIdx == len(s.planes) {
		if s.score > s.bestScore && s.valid() {
			s.bestScore = s.score
			s.best = append([]*Layer(nil), s.assigned...)
		}
		return nil
	}

	remaining := len(s.planes) - planeIdx
	if s.bestScore >= s.score+remaining {
		// No assignment of the planes left can beat the best found so
		// far; prune the whole subtree.
		return nil
	}

	p := s.planes[planeIdx]

	if err := s.recurse(planeIdx + 1); err != nil {
		return err
	}

	crtcBit := uint32(1) << uint(s.out.crtcIndex)
	if p.layer != nil || p.possibleCRTCs&crtcBit == 0 {
		return nil
	}

	for li, l := range s.layers {
		if s.usedLayer[li] || l.planeRejected(planeIdx) {
			continue
		}
		if !s.layerCompatibleWithPlane(planeIdx, p, l) {
			continue
		}

		cursor := s.req.Cursor()
		if err := applyToRequest(p, l, s.req); err != nil {
			s.req.SetCursor(cursor)
			if errors.Is(err, drm.ErrInvalidProperty) {
				continue
			}
			return err
		}

		if l.forceComp || !checkLayerFB(p, l) {
			s.req.SetCursor(cursor)
			continue
		}

		s.dev.testCommitCounter++
		err := s.dev.backend.TestCommit(s.req, s.flags&^drm.PageFlipEvent)
		if err != nil {
			s.req.SetCursor(cursor)
			if isExpectedRejection(err) {
				l.rejectPlane(planeIdx)
				continue
			}
			return err
		}

		s.usedLayer[li] = true
		s.assigned[planeIdx] = l
		prevLast, prevPrimaryL, prevPrimaryP := s.lastLayerZpos, s.primaryLayerZpos, s.primaryPlaneZpos
		prevComposited, prevScore := s.composited, s.score

		if zpos, ok := l.zposValue(); ok {
			if p.typ != PlanePrimary {
				s.lastLayerZpos = zpos
			} else {
				s.primaryLayerZpos = zpos
				s.primaryPlaneZpos = p.zpos
			}
		}
		if l == s.compLayer {
			s.composited = true
		} else {
			s.score++
		}

		if err := s.recurse(planeIdx + 1); err != nil {
			s.req.SetCursor(cursor)
			return err
		}

		s.lastLayerZpos, s.primaryLayerZpos, s.primaryPlaneZpos = prevLast, prevPrimaryL, prevPrimaryP
		s.composited, s.score = prevComposited, prevScore
		s.assigned[planeIdx] = nil
		s.usedLayer[li] = false
		s.req.SetCursor(cursor)
	}

	return nil
}

func isExpectedRejection(err error) bool {
	switch err {
	case drm.ErrInvalidProperty, drm.ErrRange, drm.ErrNoSpace:
		return true
	default:
		return false
	}
}
