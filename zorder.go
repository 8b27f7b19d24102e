package liftoff

// allocatedLayerOver reports whether some already-decided, non-primary
// plane (index < planeIdx) holds an intersecting layer with a lower ZPOS
// than cand's: placing cand here would put it visually below a layer it
// must cover. Mirrors allocated_layer_over_get.
func (s *allocSearch) allocatedLayerOver(planeIdx int, cand *Layer, candZpos int) bool {
	for i := 0; i < planeIdx; i++ {
		if s.planes[i].typ == PlanePrimary {
			continue
		}
		other := s.assigned[i]
		if other == nil {
			continue
		}
		oz, ok := other.zposValue()
		if !ok {
			continue
		}
		if candZpos > oz && cand.intersects(other) {
			return true
		}
	}
	return false
}

// allocatedPlaneUnder reports whether some already-decided, non-primary
// plane at or below p's own zpos holds an intersecting layer: plane
// ordering would invert the layer ordering cand's ZPOS implies. Mirrors
// allocated_plane_under_get.
func (s *allocSearch) allocatedPlaneUnder(planeIdx int, p *Plane, cand *Layer) bool {
	for i := 0; i < planeIdx; i++ {
		op := s.planes[i]
		if op.typ == PlanePrimary {
			continue
		}
		other := s.assigned[i]
		if other == nil {
			continue
		}
		if p.zpos >= op.zpos && cand.intersects(other) {
			return true
		}
	}
	return false
}

// compositedLayerOver reports whether some layer not yet placed anywhere in
// this branch, carrying a strictly greater ZPOS, intersects cand — that
// layer will end up GPU-composited onto the primary and so must render
// above anything cand lands on a non-primary plane. Mirrors
// composited_layer_over_get.
func (s *allocSearch) compositedLayerOver(cand *Layer) bool {
	candZpos, ok := cand.zposValue()
	if !ok {
		return false
	}
	for li, other := range s.layers {
		if other == cand || s.usedLayer[li] {
			continue
		}
		oz, ok := other.zposValue()
		if !ok {
			continue
		}
		if oz > candZpos && cand.intersects(other) {
			return true
		}
	}
	return false
}

// layerCompatibleWithPlane implements the Z-order Constraint Evaluator: a
// candidate layer without an explicit ZPOS is constrained only by the
// composition-layer-on-non-primary rule; one with ZPOS is also checked
// against the last assigned non-primary layer's zpos, the primary's own
// placement, and any still-unplaced higher layer destined for composition.
func (s *allocSearch) layerCompatibleWithPlane(planeIdx int, p *Plane, cand *Layer) bool {
	if zpos, ok := cand.zposValue(); ok {
		if zpos > s.lastLayerZpos && s.allocatedLayerOver(planeIdx, cand, zpos) {
			return false
		}
		if zpos < s.lastLayerZpos && s.allocatedPlaneUnder(planeIdx, p, cand) {
			return false
		}
		if p.typ != PlanePrimary && zpos < s.primaryLayerZpos && p.zpos > s.primaryPlaneZpos {
			return false
		}
	}
	if p.typ != PlanePrimary {
		if s.compositedLayerOver(cand) {
			return false
		}
		if cand == s.compLayer {
			return false
		}
	}
	return checkLayerFB(p, cand)
}
