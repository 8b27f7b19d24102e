package liftoff

import (
	"fmt"

	"github.com/raspberrypi-ui/libliftoff/drm"
)

// propsWritten lists the layer properties the applier forwards to a
// plane, beyond the CRTC_ID/FB_ID pair every binding carries. ZPOS is
// read-only metadata captured once at plane registration and is never
// staged here.
var propsWritten = []drm.PropName{
	drm.PropCRTCX, drm.PropCRTCY, drm.PropCRTCW, drm.PropCRTCH,
	drm.PropSRCX, drm.PropSRCY, drm.PropSRCW, drm.PropSRCH,
	drm.PropAlpha, drm.PropRotation,
	drm.PropScalingFilter, drm.PropPixelBlendMode, drm.PropFBDamageClips,
	drm.PropInFenceFD,
}

// applyToRequest stages plane's binding into req: layer's properties if
// layer is non-nil, or CRTC_ID = FB_ID = 0 to disable the plane
// otherwise. It is the Go equivalent of plane_apply.
func applyToRequest(p *Plane, layer *Layer, req drm.AtomicRequest) error {
	var crtcID, fbID uint64
	if layer != nil {
		crtcID = uint64(layer.output.crtcID)
		fbID = layer.propValue(drm.PropFBID)
	}
	if err := setPlaneProp(p, req, drm.PropCRTCID, crtcID, true); err != nil {
		return err
	}
	if err := setPlaneProp(p, req, drm.PropFBID, fbID, true); err != nil {
		return err
	}
	if layer == nil {
		return nil
	}
	for _, name := range propsWritten {
		prop := layer.props[name]
		if prop == nil {
			continue
		}
		if err := setPlaneProp(p, req, name, prop.value, false); err != nil {
			return err
		}
	}
	return nil
}

// tolerateMissing reports whether a plane lacking name may still be
// treated as compatible given value, per the five (property, default)
// pairs the Plane Applier tolerates. Every other missing non-required
// property is a hard incompatibility.
func tolerateMissing(name drm.PropName, value uint64) bool {
	switch name {
	case drm.PropAlpha:
		return value == 0xFFFF
	case drm.PropRotation:
		return value == drm.RotateNone
	case drm.PropScalingFilter, drm.PropPixelBlendMode:
		return value == 0
	case drm.PropFBDamageClips:
		return true
	default:
		return false
	}
}

// setPlaneProp stages name = value on plane's KMS object, validating the
// value against the plane's reported property metadata first (unless
// required, which covers CRTC_ID/FB_ID: every plane carries these two
// but their value domain isn't a simple range/enum/bitmask our
// PropertyMeta models, so they're forwarded unchecked).
func setPlaneProp(p *Plane, req drm.AtomicRequest, name drm.PropName, value uint64, required bool) error {
	meta, ok := p.propertyMeta(name)
	if !ok {
		if required {
			return fmt.Errorf("liftoff: plane %d is missing the %q property: %w", p.id, name, ErrInvalidArgument)
		}
		if tolerateMissing(name, value) {
			return nil
		}
		return fmt.Errorf("liftoff: plane %d is missing the %q property: %w", p.id, name, drm.ErrInvalidProperty)
	}
	if !required {
		if err := meta.Validate(value); err != nil {
			return err
		}
	}
	return req.AddProperty(p.id, meta.ID, value)
}

// checkLayerFB reports whether plane's IN_FORMATS blob lists layer's
// cached framebuffer format and modifier as a supported pair. A plane
// without an IN_FORMATS blob, or a layer whose framebuffer hasn't been
// resolved yet, is treated as compatible and left for the driver's test
// commit to accept or reject.
func checkLayerFB(p *Plane, l *Layer) bool {
	if p.inFormats == nil || !l.fbInfoValid {
		return true
	}
	return p.inFormats.Supports(l.fbInfo.PixelFormat, l.fbInfo.Modifier)
}
