// Package drm defines the boundary between the plane allocation engine and
// the kernel DRM/KMS driver. It models only what the engine needs to drive
// an atomic test commit: CRTC and plane enumeration, property metadata,
// framebuffer lookup, and the atomic request itself. Opening the DRM node,
// the ioctl plumbing, and hot-plug handling live outside this module; a
// caller supplies a Backend implementation (typically a thin cgo wrapper
// around libdrm, or drmtest.Fake for tests).
package drm

import "errors"

// PropName is the closed set of DRM properties the engine understands.
// Layers and planes both index into this enumeration.
type PropName int

// The property names the engine reads or writes. Values start at 1 so the
// zero value of PropName can mean "no property".
const (
	PropType PropName = iota + 1
	PropFBID
	PropCRTCID
	PropCRTCX
	PropCRTCY
	PropCRTCW
	PropCRTCH
	PropSRCX
	PropSRCY
	PropSRCW
	PropSRCH
	PropZPos
	PropAlpha
	PropRotation
	PropScalingFilter
	PropPixelBlendMode
	PropFBDamageClips
	PropInFenceFD
	PropInFormats

	propCount // sentinel, not a real property name
)

// NumProps is the number of distinct property names, including the unused
// zero slot. Callers sizing a fixed per-property-name array should use
// this instead of hard-coding a length.
const NumProps = int(propCount)

func (n PropName) String() string {
	switch n {
	case PropType:
		return "type"
	case PropFBID:
		return "FB_ID"
	case PropCRTCID:
		return "CRTC_ID"
	case PropCRTCX:
		return "CRTC_X"
	case PropCRTCY:
		return "CRTC_Y"
	case PropCRTCW:
		return "CRTC_W"
	case PropCRTCH:
		return "CRTC_H"
	case PropSRCX:
		return "SRC_X"
	case PropSRCY:
		return "SRC_Y"
	case PropSRCW:
		return "SRC_W"
	case PropSRCH:
		return "SRC_H"
	case PropZPos:
		return "zpos"
	case PropAlpha:
		return "alpha"
	case PropRotation:
		return "rotation"
	case PropScalingFilter:
		return "SCALING_FILTER"
	case PropPixelBlendMode:
		return "pixel blend mode"
	case PropFBDamageClips:
		return "FB_DAMAGE_CLIPS"
	case PropInFenceFD:
		return "IN_FENCE_FD"
	case PropInFormats:
		return "IN_FORMATS"
	default:
		return "unknown"
	}
}

// PropKind is the DRM property value-space kind, as reported by
// drmModeGetPropertyType.
type PropKind int

const (
	KindRange PropKind = iota
	KindSignedRange
	KindEnum
	KindBitmask
)

// PropertyMeta is the driver-reported metadata for one property on one
// plane: its KMS object ID, value domain, and mutability.
type PropertyMeta struct {
	ID        uint32
	Name      PropName
	Kind      PropKind
	Immutable bool

	// RangeMin/RangeMax bound KindRange values.
	RangeMin, RangeMax uint64
	// SignedMin/SignedMax bound KindSignedRange values.
	SignedMin, SignedMax int64
	// EnumValues lists the values a KindEnum property may take.
	EnumValues []uint64
	// BitmaskBits lists the bit positions a KindBitmask property may set.
	BitmaskBits []uint

	// Value is the property's current value, as reported alongside its
	// domain by drmModeObjectGetProperties. The engine only consults
	// this for plane-identity properties read once at registration
	// (type, zpos); everything staged into an AtomicRequest goes through
	// AddProperty instead.
	Value uint64
}

// Validate reports ErrInvalidProperty if value is not a member of the
// property's value domain, per its Kind.
func (m PropertyMeta) Validate(value uint64) error {
	if m.Immutable {
		return ErrInvalidProperty
	}
	switch m.Kind {
	case KindRange:
		if value < m.RangeMin || value > m.RangeMax {
			return ErrInvalidProperty
		}
	case KindSignedRange:
		v := int64(value)
		if v < m.SignedMin || v > m.SignedMax {
			return ErrInvalidProperty
		}
	case KindEnum:
		for _, e := range m.EnumValues {
			if e == value {
				return nil
			}
		}
		return ErrInvalidProperty
	case KindBitmask:
		var mask uint64
		for _, b := range m.BitmaskBits {
			mask |= 1 << b
		}
		if value&^mask != 0 {
			return ErrInvalidProperty
		}
	}
	return nil
}

// PlaneInfo is the static, driver-reported identity of a plane: its KMS
// object ID and the CRTC bitmask it can be attached to.
type PlaneInfo struct {
	ID            uint32
	PossibleCRTCs uint32
}

// FBModifiersFlag mirrors DRM_MODE_FB_MODIFIERS: set on FBInfo.Flags when
// the framebuffer carries an explicit tiling/compression modifier.
const FBModifiersFlag uint32 = 1 << 1

// FBInfo is a snapshot of a framebuffer's memory layout, as reported by
// drmModeGetFB2.
type FBInfo struct {
	FBID        uint32
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Modifier    uint64
	Flags       uint32
	// Handles holds the GEM handles the lookup created, deduplicated by
	// the Backend so the engine closes each distinct handle exactly once.
	Handles []uint32
}

// NeedsRealloc reports whether b's memory layout differs enough from a's
// that a layer bound to a buffer matching b cannot reuse a plane
// allocation computed against a.
func (a FBInfo) NeedsRealloc(b FBInfo) bool {
	return a.Width != b.Width || a.Height != b.Height ||
		a.PixelFormat != b.PixelFormat || a.Modifier != b.Modifier
}

// FormatModifier is one entry of an IN_FORMATS blob's modifier table: the
// tiling/compression modifier, and which of the blob's formats it supports
// as a 64-bit bitmask window starting at Offset.
type FormatModifier struct {
	Modifier   uint64
	Offset     uint32
	FormatMask uint64
}

// FormatModifierBlob is a plane's IN_FORMATS property blob: the set of
// pixel formats it can scan out, and which (format, modifier) pairs are
// supported.
type FormatModifierBlob struct {
	Formats   []uint32
	Modifiers []FormatModifier
}

// Supports reports whether the blob lists (format, modifier) as a
// supported pair. It returns false whenever it cannot prove support,
// including when format or modifier is simply absent from the blob.
func (b *FormatModifierBlob) Supports(format uint32, modifier uint64) bool {
	formatIndex := -1
	for i, f := range b.Formats {
		if f == format {
			formatIndex = i
			break
		}
	}
	if formatIndex < 0 {
		return false
	}
	for _, m := range b.Modifiers {
		if m.Modifier != modifier {
			continue
		}
		if formatIndex < int(m.Offset) || formatIndex >= int(m.Offset)+64 {
			return false
		}
		shift := uint(formatIndex - int(m.Offset))
		return m.FormatMask&(1<<shift) != 0
	}
	return false
}

// PageFlipEvent mirrors DRM_MODE_PAGE_FLIP_EVENT. Output.Apply strips this
// bit before issuing a test-only commit: a test commit never flips.
const PageFlipEvent uint32 = 1 << 0

// RotateNone mirrors DRM_MODE_ROTATE_0, the ROTATION property's identity
// value.
const RotateNone uint64 = 1 << 0

// AtomicRequest is the mutable, cursor-addressable staging area for an
// atomic commit (libdrm's drmModeAtomicReq). The engine takes a cursor
// before every speculative property write and restores it on rejection,
// so a Backend implementation must make SetCursor an exact rewind.
type AtomicRequest interface {
	// AddProperty stages objID.propID = value. It should only fail for
	// reasons outside the engine's validation (e.g. allocation failure).
	AddProperty(objID, propID uint32, value uint64) error
	// Cursor returns an opaque position usable with SetCursor.
	Cursor() int
	// SetCursor discards everything staged after a previously returned
	// cursor.
	SetCursor(c int)
}

// Backend is the abstraction over the kernel DRM boundary. Implementations
// typically wrap libdrm; drmtest.Fake implements it in memory for tests
// and for cmd/liftoffctl.
type Backend interface {
	// CRTCs returns the device's CRTC object IDs, in KMS resource order.
	CRTCs() []uint32
	// Planes returns the device's planes, in no particular order; the
	// engine re-derives its own primary-first, zpos-descending order.
	Planes() ([]PlaneInfo, error)
	// PlaneProperties returns the property metadata for one plane,
	// including its "type" and "zpos" properties.
	PlaneProperties(planeID uint32) ([]PropertyMeta, error)
	// FormatsBlob resolves an IN_FORMATS property's blob ID into its
	// parsed contents.
	FormatsBlob(blobID uint32) (*FormatModifierBlob, error)
	// GetFB looks up a framebuffer's layout by ID. Implementations must
	// close any GEM handles the lookup creates internally and return
	// only the handles the caller is responsible for closing, with
	// duplicate handle values collapsed to a single entry.
	GetFB(fbID uint32) (FBInfo, error)
	// CloseHandle closes a GEM handle previously returned by GetFB.
	CloseHandle(handle uint32) error
	// TestCommit issues a test-only atomic commit of req with flags. It
	// must retry transparently on transient interrupt/retry conditions
	// and translate any other kernel rejection into one of
	// ErrInvalidProperty, ErrRange, or ErrNoSpace; any other error is
	// treated as a hard failure that aborts the allocation.
	TestCommit(req AtomicRequest, flags uint32) error
}

// Expected test-commit rejections. These prune a single allocation branch
// and never surface from Output.Apply.
var (
	ErrInvalidProperty = errors.New("drm: invalid property value")
	ErrRange           = errors.New("drm: value out of range")
	ErrNoSpace         = errors.New("drm: insufficient space")
)

// Recoverable client errors, returned from the engine's public API.
var (
	ErrOutOfMemory     = errors.New("drm: out of memory")
	ErrInvalidArgument = errors.New("drm: invalid argument")
)
