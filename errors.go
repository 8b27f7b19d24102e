package liftoff

import (
	"errors"

	"github.com/raspberrypi-ui/libliftoff/drm"
)

// Errors returned by the engine's public API (spec §6's error return set),
// re-exported alongside drm's sentinels so callers need only import this
// package for the common cases.
var (
	// ErrAlreadyExists is returned by NewPlane when a plane with the same
	// ID is already registered on the device.
	ErrAlreadyExists = errors.New("liftoff: already exists")

	// ErrOutOfMemory is part of the public error set; no function in
	// this package returns it, since layer property tables are fixed-size.
	ErrOutOfMemory = drm.ErrOutOfMemory

	// ErrInvalidArgument is returned for malformed calls, such as
	// attempting to set a layer's CRTC_ID property directly.
	ErrInvalidArgument = drm.ErrInvalidArgument
)
