package liftoff

import (
	"errors"

	"github.com/raspberrypi-ui/libliftoff/drm"
)

// errNoReuse signals that the previous plane allocation cannot be
// trusted without re-running the search; it never escapes Output.Apply.
var errNoReuse = errors.New("liftoff: previous allocation is not reusable")

// reusePrevAlloc attempts the fast path: if nothing layer-relevant
// changed since the last successful Apply, the previous plane bindings
// are re-staged and verified with a single test commit instead of
// re-running the full search. It is the Go equivalent of
// reuse_prev_alloc.
func (o *Output) reusePrevAlloc(req drm.AtomicRequest, flags uint32) error {
	if o.layersChanged {
		return errNoReuse
	}
	for _, l := range o.layers.All() {
		if l.changed() || l.needsRealloc() {
			return errNoReuse
		}
	}

	if err := o.applyCurrent(req); err != nil {
		return err
	}
	if err := o.dev.backend.TestCommit(req, flags&^drm.PageFlipEvent); err != nil {
		return errNoReuse
	}
	return nil
}
