package renderer

import (
	"github.com/NebulousLabs/errors"
	"github.com/lighttransport/francine/modules"
)

// wrapInternal extends err with modules.ErrInternal, the status this
// package's failures (codec errors, subprocess failures) surface as.
func wrapInternal(err error) error {
	return errors.Extend(modules.ErrInternal, err)
}
