package selection

import "errors"

// ErrUnknownLayer is returned (wrapped) by resolvers for a layer id that
// does not exist in the data source.
var ErrUnknownLayer = errors.New("unknown layer")

// IsUnknownLayer reports whether err wraps ErrUnknownLayer.
func IsUnknownLayer(err error) bool {
	return errors.Is(err, ErrUnknownLayer)
}
