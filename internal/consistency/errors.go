package consistency

import "errors"

// ErrInvalidArgument marks a caller mistake such as a nil payload or a tab type
// that does not match the payload.
var ErrInvalidArgument = errors.New("invalid argument")
