package linkbridge

import "errors"

// ErrInvalidConfirmation is returned for confirmation messages that fail
// schema validation or name an unknown device or state.
var ErrInvalidConfirmation = errors.New("linkbridge: invalid confirmation")
