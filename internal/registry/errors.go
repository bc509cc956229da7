package registry

import "errors"

// Error codes surfaced to clients as error{message:<code>} frames, or
// used internally to drive the router's silent-drop rules (§7, §9).
var (
	ErrInvalidSize   = errors.New("InvalidSize")
	ErrAlreadyExists = errors.New("AlreadyExists")
	ErrDoesNotExist  = errors.New("DoesNotExist")
	ErrIsFull        = errors.New("IsFull")
	ErrAlreadyInRoom = errors.New("AlreadyInRoom")
)
