package imagehash

import "errors"

var (
	// ErrInvalidConfiguration is returned by constructors for out-of-range
	// sizes or unknown modes. Hashing never returns it.
	ErrInvalidConfiguration = errors.New("imagehash: invalid configuration")
	// ErrUnreadableImage indicates the input could not be decoded into pixels.
	ErrUnreadableImage = errors.New("imagehash: unreadable image")
)
