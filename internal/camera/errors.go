package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevices is returned by Open when discovery finds no camera.
	ErrNoDevices = errors.New("no cameras detected")
	// ErrIndexOutOfRange is matched by *IndexError.
	ErrIndexOutOfRange = errors.New("camera index out of range")
	// ErrInitialization wraps any other failure during Open.
	ErrInitialization = errors.New("camera initialization failed")
)

// IndexError reports a camera index that does not match a discovered device.
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("camera index %d is out of range, found %d cameras", e.Index, e.Count)
}

// Is makes errors.Is(err, ErrIndexOutOfRange) true.
func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}
