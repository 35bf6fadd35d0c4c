package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrame indicates a COBS run is zero or overruns the frame.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrFrameTooShort indicates a frame without room for channel, payload
	// and checksum.
	ErrFrameTooShort = errors.New("frame too short")
	// ErrShortWrite indicates the link accepted only part of a frame.
	ErrShortWrite = errors.New("short write")
	// ErrChecksumMismatch is matched by every *ChecksumError.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// ChecksumError indicates a checksum mismatch.
type ChecksumError struct {
	Expected byte
	Actual   byte
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expect %02x, got %02x", e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrChecksumMismatch) work.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}
