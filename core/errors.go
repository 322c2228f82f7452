// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import "errors"

// Sentinel errors the engine classifies failures with. Wrapped errors
// carry context; match with errors.Is.
var (
	// ErrInvalidArgument marks misuse of the engine API by a caller,
	// such as signalling a timeline counter with a non-monotonic value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrFrameSkipped marks a transient device failure. The frame was
	// not presented, the frame slot did not advance, and the caller may
	// retry on the next frame.
	ErrFrameSkipped = errors.New("frame skipped")

	// ErrDeviceLost marks a fatal device failure. The engine must run a
	// final FrameEnd, release all deferred resources and exit.
	ErrDeviceLost = errors.New("device lost")

	// ErrEngineShutdown is returned when new frames are requested after
	// shutdown has begun.
	ErrEngineShutdown = errors.New("engine is shutting down")
)

// IsTransient reports whether err allows retrying on the next frame.
func IsTransient(err error) bool {
	return errors.Is(err, ErrFrameSkipped)
}

// IsFatal reports whether err requires the engine to shut down.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost)
}
