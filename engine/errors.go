// SPDX-License-Identifier: EPL-2.0

package engine

import "errors"

var (
	// ErrTrackNotFound is returned when a track id does not resolve to a
	// loaded track.
	ErrTrackNotFound = errors.New("track not found")
	// ErrTrackExists is returned by LoadTrack when the id is already live
	// and replacement is disabled.
	ErrTrackExists = errors.New("track already exists")
	// ErrCapacityExceeded is returned by Play when the maximum number of
	// simultaneously playing tracks has been reached.
	ErrCapacityExceeded = errors.New("playing track capacity exceeded")
	// ErrInvalidArgument covers out-of-range volume, speed, seek position
	// and malformed configuration values.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDecodeFailed wraps decoder failures during LoadTrack.
	ErrDecodeFailed = errors.New("decode failed")
	// ErrIO wraps streaming read failures during playback.
	ErrIO = errors.New("i/o failed")
	// ErrDevice indicates the output stream reported a driver error.
	ErrDevice = errors.New("output device failed")
	// ErrEngineNotRunning is returned for commands issued before Start or
	// after Shutdown.
	ErrEngineNotRunning = errors.New("engine not running")
	// ErrUnsupportedFormat is returned when no decoder is registered for a
	// file extension.
	ErrUnsupportedFormat = errors.New("unsupported format")

	errTrackNotPlaying = errors.New("track is not playing")
	errTrackNotPaused  = errors.New("track is not paused")
)
