// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import "github.com/cockroachdb/errors"

// Errors shared by every backend and by the queue and descriptor layers.
// Backends wrap these with context; match them with errors.Is.
var (
	// ErrNoAdapter is returned when no adapter meets the minimum requirements.
	ErrNoAdapter = errors.New("gpucore: no suitable adapter")

	// ErrFeatureLevel is returned when a device does not support the
	// requested feature level.
	ErrFeatureLevel = errors.New("gpucore: feature level not supported")

	// ErrNoBackend is returned when no registered backend is available.
	ErrNoBackend = errors.New("gpucore: no backend available")

	// ErrDeviceLost is returned once the device stopped executing work.
	ErrDeviceLost = errors.New("gpucore: device lost")

	// ErrWaitTimeout is returned when a fence wait expires.
	ErrWaitTimeout = errors.New("gpucore: fence wait timed out")

	// ErrHeapExhausted is returned when a descriptor heap has no free slot.
	ErrHeapExhausted = errors.New("gpucore: descriptor heap exhausted")

	// ErrAllocatorInUse is returned when an allocator is reset while the
	// GPU may still read lists recorded into it, or while a list is open on it.
	ErrAllocatorInUse = errors.New("gpucore: command allocator in use")

	// ErrInvalidState is returned when an object is used in the wrong
	// lifecycle state, such as closing a list twice.
	ErrInvalidState = errors.New("gpucore: invalid state")

	// ErrInvalidArgument is returned for malformed descriptions and handles.
	ErrInvalidArgument = errors.New("gpucore: invalid argument")

	// ErrTypeMismatch is returned when objects of different command list
	// types or backends are combined.
	ErrTypeMismatch = errors.New("gpucore: type mismatch")

	// ErrUnsupported is returned for operations a backend cannot perform.
	ErrUnsupported = errors.New("gpucore: unsupported")

	// ErrClosed is returned when an object is used after Destroy or Close.
	ErrClosed = errors.New("gpucore: object closed")
)

// DeviceRemoved returns the error a backend reports after losing its
// device. ErrDeviceLost is in the Unwrap chain; cause is kept as a
// secondary error for formatting with %+v.
func DeviceRemoved(cause error) error {
	return errors.WithSecondaryError(errors.Wrapf(ErrDeviceLost, "device removed: %v", cause), cause)
}
