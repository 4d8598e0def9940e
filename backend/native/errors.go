// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import "github.com/cockroachdb/errors"

var (
	// ErrNoHAL is returned when the requested HAL backend is not compiled in.
	ErrNoHAL = errors.New("native: HAL backend not available")

	// ErrProvider is returned when a device provider does not expose HAL
	// objects.
	ErrProvider = errors.New("native: provider does not expose a HAL device")
)
