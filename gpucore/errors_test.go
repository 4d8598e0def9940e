// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDeviceRemoved(t *testing.T) {
	cause := fmt.Errorf("barrier: %w", ErrInvalidState)
	err := DeviceRemoved(cause)

	// Matched through the standard library, not only cockroachdb/errors.
	if !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("errors.Is(%v, ErrDeviceLost) = false", err)
	}
	if !strings.Contains(err.Error(), "barrier") {
		t.Errorf("Error() = %q, want the cause in the message", err)
	}
	wrapped := fmt.Errorf("submit: %w", err)
	if !errors.Is(wrapped, ErrDeviceLost) {
		t.Errorf("errors.Is(%v, ErrDeviceLost) = false after wrapping", wrapped)
	}
}
