// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package main

// Register the HAL backend; build with -tags nogpu for the reference
// device only.
import _ "github.com/gogpu/diabolic/backend/native"
