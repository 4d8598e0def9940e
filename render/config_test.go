// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/diabolic/gpucore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diabolic.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
width = 640
height = 480
warp = true
min_feature_level = "11.1"
clear_color = [0.0, 0.5, 1.0, 1.0]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Width != 640 || cfg.Height != 480 || !cfg.WARP {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.FrameCount != FrameCount || cfg.SRVHeapCapacity != SRVHeapCapacity {
		t.Errorf("defaults not kept: %+v", cfg)
	}
	if cfg.ClearColor != [4]float32{0, 0.5, 1, 1} {
		t.Errorf("ClearColor = %v", cfg.ClearColor)
	}

	o := defaultOptions()
	for _, opt := range cfg.Options() {
		opt(&o)
	}
	if !o.warp || o.minLevel != gpucore.FeatureLevel11_1 || o.clearColor != cfg.ClearColor {
		t.Errorf("options = %+v", o)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "colour = 1\n"},
		{"bad level", "min_feature_level = \"13_0\"\n"},
		{"one frame", "frame_count = 1\n"},
		{"zero width", "width = 0\n"},
		{"syntax", "width = \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.body)); err == nil {
				t.Error("LoadConfig succeeded")
			}
		})
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadConfig of a missing file succeeded")
	}
}

func TestParseFeatureLevel(t *testing.T) {
	tests := []struct {
		in   string
		want gpucore.FeatureLevel
		err  bool
	}{
		{"", MinFeatureLevel, false},
		{"12_1", gpucore.FeatureLevel12_1, false},
		{"11.0", gpucore.FeatureLevel11_0, false},
		{"9_3", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFeatureLevel(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseFeatureLevel(%q) error = %v", tt.in, err)
			continue
		}
		if err != nil && !errors.Is(err, gpucore.ErrInvalidArgument) {
			t.Errorf("ParseFeatureLevel(%q) error = %v, want ErrInvalidArgument", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFeatureLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
