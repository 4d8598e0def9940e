// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/diabolic/gpucore"
)

// Config is the file form of the context options.
//
//	width = 1280
//	height = 720
//	backend = "native"
//	min_feature_level = "12_0"
//	clear_color = [1.0, 0.71, 0.76, 1.0]
type Config struct {
	Width           uint32     `toml:"width"`
	Height          uint32     `toml:"height"`
	Backend         string     `toml:"backend"`
	WARP            bool       `toml:"warp"`
	MinFeatureLevel string     `toml:"min_feature_level"`
	FrameCount      int        `toml:"frame_count"`
	SRVHeapCapacity uint32     `toml:"srv_heap_capacity"`
	ClearColor      [4]float32 `toml:"clear_color"`
	SyncInterval    int        `toml:"sync_interval"`
}

// DefaultConfig returns the configuration matching the context defaults.
func DefaultConfig() Config {
	return Config{
		Width:           1280,
		Height:          720,
		MinFeatureLevel: MinFeatureLevel.String(),
		FrameCount:      FrameCount,
		SRVHeapCapacity: SRVHeapCapacity,
		ClearColor:      DefaultClearColor,
		SyncInterval:    1,
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "open config")
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "decode %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks the values NewContext would reject.
func (c *Config) Validate() error {
	if c.Width == 0 || c.Height == 0 {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "size %dx%d", c.Width, c.Height)
	}
	if c.FrameCount < 2 {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "frame_count %d, need at least 2", c.FrameCount)
	}
	if _, err := ParseFeatureLevel(c.MinFeatureLevel); err != nil {
		return err
	}
	return nil
}

// Options converts the configuration into context options.
func (c *Config) Options() []Option {
	opts := []Option{
		WithFrameCount(c.FrameCount),
		WithSRVHeapCapacity(c.SRVHeapCapacity),
		WithClearColor(c.ClearColor),
		WithSyncInterval(c.SyncInterval),
	}
	if level, err := ParseFeatureLevel(c.MinFeatureLevel); err == nil {
		opts = append(opts, WithMinFeatureLevel(level))
	}
	if c.Backend != "" {
		opts = append(opts, WithBackend(c.Backend))
	}
	if c.WARP {
		opts = append(opts, WithWARP())
	}
	return opts
}

// ParseFeatureLevel parses "12_0" or "12.0". The empty string yields
// MinFeatureLevel.
func ParseFeatureLevel(s string) (gpucore.FeatureLevel, error) {
	if s == "" {
		return MinFeatureLevel, nil
	}
	levels := []gpucore.FeatureLevel{
		gpucore.FeatureLevel11_0,
		gpucore.FeatureLevel11_1,
		gpucore.FeatureLevel12_0,
		gpucore.FeatureLevel12_1,
		gpucore.FeatureLevel12_2,
	}
	s = strings.ReplaceAll(s, ".", "_")
	for _, l := range levels {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, errors.Wrapf(gpucore.ErrInvalidArgument, "feature level %q", s)
}
