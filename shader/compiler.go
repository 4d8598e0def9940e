// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader compiles WGSL into the bytecode pipeline state objects
// take.
//
// The compiler has an explicit lifecycle. Init it once at startup, compile
// any number of shaders, then Close it:
//
//	if err := shader.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer shader.Close()
//
//	vs, err := shader.Compile(src, gpucore.StageVertex, "vs_main")
//
// Compiled modules are cached by source, so the vertex and pixel stages of
// one WGSL module are compiled once.
package shader

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/gpucore"
)

var (
	// ErrNotInitialized is returned when compiling before Init or after Close.
	ErrNotInitialized = errors.New("shader: compiler not initialized")

	// ErrAlreadyInitialized is returned by a second Init without Close.
	ErrAlreadyInitialized = errors.New("shader: compiler already initialized")

	// ErrNoEntryPoint is returned when the source lacks the entry point.
	ErrNoEntryPoint = errors.New("shader: entry point not found")
)

// Option configures a Compiler.
type Option func(*options)

type options struct {
	model gpucore.ShaderModel
}

// WithShaderModel sets the shader model named in profile strings. The
// default is 6_6. It does not change the generated code.
func WithShaderModel(m gpucore.ShaderModel) Option {
	return func(o *options) {
		o.model = m
	}
}

// Compiler compiles WGSL to SPIR-V. It is safe for concurrent use.
type Compiler struct {
	mu     sync.Mutex
	ready  bool
	model  gpucore.ShaderModel
	cache  map[string][]byte
	builds int
}

// Init prepares the compiler. It fails if the compiler is already
// initialized.
func (c *Compiler) Init(opts ...Option) error {
	o := options{model: gpucore.ShaderModel6_6}
	for _, opt := range opts {
		opt(&o)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return ErrAlreadyInitialized
	}
	c.ready = true
	c.model = o.model
	c.cache = make(map[string][]byte)
	c.builds = 0
	diabolic.Logger().Debug("shader: compiler initialized", "model", o.model.String())
	return nil
}

// Close releases the cache. Compile fails until the next Init.
func (c *Compiler) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	c.cache = nil
}

// Ready reports whether the compiler is initialized.
func (c *Compiler) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Builds returns how many modules were actually compiled since Init.
func (c *Compiler) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

// Profile returns the profile name of stage, such as "vs_6_6", as it
// appears in logs and errors.
func (c *Compiler) Profile(stage gpucore.ShaderStage) string {
	c.mu.Lock()
	m := c.model
	c.mu.Unlock()
	return Profile(stage, m)
}

// Compile compiles source and returns the bytecode of entry for stage.
func (c *Compiler) Compile(source string, stage gpucore.ShaderStage, entry string) (gpucore.ShaderBytecode, error) {
	if !hasEntryPoint(source, stage, entry) {
		return gpucore.ShaderBytecode{}, errors.Wrapf(ErrNoEntryPoint, "%s entry point %q", stage, entry)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return gpucore.ShaderBytecode{}, ErrNotInitialized
	}
	code, ok := c.cache[source]
	if !ok {
		var err error
		code, err = naga.Compile(source)
		if err != nil {
			return gpucore.ShaderBytecode{}, errors.Wrapf(err, "compile %s %q", Profile(stage, c.model), entry)
		}
		c.cache[source] = code
		c.builds++
		diabolic.Logger().Debug("shader: compiled",
			"profile", Profile(stage, c.model), "entry", entry, "bytes", len(code))
	}
	return gpucore.ShaderBytecode{
		Stage:      stage,
		EntryPoint: entry,
		Code:       code,
		Source:     source,
	}, nil
}

// Profile formats the profile name of stage for shader model m. Profiles
// label compilations; every stage compiles to the same SPIR-V module.
func Profile(stage gpucore.ShaderStage, m gpucore.ShaderModel) string {
	prefix := "vs"
	switch stage {
	case gpucore.StagePixel:
		prefix = "ps"
	case gpucore.StageCompute:
		prefix = "cs"
	}
	return fmt.Sprintf("%s_%s", prefix, m)
}

// entryPoints match the functions a stage attribute marks as entry points
// and capture their names.
var entryPoints = map[gpucore.ShaderStage]*regexp.Regexp{
	gpucore.StageVertex:  entryPattern("vertex"),
	gpucore.StagePixel:   entryPattern("fragment"),
	gpucore.StageCompute: entryPattern("compute"),
}

func entryPattern(attr string) *regexp.Regexp {
	return regexp.MustCompile(`@` + attr + `(?:\s+@[a-z_]+(?:\([^)]*\))?)*\s+fn\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
}

// hasEntryPoint reports whether source declares entry with the attribute
// of stage.
func hasEntryPoint(source string, stage gpucore.ShaderStage, entry string) bool {
	re, ok := entryPoints[stage]
	if !ok || !strings.Contains(source, entry) {
		return false
	}
	for _, m := range re.FindAllStringSubmatch(source, -1) {
		if m[1] == entry {
			return true
		}
	}
	return false
}

// Words converts SPIR-V bytes into little-endian 32-bit words.
func Words(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = uint32(code[i*4]) |
			uint32(code[i*4+1])<<8 |
			uint32(code[i*4+2])<<16 |
			uint32(code[i*4+3])<<24
	}
	return words
}

var global Compiler

// Init initializes the process-wide compiler.
func Init(opts ...Option) error { return global.Init(opts...) }

// Default returns the process-wide compiler.
func Default() *Compiler { return &global }

// Close closes the process-wide compiler.
func Close() { global.Close() }

// Compile compiles with the process-wide compiler.
func Compile(source string, stage gpucore.ShaderStage, entry string) (gpucore.ShaderBytecode, error) {
	return global.Compile(source, stage, entry)
}
