// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"errors"
	"testing"

	"github.com/gogpu/diabolic/gpucore"
)

const testWGSL = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) color: vec4<f32>,
}

@vertex
fn vs_main(@location(0) pos: vec2<f32>, @location(1) color: vec4<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = vec4<f32>(pos, 0.0, 1.0);
    out.color = color;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return in.color;
}
`

func TestCompilerLifecycle(t *testing.T) {
	var c Compiler
	if _, err := c.Compile(testWGSL, gpucore.StageVertex, "vs_main"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Compile before Init = %v, want ErrNotInitialized", err)
	}
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	if err := c.Init(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init = %v, want ErrAlreadyInitialized", err)
	}
	c.Close()
	if c.Ready() {
		t.Error("Ready() after Close")
	}
	if _, err := c.Compile(testWGSL, gpucore.StageVertex, "vs_main"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Compile after Close = %v, want ErrNotInitialized", err)
	}
	if err := c.Init(); err != nil {
		t.Errorf("Init after Close: %v", err)
	}
	c.Close()
}

func TestCompileCachesModule(t *testing.T) {
	var c Compiler
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	vs, err := c.Compile(testWGSL, gpucore.StageVertex, "vs_main")
	if err != nil {
		t.Fatalf("Compile vertex: %v", err)
	}
	ps, err := c.Compile(testWGSL, gpucore.StagePixel, "fs_main")
	if err != nil {
		t.Fatalf("Compile pixel: %v", err)
	}
	if len(vs.Code) == 0 || len(vs.Code)%4 != 0 {
		t.Errorf("vertex bytecode has %d bytes", len(vs.Code))
	}
	if words := Words(vs.Code); len(words) == 0 || words[0] != 0x07230203 {
		t.Errorf("bytecode does not start with the SPIR-V magic number")
	}
	if vs.Stage != gpucore.StageVertex || ps.EntryPoint != "fs_main" {
		t.Errorf("bytecode metadata = %v %q", vs.Stage, ps.EntryPoint)
	}
	if c.Builds() != 1 {
		t.Errorf("Builds() = %d, want 1", c.Builds())
	}
}

func TestCompileEntryPoint(t *testing.T) {
	var c Compiler
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	tests := []struct {
		stage gpucore.ShaderStage
		entry string
		ok    bool
	}{
		{gpucore.StageVertex, "vs_main", true},
		{gpucore.StagePixel, "fs_main", true},
		{gpucore.StagePixel, "vs_main", false},
		{gpucore.StageVertex, "main", false},
		{gpucore.StageCompute, "cs_main", false},
		{gpucore.StageVertex, "vs", false},
		{gpucore.StageVertex, "vs_main(", false},
		{gpucore.StageVertex, ".*", false},
	}
	for _, tt := range tests {
		if got := hasEntryPoint(testWGSL, tt.stage, tt.entry); got != tt.ok {
			t.Errorf("hasEntryPoint(%s, %q) = %v, want %v", tt.stage, tt.entry, got, tt.ok)
		}
	}
	compute := "@compute @workgroup_size(64, 1, 1)\nfn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {}\n"
	if !hasEntryPoint(compute, gpucore.StageCompute, "cs_main") {
		t.Error("compute entry point with attributes not found")
	}
	if _, err := c.Compile(testWGSL, gpucore.StageVertex, "missing"); !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("Compile with missing entry = %v, want ErrNoEntryPoint", err)
	}
}

func TestProfile(t *testing.T) {
	tests := []struct {
		stage gpucore.ShaderStage
		model gpucore.ShaderModel
		want  string
	}{
		{gpucore.StageVertex, gpucore.ShaderModel6_6, "vs_6_6"},
		{gpucore.StagePixel, gpucore.ShaderModel6_0, "ps_6_0"},
		{gpucore.StageCompute, gpucore.ShaderModel6_5, "cs_6_5"},
	}
	for _, tt := range tests {
		if got := Profile(tt.stage, tt.model); got != tt.want {
			t.Errorf("Profile(%s, %s) = %q, want %q", tt.stage, tt.model, got, tt.want)
		}
	}
}

func TestWords(t *testing.T) {
	got := Words([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0, 0, 0, 0xff})
	want := []uint32{0x07230203, 1}
	if len(got) != len(want) {
		t.Fatalf("Words() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}
