// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command diabolic renders a fixed number of frames of the triangle
// pipeline and writes the last presented image to disk.
//
//	diabolic -frames 120 -out frame.bmp
//	diabolic -config diabolic.toml -warp -stats -
package main

import (
	"flag"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/descriptor"
	"github.com/gogpu/diabolic/gpucore"
	"github.com/gogpu/diabolic/pipelines/triangle"
	"github.com/gogpu/diabolic/queue"
	"github.com/gogpu/diabolic/render"
	"github.com/gogpu/diabolic/shader"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML configuration file")
		width      = flag.Uint("width", 0, "surface width (overrides config)")
		height     = flag.Uint("height", 0, "surface height (overrides config)")
		backend    = flag.String("backend", "", "backend name (overrides config)")
		warp       = flag.Bool("warp", false, "use the reference device")
		frames     = flag.Int("frames", 60, "frames to render")
		dt         = flag.Duration("dt", 16*time.Millisecond, "simulated time per frame")
		output     = flag.String("out", "frame.bmp", "output image (.bmp or .png), empty to skip")
		scale      = flag.Int("scale", 1, "output magnification")
		label      = flag.Bool("label", true, "draw the frame count into the output")
		stats      = flag.String("stats", "", "write queue and heap statistics as JSON to this file, - for stdout")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	diabolic.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := render.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = render.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *width != 0 {
		cfg.Width = uint32(*width)
	}
	if *height != 0 {
		cfg.Height = uint32(*height)
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *warp {
		cfg.WARP = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	err := run(cfg, runOptions{
		frames: *frames,
		dt:     *dt,
		output: *output,
		scale:  *scale,
		label:  *label,
		stats:  *stats,
	}, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}
}

// runOptions are the per-run settings that are not part of render.Config.
type runOptions struct {
	frames int
	dt     time.Duration
	output string
	scale  int
	label  bool
	stats  string
}

// run renders the frames and writes the requested outputs. Everything it
// creates is released before it returns, on failure too.
func run(cfg render.Config, opts runOptions, stdout io.Writer) (err error) {
	if err := shader.Init(); err != nil {
		return errors.Wrap(err, "initialize shader compiler")
	}
	defer shader.Close()

	ctx, err := render.NewContext(gpucore.SurfaceTarget{Width: cfg.Width, Height: cfg.Height}, cfg.Options()...)
	if err != nil {
		return errors.Wrap(err, "create render context")
	}
	defer func() {
		err = errors.CombineErrors(err, ctx.Close())
	}()

	tri, err := triangle.New(ctx, shader.Default())
	if err != nil {
		return errors.Wrap(err, "create triangle pipeline")
	}
	defer func() {
		// The pipeline's buffers may still be read by submitted frames.
		if ferr := ctx.Flush(); ferr != nil {
			err = errors.CombineErrors(err, ferr)
		}
		tri.Destroy()
	}()

	r := render.NewRenderer(ctx, tri)
	start := time.Now()
	for i := 0; i < opts.frames; i++ {
		if err := r.Frame(opts.dt); err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
	}
	if err := ctx.Flush(); err != nil {
		return errors.Wrap(err, "flush")
	}
	elapsed := time.Since(start)

	printSummary(stdout, ctx, r.Stats(), elapsed)

	if opts.stats != "" {
		if err := writeStats(opts.stats, ctx); err != nil {
			return errors.Wrap(err, "write stats")
		}
	}

	if opts.output != "" {
		if err := saveFrontBuffer(ctx, opts.output, opts.scale, opts.label, r.Stats().Frames); err != nil {
			return errors.Wrap(err, "save frame")
		}
		log.Printf("Frame saved to %s\n", opts.output)
	}
	return nil
}

func printSummary(w io.Writer, ctx *render.Context, st render.FrameStats, elapsed time.Duration) {
	p := message.NewPrinter(language.English)
	info := ctx.Info()
	p.Fprintf(w, "adapter    %s (%s, %s, feature level %s)\n", info.Name, info.Backend, info.Type, info.FeatureLevel)
	p.Fprintf(w, "frames     %d (%d blocked on the GPU)\n", st.Frames, st.BlockedFrames)
	if st.Frames > 0 {
		p.Fprintf(w, "cpu/frame  %v\n", st.CPUTime/time.Duration(st.Frames))
		p.Fprintf(w, "fps        %.1f\n", float64(st.Frames)/elapsed.Seconds())
	}
	d := ctx.DirectQueue().Stats()
	p.Fprintf(w, "direct     %d submissions, %d allocators, %d lists\n", d.Submissions, d.AllocatorsMade, d.ListsMade)
	c := ctx.CopyQueue().Stats()
	p.Fprintf(w, "copy       %d submissions\n", c.Submissions)
}

func writeStats(path string, ctx *render.Context) error {
	var b strings.Builder
	b.WriteString(`{"queues":`)
	b.Write(queue.StatsJSON(ctx.DirectQueue(), ctx.CopyQueue()))
	b.WriteString(`,"heaps":`)
	b.Write(descriptor.StatsJSON(ctx.Heaps()...))
	b.WriteString("}\n")

	if path == "-" {
		_, err := io.WriteString(os.Stdout, b.String())
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func saveFrontBuffer(ctx *render.Context, path string, scale int, label bool, frames uint64) error {
	capturer, ok := ctx.Swapchain().(gpucore.FrameCapturer)
	if !ok {
		return errors.Newf("%s swapchain cannot read back frames", ctx.Info().Backend)
	}
	img, err := capturer.CaptureFrontBuffer()
	if err != nil {
		return err
	}

	out := img
	if scale > 1 {
		b := img.Bounds()
		scaled := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
		xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)
		out = scaled
	}
	if label {
		if err := drawLabel(out, message.NewPrinter(language.English).Sprintf("frame %d", frames)); err != nil {
			return err
		}
	}

	var encode func(io.Writer, image.Image) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		encode = png.Encode
	case ".bmp":
		encode = bmp.Encode
	default:
		return errors.Newf("unsupported output format %q", filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f, out); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func drawLabel(dst *image.RGBA, text string) error {
	parsed, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return err
	}
	size := float64(dst.Bounds().Dy()) / 24
	if size < 8 {
		// Too small to read.
		return nil
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}
	defer face.Close()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(int(size/2), int(size*1.5)),
	}
	d.DrawString(text)
	return nil
}
