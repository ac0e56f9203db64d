// Command testshade shades a whole image with a shader group described by
// a YAML config and writes one image per shader output.
//
// Usage:
//
//	testshade [options]
//
// Examples:
//
//	testshade                                 # noisetest, 256x256, Cout.png
//	testshade -config checker.yaml -o out     # group from a config file
//	testshade -width 512 -height 512 -v       # bigger image, verbose
//
// Output files are written by extension: ".png", ".tif", or a raw 8-bit
// texel dump ".rgba", ".bgra" or ".r8".
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl"
	"github.com/gogpu/osl/imagebuf"
	"github.com/gogpu/osl/internal/testrender"
	"github.com/gogpu/osl/typedesc"
	"github.com/gogpu/osl/ustring"
)

// Closure records registered with the session.
type (
	emissionParams struct{}

	diffuseParams struct {
		N f32.Vec3
	}

	microfacetParams struct {
		Dist                ustring.Ustring
		N, U                f32.Vec3
		XAlpha, YAlpha, Eta float32
		Refract             int32
	}
)

func main() {
	cfg, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run shades the image described by cfg and writes the outputs.
func run(cfg Config, stdout, stderr io.Writer) (err error) {
	verbosity := osl.VerbosityNormal
	if cfg.Verbose {
		verbosity = osl.VerbosityVerbose
		osl.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		defer osl.SetLogger(nil)
	}
	loc, err := cfg.location()
	if err != nil {
		return err
	}

	r := testrender.New(cfg.Width, cfg.Height)
	ss, err := osl.New(r,
		osl.WithThreads(cfg.Threads),
		osl.WithVerbosity(verbosity),
		osl.WithErrorHandler(func(sev osl.Severity, msg string) {
			fmt.Fprintf(stderr, "%s: %s\n", sev, msg)
		}),
	)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, ss.Close()) }()

	if err := registerClosures(ss); err != nil {
		return err
	}
	if err := setAttributes(ss, cfg); err != nil {
		return err
	}

	g, err := buildGroup(ss, cfg)
	if err != nil {
		return err
	}
	defer g.Release()

	channels, err := bindOutputs(ss, g, r, cfg.Outputs, stdout)
	if err != nil {
		return err
	}
	if err := shadeOutputs(ss, g, r, channels, loc); err != nil {
		return err
	}

	paths, err := r.WriteOutputs(cfg.Output)
	for _, p := range paths {
		fmt.Fprintf(stdout, "Wrote %s\n", p)
	}
	if err != nil {
		return err
	}

	if cfg.Verbose {
		st := ss.Stats()
		fmt.Fprintf(stdout, "Shaded %d points for %d outputs (%d executions)\n", st.ShadedPoints, len(cfg.Outputs), st.Executions)
	}
	return nil
}

func registerClosures(ss *osl.ShadingSystem) error {
	emission, err := osl.DescribeClosure[emissionParams]("emission", 0).Build()
	if err != nil {
		return err
	}
	diffuse, err := osl.DescribeClosure[diffuseParams]("diffuse", 1).
		Field("N", osl.WithSemantics(typedesc.Normal)).
		Build()
	if err != nil {
		return err
	}
	microfacet, err := osl.DescribeClosure[microfacetParams]("microfacet", 2).
		Field("Dist").
		Field("N", osl.WithSemantics(typedesc.Normal)).
		Field("U").
		Field("XAlpha").
		Field("YAlpha").
		Field("Eta").
		Field("Refract").
		Build()
	if err != nil {
		return err
	}

	for _, d := range []*osl.ClosureDescriptor{emission, diffuse, microfacet} {
		if err := ss.RegisterClosure(d); err != nil {
			return err
		}
	}
	return nil
}

func setAttributes(ss *osl.ShadingSystem, cfg Config) error {
	if len(cfg.SearchPath) > 0 {
		if err := ss.Attribute("searchpath:shader", osl.String(strings.Join(cfg.SearchPath, ":"))); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(cfg.Attributes) {
		v, err := toValue(cfg.Attributes[name], false)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}
		if err := ss.Attribute(name, v); err != nil {
			return err
		}
	}

	vars := make([]string, len(cfg.Outputs))
	for i, o := range cfg.Outputs {
		vars[i] = o.Var
	}
	return ss.Attribute("renderer_outputs", osl.Strings(vars...))
}

func buildGroup(ss *osl.ShadingSystem, cfg Config) (*osl.ShaderGroup, error) {
	g, err := ss.ShaderGroupBegin("testshade")
	if err != nil {
		return nil, err
	}
	if err := addLayers(ss, g, cfg); err != nil {
		g.Release()
		return nil, err
	}
	return g, nil
}

func addLayers(ss *osl.ShadingSystem, g *osl.ShaderGroup, cfg Config) error {
	for _, l := range cfg.Layers {
		for _, name := range sortedKeys(l.Params) {
			v, err := toValue(l.Params[name], true)
			if err != nil {
				return fmt.Errorf("parameter %q: %w", name, err)
			}
			lock := osl.WithLockGeom(!slices.Contains(l.Unlocked, name))
			if err := ss.Parameter(g, name, v, lock); err != nil {
				return err
			}
		}
		usage, layer := l.Usage, l.Layer
		if usage == "" {
			usage = "surface"
		}
		if layer == "" {
			layer = l.Shader
		}
		if err := ss.Shader(g, usage, l.Shader, layer); err != nil {
			return err
		}
	}

	for _, c := range cfg.Connections {
		srcLayer, srcParam, _ := splitParam(c.From)
		dstLayer, dstParam, _ := splitParam(c.To)
		if err := ss.ConnectShaders(g, srcLayer, srcParam, dstLayer, dstParam); err != nil {
			return err
		}
	}
	return ss.ShaderGroupEnd(g)
}

// bindOutputs binds g once, reports the type of every output and allocates
// its image. It returns the total number of output channels.
func bindOutputs(ss *osl.ShadingSystem, g *osl.ShaderGroup, r *testrender.Renderer, outs []OutputConfig, stdout io.Writer) (int, error) {
	channels := 0
	err := ss.WithContext(func(ctx *osl.ShadingContext) error {
		if err := ss.Execute(ctx, g, &osl.ShaderGlobals{Renderer: r}, false); err != nil {
			return err
		}
		for _, o := range outs {
			sym, err := ss.FindSymbol(g, o.Var)
			if err != nil {
				return err
			}
			td := sym.TypeDesc()
			file := o.File
			if file == "" {
				file = o.Var
			}
			fmt.Fprintf(stdout, "Output %s to %s (%s)\n", o.Var, file, td)
			if _, err := r.AddOutput(o.Var, file, typedesc.TypeFloat, td.BaseValues()); err != nil {
				return err
			}
			channels += td.BaseValues()
		}
		return nil
	})
	return channels, err
}

// shadeOutputs shades every output in one pass over the image, into a
// combined image whose channels are then split into the output images.
func shadeOutputs(ss *osl.ShadingSystem, g *osl.ShaderGroup, r *testrender.Renderer, channels int, loc osl.ShadeLocation) error {
	all, err := imagebuf.New("outputs", imagebuf.NewSpec(r.Width(), r.Height(), channels, typedesc.TypeFloat))
	if err != nil {
		return err
	}
	if err := ss.ShadeImage(g, nil, all, r.OutputVars(), loc, r.ROI()); err != nil {
		return err
	}

	first := 0
	for _, o := range r.Outputs() {
		if err := o.Buf.CopyChannels(all, first); err != nil {
			return err
		}
		first += o.Buf.Spec().NChannels
	}
	return nil
}
