package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/osl"
)

// Config describes one testshade run.
type Config struct {
	Width      int      `yaml:"width"`
	Height     int      `yaml:"height"`
	Output     string   `yaml:"output"`
	Threads    int      `yaml:"threads"`
	SearchPath []string `yaml:"searchpath"`
	Verbose    bool     `yaml:"verbose"`

	// Location is "centers" (default) or "grid".
	Location string `yaml:"location"`

	Attributes  map[string]any     `yaml:"attributes"`
	Layers      []LayerConfig      `yaml:"layers"`
	Connections []ConnectionConfig `yaml:"connections"`
	Outputs     []OutputConfig     `yaml:"outputs"`
}

// LayerConfig is one shader instance of the group.
type LayerConfig struct {
	Shader string         `yaml:"shader"`
	Usage  string         `yaml:"usage"`
	Layer  string         `yaml:"layer"`
	Params map[string]any `yaml:"params"`

	// Unlocked lists parameters that geometry may override.
	Unlocked []string `yaml:"unlocked"`
}

// ConnectionConfig connects "layer.output" to "layer.input".
type ConnectionConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// OutputConfig names a shader output and the image file it is saved to.
type OutputConfig struct {
	Var  string `yaml:"var"`
	File string `yaml:"file"`
}

var errConfig = errors.New("testshade: invalid config")

func defaultConfig() Config {
	return Config{
		Width:    256,
		Height:   256,
		Output:   ".",
		Location: "centers",
		Layers:   []LayerConfig{{Shader: "noisetest"}},
		Outputs:  []OutputConfig{{Var: "Cout", File: "Cout.png"}},
	}
}

// loadConfig reads a YAML config on top of the defaults.
func loadConfig(r io.Reader) (Config, error) {
	cfg := defaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", errConfig, err)
	}
	return cfg, cfg.validate()
}

// parseArgs builds the config from the command line. Flags that are set
// override the config file.
func parseArgs(args []string, stderr io.Writer) (Config, error) {
	fs := flag.NewFlagSet("testshade", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "YAML config file")
		width      = fs.Int("width", 0, "image width")
		height     = fs.Int("height", 0, "image height")
		output     = fs.String("o", "", "output directory")
		threads    = fs.Int("threads", 0, "shading threads (0 = GOMAXPROCS)")
		searchPath = fs.String("searchpath", "", "colon-separated shader search path")
		verbose    = fs.Bool("v", false, "verbose output")
	)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			return Config{}, err
		}
		defer f.Close()
		if cfg, err = loadConfig(f); err != nil {
			return Config{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			cfg.Width = *width
		case "height":
			cfg.Height = *height
		case "o":
			cfg.Output = *output
		case "threads":
			cfg.Threads = *threads
		case "searchpath":
			cfg.SearchPath = strings.Split(*searchPath, ":")
		case "v":
			cfg.Verbose = *verbose
		}
	})
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: image size %dx%d", errConfig, c.Width, c.Height)
	case len(c.Layers) == 0:
		return fmt.Errorf("%w: no layers", errConfig)
	case len(c.Outputs) == 0:
		return fmt.Errorf("%w: no outputs", errConfig)
	}
	if _, err := c.location(); err != nil {
		return err
	}
	for i, l := range c.Layers {
		if l.Shader == "" {
			return fmt.Errorf("%w: layer %d has no shader", errConfig, i)
		}
	}
	for _, o := range c.Outputs {
		if o.Var == "" {
			return fmt.Errorf("%w: output without var", errConfig)
		}
	}
	for _, conn := range c.Connections {
		if _, _, err := splitParam(conn.From); err != nil {
			return err
		}
		if _, _, err := splitParam(conn.To); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) location() (osl.ShadeLocation, error) {
	switch c.Location {
	case "", "centers":
		return osl.ShadePixelCenters, nil
	case "grid":
		return osl.ShadePixelGrid, nil
	}
	return 0, fmt.Errorf("%w: location %q", errConfig, c.Location)
}

// splitParam splits "layer.param".
func splitParam(s string) (layer, param string, err error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("%w: %q is not layer.param", errConfig, s)
	}
	return s[:i], s[i+1:], nil
}

// sortedKeys returns the keys of m in order, so attributes and parameters
// are applied deterministically.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// toValue converts a decoded YAML value. Lists of three numbers become a
// color when triples is set.
func toValue(v any, triples bool) (osl.Value, error) {
	switch v := v.(type) {
	case int:
		return osl.Int(int32(v)), nil
	case float64:
		return osl.Float(float32(v)), nil
	case bool:
		if v {
			return osl.Int(1), nil
		}
		return osl.Int(0), nil
	case string:
		return osl.String(v), nil
	case []any:
		return listValue(v, triples)
	}
	return osl.Value{}, fmt.Errorf("%w: unsupported value %v (%T)", errConfig, v, v)
}

func listValue(vs []any, triples bool) (osl.Value, error) {
	var (
		ints    []int32
		floats  []float32
		strs    []string
		isFloat bool
	)
	for _, v := range vs {
		switch v := v.(type) {
		case int:
			ints = append(ints, int32(v))
			floats = append(floats, float32(v))
		case float64:
			isFloat = true
			floats = append(floats, float32(v))
		case string:
			strs = append(strs, v)
		default:
			return osl.Value{}, fmt.Errorf("%w: unsupported list element %v (%T)", errConfig, v, v)
		}
	}

	switch {
	case len(strs) == len(vs):
		return osl.Strings(strs...), nil
	case len(strs) > 0:
		return osl.Value{}, fmt.Errorf("%w: mixed list %v", errConfig, vs)
	case triples && len(floats) == 3:
		return osl.Color(floats[0], floats[1], floats[2]), nil
	case isFloat:
		return osl.Floats(floats...), nil
	}
	return osl.Ints(ints...), nil
}
