// Package config handles emergent configuration from YAML files and
// environment variables.
//
// Precedence, lowest to highest: built-in defaults, the YAML config file,
// then EMERGENT_-prefixed environment variables. Load() applies all three;
// Validate() should run before the config is used.
//
// Example Usage:
//
//	cfg, err := config.Load("emergent.yaml")
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//	db, err := emergent.Open(cfg)
//
// Environment Variables:
//   - EMERGENT_ENGINE="memory" or "badger"
//   - EMERGENT_DATA_DIR="./data"
//   - EMERGENT_GATE_THRESHOLD=0.30
//   - EMERGENT_SOURCES="cokac,rocky"
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cokac/emergent/pkg/designer"
	"github.com/cokac/emergent/pkg/gate"
	"github.com/cokac/emergent/pkg/graph"
	"github.com/cokac/emergent/pkg/metrics"
)

// Engine names accepted by Config.Engine.
const (
	EngineMemory = "memory"
	EngineBadger = "badger"
)

// Config holds all emergent settings.
type Config struct {
	// Engine selects the store implementation: "memory" or "badger".
	Engine string `yaml:"engine"`

	// DataDir is the badger data directory. Ignored by the memory engine.
	DataDir string `yaml:"data_dir"`

	// Sources is the recognized contributor set. Minimum two entries.
	Sources []graph.Source `yaml:"sources"`

	// Weights are the emergence component weights.
	Weights metrics.Weights `yaml:"weights"`

	// Markers are the DCI question/delayed tag sets.
	Markers metrics.Markers `yaml:"markers"`

	// Designer holds the pair designer knobs.
	Designer DesignerConfig `yaml:"designer"`

	// Gate holds the execution gate knobs.
	Gate GateConfig `yaml:"gate"`
}

// DesignerConfig configures the pair designer.
type DesignerConfig struct {
	Coefficients designer.Coefficients `yaml:"coefficients"`

	// MinSpan and MinSemantic filter recommendation candidates; zero
	// disables either filter.
	MinSpan     int     `yaml:"min_span"`
	MinSemantic float64 `yaml:"min_semantic"`
}

// GateConfig configures the execution gate.
type GateConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine:   EngineMemory,
		DataDir:  "./data",
		Sources:  graph.DefaultSources(),
		Weights:  metrics.DefaultWeights(),
		Markers:  metrics.DefaultMarkers(),
		Designer: DesignerConfig{Coefficients: designer.DefaultCoefficients()},
		Gate:     GateConfig{Threshold: gate.DefaultThreshold},
	}
}

// Load builds a config from defaults, the optional YAML file at path (empty
// path skips the file), and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto the config. Unknown keys
// fail, so a typoed weight name cannot silently fall back to a default.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("%w: parsing config file %s: %v", graph.ErrMalformed, path, err)
	}
	return nil
}

// ApplyEnv overlays EMERGENT_-prefixed environment variables. Unset or
// unparsable variables are ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("EMERGENT_ENGINE"); v != "" {
		c.Engine = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("EMERGENT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("EMERGENT_SOURCES"); v != "" {
		var sources []graph.Source
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, graph.Source(s))
			}
		}
		if len(sources) > 0 {
			c.Sources = sources
		}
	}
	if v, ok := envFloat("EMERGENT_GATE_THRESHOLD"); ok {
		c.Gate.Threshold = v
	}
	if v, ok := envFloat("EMERGENT_MIN_SEMANTIC"); ok {
		c.Designer.MinSemantic = v
	}
	if v, ok := envInt("EMERGENT_MIN_SPAN"); ok {
		c.Designer.MinSpan = v
	}
}

func envFloat(name string) (float64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the whole configuration for consistency.
func (c *Config) Validate() error {
	if c.Engine != EngineMemory && c.Engine != EngineBadger {
		return fmt.Errorf("%w: unknown engine %q (want %q or %q)",
			graph.ErrValidation, c.Engine, EngineMemory, EngineBadger)
	}
	if c.Engine == EngineBadger && c.DataDir == "" {
		return fmt.Errorf("%w: badger engine requires data_dir", graph.ErrValidation)
	}
	if len(c.Sources) < 2 {
		return fmt.Errorf("%w: need at least two sources, have %d", graph.ErrValidation, len(c.Sources))
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Designer.Coefficients.Validate(); err != nil {
		return err
	}
	if c.Designer.MinSpan < 0 {
		return fmt.Errorf("%w: min_span %d is negative", graph.ErrValidation, c.Designer.MinSpan)
	}
	if c.Designer.MinSemantic < 0 || c.Designer.MinSemantic > 1 {
		return fmt.Errorf("%w: min_semantic %v outside [0,1]", graph.ErrValidation, c.Designer.MinSemantic)
	}
	if c.Gate.Threshold <= 0 || c.Gate.Threshold > 1 {
		return fmt.Errorf("%w: gate threshold %v outside (0,1]", graph.ErrValidation, c.Gate.Threshold)
	}
	return nil
}
