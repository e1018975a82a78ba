package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// RunConfig is the optional YAML run file of the run command. Every field
// mirrors a flag; pointers distinguish "absent" from a zero value.
// All keys must be listed to satisfy KnownFields(true) strict parsing.
type RunConfig struct {
	Client       *string  `yaml:"client"`
	Relay        *string  `yaml:"relay"`
	Machines     *string  `yaml:"machines"`
	Seed         *int64   `yaml:"seed"`
	Latency      *int64   `yaml:"latency"`
	LatencyScale *float64 `yaml:"latency_scale"`
	TimerStep    *int64   `yaml:"timer_step"`
	Horizon      *int64   `yaml:"horizon"`
	MaxSteps     *int64   `yaml:"max_steps"`
	Unknown      *string  `yaml:"unknown"`
	Out          *string  `yaml:"out"`
	Log          *string  `yaml:"log"`
}

// loadRunConfig parses a run file with strict field checking: typos are
// errors, not silently ignored keys.
func loadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}
	var cfg RunConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing run config %q: %w", path, err)
	}
	return &cfg, nil
}

// applyRunConfig copies the file's values into flags the user did not set
// on the command line. Explicit flags always win.
func applyRunConfig(flags *pflag.FlagSet, cfg *RunConfig) {
	set := func(name, value string) {
		f := flags.Lookup(name)
		if f == nil || f.Changed {
			return
		}
		if err := f.Value.Set(value); err != nil {
			logrus.Fatalf("Invalid value %q for %s in run config: %v", value, name, err)
		}
		logrus.Debugf("Run config sets --%s=%s", name, value)
	}
	setString := func(name string, v *string) {
		if v != nil {
			set(name, *v)
		}
	}
	setInt := func(name string, v *int64) {
		if v != nil {
			set(name, strconv.FormatInt(*v, 10))
		}
	}

	setString("client", cfg.Client)
	setString("relay", cfg.Relay)
	setString("machines", cfg.Machines)
	setInt("seed", cfg.Seed)
	setInt("latency", cfg.Latency)
	if cfg.LatencyScale != nil {
		set("latency-scale", strconv.FormatFloat(*cfg.LatencyScale, 'g', -1, 64))
	}
	setInt("timer-step", cfg.TimerStep)
	setInt("horizon", cfg.Horizon)
	setInt("max-steps", cfg.MaxSteps)
	setString("unknown", cfg.Unknown)
	setString("out", cfg.Out)
	if cfg.Log != nil {
		set("log", *cfg.Log)
		setLogLevel()
	}
}
