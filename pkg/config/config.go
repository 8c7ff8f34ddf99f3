// Package config loads and validates meerkat.yaml.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

// Config represents a meerkat.yaml configuration file.
type Config struct {
	Version int    `yaml:"version" json:"version"`
	Home    string `yaml:"home"    json:"home"`
	// Vars are substituted as ${name} in slot and tail fields.
	Vars  map[string]string `yaml:"vars,omitempty"  json:"vars,omitempty"`
	Slots map[string]Slot   `yaml:"slots"           json:"slots"`
	// Units maps systemd unit names to the slot they overlap with.
	Units    map[string]string `yaml:"units,omitempty"     json:"units,omitempty"`
	Tail     Tail              `yaml:"tail"                json:"tail"`
	Socket   string            `yaml:"socket,omitempty"    json:"socket,omitempty"`
	HTTPAddr string            `yaml:"http_addr,omitempty" json:"http_addr,omitempty"`
	Journal  bool              `yaml:"journal,omitempty"   json:"journal,omitempty"`
	Log      Log               `yaml:"log,omitempty"       json:"log,omitempty"`
}

// Slot is the launch definition of one supervised service.
type Slot struct {
	Executable  string            `yaml:"executable"             json:"executable"`
	Dir         string            `yaml:"dir,omitempty"          json:"dir,omitempty"`
	Args        []string          `yaml:"args,omitempty"         json:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"          json:"env,omitempty"`
	ProcessName string            `yaml:"process_name,omitempty" json:"process_name,omitempty"`
	StripANSI   bool              `yaml:"strip_ansi,omitempty"   json:"strip_ansi,omitempty"`
	Requires    []string          `yaml:"requires,omitempty"     json:"requires,omitempty"`
	Ensure      map[string]string `yaml:"ensure,omitempty"       json:"ensure,omitempty"`
	Dirs        []string          `yaml:"dirs,omitempty"         json:"dirs,omitempty"`
	Restart     string            `yaml:"restart,omitempty"      json:"restart,omitempty"` // always|on-failure|never
	StopTimeout Duration          `yaml:"stop_timeout,omitempty" json:"stop_timeout,omitempty"`
	// Autostart starts the slot when the daemon comes up.
	Autostart bool `yaml:"autostart,omitempty" json:"autostart,omitempty"`
}

// Tail configures the event log tailer.
type Tail struct {
	Path     string   `yaml:"path"               json:"path"`
	Interval Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	Watch    bool     `yaml:"watch,omitempty"    json:"watch,omitempty"`
}

// Log configures daemon logging.
type Log struct {
	Level  string `yaml:"level,omitempty"  json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"` // text|json
}

// Duration is a time.Duration written as "500ms" in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// LaunchSpec converts a slot definition into a supervisor launch spec.
func (s Slot) LaunchSpec() core.LaunchSpec {
	return core.LaunchSpec{
		Executable:  s.Executable,
		Dir:         s.Dir,
		Args:        s.Args,
		Env:         s.Env,
		ProcessName: s.ProcessName,
		StripANSI:   s.StripANSI,
		Requires:    s.Requires,
		Ensure:      s.Ensure,
		Dirs:        s.Dirs,
		Restart:     core.RestartPolicy(s.Restart),
		StopTimeout: time.Duration(s.StopTimeout),
	}
}
