package config

import (
	"fmt"
	"sort"

	"github.com/jasonish/meerkat-desktop/pkg/logging"
)

// Validate checks the config for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("version must be 1, got %d", c.Version))
	}

	if len(c.Slots) == 0 {
		errs = append(errs, fmt.Errorf("config must define at least one slot"))
	}

	names := make([]string, 0, len(c.Slots))
	for name := range c.Slots {
		names = append(names, name)
	}
	sort.Strings(names)

	binaries := make(map[string]string)
	for _, name := range names {
		s := c.Slots[name]
		if s.Executable == "" {
			errs = append(errs, fmt.Errorf("slot %q: executable is required", name))
			continue
		}
		switch s.Restart {
		case "", "always", "on-failure", "never":
		default:
			errs = append(errs, fmt.Errorf("slot %q: restart must be always, on-failure, or never; got %q", name, s.Restart))
		}
		if s.StopTimeout < 0 {
			errs = append(errs, fmt.Errorf("slot %q: stop_timeout must not be negative", name))
		}
		bin := s.LaunchSpec().BinaryName()
		if other, ok := binaries[bin]; ok {
			errs = append(errs, fmt.Errorf("slot %q: binary %q is also used by slot %q; stopping one would sweep the other", name, bin, other))
		}
		binaries[bin] = name
	}

	for unit, slot := range c.Units {
		if _, ok := c.Slots[slot]; !ok {
			errs = append(errs, fmt.Errorf("unit %q references unknown slot %q", unit, slot))
		}
	}

	if c.Tail.Interval < 0 {
		errs = append(errs, fmt.Errorf("tail: interval must not be negative"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: format must be text or json; got %q", c.Log.Format))
	}

	return errs
}
