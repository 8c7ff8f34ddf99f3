package presets

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/jasonish/meerkat-desktop/pkg/config"
)

const (
	SlotEngine = "detection-engine"
	SlotViewer = "log-viewer"

	thresholdDefault = "# Threshold config file\n# Add threshold rules here\n"
)

// GenerateSuricata creates the default two-slot config: Suricata capturing
// on iface and writing eve.json under home, and EveBox serving that file.
func GenerateSuricata(home, iface string) (*config.Config, error) {
	if home == "" {
		home = config.DefaultHome()
	}
	absHome, err := filepath.Abs(home)
	if err != nil {
		return nil, fmt.Errorf("resolve home: %w", err)
	}
	if iface == "" {
		return nil, fmt.Errorf("a capture interface is required")
	}

	c := &config.Config{
		Version: 1,
		Home:    absHome,
		Vars:    map[string]string{"interface": iface},
		Slots:   make(map[string]config.Slot),
		Tail: config.Tail{
			Path:     "${home}/log/eve.json",
			Interval: config.Duration(config.DefaultTailInterval),
		},
		Socket: config.DefaultSocket,
		Log:    config.Log{Level: "info", Format: "text"},
	}

	engine := config.Slot{
		Executable: exe("suricata"),
		Args: []string{
			"-v",
			"-i", "${interface}",
			"-c", suricataYAML(),
			"-l", "${home}/log",
			"-S", "${home}/rules/suricata.rules",
			"--set", "threshold-file=${home}/threshold.conf",
		},
		Dirs:    []string{"${home}/log"},
		Ensure:  map[string]string{"${home}/threshold.conf": thresholdDefault},
		Restart: "never",
	}
	if runtime.GOOS == "windows" {
		engine.Dir = `C:\Program Files\Suricata`
	}
	c.Slots[SlotEngine] = engine

	viewerBin := "${home}/evebox/bin/" + exe("evebox")
	c.Slots[SlotViewer] = config.Slot{
		Executable: viewerBin,
		Args: []string{
			"-D", "${home}/evebox",
			"server",
			"--no-tls",
			"--no-auth",
			"--database", "sqlite",
			"${home}/log/eve.json",
		},
		Requires:  []string{viewerBin},
		Dirs:      []string{"${home}/evebox"},
		StripANSI: true,
		Restart:   "never",
	}

	return c, nil
}

func exe(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func suricataYAML() string {
	switch runtime.GOOS {
	case "windows":
		return `C:\Program Files\Suricata\suricata.yaml`
	case "darwin":
		return "/opt/homebrew/etc/suricata/suricata.yaml"
	default:
		return "/etc/suricata/suricata.yaml"
	}
}
