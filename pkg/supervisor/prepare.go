package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

// prepare checks prerequisites, writes missing default files and resolves
// the executable. Every failure is a *core.SpawnError.
func prepare(slot core.Slot, spec core.LaunchSpec, info func(string)) (string, error) {
	for _, req := range spec.Requires {
		if _, err := os.Stat(req); err != nil {
			return "", &core.SpawnError{
				Slot: slot,
				Path: req,
				Err:  fmt.Errorf("%w: %s not found", core.ErrMissingPrerequisite, req),
			}
		}
	}

	for _, d := range spec.Dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return "", &core.SpawnError{Slot: slot, Path: d, Err: fmt.Errorf("create directory: %w", err)}
		}
	}

	paths := make([]string, 0, len(spec.Ensure))
	for p := range spec.Ensure {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			continue
		}
		info(fmt.Sprintf("Creating %s at %s", filepath.Base(p), p))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return "", &core.SpawnError{Slot: slot, Path: p, Err: fmt.Errorf("create directory: %w", err)}
		}
		if err := os.WriteFile(p, []byte(spec.Ensure[p]), 0o644); err != nil {
			return "", &core.SpawnError{Slot: slot, Path: p, Err: fmt.Errorf("create file: %w", err)}
		}
	}

	if spec.Executable == "" {
		return "", &core.SpawnError{Slot: slot, Err: fmt.Errorf("%w: empty executable", core.ErrExecutableNotFound)}
	}
	path, err := exec.LookPath(spec.Executable)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %w", core.ErrExecutableNotFound, err)
		}
		return "", &core.SpawnError{Slot: slot, Path: spec.Executable, Err: err}
	}
	if spec.Dir != "" {
		if fi, err := os.Stat(spec.Dir); err != nil || !fi.IsDir() {
			return "", &core.SpawnError{
				Slot: slot,
				Path: spec.Dir,
				Err:  fmt.Errorf("%w: working directory %s", core.ErrMissingPrerequisite, spec.Dir),
			}
		}
	}
	return path, nil
}

func buildEnv(overrides map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
