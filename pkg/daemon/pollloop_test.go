package daemon

import (
	"testing"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

func TestComputeDelta_Added(t *testing.T) {
	old := map[string]core.Item{}
	new := map[string]core.Item{"a": {ID: "a", Status: core.StatusRunning}}
	d := computeDelta(old, new)
	if len(d.Added) != 1 {
		t.Errorf("expected 1 added, got %d", len(d.Added))
	}
}

func TestComputeDelta_Removed(t *testing.T) {
	old := map[string]core.Item{"a": {ID: "a"}}
	new := map[string]core.Item{}
	d := computeDelta(old, new)
	if len(d.Removed) != 1 {
		t.Errorf("expected 1 removed, got %d", len(d.Removed))
	}
}

func TestComputeDelta_Updated(t *testing.T) {
	old := map[string]core.Item{"a": {ID: "a", Status: core.StatusRunning}}
	new := map[string]core.Item{"a": {ID: "a", Status: core.StatusStopped}}
	d := computeDelta(old, new)
	if len(d.Updated) != 1 {
		t.Errorf("expected 1 updated, got %d", len(d.Updated))
	}
}

func TestComputeDelta_NoChange(t *testing.T) {
	items := map[string]core.Item{"a": {ID: "a", Status: core.StatusRunning}}
	d := computeDelta(items, items)
	if d.HasChanges() {
		t.Error("expected no changes")
	}
}

func TestComputeDelta_UptimeIgnored(t *testing.T) {
	old := map[string]core.Item{"a": {ID: "a", Status: core.StatusRunning, UptimeSec: 1}}
	new := map[string]core.Item{"a": {ID: "a", Status: core.StatusRunning, UptimeSec: 2}}
	if computeDelta(old, new).HasChanges() {
		t.Error("uptime alone should not produce an update")
	}
}

func TestComputeDelta_NewRun(t *testing.T) {
	old := map[string]core.Item{"a": {ID: "a", PIDs: []int{10}, Source: map[string]string{"run_id": "r1"}}}
	new := map[string]core.Item{"a": {ID: "a", PIDs: []int{11}, Source: map[string]string{"run_id": "r2"}}}
	if len(computeDelta(old, new).Updated) != 1 {
		t.Error("expected a restarted slot to be updated")
	}
}

func TestComputeDelta_Sorted(t *testing.T) {
	new := map[string]core.Item{"c": {ID: "c"}, "a": {ID: "a"}, "b": {ID: "b"}}
	d := computeDelta(nil, new)
	if len(d.Added) != 3 || d.Added[0].ID != "a" || d.Added[2].ID != "c" {
		t.Errorf("added not sorted: %+v", d.Added)
	}
}
