package core

import (
	"fmt"
	"strings"
)

// Kind represents the type of item the daemon reports.
type Kind string

const (
	KindSlot    Kind = "slot"
	KindProcess Kind = "process"
	KindTail    Kind = "tail"
	KindUnit    Kind = "unit"
)

// Status represents the current state of an item.
type Status string

const (
	StatusRunning    Status = "running"
	StatusStopped    Status = "stopped"
	StatusFailed     Status = "failed"
	StatusUnknown    Status = "unknown"
	StatusRestarting Status = "restarting"
)

// Item is a snapshot of a supervised slot, a discovered process, a systemd
// unit or the tailer.
type Item struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	PIDs      []int             `json:"pids,omitempty"`
	UptimeSec uint64            `json:"uptime_sec"`
	Tracked   bool              `json:"tracked"`
	Source    map[string]string `json:"source,omitempty"`
}

// ItemID constructs an item ID from its components.
// Format: kind:provider:native_id
func ItemID(kind Kind, provider, nativeID string) string {
	return fmt.Sprintf("%s:%s:%s", kind, provider, nativeID)
}

// ParseItemID splits an item ID into kind, provider, and native_id.
func ParseItemID(id string) (kind Kind, provider, nativeID string, err error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("invalid item ID %q: expected kind:provider:native_id", id)
	}
	return Kind(parts[0]), parts[1], parts[2], nil
}
