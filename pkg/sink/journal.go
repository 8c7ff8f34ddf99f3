package sink

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

// Journal mirrors events into the systemd journal. Process output keeps its
// slot and stream as journal fields; other events are stored as JSON.
type Journal struct {
	// Identifier becomes SYSLOG_IDENTIFIER.
	Identifier string
	send       func(message string, priority journal.Priority, vars map[string]string) error
}

// NewJournal returns a journal sink, or an error wrapping
// core.ErrSinkUnavailable when journald is not reachable.
func NewJournal(identifier string) (*Journal, error) {
	if !journal.Enabled() {
		return nil, fmt.Errorf("%w: journald not available", core.ErrSinkUnavailable)
	}
	return &Journal{Identifier: identifier, send: journal.Send}, nil
}

func (j *Journal) Emit(topic string, payload any) error {
	vars := map[string]string{
		"SYSLOG_IDENTIFIER": j.Identifier,
		"MEERKAT_TOPIC":     topic,
	}

	var (
		msg      string
		priority = journal.PriInfo
	)
	switch v := payload.(type) {
	case core.OutputLine:
		msg = v.Line
		vars["MEERKAT_SLOT"] = string(v.Slot)
		vars["MEERKAT_STREAM"] = string(v.Type)
		if v.Type == core.ChannelStderr {
			priority = journal.PriWarning
		}
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("journal: encode %s: %w", topic, err)
		}
		msg = string(data)
		if m, ok := payload.(map[string]any); ok {
			if et, ok := m["event_type"].(string); ok {
				vars["MEERKAT_EVENT_TYPE"] = strings.ToUpper(et)
				if et == "alert" {
					priority = journal.PriNotice
				}
			}
		}
	}

	if err := j.send(msg, priority, vars); err != nil {
		return fmt.Errorf("%w: journal: %v", core.ErrSinkUnavailable, err)
	}
	return nil
}
