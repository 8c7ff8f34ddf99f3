package uds

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

var msgCounter atomic.Uint64

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the NDJSON envelope for all communication.
type Message struct {
	Type   MsgType         `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// UnmarshalData decodes the message payload into v. An empty payload leaves
// v untouched.
func (m Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", m.Method, err)
	}
	return nil
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewRequest creates a new request message with a unique ID.
func NewRequest(method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeReq,
		ID:     fmt.Sprintf("req-%d", msgCounter.Add(1)),
		Method: method,
		Data:   raw,
	}, nil
}

// NewResponse creates a response to a request.
func NewResponse(reqID, method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MsgTypeRes, ID: reqID, Method: method, Data: raw}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(reqID, method, errMsg string) Message {
	return Message{Type: MsgTypeRes, ID: reqID, Method: method, Error: errMsg}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeEvt,
		ID:     fmt.Sprintf("evt-%d", msgCounter.Add(1)),
		Method: method,
		Data:   raw,
	}, nil
}

// Methods
const (
	MethodPing       = "Ping"
	MethodListItems  = "ListItems"
	MethodAction     = "Action"
	MethodStart      = "Start"
	MethodStop       = "Stop"
	MethodStatus     = "Status"
	MethodTailStart  = "TailStart"
	MethodTailStop   = "TailStop"
	MethodTailStatus = "TailStatus"
	MethodReap       = "Reap"

	EventItemsDelta    = "items.delta"
	EventProcessOutput = "process.output"
	EventTail          = "tail.event"
)

// PingResponse is the response to a Ping request.
type PingResponse struct {
	Pong    bool   `json:"pong"`
	Version string `json:"version,omitempty"`
}

// ActionRequest is the payload for an Action request.
type ActionRequest struct {
	ItemID string `json:"item_id"`
	Action string `json:"action"` // start, stop, restart, kill
}

// SlotRequest names the slot for Start, Stop and Status.
type SlotRequest struct {
	Slot string `json:"slot"`
}

// StartResponse describes the process a Start spawned.
type StartResponse struct {
	Slot      string `json:"slot"`
	PID       int    `json:"pid"`
	RunID     string `json:"run_id"`
	StartedAt int64  `json:"started_at_unix_ms"`
}

// StatusResponse reports whether a slot's binary is running. PID is set
// only when the supervisor tracks the process.
type StatusResponse struct {
	Slot    string `json:"slot"`
	Running bool   `json:"running"`
	Tracked bool   `json:"tracked"`
	PID     int    `json:"pid,omitempty"`
}

// TailStatusResponse mirrors the tailer state.
type TailStatusResponse struct {
	Running bool   `json:"running"`
	Path    string `json:"path"`
	Offset  int64  `json:"offset"`
	Records uint64 `json:"records"`
	Dropped uint64 `json:"dropped"`
}

// ReapResponse lists how many processes were killed per binary name.
type ReapResponse struct {
	Killed map[string]int `json:"killed"`
	Errors []string       `json:"errors,omitempty"`
}
