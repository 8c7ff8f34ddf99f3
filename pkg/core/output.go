package core

// Channel identifies where an output line came from.
type Channel string

const (
	ChannelStdout Channel = "stdout"
	ChannelStderr Channel = "stderr"
	ChannelInfo   Channel = "info"
)

// OutputLine is a single line of process output, or an informational line
// produced by the supervisor itself.
type OutputLine struct {
	Slot     Slot    `json:"slot"`
	Type     Channel `json:"type"`
	Line     string  `json:"line"`
	TsUnixMs int64   `json:"ts_unix_ms"`
}
