package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/sink"
	"github.com/jasonish/meerkat-desktop/pkg/transport/uds"
)

// --- Tail ---

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Control the eve.json tailer",
}

var tailStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start tailing from the beginning of the file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var st uds.TailStatusResponse
		if err := call(5*time.Second, uds.MethodTailStart, nil, &st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "tailing %s ✓\n", st.Path)
		return nil
	},
}

var tailStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop tailing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := call(5*time.Second, uds.MethodTailStop, nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "tail stopped ✓")
		return nil
	},
}

var tailStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tailer state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var st uds.TailStatusResponse
		if err := call(5*time.Second, uds.MethodTailStatus, nil, &st); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		state := core.StatusStopped
		if st.Running {
			state = core.StatusRunning
		}
		fmt.Fprintf(out, "path:    %s\n", st.Path)
		fmt.Fprintf(out, "state:   %s\n", statusColor(state).Sprint(state))
		fmt.Fprintf(out, "offset:  %d\n", st.Offset)
		fmt.Fprintf(out, "records: %d\n", st.Records)
		fmt.Fprintf(out, "dropped: %d\n", st.Dropped)
		return nil
	},
}

var tailFollowCmd = &cobra.Command{
	Use:   "follow",
	Short: "Start tailing and print every record as it arrives",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return follow(cmd, uds.MethodTailStart, func(w io.Writer, msg uds.Message) {
			if msg.Method == uds.EventTail {
				fmt.Fprintln(w, string(msg.Data))
			}
		})
	},
}

// --- Logs ---

var logsCmd = &cobra.Command{
	Use:   "logs [slot]",
	Short: "Stream process output from the daemon",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var only core.Slot
		if len(args) == 1 {
			only = core.Slot(args[0])
		}
		return follow(cmd, "", func(w io.Writer, msg uds.Message) {
			if msg.Method != uds.EventProcessOutput {
				return
			}
			var line core.OutputLine
			if err := json.Unmarshal(msg.Data, &line); err != nil {
				return
			}
			if only != "" && line.Slot != only {
				return
			}
			fmt.Fprintln(w, formatOutput(line))
		})
	},
}

func formatOutput(line core.OutputLine) string {
	prefix := fmt.Sprintf("[%s] ", line.Slot)
	switch line.Type {
	case core.ChannelStderr:
		return prefix + color.RedString("%s", line.Line)
	case core.ChannelInfo:
		return prefix + color.CyanString("%s", line.Line)
	default:
		return prefix + line.Line
	}
}

// follow subscribes to daemon events until interrupted. A non-empty start
// method is called once the handler is installed.
func follow(cmd *cobra.Command, start string, handle func(io.Writer, uds.Message)) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	events := sink.NewChannel(256)
	defer events.Close()
	client.OnEvent(func(msg uds.Message) {
		// a full buffer drops the event rather than stall the reader
		_ = events.Emit(msg.Method, msg)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if start != "" {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Call(reqCtx, start, nil, nil)
		cancel()
		if err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.Done():
			return fmt.Errorf("daemon closed the connection")
		case ev := <-events.C():
			if msg, ok := ev.Payload.(uds.Message); ok {
				handle(out, msg)
			}
		}
	}
}

func init() {
	tailCmd.AddCommand(tailStartCmd)
	tailCmd.AddCommand(tailStopCmd)
	tailCmd.AddCommand(tailStatusCmd)
	tailCmd.AddCommand(tailFollowCmd)

	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(logsCmd)
}
