package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/transport/uds"
)

const actionTimeout = 30 * time.Second

// --- Status ---

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [slot]",
	Short: "Show status of all items, or of one slot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			var st uds.StatusResponse
			if err := call(5*time.Second, uds.MethodStatus, uds.SlotRequest{Slot: args[0]}, &st); err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(out, st)
			}
			printSlotStatus(out, st)
			return nil
		}

		var items []core.Item
		if err := call(5*time.Second, uds.MethodListItems, nil, &items); err != nil {
			return err
		}
		if statusJSON {
			return writeJSON(out, items)
		}
		if len(items) == 0 {
			fmt.Fprintln(out, "no items")
			return nil
		}

		fmt.Fprintf(out, "%-20s %-8s %-10s %-8s %s\n", "NAME", "KIND", "STATUS", "PID", "ID")
		for _, item := range items {
			pid := "-"
			if len(item.PIDs) > 0 {
				pid = fmt.Sprint(item.PIDs[0])
			}
			fmt.Fprintf(out, "%-20s %-8s %-10s %-8s %s\n", item.Name, item.Kind, statusColor(item.Status).Sprintf("%-10s", item.Status), pid, item.ID)
		}
		return nil
	},
}

func statusColor(s core.Status) *color.Color {
	switch s {
	case core.StatusRunning:
		return color.New(color.FgGreen)
	case core.StatusFailed:
		return color.New(color.FgRed)
	case core.StatusRestarting:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Faint)
	}
}

func printSlotStatus(w io.Writer, st uds.StatusResponse) {
	state := core.StatusStopped
	if st.Running {
		state = core.StatusRunning
	}
	fmt.Fprintf(w, "%s: %s", st.Slot, statusColor(state).Sprint(state))
	switch {
	case st.Tracked:
		fmt.Fprintf(w, " (pid %d)", st.PID)
	case st.Running:
		fmt.Fprint(w, " (not started by meerkat)")
	}
	fmt.Fprintln(w)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Start / Stop / Restart ---

var startWait bool

var startCmd = &cobra.Command{
	Use:   "start <slot>",
	Short: "Start a slot, replacing any process it already runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp uds.StartResponse
		if err := call(actionTimeout, uds.MethodStart, uds.SlotRequest{Slot: args[0]}, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "start → %s ✓ (pid %d)\n", resp.Slot, resp.PID)
		if startWait {
			return waitRunning(args[0], actionTimeout)
		}
		return nil
	},
}

// waitRunning polls Status until the slot's binary shows up in the process
// table.
func waitRunning(slot string, timeout time.Duration) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " waiting for " + slot
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var st uds.StatusResponse
		if err := call(5*time.Second, uds.MethodStatus, uds.SlotRequest{Slot: slot}, &st); err != nil {
			return err
		}
		if st.Running {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("%s did not come up within %s", slot, timeout)
}

var stopCmd = &cobra.Command{
	Use:   "stop <slot>",
	Short: "Stop a slot and any stray process under its binary name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(actionTimeout, uds.MethodStop, uds.SlotRequest{Slot: args[0]}, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stop → %s ✓\n", args[0])
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart <slot>",
	Short: "Stop then start a slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(actionTimeout, uds.MethodStop, uds.SlotRequest{Slot: args[0]}, nil); err != nil {
			return err
		}
		var resp uds.StartResponse
		if err := call(actionTimeout, uds.MethodStart, uds.SlotRequest{Slot: args[0]}, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restart → %s ✓ (pid %d)\n", resp.Slot, resp.PID)
		return nil
	},
}

// --- Reap ---

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Kill every engine and viewer process, tracked or not",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp uds.ReapResponse
		if err := call(actionTimeout, uds.MethodReap, nil, &resp); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for name, n := range resp.Killed {
			fmt.Fprintf(out, "%s: %d killed\n", name, n)
		}
		for _, e := range resp.Errors {
			fmt.Fprintln(out, color.RedString("error: %s", e))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	startCmd.Flags().BoolVar(&startWait, "wait", false, "wait until the process is running")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(reapCmd)
}
