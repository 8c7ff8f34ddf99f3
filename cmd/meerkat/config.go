package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jasonish/meerkat-desktop/pkg/config"
	"github.com/jasonish/meerkat-desktop/pkg/config/presets"
	"github.com/jasonish/meerkat-desktop/pkg/daemon/service"
)

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage meerkat.yaml",
}

var (
	configInitHome  string
	configInitIface string
	configInitForce bool
)

var configInitCmd = &cobra.Command{
	Use:   "init [preset]",
	Short: "Generate a meerkat.yaml",
	Long:  "Available presets: suricata",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		preset := "suricata"
		if len(args) == 1 {
			preset = args[0]
		}
		if preset != "suricata" {
			return fmt.Errorf("unknown preset: %s (available: suricata)", preset)
		}

		if !configInitForce {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			}
		}

		c, err := presets.GenerateSuricata(configInitHome, configInitIface)
		if err != nil {
			return err
		}
		if err := config.Save(configPath, c); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Generated %s with %d slots\n", configPath, len(c.Slots))
		names := make([]string, 0, len(c.Slots))
		for name := range c.Slots {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "  %s (%s)\n", name, c.Slots[name].Executable)
		}
		return nil
	},
}

var errInvalidConfig = errors.New("invalid configuration")

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a meerkat.yaml",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}

		c, err := config.Load(path)
		if err != nil {
			return err
		}

		errs := config.Validate(c)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d slots)\n", path, len(c.Slots))
			return nil
		}

		w := cmd.ErrOrStderr()
		fmt.Fprintf(w, "%s: %d error(s)\n", path, len(errs))
		for _, e := range errs {
			fmt.Fprintf(w, "  • %s\n", e)
		}
		return errInvalidConfig
	},
}

// --- Service ---

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the meerkatd systemd user service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start meerkatd as a systemd user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Install(configPath); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "meerkatd.service installed ✓")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the meerkatd user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Uninstall(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "meerkatd.service removed ✓")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show socket and service state",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), service.Status(socketPath))
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitHome, "home", config.DefaultHome(), "meerkat data directory")
	configInitCmd.Flags().StringVarP(&configInitIface, "interface", "i", "", "network interface for Suricata")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStatusCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serviceCmd)
}
