package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"vigil/internal/config"
)

func newConfigCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the agent's runtime configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", filepath.Join(defaultDataDir(), "agent.yaml"), "Path to the runtime configuration file")

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting's raw value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Open(configPath)
			if err != nil {
				return err
			}
			value := store.Get(args[0])
			if value == nil {
				return fmt.Errorf("setting %q is not present", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one setting and persist the file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Open(configPath)
			if err != nil {
				return err
			}
			return store.Set(args[0], parseValue(args[1]))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings with defaults applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Open(configPath)
			if err != nil {
				return err
			}
			snap := store.Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d\n", config.KeyScreenshotInterval, int(snap.ScreenshotInterval.Seconds()))
			fmt.Fprintf(out, "%s: %t\n", config.KeyCaptureScreenshots, snap.CaptureScreenshots)
			fmt.Fprintf(out, "%s: %t\n", config.KeyBlurScreenshots, snap.BlurScreenshots)

			extras := make([]string, 0)
			for _, key := range store.Keys() {
				switch key {
				case config.KeyScreenshotInterval, config.KeyCaptureScreenshots, config.KeyBlurScreenshots:
				default:
					extras = append(extras, key)
				}
			}
			sort.Strings(extras)
			for _, key := range extras {
				fmt.Fprintf(out, "%s: %v\n", key, store.Get(key))
			}
			return nil
		},
	})

	return cmd
}

// parseValue keeps the YAML file typed: booleans and integers round-trip as
// their native types, everything else is stored as a string.
func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}
