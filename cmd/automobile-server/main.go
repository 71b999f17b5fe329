// Command automobile-server runs the device-automation core as an MCP
// server over stdio, or as a one-shot CLI for plan validation/execution
// and environment diagnostics, grounded on the teacher's cmd/ cobra
// wiring and main.go's mcpMode branch.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/automobile-core/server/internal/app"
)

func main() {
	root := &cobra.Command{
		Use:   "automobile-server",
		Short: "Device-automation MCP server for Android and iOS UI testing",
	}

	root.AddCommand(serveCmd(), doctorCmd(), devicesCmd(), planCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.ServeMCP()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json (default $HOME/.auto-mobile/config.json)")
	return cmd
}

func doctorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that adb, simctl and WebDriverAgent tooling are discoverable",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Doctor(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	return cmd
}

func devicesCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List currently booted Android and iOS devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.ListDevices(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	return cmd
}

func planCmd() *cobra.Command {
	root := &cobra.Command{Use: "plan", Short: "Validate or run a recorded test plan"}

	validate := &cobra.Command{
		Use:   "validate <plan.yaml>",
		Short: "Parse a plan file and report step count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.ValidatePlanFile(args[0])
		},
	}

	var deviceID string
	var startStep int
	var configPath string
	run := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Execute a plan file against a connected device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.RunPlanFile(cmd.Context(), args[0], deviceID, startStep)
		},
	}
	run.Flags().StringVar(&deviceID, "device", "", "device id to run against (empty uses the current device)")
	run.Flags().IntVar(&startStep, "start-step", 0, "step index to resume from")
	run.Flags().StringVar(&configPath, "config", "", "path to config.json")

	root.AddCommand(validate, run)
	return root
}
