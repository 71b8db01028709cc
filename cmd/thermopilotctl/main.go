// Package main — cmd/thermopilotctl/main.go
//
// thermopilotctl is the operator CLI for a running thermopilotd. It is a
// thin client over the Unix domain socket protocol in internal/api:
// one JSON request, one JSON response, per connection (§6).
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/thermopilot/thermopilot/internal/api"
)

var socketPath string

func main() {
	root := &cobra.Command{
		Use:   "thermopilotctl",
		Short: "Operator CLI for thermopilotd",
		Long: `thermopilotctl talks to a running thermopilotd over its operator
Unix domain socket to inspect the current sensor snapshot, list active
cooling-period overrides, read engine statistics, start/stop the control
loop, and issue manual overrides or a forced GPU mode switch.`,
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", "/run/thermopilot/engine.sock", "operator socket path")

	root.AddCommand(
		snapshotCmd(),
		overridesCmd(),
		statsCmd(),
		startCmd(),
		stopCmd(),
		setCmd(),
		clearCoolingCmd(),
		forceGPUModeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the most recent sensor/context snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(api.Request{Cmd: "snapshot"})
			if err != nil {
				return err
			}
			return printJSON(resp.Snapshot)
		},
	}
}

func overridesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overrides",
		Short: "List active cooling-period overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(api.Request{Cmd: "active_overrides"})
			if err != nil {
				return err
			}
			if len(resp.Overrides) == 0 {
				fmt.Println("no active overrides")
				return nil
			}
			for _, o := range resp.Overrides {
				fmt.Printf("%-24s value=%-10s scenario=%-16s expires_at=%s\n",
					o.Control, o.Value, o.Scenario, o.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print engine statistics and component health",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(api.Request{Cmd: "statistics"})
			if err != nil {
				return err
			}
			return printJSON(resp.Stats)
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the orchestrator control loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(api.Request{Cmd: "start"})
			if err == nil {
				fmt.Println("started")
			}
			return err
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the orchestrator control loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(api.Request{Cmd: "stop"})
			if err == nil {
				fmt.Println("stopped")
			}
			return err
		},
	}
}

func setCmd() *cobra.Command {
	var scenario string
	cmd := &cobra.Command{
		Use:   "set <control> <value>",
		Short: "Record a manual override for a control (e.g. REFRESH_RATE_HZ 90)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(api.Request{Cmd: "record_user_change", Control: args[0], Value: args[1], Scenario: scenario})
			if err == nil {
				fmt.Printf("override recorded: %s = %s\n", args[0], args[1])
			}
			return err
		},
	}
	cmd.Flags().StringVar(&scenario, "scenario", "manual", "scenario hint stored alongside the override")
	return cmd
}

func clearCoolingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cooling <control>",
		Short: "Clear the cooling-period override for a control",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(api.Request{Cmd: "clear_cooling", Control: args[0]})
			if err == nil {
				fmt.Printf("cleared override for %s\n", args[0])
			}
			return err
		},
	}
}

func forceGPUModeCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "force-gpu-mode <mode>",
		Short: "Force a GPU hybrid mode switch (Off, On, IGPUOnly, Auto), bypassing dwell rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(api.Request{Cmd: "force_gpu_mode", Mode: args[0], Reason: reason})
			if err != nil {
				return err
			}
			fmt.Printf("executed=%d failed=%d\n", resp.Executed, resp.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "operator request", "reason recorded in the overrides log")
	return cmd
}

// send opens a fresh connection to the operator socket, writes req as a
// single newline-delimited JSON line, and reads one JSON response line —
// matching the one-request-one-response-per-connection protocol in
// internal/api/server.go.
func send(req api.Request) (*api.Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", socketPath, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(10 * time.Second))

	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("read response: connection closed without a reply")
	}

	var resp api.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("thermopilotd: %s", resp.Error)
	}
	return &resp, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
