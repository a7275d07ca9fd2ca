package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sameehj/gridvnc/pkg/version"
)

const defaultServerEndpoint = "http://127.0.0.1:5000/api/v1/browser_cloud"

var httpClientFactory = func() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

type errorPayload struct {
	Error string `json:"error"`
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gridvncctl",
		Short:         "Inspect and manage a gridvnc gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().String("server", defaultServerEndpoint, "gridvnc API endpoint")

	rootCmd.AddCommand(
		getCmd("status", "Show grid status and statistics", "/status"),
		getCmd("sessions", "List active grid sessions", "/sessions"),
		getCmd("relays", "List relays currently served by the gateway", "/relays"),
		sessionCmd(),
		nodeCmd(),
		queueCmd(),
		versionCmd(),
	)
	return rootCmd
}

func getCmd(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAndPrint(cmd, http.MethodGet, path)
		},
	}
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or terminate a grid session",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show one session and its display settings",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAndPrint(cmd, http.MethodGet, "/session/"+args[0])
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Terminate a session on the grid",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAndPrint(cmd, http.MethodDelete, "/session/"+args[0])
			},
		},
	)
	return cmd
}

func nodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Inspect or manage a grid node",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show one node",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAndPrint(cmd, http.MethodGet, "/node/"+args[0])
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Remove a node from the grid",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAndPrint(cmd, http.MethodDelete, "/node/"+args[0])
			},
		},
		&cobra.Command{
			Use:   "drain <id>",
			Short: "Drain a node so it accepts no new sessions",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAndPrint(cmd, http.MethodPost, "/node/"+args[0]+"/drain")
			},
		},
	)
	return cmd
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or clear the new session queue",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List pending session requests",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runAndPrint(cmd, http.MethodGet, "/queue")
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Drop every pending session request",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runAndPrint(cmd, http.MethodDelete, "/queue")
			},
		},
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print client and server versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "client: %s\n", version.String())
			server := cmd.Flag("server").Value.String()
			result, err := callAPI(server, http.MethodGet, "/version")
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "server: unavailable (%v)\n", err)
				return nil
			}
			var info version.Info
			if err := json.Unmarshal(result, &info); err != nil {
				return fmt.Errorf("decode version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server: %s (commit %s, built %s)\n", info.Version, info.GitCommit, info.BuildDate)
			return nil
		},
	}
}

func runAndPrint(cmd *cobra.Command, method, path string) error {
	server := cmd.Flag("server").Value.String()
	result, err := callAPI(server, method, path)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(result)
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(pretty.String()))
	return nil
}

func callAPI(endpoint, method, path string) ([]byte, error) {
	req, err := http.NewRequest(method, strings.TrimRight(endpoint, "/")+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClientFactory().Do(req)
	if err != nil {
		return nil, fmt.Errorf("call gridvnc api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload errorPayload
		if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
			return nil, fmt.Errorf("status %s", resp.Status)
		}
		return nil, errors.New(payload.Error)
	}
	return body, nil
}
