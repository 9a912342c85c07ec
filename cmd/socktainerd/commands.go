package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/socktainerd/internal/config"
	"github.com/loykin/socktainerd/internal/probe"
	"github.com/loykin/socktainerd/pkg/client"
)

func loadConfig(flags *GlobalFlags, args []string) (*config.Config, error) {
	path := flags.ConfigPath
	if len(args) > 0 {
		path = args[0]
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return c, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func createProbeCommand(flags *GlobalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check once whether the container runtime is installed and running",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(flags, nil)
			if err != nil {
				return err
			}
			res := probe.New(c.Runtime.Binary, c.Runtime.Timeout).Probe(cmd.Context())
			return writeProbe(cmd.OutOrStdout(), res, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func writeProbe(w io.Writer, res probe.Result, asJSON bool) error {
	if asJSON {
		return printJSON(w, res)
	}
	version := res.Version
	if version == "" {
		version = "-"
	}
	_, err := fmt.Fprintf(w, "installed: %t\nrunning:   %t\nversion:   %s\n", res.Installed, res.Running, version)
	return err
}

func createBridgePathCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge-path",
		Short: "Print the resolved bridge binary and socket paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(flags, nil)
			if err != nil {
				return err
			}
			bin, err := c.Bridge.ResolveBridgePath()
			if err != nil {
				return err
			}
			sock, err := config.SocketPath()
			if err != nil {
				return err
			}
			_, statErr := os.Stat(bin)
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "bridge: %s\n", bin)
			if statErr != nil {
				_, _ = fmt.Fprintf(w, "        (missing: %v)\n", statErr)
			}
			_, err = fmt.Fprintf(w, "socket: %s\n", sock)
			return err
		},
	}
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
	JSON       bool
}

func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	sf := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status reported by a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := sf.APIUrl
			if url == "" {
				c, err := loadConfig(flags, nil)
				if err != nil {
					return err
				}
				url = "http://" + c.Server.Listen + c.Server.BasePath
			}
			cl := client.New(client.Config{BaseURL: url, Timeout: sf.APITimeout})
			return runStatus(cmd.Context(), cmd.OutOrStdout(), cl, sf.JSON)
		},
	}
	cmd.Flags().StringVar(&sf.APIUrl, "api-url", "", "daemon API base URL (default from [server] config)")
	cmd.Flags().DurationVar(&sf.APITimeout, "api-timeout", 10*time.Second, "API request timeout")
	cmd.Flags().BoolVar(&sf.JSON, "json", false, "print the result as JSON")
	return cmd
}

func runStatus(ctx context.Context, w io.Writer, cl *client.Client, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon is not reachable")
	}
	st, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	conns, err := cl.Connections(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, struct {
			client.Status
			Connections []client.Connection `json:"connections"`
		}{st, conns})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "provider:\t%s\n", st.Provider)
	_, _ = fmt.Fprintf(tw, "status:\t%s\n", st.Status)
	_, _ = fmt.Fprintf(tw, "connected:\t%t\n", st.Connected)
	if st.Bridge.Running {
		_, _ = fmt.Fprintf(tw, "bridge:\trunning (pid %d, starts %d)\n", st.Bridge.PID, st.Bridge.Starts)
	} else {
		_, _ = fmt.Fprintf(tw, "bridge:\tnot running (starts %d)\n", st.Bridge.Starts)
	}
	for _, c := range conns {
		_, _ = fmt.Fprintf(tw, "connection:\t%s %s %s [%s]\n", c.Name, c.Type, c.SocketPath, c.Status)
	}
	return tw.Flush()
}
