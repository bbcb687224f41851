package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
	"github.com/praxis/acapy-mcp-gateway/internal/config"
	"github.com/praxis/acapy-mcp-gateway/internal/invitation"
	"github.com/praxis/acapy-mcp-gateway/pkg/utils"
)

// version is injectable via ldflags.
var version = "dev"

// errToolFailed signals a failed tool call whose text was already printed.
var errToolFailed = errors.New("tool call failed")

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "acapy-mcp",
		Short:         "MCP tool gateway for an ACA-Py identity agent",
		Long:          "acapy-mcp exposes an ACA-Py (or Traction) admin API as MCP tools over stdio or SSE.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config/gateway.yaml", "path to configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(flags),
		newCallCommand(flags),
		newToolsCommand(flags),
		newDecodeInvitationCommand(),
	)
	return root
}

// load reads configuration, lets adjust apply command overrides and builds
// the logger the result describes.
func load(flags *globalFlags, adjust func(*config.AppConfig)) (*config.AppConfig, *logrus.Logger, error) {
	bootstrap := utils.ConfigureLogger(utils.DefaultLogConfig())
	if flags.logLevel != "" {
		if level, err := logrus.ParseLevel(flags.logLevel); err == nil {
			bootstrap.SetLevel(level)
		}
	}

	cfg, err := config.LoadConfig(flags.configPath, bootstrap)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if adjust != nil {
		adjust(cfg)
	}
	return cfg, utils.ConfigureLogger(cfg.Logging.ForTransport(cfg.Server.Transport)), nil
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	var transport, address string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool catalog over MCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load(flags, func(cfg *config.AppConfig) {
				if transport != "" {
					cfg.Server.Transport = strings.ToLower(transport)
				}
				if address != "" {
					cfg.Server.Address = address
				}
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.startRemoteWrite(); err != nil {
				return err
			}

			log.Infof("Starting %s %s (%s) against %s", cfg.Server.Name, cfg.Server.Version, cfg.Server.Transport, cfg.Agent.BaseURL)
			if err := a.server().Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("Gateway stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "override server.transport (stdio or sse)")
	cmd.Flags().StringVar(&address, "address", "", "override server.address for sse")
	return cmd
}

func newCallCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Invoke one tool and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := map[string]interface{}{}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
					return fmt.Errorf("arguments must be a JSON object: %w", err)
				}
			}

			cfg, log, err := load(flags, nil)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.gateway.Call(ctx, args[0], toolArgs)
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			if res.Failed {
				return errToolFailed
			}
			return nil
		},
	}
}

func newToolsCommand(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load(flags, nil)
			if err != nil {
				return err
			}
			log.SetOutput(io.Discard)

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			return printTools(cmd.OutOrStdout(), a, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tool names, descriptions and parameters as JSON")
	return cmd
}

type toolInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"required,omitempty"`
	Optional    []string `json:"optional,omitempty"`
}

func printTools(w io.Writer, a *app, asJSON bool) error {
	entries := a.gateway.Catalog().Entries()
	if asJSON {
		infos := make([]toolInfo, 0, len(entries))
		for _, e := range entries {
			info := toolInfo{Name: e.Name, Description: e.Description}
			for _, p := range e.Params {
				if p.Required {
					info.Required = append(info.Required, p.Name)
				} else {
					info.Optional = append(info.Optional, p.Name)
				}
			}
			infos = append(infos, info)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\n", e.Name, e.Description)
	}
	return tw.Flush()
}

func newDecodeInvitationCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode-invitation <connection-url>",
		Short: "Print the invitation carried by a connection URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := invitation.DecodeConnectionURL(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), acapy.PrettyJSON(raw))
			return nil
		},
	}
}

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errToolFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
