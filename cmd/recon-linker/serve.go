package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/server"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/watch"
	"github.com/ZanzyTHEbar/recon-linker-go/pkg/linker"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		backlog   bool
		correlate bool
	)
	cmd := &cobra.Command{
		Use:   "watch [DIR]",
		Short: "Ingest tool output files as they appear in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Watch.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if !cmd.Flags().Changed("correlate") {
				correlate = a.cfg.Watch.CorrelateOnIngest
			}
			return a.withService(func(svc *linker.Service) error {
				var opts []watch.Option
				if backlog {
					opts = append(opts, watch.WithBacklog())
				}
				w, err := watch.New(a.log, svc.WatchHandler(a.projectName(), correlate), opts...)
				if err != nil {
					return err
				}
				a.log.Info("Watching for tool output", zap.String("dir", dir), zap.Bool("correlate", correlate))
				return w.Run(cmd.Context(), dir)
			})
		},
	}
	cmd.Flags().BoolVar(&backlog, "backlog", false, "ingest files already present in the directory first")
	cmd.Flags().BoolVar(&correlate, "correlate", true, "run a general correlation after each file (default from config)")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var transport, addr, endpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the linker as MCP tools over stdio or SSE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if transport == "" {
				transport = a.cfg.Server.Transport
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			if endpoint == "" {
				endpoint = a.cfg.Server.Endpoint
			}
			return a.withService(func(svc *linker.Service) error {
				mcpServer := server.NewMCPServer(svc, a.log)
				a.log.Info("Starting MCP server", zap.String("transport", transport))
				switch transport {
				case "sse":
					return mcpServer.RunSSE(cmd.Context(), addr, endpoint)
				case "stdio":
					return mcpServer.Run(cmd.Context())
				}
				return fmt.Errorf("unknown transport: %s (expected: stdio or sse)", transport)
			})
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "stdio or sse (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for SSE (default from config)")
	cmd.Flags().StringVar(&endpoint, "sse-endpoint", "", "SSE endpoint path (default from config)")
	return cmd
}
