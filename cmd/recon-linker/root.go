package main

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/config"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/observability"
	"github.com/ZanzyTHEbar/recon-linker-go/pkg/linker"
)

// app carries state resolved by the root command for its subcommands.
type app struct {
	configFile string
	dbURL      string
	project    string

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "recon-linker",
		Short:         "Correlate reconnaissance output into a typed entity graph.",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().StringVar(&a.dbURL, "db", "", "libSQL database URL (overrides database.url)")
	root.PersistentFlags().StringVarP(&a.project, "project", "p", "", "project name in multi-project mode")

	root.AddCommand(
		newIngestCmd(a),
		newSuspectsCmd(a),
		newCorrelateCmd(a),
		newLinkAddressCmd(a),
		newAnalyzeCmd(a),
		newReportCmd(a),
		newExportCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newResetCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "recon-linker"})
		return err
	}
	if a.dbURL != "" {
		cfg.Database.URL = a.dbURL
	}
	if a.project != "" {
		cfg.Database.Project = a.project
	}
	a.cfg = cfg

	observability.InitializeLogger(cfg.Logger)
	a.log = observability.GetLogger()
	a.log.Debug("Starting recon-linker", zap.String("version", buildinfo.Version))

	if err := metrics.Init(cfg.Metrics.Enabled, cfg.Metrics.Addr); err != nil {
		return fmt.Errorf("failed to start metrics exporter: %w", err)
	}
	return nil
}

func (a *app) openService() (*linker.Service, error) {
	return linker.NewService(linker.FromAppConfig(a.cfg), a.log)
}

// withService opens the service, runs fn and closes it.
func (a *app) withService(fn func(svc *linker.Service) error) error {
	svc, err := a.openService()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			a.log.Warn("Error closing database", zap.Error(cerr))
		}
	}()
	return fn(svc)
}

func writeJSON(w io.Writer, v any) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
