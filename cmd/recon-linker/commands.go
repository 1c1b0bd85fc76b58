package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/caseio"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/database"
	"github.com/ZanzyTHEbar/recon-linker-go/pkg/linker"
)

func (a *app) projectName() string { return a.cfg.Database.Project }

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Parse tool output files and store their identifiers",
		Long: `Parses theHarvester JSON (*harvester*.json), recon-ng CSV (*recon*.csv) and
SpiderFoot CSV (*spiderfoot*.csv) files. Unreadable files are reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *linker.Service) error {
				results := make(map[string]apptype.IngestSummary, len(args))
				failed := 0
				for _, f := range args {
					summary, err := svc.IngestFile(cmd.Context(), a.projectName(), f)
					if err != nil {
						var se *database.StorageError
						if errors.As(err, &se) {
							return err
						}
						a.log.Warn("Skipping input file", zap.String("file", f), zap.Error(err))
						failed++
						continue
					}
					results[f] = summary
				}
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
				if failed == len(args) {
					return fmt.Errorf("no input file could be ingested")
				}
				return nil
			})
		},
	}
}

func newSuspectsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suspects NAME...",
		Short: "Store suspect names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *linker.Service) error {
				summary, err := svc.AddSuspects(cmd.Context(), a.projectName(), args)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newCorrelateCmd(a *app) *cobra.Command {
	var workflow string
	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Scan stored entities pairwise and record relationships",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workflow == "" {
				workflow = a.cfg.Correlation.Workflow
			}
			return a.withService(func(svc *linker.Service) error {
				summary, err := svc.Correlate(cmd.Context(), a.projectName(), workflow)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().StringVarP(&workflow, "workflow", "w", "", "general, suspect, domain or location (default from config)")
	return cmd
}

func newLinkAddressCmd(a *app) *cobra.Command {
	var reportPath string
	cmd := &cobra.Command{
		Use:   "link-address CASE_FILE",
		Short: "Link the suspects listed in a YAML case file to its address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *linker.Service) error {
				ctx := cmd.Context()
				summary, err := svc.LinkCaseFile(ctx, a.projectName(), args[0])
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
				if reportPath == "" {
					return nil
				}
				cf, err := caseio.Load(args[0])
				if err != nil {
					return err
				}
				return linker.WriteFile(reportPath, func(w io.Writer) error {
					return svc.WriteAddressReport(ctx, a.projectName(), cf.Address, w)
				})
			})
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "also write the address report to this file")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		suspects []string
		workflow string
		outDir   string
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Ingest, correlate and write the Maltego export and report in one run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workflow == "" {
				workflow = a.cfg.Correlation.Workflow
			}
			if outDir == "" {
				outDir = a.cfg.Output.Dir
			}
			return a.withService(func(svc *linker.Service) error {
				res, err := svc.Analyze(cmd.Context(), a.projectName(), linker.AnalyzeInput{
					Files:       args,
					Suspects:    suspects,
					Workflow:    workflow,
					OutputDir:   outDir,
					MaltegoFile: a.cfg.Output.MaltegoFile,
					ReportFile:  a.cfg.Output.ReportFile,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&suspects, "suspect", "s", nil, "suspect name to add before correlating (repeatable)")
	cmd.Flags().StringVarP(&workflow, "workflow", "w", "", "general, suspect, domain or location (default from config)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default from config)")
	return cmd
}

// outputTo runs fill against stdout when path is empty or "-", otherwise against path.
func outputTo(cmd *cobra.Command, path string, fill func(w io.Writer) error) error {
	if path == "" || path == "-" {
		return fill(cmd.OutOrStdout())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return linker.WriteFile(path, fill)
}

func newReportCmd(a *app) *cobra.Command {
	var (
		outPath string
		address string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the ranked correlation report, or the report for one address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *linker.Service) error {
				ctx := cmd.Context()
				return outputTo(cmd, outPath, func(w io.Writer) error {
					if address != "" {
						return svc.WriteAddressReport(ctx, a.projectName(), address, w)
					}
					return svc.WriteReport(ctx, a.projectName(), w)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&address, "address", "", "report on the suspects linked to this address")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every entity as Maltego import XML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *linker.Service) error {
				return outputTo(cmd, outPath, func(w io.Writer) error {
					return svc.ExportMaltego(cmd.Context(), a.projectName(), w)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every entity and relationship in the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset project %q without --yes", a.projectName())
			}
			return a.withService(func(svc *linker.Service) error {
				if err := svc.Reset(cmd.Context(), a.projectName()); err != nil {
					return err
				}
				a.log.Info("Project reset", zap.String("project", a.projectName()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
