package cmd

import (
	"github.com/spf13/cobra"

	"cryptofmv/internal/backlog"
	"cryptofmv/internal/chains"
	"cryptofmv/internal/inflight"
	"cryptofmv/internal/reports"
	"cryptofmv/logger"
	"cryptofmv/models"
	"cryptofmv/processor"
	"cryptofmv/writer"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch missing rates for every new CSV export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		classifier, err := chains.NewClassifier(a.cfg.Chains)
		if err != nil {
			return err
		}
		_, err = processor.NewCoordinator(a.cfg, classifier, a.cache, a.fetcher(), inflight.NewGroup(), a.today).Run(ctx)
		return err
	},
}

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Fetch rates for the dates listed in the missing-FMV backlog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		profile, err := a.backlogChain()
		if err != nil {
			return err
		}
		file := backlog.NewFile(a.cfg.Backlog.File)
		_, err = processor.NewBacklogRunner(a.cfg, a.cache, a.fetcher(), inflight.NewGroup(), file, profile, a.today).Run(ctx)
		return err
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild the missing-FMV backlog from the latest reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		profile, err := a.backlogChain()
		if err != nil {
			return err
		}
		file := backlog.NewFile(a.cfg.Backlog.File)
		_, err = backlog.NewReconciler(a.cfg.Paths.ReportsDir, a.cfg.Backlog, a.cache, profile, file).Run(ctx)
		return err
	},
}

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Replace N/A values in the latest reports with cached rates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		profile, err := a.backlogChain()
		if err != nil {
			return err
		}
		_, err = reports.NewFiller(a.cfg.Paths.ReportsDir, a.cfg.Backlog, a.cache, profile).Run(ctx)
		return err
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write yearly transaction summaries per wallet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		summaries, err := reports.NewReporter(a.cfg).Run(ctx)
		if err != nil {
			return err
		}
		a.log.WithComponent("tax_report").WithFields(logger.Fields{"reports": len(summaries)}).Info("processing complete")
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cached rates as parquet files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		only, _ := cmd.Flags().GetString("chain")

		var profiles []models.ChainProfile
		if only != "" {
			p, ok := a.cfg.Chain(only)
			if !ok {
				return errUnknownChain(only)
			}
			profiles = append(profiles, p)
		} else {
			for _, rule := range a.cfg.Chains {
				profiles = append(profiles, rule.Profile())
			}
		}

		var exporter *writer.Exporter
		if a.mirror != nil && a.cfg.Export.Upload {
			exporter = writer.NewExporter(a.cfg, a.cache, a.mirror)
		} else {
			exporter = writer.NewExporter(a.cfg, a.cache, nil)
		}
		summary, err := exporter.ExportAll(ctx, profiles)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			a.log.WithComponent("parquet_export").WithFields(logger.Fields{"failed": summary.Failed}).Warn("some chains failed to export")
		}
		return nil
	},
}
