package main

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"immunocore/internal/adapters/report"
	"immunocore/internal/blob"
	"immunocore/internal/core"
	"immunocore/internal/entitymodel"
	"immunocore/internal/infra/blob/fs"
	"immunocore/internal/ingest"
)

func (a *app) loadCmd() *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Replace the record store contents with a cell-count CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := ingest.ReadFile(csvPath)
			if err != nil {
				return err
			}
			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			res, err := svc.Load(cmd.Context(), records)
			if err != nil {
				return err
			}
			a.logger.WithField("csv", csvPath).WithField("version", res.Version).Info("store rebuilt")
			fmt.Fprintf(a.out, "loaded %d samples (%d frequency rows)\n", res.Samples, res.FrequencyRows)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "cell-count.csv", "cell-count CSV to load")
	return cmd
}

func (a *app) overviewCmd() *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Print the relative frequency of every population in every sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			rows, err := svc.Overview(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}
			if asJSON {
				return json.NewEncoder(a.out).Encode(rows)
			}
			printOverview(a.out, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most N rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) filtersCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "List the distinct values of every filterable attribute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			options, err := svc.FilterOptions(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(a.out).Encode(options)
			}
			printFilterOptions(a.out, options)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) summaryCmd() *cobra.Command {
	var (
		filters filterFlags
		csvPath string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Compare responders with non-responders per population",
		Long: `Filters samples, derives per-population relative frequencies and runs a
two-sided Mann-Whitney U test between responders and non-responders.
With --csv the file is analysed directly and the record store is not touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := filters.request()
			if err != nil {
				return err
			}
			var analysis core.Analysis
			if csvPath != "" {
				records, err := ingest.ReadFile(csvPath)
				if err != nil {
					return err
				}
				analysis, err = core.AnalyzeRecords(records, req, time.Now().UTC())
				if err != nil {
					return err
				}
			} else {
				svc, closeFn, err := a.openService(cmd.Context())
				if err != nil {
					return err
				}
				defer closeFn()
				if analysis, err = svc.Analyze(cmd.Context(), req); err != nil {
					return err
				}
			}
			if asJSON {
				return json.NewEncoder(a.out).Encode(analysis)
			}
			printAnalysis(a.out, analysis)
			return nil
		},
	}
	filters.register(cmd.Flags())
	cmd.Flags().StringVar(&csvPath, "csv", "", "analyse this CSV instead of the record store")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var (
		filters filterFlags
		formats []string
		outDir  string
		name    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the analysis as CSV, JSON or PNG artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := filters.request()
			if err != nil {
				return err
			}
			fmts, err := report.ParseFormats(formats)
			if err != nil {
				return err
			}
			var store blob.Store
			if outDir != "" {
				store, err = fs.New(outDir)
			} else {
				store, err = blob.Open(cmd.Context(), a.cfg.Blob)
			}
			if err != nil {
				return err
			}
			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			analysis, err := svc.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			if name == "" {
				name = "export-" + analysis.GeneratedAt.Format("20060102T150405Z")
			}
			artifacts, err := report.WriteArtifacts(cmd.Context(), store, name, analysis, fmts)
			if err != nil {
				return err
			}
			for _, art := range artifacts {
				a.logger.WithField("key", art.Key).WithField("driver", store.Driver()).Info("artifact written")
				fmt.Fprintf(a.out, "%s\t%s\t%d bytes\n", art.Format, art.Key, art.SizeBytes)
			}
			return nil
		},
	}
	filters.register(cmd.Flags())
	cmd.Flags().StringSliceVar(&formats, "format", []string{"csv", "json", "png"}, "artifact formats: csv,json,png")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "write to this directory instead of the configured blob store")
	cmd.Flags().StringVar(&name, "name", "", "artifact key prefix (default export-<timestamp>)")
	return cmd
}

func (a *app) schemaCmd() *cobra.Command {
	var openAPI bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the schema version or the report API contract",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if openAPI {
				_, err := a.out.Write(entitymodel.OpenAPISpec())
				return err
			}
			_, err := fmt.Fprintln(a.out, entitymodel.Version())
			return err
		},
	}
	cmd.Flags().BoolVar(&openAPI, "openapi", false, "print the OpenAPI document instead of the version")
	return cmd
}
