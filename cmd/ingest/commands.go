package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ignite/product-ingest/internal/config"
	"github.com/ignite/product-ingest/internal/datanorm"
	"github.com/ignite/product-ingest/internal/ingest"
	"github.com/ignite/product-ingest/internal/pkg/logger"
	"github.com/ignite/product-ingest/internal/source"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var correlationID string
	cmd := &cobra.Command{
		Use:   "run <locator>",
		Short: "Fetch, transform and publish one record container",
		Long: `Runs a full ingestion invocation. The locator may be s3://bucket/key,
an http(s) URL, file://path or a bare path. The response is printed as JSON
and the command fails when its statusCode is not 200.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			svc, _, err := ingest.Bootstrap(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}

			resp := svc.Ingest(cmd.Context(), correlationID, args[0])
			if err := printJSON(cmd, resp); err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("invocation finished with status %d", resp.StatusCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "correlation id for the run (generated when empty)")
	return cmd
}

func newTransformCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transform <file>",
		Short: "Normalize a local record container without publishing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			data, err := readLocal(cmd, args[0])
			if err != nil {
				return err
			}
			outcome, err := offlineService(cfg, log).Transform("", data)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"products": outcome.Successes,
				"summary":  outcome.Summary(),
				"failures": outcome.Failures,
				"warnings": outcome.Warnings,
				"skipped":  outcome.Skipped,
			})
		},
	}
}

// recordReport is one line of the validate command's output.
type recordReport struct {
	Index     int      `json:"index"`
	ProductID string   `json:"product_id"`
	Valid     bool     `json:"valid"`
	Issues    []string `json:"issues,omitempty"`
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Run the structural pre-check and print the issues of every record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := opts.load(cmd); err != nil {
				return err
			}
			data, err := readLocal(cmd, args[0])
			if err != nil {
				return err
			}
			records, err := datanorm.ParseRecords(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			v := datanorm.NewValidator()
			reports := make([]recordReport, 0, len(records))
			validCount := 0
			for i, r := range records {
				rep := recordReport{Index: i, ProductID: "unknown"}
				rec, ok := datanorm.AsRaw(r)
				if !ok {
					rep.Issues = []string{"record is not a JSON object"}
					reports = append(reports, rep)
					continue
				}
				if info, ok := rec.Path("info", "productInfo"); ok {
					rep.ProductID = info.StrOr("goods_id", "unknown")
				}
				valid, issues := v.Validate(rec)
				rep.Valid = valid
				for _, issue := range issues {
					rep.Issues = append(rep.Issues, issue.Message())
				}
				if valid {
					validCount++
				}
				reports = append(reports, rep)
			}

			return printJSON(cmd, map[string]any{
				"valid":        validCount > 0,
				"validCount":   validCount,
				"invalidCount": len(records) - validCount,
				"records":      reports,
			})
		},
	}
}

// offlineService only transforms; it has no fetcher or bus.
func offlineService(cfg *config.Config, log *logger.Logger) *ingest.Service {
	transformer := datanorm.NewTransformer(datanorm.Options{
		Source:    cfg.Ingest.Source,
		Currency:  cfg.Ingest.Currency,
		SKUPrefix: cfg.Ingest.SKUPrefix,
	})
	return ingest.NewService(nil, transformer, nil, log)
}

func readLocal(cmd *cobra.Command, path string) ([]byte, error) {
	return source.FileFetcher{}.Get(cmd.Context(), path)
}
