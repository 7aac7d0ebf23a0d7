// Command ingest runs the product ingestion pipeline from a shell: a full
// fetch-transform-publish run, or offline transform and validate passes
// over a local file.
package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/product-ingest/internal/config"
	"github.com/ignite/product-ingest/internal/pkg/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
	bus        string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "ingest",
		Short:         "Normalize supplier product records and publish them as events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	cmd.PersistentFlags().StringVar(&opts.bus, "bus", "", "override the publish bus (eventbridge, sqs, memory)")

	cmd.AddCommand(newRunCmd(opts), newTransformCmd(opts), newValidateCmd(opts))
	return cmd
}

// load applies flag overrides on top of file and environment config and
// points the service logger at stderr so stdout stays pure JSON.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadFromEnv(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.bus != "" {
		cfg.Publish.Bus = o.bus
	}
	// locators come from the shell user, so every scheme is served
	cfg.Source.Schemes = config.AllSchemes
	log := logger.New("product-ingest", cmd.ErrOrStderr())
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))
	return cfg, log, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}
