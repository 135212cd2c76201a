// s3audit audits S3 bucket permissions for anonymous and authenticated callers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arencloud/s3audit/internal/config"
	"github.com/arencloud/s3audit/internal/logging"
	"github.com/arencloud/s3audit/internal/metrics"
	"github.com/arencloud/s3audit/internal/s3"
	"github.com/arencloud/s3audit/internal/version"
)

var (
	cfgFile      string
	provider     string
	endpointURL  string
	addressStyle string
	insecure     bool
	threads      int
	noCreds      bool
	profile      string
	jsonOutput   bool
	logLevel     string
	saveToDB     bool
	metricsFile  string
)

// app is what every subcommand gets after the persistent setup ran.
type app struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics *metrics.Metrics
}

var current app

func main() {
	rootCmd := &cobra.Command{
		Use:   "s3audit",
		Short: "Audit S3 bucket permissions",
		Long: `s3audit checks which operations anonymous and authenticated callers may
perform on S3 buckets, and optionally downloads readable buckets.

Examples:
  # Check a single bucket without writing to it
  s3audit scan --bucket flaws.cloud

  # Check a list of buckets, including write probes
  s3audit scan --buckets-file names.txt --dangerous

  # Download everything from readable buckets
  s3audit dump --bucket flaws.cloud --dump-dir ./loot

  # Scan against a MinIO server
  s3audit scan --endpoint-url http://localhost:9000 --bucket test --no-creds
  s3audit scan --provider digitalocean --bucket media-files`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	flags.StringVar(&provider, "provider", "aws", "storage provider: aws or "+strings.Join(s3.ProviderNames(), ", "))
	flags.StringVar(&endpointURL, "endpoint-url", "", "S3-compatible endpoint (default AWS)")
	flags.StringVar(&addressStyle, "endpoint-address-style", "", "path or vhost addressing (default depends on endpoint)")
	flags.BoolVar(&insecure, "insecure", false, "skip TLS verification / use http for scheme-less endpoints")
	flags.IntVarP(&threads, "threads", "t", 4, "buckets processed in parallel")
	flags.BoolVar(&noCreds, "no-creds", false, "run anonymous probes only")
	flags.StringVar(&profile, "profile", "", "shared config profile for authenticated probes")
	flags.BoolVar(&jsonOutput, "json", false, "print one JSON object per bucket")
	flags.StringVarP(&logLevel, "log-level", "l", "info", "log level")
	flags.BoolVar(&saveToDB, "db", false, "store results in the configured database")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newDumpCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// skip config and logger setup
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if current.logger != nil {
		logging.Sync(current.logger)
	}
	if err != nil {
		os.Exit(1)
	}
}

// setup resolves configuration as defaults < environment < config file <
// flags, then builds the logger and metrics registry.
func setup(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfgFile != "" {
		if err := config.LoadFile(cfg, cfgFile); err != nil {
			return err
		}
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	current = app{
		cfg:     cfg,
		logger:  logging.New(cfg.LogLevel, cfg.LogJSON).With("run", cmd.Name()),
		metrics: metrics.New(),
	}
	current.logger.Debug("config loaded", "env", cfg.Env, "provider", cfg.Provider, "endpoint", cfg.Endpoint, "threads", cfg.Threads)
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	if changed("provider") {
		cfg.Provider = provider
	}
	if changed("endpoint-url") {
		cfg.Endpoint = endpointURL
	}
	if changed("endpoint-address-style") {
		cfg.AddressStyle = addressStyle
	}
	if changed("insecure") {
		cfg.Insecure = insecure
	}
	if changed("threads") {
		cfg.Threads = threads
	}
	if changed("no-creds") {
		cfg.NoCredentials = noCreds
	}
	if changed("profile") {
		cfg.Profile = profile
	}
	if changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}
	if changed("dump-threads") {
		cfg.DumpThreads = dumpThreads
	}
}
