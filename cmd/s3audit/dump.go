package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arencloud/s3audit/internal/dump"
	"github.com/arencloud/s3audit/internal/scan"
)

var (
	dumpDir     string
	dumpThreads int
	verbose     bool
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Download the contents of readable buckets",
		Long: `Enumerate every readable bucket and download its objects below
<dump-dir>/<bucket>. Files already present with the same size are skipped.`,
		Args: cobra.NoArgs,
		RunE: runDump,
	}
	cmd.Flags().StringVarP(&bucketName, "bucket", "b", "", "bucket name, hostname or name:region")
	cmd.Flags().StringVarP(&bucketsFile, "buckets-file", "f", "", "file with one bucket per line")
	cmd.Flags().StringVarP(&dumpDir, "dump-dir", "d", "", "existing directory to download into")
	cmd.Flags().IntVar(&dumpThreads, "dump-threads", 4, "parallel downloads per bucket")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log every downloaded object")
	_ = cmd.MarkFlagRequired("dump-dir")
	return cmd
}

func runDump(cmd *cobra.Command, _ []string) error {
	a := current
	fi, err := os.Stat(dumpDir)
	if err != nil {
		return fmt.Errorf("dump dir: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("dump dir %s is not a directory", dumpDir)
	}
	names, err := inputs()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	clients, err := buildClients(ctx, a)
	if err != nil {
		return err
	}
	store, err := openStore(a)
	if err != nil {
		return err
	}
	defer finish(a, store)

	s := scan.NewScanner(clients, scanOptions(a.cfg), a.cfg.MaxPages, a.logger, a.metrics)
	d := dump.New(a.cfg.DumpThreads, verbose, a.logger, a.metrics)
	return s.RunDump(ctx, names, d, dumpDir, report(ctx, a, store))
}
