package main

import (
	"github.com/spf13/cobra"

	"github.com/arencloud/s3audit/internal/scan"
)

var (
	dangerous bool
	enumerate bool
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Probe bucket permissions",
		Long: `Probe each bucket for Read, Write, ReadACP, WriteACP and FullControl as
AllUsers and, when credentials are available, AuthUsers.

Write and WriteACP probes modify the bucket and only run with --dangerous.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}
	cmd.Flags().StringVarP(&bucketName, "bucket", "b", "", "bucket name, hostname or name:region")
	cmd.Flags().StringVarP(&bucketsFile, "buckets-file", "f", "", "file with one bucket per line")
	cmd.Flags().BoolVar(&dangerous, "dangerous", false, "include write and write-ACL probes")
	cmd.Flags().BoolVar(&enumerate, "enumerate", false, "count objects of readable buckets")
	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	a := current
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

	if dangerous {
		a.logger.Warn("dangerous mode: write probes will create and delete objects and rewrite bucket ACLs")
	}
	opts := scanOptions(a.cfg)
	opts.Dangerous, opts.Enumerate = dangerous, enumerate
	s := scan.NewScanner(clients, opts, a.cfg.MaxPages, a.logger, a.metrics)
	return s.RunScan(ctx, names, report(ctx, a, store))
}
