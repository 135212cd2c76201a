package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/arencloud/s3audit/internal/bucket"
	"github.com/arencloud/s3audit/internal/config"
	"github.com/arencloud/s3audit/internal/db"
	"github.com/arencloud/s3audit/internal/middleware"
	"github.com/arencloud/s3audit/internal/s3"
	"github.com/arencloud/s3audit/internal/scan"
)

var (
	bucketName  string
	bucketsFile string
)

// inputs returns the bucket names from --bucket or --buckets-file.
func inputs() ([]string, error) {
	switch {
	case bucketName != "" && bucketsFile != "":
		return nil, errors.New("--bucket and --buckets-file are mutually exclusive")
	case bucketName != "":
		return []string{bucketName}, nil
	case bucketsFile != "":
		f, err := os.Open(bucketsFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		names, err := bucket.ReadNames(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", bucketsFile, err)
		}
		return names, nil
	}
	return nil, errors.New("one of --bucket or --buckets-file is required")
}

// preset returns the provider preset selected in cfg; ok is false for AWS and
// custom endpoints.
func preset(cfg *config.Config) (p s3.Provider, ok bool, err error) {
	if cfg.Provider == "" || strings.EqualFold(cfg.Provider, s3.ProviderAWS) {
		return s3.Provider{}, false, nil
	}
	p, err = s3.LookupProvider(cfg.Provider)
	if err != nil {
		return s3.Provider{}, false, err
	}
	return p, true, nil
}

// providerLabel names the endpoint results are stored under.
func providerLabel(cfg *config.Config) string {
	if p, ok, _ := preset(cfg); ok {
		return p.Name
	}
	return cfg.Endpoint
}

// buildClients creates the anonymous client and, when credentials resolve
// against AWS, the authenticated one. Both share a region cache. A provider
// preset gets one anonymous client spread over its regions.
func buildClients(ctx context.Context, a app) (scan.Clients, error) {
	cfg := a.cfg
	p, ok, err := preset(cfg)
	if err != nil {
		return scan.Clients{}, err
	}
	if ok {
		rc, err := s3.NewRegionalClient(ctx, cfg, p, s3.NewRegionCache())
		if err != nil {
			return scan.Clients{}, err
		}
		a.logger.Info("authenticated probes disabled", "reason", "provider "+p.Name, "regions", len(p.Regions))
		return scan.Clients{
			Anonymous: middleware.Instrument(rc, scan.Anonymous.String(), a.logger, a.metrics),
		}, nil
	}
	if cfg.Endpoint != "" {
		if err := s3.ValidateEndpoint(ctx, cfg, time.Now()); err != nil {
			return scan.Clients{}, err
		}
	}

	regions := s3.NewRegionCache()
	anon, err := s3.NewFromConfig(ctx, cfg, true, regions)
	if err != nil {
		return scan.Clients{}, err
	}
	clients := scan.Clients{
		Anonymous: middleware.Instrument(anon, scan.Anonymous.String(), a.logger, a.metrics),
	}

	switch {
	case cfg.NoCredentials:
		a.logger.Info("authenticated probes disabled", "reason", "no-creds")
	case !s3.IsAWSEndpoint(cfg.Endpoint):
		a.logger.Info("authenticated probes disabled", "reason", "custom endpoint")
	default:
		auth, err := s3.NewFromConfig(ctx, cfg, false, regions)
		if err != nil {
			return scan.Clients{}, err
		}
		if auth.HasCredentials(ctx) {
			clients.Authenticated = middleware.Instrument(auth, scan.Authenticated.String(), a.logger, a.metrics)
		} else {
			a.logger.Warn("no AWS credentials found, running anonymous probes only")
		}
	}
	return clients, nil
}

// report prints each result and stores it when --db is set.
func report(ctx context.Context, a app, store *db.Store) func(scan.Result) {
	rep := scan.NewReporter(os.Stdout, jsonOutput)
	return func(res scan.Result) {
		if err := rep.Report(res); err != nil {
			a.logger.Error("report failed", "input", res.Input, "error", err)
		}
		if store == nil || res.Bucket == nil {
			return
		}
		if err := store.SaveBucket(ctx, providerLabel(a.cfg), res.Bucket); err != nil {
			a.logger.Error("saving result failed", "bucket", res.Bucket.Name, "error", err)
		}
	}
}

// scanOptions carries the settings shared by scan and dump.
func scanOptions(cfg *config.Config) scan.Options {
	return scan.Options{Threads: cfg.Threads, NameHosts: s3.NameHosts(cfg)}
}

func openStore(a app) (*db.Store, error) {
	if !saveToDB {
		return nil, nil
	}
	return db.Open(a.cfg, a.logger)
}

// finish closes the store and writes the metrics file.
func finish(a app, store *db.Store) {
	if store != nil {
		if err := store.Close(); err != nil {
			a.logger.Warn("closing db", "error", err)
		}
	}
	if a.cfg.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.logger.Error("writing metrics file", "path", a.cfg.MetricsFile, "error", err)
		}
	}
}
