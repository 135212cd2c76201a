package dump

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arencloud/s3audit/internal/bucket"
	"github.com/arencloud/s3audit/internal/logging"
	"github.com/arencloud/s3audit/internal/metrics"
	"github.com/arencloud/s3audit/internal/storage"
)

// ErrUnsafeKey is returned for object keys that would land outside the dump
// directory.
var ErrUnsafeKey = errors.New("object key escapes dump directory")

type Failure struct {
	Key string
	Err error
}

type Result struct {
	Downloaded int
	Skipped    int
	Bytes      int64
	Failed     []Failure
}

// Dumper downloads enumerated objects with a bounded number of workers.
type Dumper struct {
	threads int
	logger  logging.Logger
	metrics *metrics.Metrics
	verbose bool
}

func New(threads int, verbose bool, logger logging.Logger, m *metrics.Metrics) *Dumper {
	if threads < 1 {
		threads = 1
	}
	return &Dumper{threads: threads, verbose: verbose, logger: logger, metrics: m}
}

// LocalPath maps an object key to a path under root. Absolute keys, keys
// with a ".." segment and anything resolving outside root are rejected.
func LocalPath(root, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrUnsafeKey)
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, `\`) || filepath.IsAbs(key) || filepath.VolumeName(key) != "" {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafeKey, key)
	}
	for _, seg := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q has a parent segment", ErrUnsafeKey, key)
		}
	}
	p := filepath.Join(root, filepath.FromSlash(key))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeKey, key)
	}
	return p, nil
}

// Dump writes every enumerated object of b below dir. Objects whose local
// copy already has the remote size are skipped; others are downloaded to a
// temporary file and renamed into place. Per-object failures do not stop
// the others and are returned together.
func (d *Dumper) Dump(ctx context.Context, dl storage.Downloader, b *bucket.Bucket, dir string) (*Result, error) {
	if !b.ObjectsEnumerated {
		return nil, fmt.Errorf("dump %s: objects not enumerated", b.Name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		res = &Result{}
	)
	fail := func(key string, err error) {
		d.metrics.ObserveDownloadFailure()
		d.logger.Error("download failed", "bucket", b.Name, "key", key, "error", err)
		mu.Lock()
		res.Failed = append(res.Failed, Failure{Key: key, Err: err})
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(d.threads)
	for _, obj := range b.Objects() {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				fail(obj.Key, err)
				return nil
			}
			n, skipped, err := d.fetch(ctx, dl, b.Name, obj, dir)
			if err != nil {
				fail(obj.Key, err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if skipped {
				res.Skipped++
				d.metrics.ObserveSkip()
				return nil
			}
			res.Downloaded++
			res.Bytes += n
			d.metrics.ObserveDownload(n)
			if d.verbose {
				d.logger.Info("downloaded", "bucket", b.Name, "key", obj.Key, "bytes", n)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(res.Failed) > 0 {
		errs := make([]error, 0, len(res.Failed))
		for _, f := range res.Failed {
			errs = append(errs, fmt.Errorf("%s: %w", f.Key, f.Err))
		}
		return res, fmt.Errorf("dump %s: %d of %d objects failed: %w",
			b.Name, len(res.Failed), b.ObjectCount(), errors.Join(errs...))
	}
	return res, nil
}

func (d *Dumper) fetch(ctx context.Context, dl storage.Downloader, bucketName string, obj bucket.Object, dir string) (int64, bool, error) {
	dest, err := LocalPath(dir, obj.Key)
	if err != nil {
		return 0, false, err
	}
	if strings.HasSuffix(obj.Key, "/") {
		// directory placeholder
		return 0, true, os.MkdirAll(dest, 0o755)
	}
	if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() && fi.Size() == obj.Size {
		return 0, true, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, false, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".s3audit-*")
	if err != nil {
		return 0, false, err
	}
	n, err := dl.Download(ctx, bucketName, obj.Key, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, false, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, false, err
	}
	return n, false, nil
}
