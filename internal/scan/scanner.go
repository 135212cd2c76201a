package scan

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arencloud/s3audit/internal/bucket"
	"github.com/arencloud/s3audit/internal/dump"
	"github.com/arencloud/s3audit/internal/logging"
	"github.com/arencloud/s3audit/internal/metrics"
	"github.com/arencloud/s3audit/internal/middleware"
)

// Status is the per-bucket report status.
type Status string

const (
	StatusInvalidName Status = "bucket_invalid_name"
	StatusNotExist    Status = "bucket_not_exist"
	StatusExists      Status = "bucket_exists"
	StatusError       Status = "error"
)

// Result is everything known about one input after it was processed.
type Result struct {
	Input  string
	Status Status
	// Bucket is nil when the input was not a valid bucket name.
	Bucket *bucket.Bucket
	Dump   *dump.Result
	// Err is a failure that interrupted processing. For StatusExists it
	// refers to enumeration or dumping; the permission matrix is complete.
	Err error
}

type Options struct {
	Threads   int
	Dangerous bool
	Enumerate bool
	// NameHosts are endpoint hostnames stripped from inputs written as
	// "<bucket>.<host>".
	NameHosts []string
}

// Scanner drives the probe sequence for each bucket and fans out across
// buckets with a bounded pool.
type Scanner struct {
	prober  *Prober
	clients Clients
	opts    Options
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewScanner(clients Clients, opts Options, maxPages int, logger logging.Logger, m *metrics.Metrics) *Scanner {
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	return &Scanner{
		prober:  NewProber(clients, logger, m, maxPages),
		clients: clients,
		opts:    opts,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

func (s *Scanner) identities() []Identity {
	ids := []Identity{Anonymous}
	if s.prober.HasIdentity(Authenticated) {
		ids = append(ids, Authenticated)
	}
	return ids
}

// existenceIdentity prefers credentials when they are available.
func (s *Scanner) existenceIdentity() Identity {
	if s.prober.HasIdentity(Authenticated) {
		return Authenticated
	}
	return Anonymous
}

// prepare validates the input and runs the existence probe. The returned
// result is final unless its status is StatusExists with a nil Err.
func (s *Scanner) prepare(ctx context.Context, input string) Result {
	res := Result{Input: input}
	name, err := bucket.ValidateName(input, s.opts.NameHosts...)
	if err != nil {
		res.Status = StatusInvalidName
		res.Err = err
		return res
	}
	b := bucket.New(name)
	b.DateScanned = s.now().UTC()
	res.Bucket = b

	if err := s.prober.Exists(ctx, s.existenceIdentity(), b); err != nil {
		res.Status = StatusError
		res.Err = err
		return res
	}
	if b.Exists == bucket.ExistsNo {
		res.Status = StatusNotExist
		return res
	}
	res.Status = StatusExists
	return res
}

// ScanBucket audits one input end to end.
func (s *Scanner) ScanBucket(ctx context.Context, input string) Result {
	res := s.prepare(ctx, input)
	if res.Status != StatusExists {
		return res
	}
	b := res.Bucket
	if err := s.probe(ctx, b); err != nil {
		res.Status = StatusError
		res.Err = err
		return res
	}
	if s.opts.Enumerate {
		if id, ok := s.readerFor(b); ok {
			if err := s.prober.Enumerate(ctx, id, b); err != nil {
				res.Err = err
			}
		}
	}
	return res
}

func (s *Scanner) probe(ctx context.Context, b *bucket.Bucket) error {
	ids := s.identities()

	for _, id := range ids {
		if b.ACL != nil {
			break
		}
		if err := s.prober.ReadACL(ctx, id, b); err != nil {
			return err
		}
	}

	// Full control already answers every other question for that principal.
	var active []Identity
	for _, id := range ids {
		if b.Perms.Get(id.Principal(), bucket.FullControl) != bucket.Allowed {
			active = append(active, id)
		}
	}

	for _, id := range active {
		if err := s.prober.Read(ctx, id, b); err != nil {
			return err
		}
	}
	if !s.opts.Dangerous {
		return nil
	}
	for _, id := range active {
		if err := s.prober.Write(ctx, id, b); err != nil {
			return err
		}
	}
	// Modifies the bucket ACL, so it goes last.
	for _, id := range active {
		if err := s.prober.WriteACL(ctx, id, b); err != nil {
			return err
		}
	}
	return nil
}

// readerFor picks an identity that was observed to be able to list b.
func (s *Scanner) readerFor(b *bucket.Bucket) (Identity, bool) {
	if b.Perms.Get(bucket.AllUsers, bucket.Read) == bucket.Allowed {
		return Anonymous, true
	}
	if s.prober.HasIdentity(Authenticated) && b.Perms.Get(bucket.AuthenticatedUsers, bucket.Read) == bucket.Allowed {
		return Authenticated, true
	}
	return Anonymous, false
}

// DumpBucket finds an identity that can list the bucket, enumerates it and
// downloads every object under dir/<bucket name>.
func (s *Scanner) DumpBucket(ctx context.Context, input string, d *dump.Dumper, dir string) Result {
	res := s.prepare(ctx, input)
	if res.Status != StatusExists {
		return res
	}
	b := res.Bucket

	if s.prober.HasIdentity(Authenticated) {
		if err := s.prober.Read(ctx, Authenticated, b); err != nil {
			res.Status, res.Err = StatusError, err
			return res
		}
	}
	if b.Perms.Get(bucket.AuthenticatedUsers, bucket.Read) != bucket.Allowed {
		if err := s.prober.Read(ctx, Anonymous, b); err != nil {
			res.Status, res.Err = StatusError, err
			return res
		}
	}
	id := Anonymous
	switch {
	case b.Perms.Get(bucket.AuthenticatedUsers, bucket.Read) == bucket.Allowed:
		id = Authenticated
	case b.Perms.Get(bucket.AllUsers, bucket.Read) == bucket.Allowed:
	default:
		res.Err = &AccessDeniedError{Op: "dump", Bucket: b.Name, Identity: s.existenceIdentity()}
		return res
	}

	if err := s.prober.Enumerate(ctx, id, b); err != nil {
		res.Err = err
		return res
	}
	cl, err := s.clients.get(id)
	if err != nil {
		res.Err = err
		return res
	}
	res.Dump, res.Err = d.Dump(ctx, cl, b, filepath.Join(dir, b.Name))
	return res
}

// Run processes inputs with at most Threads buckets in flight. Each bucket is
// owned by exactly one worker; emit is called once per input and never
// concurrently. Run stops starting new buckets once ctx is done.
func (s *Scanner) Run(ctx context.Context, inputs []string, work func(context.Context, string) Result, emit func(Result)) error {
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Threads)
	for _, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var res Result
			err := middleware.Recoverer(s.logger, "bucket "+in, func() error {
				res = work(ctx, in)
				return nil
			})
			if err != nil {
				res = Result{Input: in, Status: StatusError, Err: err}
			}
			s.metrics.ObserveBucket(string(res.Status))
			if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
				s.logger.Debug("bucket finished with error", "input", in, "status", string(res.Status), "error", res.Err)
			}
			mu.Lock()
			defer mu.Unlock()
			emit(res)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// RunScan is Run with ScanBucket as the per-bucket work.
func (s *Scanner) RunScan(ctx context.Context, inputs []string, emit func(Result)) error {
	return s.Run(ctx, inputs, s.ScanBucket, emit)
}

// RunDump is Run with DumpBucket as the per-bucket work.
func (s *Scanner) RunDump(ctx context.Context, inputs []string, d *dump.Dumper, dir string, emit func(Result)) error {
	return s.Run(ctx, inputs, func(ctx context.Context, in string) Result {
		return s.DumpBucket(ctx, in, d, dir)
	}, emit)
}
