package middleware

import (
	"context"
	"io"
	"time"

	"github.com/arencloud/s3audit/internal/logging"
	"github.com/arencloud/s3audit/internal/metrics"
	"github.com/arencloud/s3audit/internal/storage"
)

// InstrumentedClient wraps a storage.Client with per-call debug logging and
// counters labelled by operation, identity and outcome.
type InstrumentedClient struct {
	next     storage.Client
	identity string
	logger   logging.Logger
	metrics  *metrics.Metrics
}

var _ storage.Client = (*InstrumentedClient)(nil)

func Instrument(next storage.Client, identity string, logger logging.Logger, m *metrics.Metrics) *InstrumentedClient {
	return &InstrumentedClient{next: next, identity: identity, logger: logger, metrics: m}
}

// Outcome maps an error onto the label used in metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case storage.IsAccessDenied(err):
		return "access_denied"
	case storage.IsNotFound(err):
		return "not_found"
	case storage.IsRejected(err):
		return "rejected"
	default:
		return "error"
	}
}

func (c *InstrumentedClient) observe(op, bucket string, start time.Time, err error) {
	outcome := Outcome(err)
	c.metrics.ObserveCall(op, c.identity, outcome)
	fields := []any{"op", op, "bucket", bucket, "identity", c.identity, "outcome", outcome,
		"durationMs", float64(time.Since(start)) / 1e6}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	c.logger.Debug("storage call", fields...)
}

func (c *InstrumentedClient) HeadBucket(ctx context.Context, bucket string) (string, error) {
	start := time.Now()
	region, err := c.next.HeadBucket(ctx, bucket)
	c.observe("HeadBucket", bucket, start, err)
	return region, err
}

func (c *InstrumentedClient) GetBucketACL(ctx context.Context, bucket string) (*storage.ACL, error) {
	start := time.Now()
	acl, err := c.next.GetBucketACL(ctx, bucket)
	c.observe("GetBucketACL", bucket, start, err)
	return acl, err
}

func (c *InstrumentedClient) PutBucketACL(ctx context.Context, bucket string, grants []storage.Grant) error {
	start := time.Now()
	err := c.next.PutBucketACL(ctx, bucket, grants)
	c.observe("PutBucketACL", bucket, start, err)
	return err
}

func (c *InstrumentedClient) ListObjects(ctx context.Context, bucket string, maxKeys int32, token string) (*storage.ListPage, error) {
	start := time.Now()
	page, err := c.next.ListObjects(ctx, bucket, maxKeys, token)
	c.observe("ListObjectsV2", bucket, start, err)
	return page, err
}

func (c *InstrumentedClient) PutObject(ctx context.Context, bucket, key string, body io.Reader) error {
	start := time.Now()
	err := c.next.PutObject(ctx, bucket, key, body)
	c.observe("PutObject", bucket, start, err)
	return err
}

func (c *InstrumentedClient) DeleteObject(ctx context.Context, bucket, key string) error {
	start := time.Now()
	err := c.next.DeleteObject(ctx, bucket, key)
	c.observe("DeleteObject", bucket, start, err)
	return err
}

func (c *InstrumentedClient) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	start := time.Now()
	n, err := c.next.Download(ctx, bucket, key, w)
	c.observe("GetObject", bucket, start, err)
	return n, err
}
