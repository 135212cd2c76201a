package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arencloud/s3audit/internal/logging"
	"github.com/arencloud/s3audit/internal/metrics"
	"github.com/arencloud/s3audit/internal/storage"
)

type stubClient struct {
	err error
}

func (s stubClient) HeadBucket(context.Context, string) (string, error) { return "eu-west-1", s.err }
func (s stubClient) GetBucketACL(context.Context, string) (*storage.ACL, error) {
	return &storage.ACL{}, s.err
}
func (s stubClient) PutBucketACL(context.Context, string, []storage.Grant) error { return s.err }
func (s stubClient) ListObjects(context.Context, string, int32, string) (*storage.ListPage, error) {
	return &storage.ListPage{}, s.err
}
func (s stubClient) PutObject(context.Context, string, string, io.Reader) error { return s.err }
func (s stubClient) DeleteObject(context.Context, string, string) error         { return s.err }
func (s stubClient) Download(context.Context, string, string, io.WriterAt) (int64, error) {
	return 0, s.err
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "access_denied", Outcome(fmt.Errorf("%w: x", storage.ErrAccessDenied)))
	assert.Equal(t, "not_found", Outcome(fmt.Errorf("%w: x", storage.ErrNotFound)))
	assert.Equal(t, "rejected", Outcome(fmt.Errorf("%w: x", storage.ErrRejected)))
	assert.Equal(t, "error", Outcome(errors.New("reset by peer")))
}

func TestInstrumentPassesThroughAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	denied := fmt.Errorf("%w: nope", storage.ErrAccessDenied)
	c := Instrument(stubClient{err: denied}, "anonymous", logging.FromZap(zap.New(core)), metrics.New())

	region, err := c.HeadBucket(context.Background(), "flaws.cloud")
	assert.Equal(t, "eu-west-1", region)
	assert.ErrorIs(t, err, storage.ErrAccessDenied)

	entries := logs.FilterMessage("storage call").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "HeadBucket", fields["op"])
	assert.Equal(t, "access_denied", fields["outcome"])
	assert.Equal(t, "anonymous", fields["identity"])
}

func TestRecoverer(t *testing.T) {
	err := Recoverer(logging.Nop(), "scan flaws.cloud", func() error { panic("kaboom") })
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)

	sentinel := errors.New("plain")
	assert.Same(t, sentinel, Recoverer(logging.Nop(), "ok", func() error { return sentinel }))
	assert.NoError(t, Recoverer(logging.Nop(), "ok", func() error { return nil }))
}
