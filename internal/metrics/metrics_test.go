package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveCall("GetBucketACL", "anonymous", "access_denied")
	m.ObserveCall("GetBucketACL", "anonymous", "access_denied")
	m.ObserveBucket("bucket_exists")
	m.ObserveDownload(2048)
	m.ObserveDownloadFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.apiCalls.WithLabelValues("GetBucketACL", "anonymous", "access_denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.buckets.WithLabelValues("bucket_exists")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.objectsDownloaded))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.bytesDownloaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.downloadFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCall("a", "b", "c")
	m.ObserveBucket("x")
	m.ObserveDownload(1)
	m.ObserveSkip()
	m.ObserveDownloadFailure()
	m.ObserveCleanupFailure()
	assert.NoError(t, m.WriteTextfile("/nonexistent/path.prom"))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveBucket("bucket_not_exist")
	path := filepath.Join(t.TempDir(), "s3audit.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `s3audit_scan_buckets_total{status="bucket_not_exist"} 1`))
}
