package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arencloud/s3audit/internal/bucket"
	"github.com/arencloud/s3audit/internal/dump"
	"github.com/arencloud/s3audit/internal/logging"
	"github.com/arencloud/s3audit/internal/storage"
)

func newTestScanner(anon, auth *fakeClient, opts Options) *Scanner {
	c := Clients{Anonymous: anon}
	if auth != nil {
		c.Authenticated = auth
	}
	return NewScanner(c, opts, 10, logging.Nop(), nil)
}

func TestScanInvalidName(t *testing.T) {
	anon := &fakeClient{}
	res := newTestScanner(anon, nil, Options{}).ScanBucket(context.Background(), "Not_A_Bucket")
	assert.Equal(t, StatusInvalidName, res.Status)
	assert.Nil(t, res.Bucket)
	var inv *bucket.InvalidNameError
	assert.ErrorAs(t, res.Err, &inv)
	assert.Empty(t, anon.Calls())
	assert.Equal(t, "Not_A_Bucket | bucket_invalid_name", FormatLine(res))
}

func TestScanNotExist(t *testing.T) {
	anon := &fakeClient{headErr: errNotFound}
	res := newTestScanner(anon, nil, Options{}).ScanBucket(context.Background(), "flaws.cloud.s3.amazonaws.com")
	assert.Equal(t, StatusNotExist, res.Status)
	assert.Equal(t, "flaws.cloud", res.Bucket.Name)
	assert.Equal(t, []string{"HeadBucket"}, anon.Calls())
	assert.Equal(t, "flaws.cloud | bucket_not_exist", FormatLine(res))
}

func TestScanStripsProviderHost(t *testing.T) {
	anon := &fakeClient{headErr: errNotFound}
	opts := Options{NameHosts: []string{"nyc3.digitaloceanspaces.com"}}
	res := newTestScanner(anon, nil, opts).ScanBucket(context.Background(), "media-files.nyc3.digitaloceanspaces.com")
	assert.Equal(t, StatusNotExist, res.Status)
	assert.Equal(t, "media-files", res.Bucket.Name)
	assert.Equal(t, "media-files | bucket_not_exist", FormatLine(res))
}

func TestScanExistenceUsesCredentialsWhenPresent(t *testing.T) {
	anon := &fakeClient{aclErr: errDenied, readErr: errDenied}
	auth := &fakeClient{aclErr: errDenied, readErr: errDenied}
	newTestScanner(anon, auth, Options{}).ScanBucket(context.Background(), "some-bucket")
	assert.Equal(t, "HeadBucket", auth.Calls()[0])
	assert.NotContains(t, anon.Calls(), "HeadBucket")
}

func TestScanSafeModeNeverWrites(t *testing.T) {
	anon := &fakeClient{aclErr: errDenied}
	auth := &fakeClient{aclErr: errDenied, readErr: errDenied}
	res := newTestScanner(anon, auth, Options{}).ScanBucket(context.Background(), "read-only-scan")
	require.Equal(t, StatusExists, res.Status)

	for _, c := range append(anon.Calls(), auth.Calls()...) {
		assert.NotContains(t, []string{"PutObject", "DeleteObject", "PutBucketACL"}, c)
	}
	assert.Equal(t, bucket.Allowed, res.Bucket.Perms.Get(bucket.AllUsers, bucket.Read))
	assert.Equal(t, bucket.Unknown, res.Bucket.Perms.Get(bucket.AuthenticatedUsers, bucket.Read))
	assert.Equal(t, "read-only-scan | bucket_exists | AuthUsers: [], AllUsers: [Read]", FormatLine(res))
}

func TestScanDangerousOrdering(t *testing.T) {
	anon := &fakeClient{aclErr: errDenied, readErr: errDenied, putErr: errDenied, putACLErr: errDenied}
	auth := &fakeClient{aclErr: errDenied}
	res := newTestScanner(anon, auth, Options{Dangerous: true}).ScanBucket(context.Background(), "target-bucket")
	require.NoError(t, res.Err)

	assert.Equal(t, []string{"GetBucketACL", "ListObjects0", "PutObject", "PutBucketACL"}, anon.Calls())
	assert.Equal(t, []string{"HeadBucket", "GetBucketACL", "ListObjects0", "PutObject", "DeleteObject", "PutBucketACL"}, auth.Calls())

	m := &res.Bucket.Perms
	assert.Equal(t, bucket.Denied, m.Get(bucket.AllUsers, bucket.Write))
	assert.Equal(t, bucket.Allowed, m.Get(bucket.AuthenticatedUsers, bucket.Write))
	assert.Equal(t, bucket.Allowed, m.Get(bucket.AuthenticatedUsers, bucket.WriteACL))
	assert.Equal(t, bucket.Denied, m.Get(bucket.AuthenticatedUsers, bucket.ReadACL))
}

func TestScanReadableACLSendsNoWrites(t *testing.T) {
	acl := &storage.ACL{Grants: []storage.Grant{groupGrant(storage.AllUsersURI, storage.PermRead)}}
	anon := &fakeClient{acl: acl}
	auth := &fakeClient{}
	res := newTestScanner(anon, auth, Options{Dangerous: true}).ScanBucket(context.Background(), "acl-readable")
	require.NoError(t, res.Err)

	assert.Equal(t, []string{"GetBucketACL"}, anon.Calls())
	assert.Equal(t, []string{"HeadBucket"}, auth.Calls())
	assert.Empty(t, anon.putKeys)
	assert.Empty(t, anon.putGrants)
	assert.Equal(t, "acl-readable | bucket_exists | AuthUsers: [], AllUsers: [Read, ReadACP]", FormatLine(res))
}

func TestScanRejectedHeadStillExists(t *testing.T) {
	anon := &fakeClient{headErr: errRejected, aclErr: errDenied, readErr: errDenied}
	res := newTestScanner(anon, nil, Options{}).ScanBucket(context.Background(), "moved-bucket")
	require.NoError(t, res.Err)
	assert.Equal(t, StatusExists, res.Status)
	assert.Equal(t, bucket.ExistsYes, res.Bucket.Exists)
}

func TestScanFullControlSkipsPrincipal(t *testing.T) {
	acl := &storage.ACL{Grants: []storage.Grant{groupGrant(storage.AllUsersURI, storage.PermFullControl)}}
	anon := &fakeClient{acl: acl}
	auth := &fakeClient{}
	res := newTestScanner(anon, auth, Options{Dangerous: true}).ScanBucket(context.Background(), "wide-open")
	require.NoError(t, res.Err)

	assert.Equal(t, []string{"GetBucketACL"}, anon.Calls())
	// every authenticated observation is implied by AllUsers, so nothing is sent
	assert.Equal(t, []string{"HeadBucket"}, auth.Calls())
	for _, k := range bucket.Kinds {
		assert.Equal(t, bucket.Allowed, res.Bucket.Perms.Get(bucket.AllUsers, k))
	}
	assert.Equal(t, "wide-open | bucket_exists | AuthUsers: [], AllUsers: [Read, Write, ReadACP, WriteACP, FullControl]", FormatLine(res))
}

func TestScanTransportErrorReported(t *testing.T) {
	anon := &fakeClient{aclErr: errNetwork}
	res := newTestScanner(anon, nil, Options{}).ScanBucket(context.Background(), "flaky-bucket")
	assert.Equal(t, StatusError, res.Status)
	var te *TransportError
	assert.ErrorAs(t, res.Err, &te)
	assert.Contains(t, FormatLine(res), "flaky-bucket | error | read-acl flaky-bucket as anonymous")
}

func TestScanEnumerate(t *testing.T) {
	anon := &fakeClient{aclErr: errDenied, pages: []*storage.ListPage{
		{Objects: []storage.ObjectInfo{{Key: "a.txt", Size: 1500}, {Key: "b.txt", Size: 500}}},
	}}
	res := newTestScanner(anon, nil, Options{Enumerate: true}).ScanBucket(context.Background(), "listable")
	require.NoError(t, res.Err)
	assert.True(t, res.Bucket.ObjectsEnumerated)
	assert.Equal(t, "listable | bucket_exists | AuthUsers: [], AllUsers: [Read] | 2 objects (2.0 kB)", FormatLine(res))
}

func TestScanEnumerateSkippedWithoutRead(t *testing.T) {
	anon := &fakeClient{aclErr: errDenied, readErr: errDenied}
	res := newTestScanner(anon, nil, Options{Enumerate: true}).ScanBucket(context.Background(), "unlistable")
	assert.NoError(t, res.Err)
	assert.False(t, res.Bucket.ObjectsEnumerated)
	assert.NotContains(t, anon.Calls(), "ListObjects")
}

func TestRunBoundsAndRecovers(t *testing.T) {
	anon := &fakeClient{aclErr: errDenied, readErr: errDenied}
	s := newTestScanner(anon, nil, Options{Threads: 3})
	inputs := []string{"bucket-one", "bucket-two", "x", "bucket-four", "bucket-five"}

	var mu sync.Mutex
	var got []string
	err := s.RunScan(context.Background(), inputs, func(r Result) {
		mu.Lock()
		got = append(got, r.Input+"="+string(r.Status))
		mu.Unlock()
	})
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, []string{
		"bucket-five=bucket_exists", "bucket-four=bucket_exists", "bucket-one=bucket_exists",
		"bucket-two=bucket_exists", "x=bucket_invalid_name",
	}, got)

	boom := newTestScanner(&fakeClient{headPanic: true}, nil, Options{Threads: 2})
	var results []Result
	require.NoError(t, boom.RunScan(context.Background(), []string{"panicky-bucket"}, func(r Result) { results = append(results, r) }))
	require.Len(t, results, 1)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Error(t, results[0].Err)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	anon := &fakeClient{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var n int
	err := newTestScanner(anon, nil, Options{Threads: 1}).RunScan(ctx, []string{"bucket-a", "bucket-b"}, func(Result) { n++ })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestDumpBucket(t *testing.T) {
	anon := &fakeClient{pages: []*storage.ListPage{
		{Objects: []storage.ObjectInfo{{Key: "dir/file.txt", Size: int64(len("dir/file.txt"))}}},
	}}
	auth := &fakeClient{readErr: errDenied}
	dir := t.TempDir()
	res := newTestScanner(anon, auth, Options{}).DumpBucket(context.Background(), "dumpable", dump.New(2, false, logging.Nop(), nil), dir)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Dump)
	assert.Equal(t, 1, res.Dump.Downloaded)

	data, err := os.ReadFile(filepath.Join(dir, "dumpable", "dir", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "dir/file.txt", string(data))
	assert.Contains(t, anon.Calls(), "Download")
	assert.NotContains(t, auth.Calls(), "Download")
}

func TestDumpBucketNoReadAccess(t *testing.T) {
	anon := &fakeClient{readErr: errDenied}
	res := newTestScanner(anon, nil, Options{}).DumpBucket(context.Background(), "locked", dump.New(1, false, logging.Nop(), nil), t.TempDir())
	var ade *AccessDeniedError
	require.ErrorAs(t, res.Err, &ade)
	assert.Nil(t, res.Dump)
	assert.Equal(t, "locked | bucket_exists | AuthUsers: [], AllUsers: [] | no read permissions", FormatLine(res))
}

func TestReporterJSON(t *testing.T) {
	b := existing("json-bucket")
	b.Region = "us-west-2"
	b.Perms.Grant(bucket.AllUsers, bucket.Read)
	b.AddObject(bucket.Object{Key: "k", Size: 3})
	b.ObjectsEnumerated = true

	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, true).Report(Result{Input: "json-bucket", Status: StatusExists, Bucket: b}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "json-bucket", got["name"])
	assert.Equal(t, "bucket_exists", got["status"])
	assert.Equal(t, "us-west-2", got["region"])
	assert.EqualValues(t, 1, got["objects"])
	perms := got["permissions"].(map[string]any)
	assert.Equal(t, "allowed", perms["AllUsers"].(map[string]any)["Read"])
	assert.Equal(t, "unknown", perms["AuthUsers"].(map[string]any)["Write"])
}
