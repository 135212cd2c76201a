package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/arencloud/s3audit/internal/bucket"
	"github.com/arencloud/s3audit/internal/storage"
)

var (
	errDenied   = fmt.Errorf("%w: test", storage.ErrAccessDenied)
	errNotFound = fmt.Errorf("%w: test", storage.ErrNotFound)
	errRejected = fmt.Errorf("%w: api error PermanentRedirect", storage.ErrRejected)
	errNetwork  = errors.New("connection reset by peer")
)

// fakeClient is an in-memory storage.Client. Every call is recorded by
// operation name; list pages are addressed by their index as the token.
type fakeClient struct {
	mu sync.Mutex

	region    string
	headErr   error
	headPanic bool

	acl    *storage.ACL
	aclErr error

	readErr error

	pages   []*storage.ListPage
	pageErr error

	putErr    error
	deleteErr error
	putACLErr error

	calls      []string
	putKeys    []string
	deleteKeys []string
	putGrants  [][]storage.Grant
}

func (f *fakeClient) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) HeadBucket(context.Context, string) (string, error) {
	f.record("HeadBucket")
	if f.headPanic {
		panic("head exploded")
	}
	return f.region, f.headErr
}

func (f *fakeClient) GetBucketACL(context.Context, string) (*storage.ACL, error) {
	f.record("GetBucketACL")
	if f.aclErr != nil {
		return nil, f.aclErr
	}
	return f.acl, nil
}

func (f *fakeClient) PutBucketACL(_ context.Context, _ string, grants []storage.Grant) error {
	f.record("PutBucketACL")
	f.mu.Lock()
	f.putGrants = append(f.putGrants, grants)
	f.mu.Unlock()
	return f.putACLErr
}

func (f *fakeClient) ListObjects(_ context.Context, _ string, maxKeys int32, token string) (*storage.ListPage, error) {
	if maxKeys == 0 {
		f.record("ListObjects0")
		if f.readErr != nil {
			return nil, f.readErr
		}
		return &storage.ListPage{}, nil
	}
	f.record("ListObjects")
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	idx := 0
	if token != "" {
		idx, _ = strconv.Atoi(token)
	}
	if idx >= len(f.pages) {
		return &storage.ListPage{}, nil
	}
	return f.pages[idx], nil
}

func (f *fakeClient) PutObject(_ context.Context, _ string, key string, _ io.Reader) error {
	f.record("PutObject")
	f.mu.Lock()
	f.putKeys = append(f.putKeys, key)
	f.mu.Unlock()
	return f.putErr
}

func (f *fakeClient) DeleteObject(_ context.Context, _ string, key string) error {
	f.record("DeleteObject")
	f.mu.Lock()
	f.deleteKeys = append(f.deleteKeys, key)
	f.mu.Unlock()
	return f.deleteErr
}

func (f *fakeClient) Download(_ context.Context, _ string, key string, w io.WriterAt) (int64, error) {
	f.record("Download")
	n, err := w.WriteAt([]byte(key), 0)
	return int64(n), err
}

func existing(name string) *bucket.Bucket {
	b := bucket.New(name)
	b.Exists = bucket.ExistsYes
	return b
}

func groupGrant(uri string, perm storage.Permission) storage.Grant {
	return storage.Grant{Grantee: storage.Grantee{Type: storage.GranteeGroup, URI: uri}, Permission: perm}
}
