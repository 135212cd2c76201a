package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Outcome sentinels. Adapters wrap their transport errors with these so the
// audit logic can branch with errors.Is.
var (
	ErrAccessDenied = errors.New("AccessDenied")
	ErrNotFound     = errors.New("NotFound")
	// ErrRejected marks any other error answer from the service, such as a
	// redirect or a bad request. The bucket name was understood by the
	// server even though the call failed.
	ErrRejected = errors.New("Rejected")
)

// Group URIs for the two predefined grantee classes.
const (
	AllUsersURI  = "http://acs.amazonaws.com/groups/global/AllUsers"
	AuthUsersURI = "http://acs.amazonaws.com/groups/global/AuthenticatedUsers"
)

type Permission string

const (
	PermRead        Permission = "READ"
	PermWrite       Permission = "WRITE"
	PermReadACP     Permission = "READ_ACP"
	PermWriteACP    Permission = "WRITE_ACP"
	PermFullControl Permission = "FULL_CONTROL"
)

type GranteeType string

const (
	GranteeGroup         GranteeType = "Group"
	GranteeCanonicalUser GranteeType = "CanonicalUser"
	GranteeEmail         GranteeType = "AmazonCustomerByEmail"
)

type Grantee struct {
	Type        GranteeType
	URI         string
	ID          string
	Email       string
	DisplayName string
}

type Grant struct {
	Grantee    Grantee
	Permission Permission
}

type ACL struct {
	OwnerID          string
	OwnerDisplayName string
	Grants           []Grant
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type ListPage struct {
	Objects               []ObjectInfo
	IsTruncated           bool
	NextContinuationToken string
}

// API is the subset of the object-storage protocol the auditor needs.
// Implementations are bound to a single caller identity.
type API interface {
	// HeadBucket returns the bucket's region when the service reports one.
	HeadBucket(ctx context.Context, bucket string) (string, error)
	GetBucketACL(ctx context.Context, bucket string) (*ACL, error)
	PutBucketACL(ctx context.Context, bucket string, grants []Grant) error
	ListObjects(ctx context.Context, bucket string, maxKeys int32, continuationToken string) (*ListPage, error)
	PutObject(ctx context.Context, bucket, key string, body io.Reader) error
	DeleteObject(ctx context.Context, bucket, key string) error
}

// Downloader fetches object bodies for the dumper.
type Downloader interface {
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}

// Client is what one caller identity can do: probe and download.
type Client interface {
	API
	Downloader
}

// IsAccessDenied and IsNotFound are shorthands used throughout the probes.
func IsAccessDenied(err error) bool { return errors.Is(err, ErrAccessDenied) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsRejected(err error) bool { return errors.Is(err, ErrRejected) }
