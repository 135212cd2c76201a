package scan

import (
	"errors"
	"fmt"

	"github.com/arencloud/s3audit/internal/bucket"
)

// Identity is the caller a probe runs as.
type Identity uint8

const (
	Anonymous Identity = iota
	Authenticated
)

func (id Identity) String() string {
	if id == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Principal is the grantee class whose cells this identity's observations
// describe.
func (id Identity) Principal() bucket.Principal {
	if id == Authenticated {
		return bucket.AuthenticatedUsers
	}
	return bucket.AllUsers
}

var (
	// ErrNoIdentity is returned when a probe is asked to run as an identity
	// the scanner was not given a client for.
	ErrNoIdentity = errors.New("identity not configured")
	// ErrPageLimit stops enumeration of pathologically large listings.
	ErrPageLimit = errors.New("listing page limit reached")
)

// PreconditionError means a probe was called on a bucket in the wrong state.
type PreconditionError struct {
	Op     string
	Bucket string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Bucket, e.Reason)
}

// AccessDeniedError is returned by operations where denial is a failure
// rather than an observation, such as enumeration.
type AccessDeniedError struct {
	Op       string
	Bucket   string
	Identity Identity
	Err      error
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("%s %s as %s: access denied", e.Op, e.Bucket, e.Identity)
}

func (e *AccessDeniedError) Unwrap() error { return e.Err }

// TransportError wraps a storage failure that is neither a denial nor a
// not-found answer.
type TransportError struct {
	Op       string
	Bucket   string
	Identity Identity
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s as %s: %v", e.Op, e.Bucket, e.Identity, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
