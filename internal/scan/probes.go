package scan

import (
	"bytes"
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/arencloud/s3audit/internal/bucket"
	"github.com/arencloud/s3audit/internal/logging"
	"github.com/arencloud/s3audit/internal/metrics"
	"github.com/arencloud/s3audit/internal/storage"
)

// Clients holds one storage client per identity. Authenticated is nil when
// no credentials are available or the endpoint does not support them.
type Clients struct {
	Anonymous     storage.Client
	Authenticated storage.Client
}

func (c Clients) get(id Identity) (storage.Client, error) {
	var cl storage.Client
	if id == Authenticated {
		cl = c.Authenticated
	} else {
		cl = c.Anonymous
	}
	if cl == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNoIdentity)
	}
	return cl, nil
}

// Prober runs the individual permission probes. Each probe mutates only the
// bucket record it is handed and takes the caller identity explicitly.
type Prober struct {
	clients  Clients
	logger   logging.Logger
	metrics  *metrics.Metrics
	maxPages int
}

func NewProber(clients Clients, logger logging.Logger, m *metrics.Metrics, maxPages int) *Prober {
	if maxPages <= 0 {
		maxPages = 5000
	}
	return &Prober{clients: clients, logger: logger, metrics: m, maxPages: maxPages}
}

// HasIdentity reports whether probes can run as id.
func (p *Prober) HasIdentity(id Identity) bool {
	_, err := p.clients.get(id)
	return err == nil
}

func requireExists(op string, b *bucket.Bucket) error {
	if b.Exists != bucket.ExistsYes {
		return &PreconditionError{Op: op, Bucket: b.Name, Reason: "bucket existence is " + b.Exists.String()}
	}
	return nil
}

// Exists runs the existence probe. Only a not-found answer means the bucket
// is absent; a denial or any other error answer from the service still
// proves it exists.
func (p *Prober) Exists(ctx context.Context, id Identity, b *bucket.Bucket) error {
	cl, err := p.clients.get(id)
	if err != nil {
		return err
	}
	region, err := cl.HeadBucket(ctx, b.Name)
	switch {
	case err == nil, storage.IsAccessDenied(err), storage.IsRejected(err):
		b.Exists = bucket.ExistsYes
		if region != "" {
			b.Region = region
		}
	case storage.IsNotFound(err):
		b.Exists = bucket.ExistsNo
	default:
		return &TransportError{Op: "exists", Bucket: b.Name, Identity: id, Err: err}
	}
	return nil
}

// ReadACL tries to fetch the bucket ACL. On success the whole matrix is
// derived from it; on denial only id's ReadACL cell is recorded. A read by
// the authenticated identity may succeed through an owner or user grant, so
// only an anonymous success says anything about a group.
func (p *Prober) ReadACL(ctx context.Context, id Identity, b *bucket.Bucket) error {
	if err := requireExists("read-acl", b); err != nil {
		return err
	}
	cl, err := p.clients.get(id)
	if err != nil {
		return err
	}
	acl, err := cl.GetBucketACL(ctx, b.Name)
	switch {
	case err == nil:
		b.ACL = acl
		b.Owner = bucket.Owner{ID: acl.OwnerID, DisplayName: acl.OwnerDisplayName}
		if id == Anonymous {
			b.Perms.Resolve(bucket.AllUsers, bucket.ReadACL, bucket.Allowed)
		}
		ApplyACL(&b.Perms, acl)
	case storage.IsAccessDenied(err):
		b.Perms.Resolve(id.Principal(), bucket.ReadACL, bucket.Denied)
	default:
		return &TransportError{Op: "read-acl", Bucket: b.Name, Identity: id, Err: err}
	}
	return nil
}

// implied reports whether an observation by the authenticated identity
// cannot be told apart from one already granted to everyone. Authenticated
// callers are also members of AllUsers.
func implied(b *bucket.Bucket, id Identity, k bucket.Kind) bool {
	return id == Authenticated && b.Perms.Get(bucket.AllUsers, k) == bucket.Allowed
}

// settled reports whether id's cell for k is already known, from the ACL or
// an earlier probe. Resolve would discard another observation anyway.
func settled(b *bucket.Bucket, id Identity, k bucket.Kind) bool {
	return b.Perms.Get(id.Principal(), k) != bucket.Unknown
}

// Read lists zero keys to test object listing.
func (p *Prober) Read(ctx context.Context, id Identity, b *bucket.Bucket) error {
	if err := requireExists("read", b); err != nil {
		return err
	}
	cl, err := p.clients.get(id)
	if err != nil {
		return err
	}
	if implied(b, id, bucket.Read) || settled(b, id, bucket.Read) {
		return nil
	}
	_, err = cl.ListObjects(ctx, b.Name, 0, "")
	switch {
	case err == nil:
		b.Perms.Resolve(id.Principal(), bucket.Read, bucket.Allowed)
	case storage.IsAccessDenied(err):
		b.Perms.Resolve(id.Principal(), bucket.Read, bucket.Denied)
	default:
		return &TransportError{Op: "read", Bucket: b.Name, Identity: id, Err: err}
	}
	return nil
}

// Write uploads and then deletes an empty object. A failed delete leaves the
// object behind; it is logged and recorded on the bucket but not returned.
func (p *Prober) Write(ctx context.Context, id Identity, b *bucket.Bucket) error {
	if err := requireExists("write", b); err != nil {
		return err
	}
	cl, err := p.clients.get(id)
	if err != nil {
		return err
	}
	if implied(b, id, bucket.Write) {
		b.Perms.Clear(id.Principal(), bucket.Write)
		return nil
	}
	if settled(b, id, bucket.Write) {
		return nil
	}

	key := fmt.Sprintf("s3audit-%s.txt", ulid.Make())
	err = cl.PutObject(ctx, b.Name, key, bytes.NewReader(nil))
	switch {
	case err == nil:
		b.Perms.Resolve(id.Principal(), bucket.Write, bucket.Allowed)
		if derr := cl.DeleteObject(ctx, b.Name, key); derr != nil {
			b.LeftoverObjects = append(b.LeftoverObjects, key)
			p.metrics.ObserveCleanupFailure()
			p.logger.Error("write probe cleanup failed", "bucket", b.Name, "key", key, "identity", id.String(), "error", derr)
		}
	case storage.IsAccessDenied(err):
		b.Perms.Resolve(id.Principal(), bucket.Write, bucket.Denied)
	default:
		return &TransportError{Op: "write", Bucket: b.Name, Identity: id, Err: err}
	}
	return nil
}

// WriteACL replaces the bucket ACL with a superset of what is already known
// plus WRITE_ACP for id. It modifies the bucket and must run after every
// other probe.
func (p *Prober) WriteACL(ctx context.Context, id Identity, b *bucket.Bucket) error {
	if err := requireExists("write-acl", b); err != nil {
		return err
	}
	cl, err := p.clients.get(id)
	if err != nil {
		return err
	}
	if implied(b, id, bucket.WriteACL) || settled(b, id, bucket.WriteACL) {
		return nil
	}
	err = cl.PutBucketACL(ctx, b.Name, ReconstructGrants(b, id))
	switch {
	case err == nil:
		b.Perms.Resolve(id.Principal(), bucket.WriteACL, bucket.Allowed)
	case storage.IsAccessDenied(err):
		b.Perms.Resolve(id.Principal(), bucket.WriteACL, bucket.Denied)
	default:
		return &TransportError{Op: "write-acl", Bucket: b.Name, Identity: id, Err: err}
	}
	return nil
}
