package scan

import (
	"context"
	"fmt"

	"github.com/arencloud/s3audit/internal/bucket"
	"github.com/arencloud/s3audit/internal/storage"
)

const listPageSize = 1000

// Enumerate lists every object in b as id, following continuation tokens.
// It runs the existence probe first when existence is still unknown.
func (p *Prober) Enumerate(ctx context.Context, id Identity, b *bucket.Bucket) error {
	if b.Exists == bucket.ExistsUnknown {
		if err := p.Exists(ctx, id, b); err != nil {
			return err
		}
	}
	if err := requireExists("enumerate", b); err != nil {
		return err
	}
	cl, err := p.clients.get(id)
	if err != nil {
		return err
	}

	b.ResetObjects()
	token := ""
	for page := 0; ; page++ {
		if page >= p.maxPages {
			return fmt.Errorf("enumerate %s: %w (%d pages)", b.Name, ErrPageLimit, p.maxPages)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := cl.ListObjects(ctx, b.Name, listPageSize, token)
		if err != nil {
			if storage.IsAccessDenied(err) {
				return &AccessDeniedError{Op: "enumerate", Bucket: b.Name, Identity: id, Err: err}
			}
			return &TransportError{Op: "enumerate", Bucket: b.Name, Identity: id, Err: err}
		}
		for _, o := range out.Objects {
			b.AddObject(bucket.Object{Key: o.Key, Size: o.Size, LastModified: o.LastModified})
		}
		if !out.IsTruncated || out.NextContinuationToken == "" {
			break
		}
		token = out.NextContinuationToken
	}
	b.ObjectsEnumerated = true
	p.logger.Debug("enumerated", "bucket", b.Name, "identity", id.String(), "objects", b.ObjectCount(), "bytes", b.TotalSize)
	return nil
}
