package s3

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/arencloud/s3audit/internal/config"
	"github.com/arencloud/s3audit/internal/storage"
)

// regionFanOut bounds the concurrent existence checks of one bucket.
const regionFanOut = 8

// RegionalClient spreads a provider across its regional endpoints. The
// existence check asks every region and remembers the one that answered for
// the bucket; later calls for that bucket go there.
type RegionalClient struct {
	provider Provider
	clients  map[string]storage.Client
	regions  *RegionCache
}

var _ storage.Client = (*RegionalClient)(nil)

// NewRegionalClient builds one anonymous client per provider region.
func NewRegionalClient(ctx context.Context, cfg *config.Config, p Provider, regions *RegionCache) (*RegionalClient, error) {
	clients := make(map[string]storage.Client, len(p.Regions))
	for _, r := range p.Regions {
		rcfg := *cfg
		rcfg.Endpoint = p.Endpoint(r)
		rcfg.AddressStyle = p.AddressStyle
		rcfg.Region = r
		cl, err := NewFromConfig(ctx, &rcfg, true, nil)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", p.Name, r, err)
		}
		clients[r] = cl
	}
	return newRegionalClient(p, clients, regions), nil
}

func newRegionalClient(p Provider, clients map[string]storage.Client, regions *RegionCache) *RegionalClient {
	if regions == nil {
		regions = NewRegionCache()
	}
	return &RegionalClient{provider: p, clients: clients, regions: regions}
}

// client returns the region client for bucket, defaulting to the first
// region until the bucket was located.
func (c *RegionalClient) client(bucket string) storage.Client {
	if r, ok := c.regions.Get(bucket); ok {
		if cl, ok := c.clients[r]; ok {
			return cl
		}
	}
	return c.clients[c.provider.Regions[0]]
}

func (c *RegionalClient) existsIn(ctx context.Context, cl storage.Client, bucket string) error {
	if c.provider.ListForExistence {
		_, err := cl.ListObjects(ctx, bucket, 1, "")
		return err
	}
	_, err := cl.HeadBucket(ctx, bucket)
	return err
}

// HeadBucket asks every region and returns the region where the bucket
// answered. A clean or denied answer wins over a rejected one; transport
// failures are reported only when no region located the bucket.
func (c *RegionalClient) HeadBucket(ctx context.Context, bucket string) (string, error) {
	if r, ok := c.regions.Get(bucket); ok {
		if cl, ok := c.clients[r]; ok {
			return r, c.existsIn(ctx, cl, bucket)
		}
	}

	order := c.provider.Regions
	errs := make([]error, len(order))
	g := new(errgroup.Group)
	g.SetLimit(regionFanOut)
	for i, r := range order {
		g.Go(func() error {
			errs[i] = c.existsIn(ctx, c.clients[r], bucket)
			return nil
		})
	}
	_ = g.Wait()

	for _, found := range []func(error) bool{
		func(err error) bool { return err == nil || storage.IsAccessDenied(err) },
		storage.IsRejected,
	} {
		for i, r := range order {
			if found(errs[i]) {
				c.regions.Set(bucket, r)
				return r, errs[i]
			}
		}
	}
	var notFound error
	for i, r := range order {
		if storage.IsNotFound(errs[i]) {
			if notFound == nil {
				notFound = errs[i]
			}
			continue
		}
		return "", fmt.Errorf("region %s: %w", r, errs[i])
	}
	return "", notFound
}

func (c *RegionalClient) GetBucketACL(ctx context.Context, bucket string) (*storage.ACL, error) {
	return c.client(bucket).GetBucketACL(ctx, bucket)
}

func (c *RegionalClient) PutBucketACL(ctx context.Context, bucket string, grants []storage.Grant) error {
	return c.client(bucket).PutBucketACL(ctx, bucket, grants)
}

func (c *RegionalClient) ListObjects(ctx context.Context, bucket string, maxKeys int32, token string) (*storage.ListPage, error) {
	return c.client(bucket).ListObjects(ctx, bucket, maxKeys, token)
}

func (c *RegionalClient) PutObject(ctx context.Context, bucket, key string, body io.Reader) error {
	return c.client(bucket).PutObject(ctx, bucket, key, body)
}

func (c *RegionalClient) DeleteObject(ctx context.Context, bucket, key string) error {
	return c.client(bucket).DeleteObject(ctx, bucket, key)
}

func (c *RegionalClient) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	return c.client(bucket).Download(ctx, bucket, key, w)
}
