package s3

import "sync"

// RegionCache remembers which region a bucket lives in so that every client,
// anonymous or authenticated, addresses it directly after the first lookup.
type RegionCache struct {
	m sync.Map
}

func NewRegionCache() *RegionCache { return &RegionCache{} }

func (r *RegionCache) Get(bucket string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.m.Load(bucket)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (r *RegionCache) Set(bucket, region string) {
	if r == nil || region == "" {
		return
	}
	r.m.Store(bucket, region)
}
