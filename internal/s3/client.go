package s3

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/arencloud/s3audit/internal/config"
	"github.com/arencloud/s3audit/internal/storage"
)

// Client is a storage.API bound to one caller identity.
type Client struct {
	api       *s3.Client
	creds     aws.CredentialsProvider
	regions   *RegionCache
	aws       bool
	anonymous bool
}

var _ storage.Client = (*Client)(nil)

// NewFromConfig builds a client for cfg's endpoint. With anonymous set, every
// request is sent unsigned. Otherwise static keys from cfg are used when
// present, falling back to the SDK's default chain with IMDS disabled.
func NewFromConfig(ctx context.Context, cfg *config.Config, anonymous bool, regions *RegionCache) (*Client, error) {
	endpoint, err := normalizeEndpoint(cfg.Endpoint, cfg.Insecure)
	if err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}

	httpClient := awshttp.NewBuildableClient().
		WithDialerOptions(func(d *net.Dialer) {
			if cfg.Timeout > 0 {
				d.Timeout = cfg.Timeout
			}
		}).
		WithTransportOptions(func(tr *http.Transport) {
			if cfg.Insecure {
				if tr.TLSClientConfig == nil {
					tr.TLSClientConfig = &tls.Config{}
				}
				tr.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // user asked for it
			}
		})

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(httpClient),
		awsconfig.WithRetryer(newRetryer(cfg.Retry)),
		awsconfig.WithEC2IMDSClientEnableState(imds.ClientDisabled),
	}
	switch {
	case anonymous:
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	case cfg.AccessKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	case cfg.Profile != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	pathStyle := usePathStyle(cfg)
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})
	return &Client{
		api:       api,
		creds:     awsCfg.Credentials,
		regions:   regions,
		aws:       IsAWSEndpoint(cfg.Endpoint),
		anonymous: anonymous,
	}, nil
}

// HasCredentials reports whether the client resolved usable keys.
func (c *Client) HasCredentials(ctx context.Context) bool {
	if c.anonymous || c.creds == nil {
		return false
	}
	creds, err := c.creds.Retrieve(ctx)
	return err == nil && creds.HasKeys()
}

func (c *Client) regionOpt(bucket string) func(*s3.Options) {
	return func(o *s3.Options) {
		if !c.aws {
			return
		}
		if r, ok := c.regions.Get(bucket); ok {
			o.Region = r
		}
	}
}

// HeadBucket reports existence. On AWS the bucket region is discovered from
// the response headers and cached for later calls.
func (c *Client) HeadBucket(ctx context.Context, bucket string) (string, error) {
	if c.aws {
		region, err := manager.GetBucketRegion(ctx, c.api, bucket)
		if region != "" {
			c.regions.Set(bucket, region)
		}
		return region, classify(err)
	}
	out, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return "", classify(err)
	}
	return aws.ToString(out.BucketRegion), nil
}

func (c *Client) GetBucketACL(ctx context.Context, bucket string) (*storage.ACL, error) {
	out, err := c.api.GetBucketAcl(ctx, &s3.GetBucketAclInput{Bucket: aws.String(bucket)}, c.regionOpt(bucket))
	if err != nil {
		return nil, classify(err)
	}
	acl := &storage.ACL{}
	if out.Owner != nil {
		acl.OwnerID = aws.ToString(out.Owner.ID)
		acl.OwnerDisplayName = aws.ToString(out.Owner.DisplayName)
	}
	for _, g := range out.Grants {
		if g.Grantee == nil {
			continue
		}
		acl.Grants = append(acl.Grants, storage.Grant{
			Grantee: storage.Grantee{
				Type:        storage.GranteeType(g.Grantee.Type),
				URI:         aws.ToString(g.Grantee.URI),
				ID:          aws.ToString(g.Grantee.ID),
				Email:       aws.ToString(g.Grantee.EmailAddress),
				DisplayName: aws.ToString(g.Grantee.DisplayName),
			},
			Permission: storage.Permission(g.Permission),
		})
	}
	return acl, nil
}

// PutBucketACL replaces the bucket ACL using the x-amz-grant-* headers.
func (c *Client) PutBucketACL(ctx context.Context, bucket string, grants []storage.Grant) error {
	byPerm := map[storage.Permission][]string{}
	for _, g := range grants {
		tok := granteeHeader(g.Grantee)
		if tok == "" {
			continue
		}
		byPerm[g.Permission] = append(byPerm[g.Permission], tok)
	}
	in := &s3.PutBucketAclInput{
		Bucket:           aws.String(bucket),
		GrantFullControl: joinGrants(byPerm[storage.PermFullControl]),
		GrantWriteACP:    joinGrants(byPerm[storage.PermWriteACP]),
		GrantWrite:       joinGrants(byPerm[storage.PermWrite]),
		GrantReadACP:     joinGrants(byPerm[storage.PermReadACP]),
		GrantRead:        joinGrants(byPerm[storage.PermRead]),
	}
	_, err := c.api.PutBucketAcl(ctx, in, c.regionOpt(bucket))
	return classify(err)
}

func granteeHeader(g storage.Grantee) string {
	switch {
	case g.URI != "":
		return "uri=" + g.URI
	case g.ID != "":
		return "id=" + g.ID
	case g.Email != "":
		return "emailAddress=" + g.Email
	}
	return ""
}

func joinGrants(toks []string) *string {
	if len(toks) == 0 {
		return nil
	}
	return aws.String(strings.Join(toks, ","))
}

func (c *Client) ListObjects(ctx context.Context, bucket string, maxKeys int32, continuationToken string) (*storage.ListPage, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(bucket), MaxKeys: aws.Int32(maxKeys)}
	if continuationToken != "" {
		in.ContinuationToken = aws.String(continuationToken)
	}
	out, err := c.api.ListObjectsV2(ctx, in, c.regionOpt(bucket))
	if err != nil {
		return nil, classify(err)
	}
	page := &storage.ListPage{
		IsTruncated:           aws.ToBool(out.IsTruncated),
		NextContinuationToken: aws.ToString(out.NextContinuationToken),
	}
	for _, o := range out.Contents {
		page.Objects = append(page.Objects, objectInfo(o))
	}
	return page, nil
}

func objectInfo(o types.Object) storage.ObjectInfo {
	return storage.ObjectInfo{
		Key:          aws.ToString(o.Key),
		Size:         aws.ToInt64(o.Size),
		LastModified: aws.ToTime(o.LastModified),
	}
}

func (c *Client) PutObject(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}, c.regionOpt(bucket))
	return classify(err)
}

func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, c.regionOpt(bucket))
	return classify(err)
}

// Download writes the object body to w and returns the byte count.
func (c *Client) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	d := manager.NewDownloader(c.api, func(d *manager.Downloader) {
		d.Concurrency = 1
	})
	n, err := d.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, manager.WithDownloaderClientOptions(c.regionOpt(bucket)))
	return n, classify(err)
}
