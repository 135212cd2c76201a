package s3

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7/pkg/s3utils"

	"github.com/arencloud/s3audit/internal/config"
)

// ErrInvalidEndpoint is returned when a custom endpoint does not answer like
// an S3 service.
var ErrInvalidEndpoint = errors.New("endpoint does not appear to be S3-compatible")

// normalizeEndpoint turns "host:port" or a full URL into a base URL the SDK
// accepts. Without a scheme, https is assumed unless insecure is set.
func normalizeEndpoint(endpoint string, insecure bool) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https://"
		if insecure {
			scheme = "http://"
		}
		endpoint = scheme + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

// IsAWSEndpoint reports whether endpoint targets Amazon S3. The empty
// endpoint means the SDK default, which is AWS.
func IsAWSEndpoint(endpoint string) bool {
	if endpoint == "" {
		return true
	}
	norm, err := normalizeEndpoint(endpoint, false)
	if err != nil {
		return false
	}
	u, err := url.Parse(norm)
	if err != nil {
		return false
	}
	return s3utils.IsAmazonEndpoint(*u)
}

// usePathStyle resolves the configured address style. Custom endpoints
// default to path style; AWS defaults to virtual-hosted.
func usePathStyle(cfg *config.Config) bool {
	switch strings.ToLower(strings.TrimSpace(cfg.AddressStyle)) {
	case "path":
		return true
	case "vhost":
		return false
	}
	return !IsAWSEndpoint(cfg.Endpoint)
}

type errorDocument struct {
	XMLName    xml.Name `xml:"Error"`
	Code       string   `xml:"Code"`
	BucketName string   `xml:"BucketName"`
}

// ValidateEndpoint checks that a custom endpoint speaks S3 by listing zero
// keys of a bucket that should not exist, without credentials. Only a
// NoSuchBucket or AccessDenied error naming the bucket is accepted; a
// successful listing is rejected.
func ValidateEndpoint(ctx context.Context, cfg *config.Config, now time.Time) error {
	base, err := normalizeEndpoint(cfg.Endpoint, cfg.Insecure)
	if err != nil {
		return err
	}
	probe := "s3audit-" + now.UTC().Format("2006-01-02")
	target, err := probeURL(base, probe, usePathStyle(cfg))
	if err != nil {
		return err
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // user asked for it
	}
	hc := &http.Client{Transport: tr, Timeout: 3 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidEndpoint, cfg.Endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidEndpoint, cfg.Endpoint, err)
	}
	if resp.StatusCode < 300 {
		return fmt.Errorf("%w: %s: listing a nonexistent bucket succeeded", ErrInvalidEndpoint, cfg.Endpoint)
	}
	var doc errorDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: %s: unparseable error body", ErrInvalidEndpoint, cfg.Endpoint)
	}
	if (doc.Code == "NoSuchBucket" || doc.Code == "AccessDenied") && doc.BucketName == probe {
		return nil
	}
	if doc.BucketName != "" && doc.BucketName != probe {
		return fmt.Errorf("%w: %s: error names bucket %q, not %q", ErrInvalidEndpoint, cfg.Endpoint, doc.BucketName, probe)
	}
	return fmt.Errorf("%w: %s: unexpected error code %q", ErrInvalidEndpoint, cfg.Endpoint, doc.Code)
}

func probeURL(base, bucket string, pathStyle bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if pathStyle {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + bucket
	} else {
		u.Host = bucket + "." + u.Host
		u.Path = "/"
	}
	u.RawQuery = "list-type=2&max-keys=0"
	return u.String(), nil
}
