package bucket

import (
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7/pkg/s3utils"
)

// InvalidNameError is returned when an input cannot be turned into a bucket name.
type InvalidNameError struct {
	Input  string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid bucket name %q: %s", e.Input, e.Reason)
}

// ValidateName accepts a bare bucket name, a storage hostname such as
// "flaws.cloud.s3-us-west-2.amazonaws.com", or "name:region", and returns the
// canonical bucket name. hosts are further endpoint hostnames that may follow
// the name, as in "media.nyc3.digitaloceanspaces.com".
func ValidateName(raw string, hosts ...string) (string, error) {
	in := strings.TrimSpace(raw)
	name := in
	for _, h := range hosts {
		if h == "" {
			continue
		}
		if trimmed, ok := strings.CutSuffix(name, "."+strings.ToLower(h)); ok {
			name = trimmed
			break
		}
	}
	if strings.Contains(name, ".amazonaws.com") {
		if i := strings.LastIndex(name, ".s3"); i >= 0 {
			name = name[:i]
		}
	} else if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}

	if reason := checkName(name); reason != "" {
		return "", &InvalidNameError{Input: in, Reason: reason}
	}
	if err := s3utils.CheckValidBucketNameStrict(name); err != nil {
		return "", &InvalidNameError{Input: in, Reason: err.Error()}
	}
	return name, nil
}

func checkName(name string) string {
	if len(name) < 3 || len(name) > 63 {
		return "length must be between 3 and 63"
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '-') {
			return fmt.Sprintf("unexpected character %q", r)
		}
	}
	allDigits := true
	for _, label := range strings.Split(name, ".") {
		if label == "" {
			return "empty label"
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return "label starts or ends with a hyphen"
		}
		if strings.Trim(label, "0123456789") != "" {
			allDigits = false
		}
	}
	if allDigits && strings.Contains(name, ".") {
		return "looks like an IP address"
	}
	if strings.HasPrefix(name, "xn--") {
		return "reserved prefix xn--"
	}
	if strings.HasSuffix(name, "-s3alias") {
		return "reserved suffix -s3alias"
	}
	return ""
}
