package s3

import (
	"errors"
	"fmt"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/arencloud/s3audit/internal/storage"
)

var deniedCodes = map[string]bool{
	"AccessDenied":                  true,
	"AllAccessDisabled":             true,
	"AccessControlListNotSupported": true,
}

var notFoundCodes = map[string]bool{
	"NoSuchBucket": true,
	"NotFound":     true,
}

// classify wraps err with storage.ErrAccessDenied or storage.ErrNotFound
// when the service response says so, and with storage.ErrRejected for any
// other client-side error answer. Server faults (5xx) and errors without a
// response pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch {
		case deniedCodes[ae.ErrorCode()]:
			return fmt.Errorf("%w: %w", storage.ErrAccessDenied, err)
		case notFoundCodes[ae.ErrorCode()]:
			return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
		}
	}
	var nf *types.NotFound
	var nsb *types.NoSuchBucket
	var bnf manager.BucketNotFound
	if errors.As(err, &nf) || errors.As(err, &nsb) || errors.As(err, &bnf) {
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		switch code := re.HTTPStatusCode(); {
		case code == http.StatusForbidden:
			return fmt.Errorf("%w: %w", storage.ErrAccessDenied, err)
		case code == http.StatusNotFound:
			return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
		case code >= http.StatusInternalServerError:
			return err
		}
		return fmt.Errorf("%w: %w", storage.ErrRejected, err)
	}
	if ae != nil && ae.ErrorFault() != smithy.FaultServer {
		return fmt.Errorf("%w: %w", storage.ErrRejected, err)
	}
	return err
}
