package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/arencloud/s3audit/internal/bucket"
)

// Reporter prints one line per result, either "<name> | <status> | ..." or a
// JSON object.
type Reporter struct {
	w    io.Writer
	json bool
}

func NewReporter(w io.Writer, jsonOut bool) *Reporter {
	return &Reporter{w: w, json: jsonOut}
}

func (r *Reporter) Report(res Result) error {
	if r.json {
		return json.NewEncoder(r.w).Encode(newJSONResult(res))
	}
	_, err := fmt.Fprintln(r.w, FormatLine(res))
	return err
}

// FormatLine renders the text form of a result.
func FormatLine(res Result) string {
	name := res.Input
	if res.Bucket != nil {
		name = res.Bucket.Name
	}
	parts := []string{name, string(res.Status)}
	switch res.Status {
	case StatusExists:
		b := res.Bucket
		parts = append(parts, b.Perms.Summary())
		if b.ObjectsEnumerated {
			parts = append(parts, fmt.Sprintf("%d objects (%s)", b.ObjectCount(), humanize.Bytes(uint64(b.TotalSize))))
		}
		if res.Dump != nil {
			parts = append(parts, fmt.Sprintf("dumped %d, skipped %d, failed %d", res.Dump.Downloaded, res.Dump.Skipped, len(res.Dump.Failed)))
		}
		if len(b.LeftoverObjects) > 0 {
			parts = append(parts, "leftover probe objects: "+strings.Join(b.LeftoverObjects, ","))
		}
		if res.Err != nil {
			parts = append(parts, errorText(res.Err))
		}
	case StatusError:
		if res.Err != nil {
			parts = append(parts, res.Err.Error())
		}
	}
	return strings.Join(parts, " | ")
}

func errorText(err error) string {
	var ade *AccessDeniedError
	if errors.As(err, &ade) {
		if ade.Op == "dump" {
			return "no read permissions"
		}
		return "access denied during " + ade.Op
	}
	return "error: " + err.Error()
}

type jsonResult struct {
	Input           string                       `json:"input"`
	Name            string                       `json:"name,omitempty"`
	Status          Status                       `json:"status"`
	Region          string                       `json:"region,omitempty"`
	Exists          string                       `json:"exists,omitempty"`
	Owner           *bucket.Owner                `json:"owner,omitempty"`
	Permissions     map[string]map[string]string `json:"permissions,omitempty"`
	Objects         *int                         `json:"objects,omitempty"`
	TotalSize       *int64                       `json:"totalSize,omitempty"`
	LeftoverObjects []string                     `json:"leftoverObjects,omitempty"`
	DateScanned     *time.Time                   `json:"dateScanned,omitempty"`
	Error           string                       `json:"error,omitempty"`
}

func newJSONResult(res Result) jsonResult {
	out := jsonResult{Input: res.Input, Status: res.Status}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	b := res.Bucket
	if b == nil {
		return out
	}
	out.Name = b.Name
	out.Region = b.Region
	out.Exists = b.Exists.String()
	out.DateScanned = &b.DateScanned
	if b.Exists != bucket.ExistsYes {
		return out
	}
	if b.Owner != (bucket.Owner{}) {
		owner := b.Owner
		out.Owner = &owner
	}
	out.Permissions = b.Perms.Map()
	out.LeftoverObjects = b.LeftoverObjects
	if b.ObjectsEnumerated {
		n, size := b.ObjectCount(), b.TotalSize
		out.Objects, out.TotalSize = &n, &size
	}
	return out
}
