package bucket

import (
	"sort"
	"time"

	"github.com/arencloud/s3audit/internal/storage"
)

// Existence is the tri-state result of the existence probe.
type Existence uint8

const (
	ExistsUnknown Existence = iota
	ExistsYes
	ExistsNo
)

func (e Existence) String() string {
	switch e {
	case ExistsYes:
		return "yes"
	case ExistsNo:
		return "no"
	default:
		return "unknown"
	}
}

// Object is one enumerated object. Key is its identity within a bucket.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Owner is the bucket owner as reported in the ACL document.
type Owner struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Bucket is the mutable audit record for one bucket name. A record is owned
// by a single worker for the duration of its scan.
type Bucket struct {
	Name   string
	Region string
	Exists Existence
	Perms  Matrix
	Owner  Owner
	// ACL is the last ACL document read, nil if it was never readable.
	ACL *storage.ACL
	// LeftoverObjects are write-probe keys whose cleanup failed.
	LeftoverObjects   []string
	ObjectsEnumerated bool
	TotalSize         int64
	DateScanned       time.Time

	objects map[string]Object
}

// New returns a record for an already validated name.
func New(name string) *Bucket {
	return &Bucket{Name: name, objects: map[string]Object{}}
}

// AddObject inserts or replaces an object. Replacing a key swaps its size
// contribution so TotalSize stays the sum of the stored objects.
func (b *Bucket) AddObject(o Object) {
	if b.objects == nil {
		b.objects = map[string]Object{}
	}
	if prev, ok := b.objects[o.Key]; ok {
		b.TotalSize -= prev.Size
	}
	b.objects[o.Key] = o
	b.TotalSize += o.Size
}

func (b *Bucket) ObjectCount() int { return len(b.objects) }

// Objects returns the enumerated objects sorted by key.
func (b *Bucket) Objects() []Object {
	out := make([]Object, 0, len(b.objects))
	for _, o := range b.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ResetObjects drops enumeration state before a fresh listing.
func (b *Bucket) ResetObjects() {
	b.objects = map[string]Object{}
	b.TotalSize = 0
	b.ObjectsEnumerated = false
}
