package models

import (
	"time"
)

// Provider is a storage endpoint that buckets were scanned against. An empty
// Endpoint means AWS.
type Provider struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex" json:"name"`
	Endpoint  string    `json:"endpoint"`
	Region    string    `json:"region"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Bucket is the latest audit of one bucket on a provider.
// Unique per (ProviderID, Name); a rescan overwrites the row.
type Bucket struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ProviderID uint   `gorm:"uniqueIndex:idx_provider_bucket;not null" json:"providerId"`
	Name       string `gorm:"uniqueIndex:idx_provider_bucket;not null" json:"name"`
	Region     string `json:"region"`
	Exists     string `json:"exists"` // yes|no|unknown

	// Permission cells, each allowed|denied|unknown.
	AuthRead        string `json:"authRead"`
	AuthWrite       string `json:"authWrite"`
	AuthReadACP     string `json:"authReadAcp"`
	AuthWriteACP    string `json:"authWriteAcp"`
	AuthFullControl string `json:"authFullControl"`
	AllRead         string `json:"allRead"`
	AllWrite        string `json:"allWrite"`
	AllReadACP      string `json:"allReadAcp"`
	AllWriteACP     string `json:"allWriteAcp"`
	AllFullControl  string `json:"allFullControl"`

	OwnerID          string `json:"ownerId"`
	OwnerDisplayName string `json:"ownerDisplayName"`

	ObjectsEnumerated bool      `json:"objectsEnumerated"`
	ObjectCount       int       `json:"objectCount"`
	TotalSize         int64     `json:"totalSize"`
	LeftoverObjects   string    `json:"leftoverObjects"` // comma separated probe keys
	DateScanned       time.Time `json:"dateScanned"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Object is one enumerated object of a stored bucket.
type Object struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	BucketID     uint      `gorm:"index;not null" json:"bucketId"`
	Key          string    `gorm:"not null" json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}
