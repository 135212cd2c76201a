package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/arencloud/s3audit/internal/bucket"
	"github.com/arencloud/s3audit/internal/config"
	"github.com/arencloud/s3audit/internal/logging"
	"github.com/arencloud/s3audit/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// AWSProvider names the provider row used when no custom endpoint is set.
const AWSProvider = "aws"

// Store persists audit results.
type Store struct {
	db     *gorm.DB
	logger logging.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(cfg *config.Config, logger logging.Logger) (*Store, error) {
	// Configure GORM to use our structured logger so SQL logs are not plain text
	var gormLevel gormlogger.LogLevel
	switch strings.ToLower(logging.GetLevel()) {
	case "debug":
		gormLevel = gormlogger.Info // log SQL traces at debug level
	case "error", "dpanic", "panic", "fatal":
		gormLevel = gormlogger.Error
	default:
		gormLevel = gormlogger.Warn
	}

	var dialector gorm.Dialector
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if driver == "postgres" || driver == "postgresql" {
		if cfg.DBDsn == "" {
			return nil, &os.PathError{Op: "open", Path: "DATABASE_URL/DB_DSN", Err: os.ErrInvalid}
		}
		dialector = postgres.Open(cfg.DBDsn)
		logger.Info("db connect", "driver", "postgres")
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(cfg.DBPath)
		logger.Info("db connect", "driver", "sqlite", "path", cfg.DBPath)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(logger, gormLevel)})
	if err != nil {
		return nil, err
	}
	if err := gdb.AutoMigrate(&models.Provider{}, &models.Bucket{}, &models.Object{}); err != nil {
		return nil, err
	}
	return &Store{db: gdb, logger: logger}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveBucket stores the audit of b under endpoint, a provider name or base
// URL, replacing any earlier audit of the same bucket and its object listing.
// Buckets that were not found are skipped.
func (s *Store) SaveBucket(ctx context.Context, endpoint string, b *bucket.Bucket) error {
	if b == nil || b.Exists != bucket.ExistsYes {
		return nil
	}
	name := endpoint
	if name == "" {
		name = AWSProvider
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Provider
		if err := tx.Where(models.Provider{Name: name}).
			Attrs(models.Provider{Endpoint: endpoint, Region: b.Region}).
			FirstOrCreate(&p).Error; err != nil {
			return err
		}

		row := fromBucket(b)
		row.ProviderID = p.ID
		var prev models.Bucket
		err := tx.Where("provider_id = ? AND name = ?", p.ID, b.Name).First(&prev).Error
		switch {
		case err == nil:
			row.ID, row.CreatedAt = prev.ID, prev.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		if err := tx.Save(&row).Error; err != nil {
			return err
		}

		if err := tx.Where("bucket_id = ?", row.ID).Delete(&models.Object{}).Error; err != nil {
			return err
		}
		if !b.ObjectsEnumerated || b.ObjectCount() == 0 {
			return nil
		}
		objs := make([]models.Object, 0, b.ObjectCount())
		for _, o := range b.Objects() {
			objs = append(objs, models.Object{BucketID: row.ID, Key: o.Key, Size: o.Size, LastModified: o.LastModified})
		}
		return tx.CreateInBatches(objs, 500).Error
	})
}

// FindBucket returns the stored audit of name on endpoint together with its
// objects.
func (s *Store) FindBucket(ctx context.Context, endpoint, name string) (*models.Bucket, []models.Object, error) {
	provider := endpoint
	if provider == "" {
		provider = AWSProvider
	}
	var row models.Bucket
	err := s.db.WithContext(ctx).
		Joins("JOIN providers ON providers.id = buckets.provider_id").
		Where("providers.name = ? AND buckets.name = ?", provider, name).
		First(&row).Error
	if err != nil {
		return nil, nil, err
	}
	var objs []models.Object
	if err := s.db.WithContext(ctx).Where("bucket_id = ?", row.ID).Order("id").Find(&objs).Error; err != nil {
		return nil, nil, err
	}
	return &row, objs, nil
}

func fromBucket(b *bucket.Bucket) models.Bucket {
	cell := func(p bucket.Principal, k bucket.Kind) string { return b.Perms.Get(p, k).String() }
	return models.Bucket{
		Name:              b.Name,
		Region:            b.Region,
		Exists:            b.Exists.String(),
		AuthRead:          cell(bucket.AuthenticatedUsers, bucket.Read),
		AuthWrite:         cell(bucket.AuthenticatedUsers, bucket.Write),
		AuthReadACP:       cell(bucket.AuthenticatedUsers, bucket.ReadACL),
		AuthWriteACP:      cell(bucket.AuthenticatedUsers, bucket.WriteACL),
		AuthFullControl:   cell(bucket.AuthenticatedUsers, bucket.FullControl),
		AllRead:           cell(bucket.AllUsers, bucket.Read),
		AllWrite:          cell(bucket.AllUsers, bucket.Write),
		AllReadACP:        cell(bucket.AllUsers, bucket.ReadACL),
		AllWriteACP:       cell(bucket.AllUsers, bucket.WriteACL),
		AllFullControl:    cell(bucket.AllUsers, bucket.FullControl),
		OwnerID:           b.Owner.ID,
		OwnerDisplayName:  b.Owner.DisplayName,
		ObjectsEnumerated: b.ObjectsEnumerated,
		ObjectCount:       b.ObjectCount(),
		TotalSize:         b.TotalSize,
		LeftoverObjects:   strings.Join(b.LeftoverObjects, ","),
		DateScanned:       b.DateScanned,
	}
}
