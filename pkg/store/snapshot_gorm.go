package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSnapshotCache implements SnapshotCache using GORM + Postgres.
type GormSnapshotCache struct {
	db *gorm.DB
}

// NewGormSnapshotCache opens the DB and runs auto-migrations.
func NewGormSnapshotCache(dsn string) (*GormSnapshotCache, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return NewGormSnapshotCacheWithDB(db)
}

// NewGormSnapshotCacheWithDB migrates and wraps an existing handle.
func NewGormSnapshotCacheWithDB(db *gorm.DB) (*GormSnapshotCache, error) {
	if err := db.AutoMigrate(&SnapshotModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormSnapshotCache{db: db}, nil
}

// SaveSnapshot replaces the cached snapshot of collection.
func (c *GormSnapshotCache) SaveSnapshot(ctx context.Context, collection string, fetchedAt time.Time, items any) error {
	raw, err := encodeItems(items)
	if err != nil {
		return err
	}
	model := SnapshotModel{
		Collection: collection,
		Items:      datatypes.JSON(raw),
		FetchedAt:  fetchedAt.UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}},
		DoUpdates: clause.AssignmentColumns([]string{"items", "fetched_at", "updated_at"}),
	}).Create(&model).Error
}

// LoadSnapshot reads the cached snapshot of collection.
func (c *GormSnapshotCache) LoadSnapshot(ctx context.Context, collection string, out any) (time.Time, bool, error) {
	var model SnapshotModel
	if err := c.db.WithContext(ctx).First(&model, "collection = ?", collection).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	if err := decodeItems(model.Items, out); err != nil {
		return time.Time{}, false, err
	}
	return model.FetchedAt, true, nil
}

// Close releases the underlying connection pool.
func (c *GormSnapshotCache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
