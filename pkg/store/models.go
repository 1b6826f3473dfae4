package store

import (
	"time"

	"gorm.io/datatypes"
)

// SnapshotModel is the GORM model for a cached collection snapshot.
type SnapshotModel struct {
	Collection string         `gorm:"primaryKey;size:160"`
	Items      datatypes.JSON `gorm:"type:jsonb;not null"`
	FetchedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time
}

func (SnapshotModel) TableName() string {
	return "snapshots"
}
