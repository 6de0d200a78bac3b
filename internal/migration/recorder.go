package migration

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AppliedMigration is a row of the bookkeeping table.
type AppliedMigration struct {
	ID        uint      `gorm:"primaryKey"`
	App       string    `gorm:"size:255;not null;uniqueIndex:schema_migrations_app_name_key"`
	Name      string    `gorm:"size:255;not null;uniqueIndex:schema_migrations_app_name_key"`
	AppliedAt time.Time `gorm:"not null"`
}

func (AppliedMigration) TableName() string { return "schema_migrations" }

// Recorder tracks which migrations have been applied.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Ensure creates the bookkeeping table if it is missing.
func (r *Recorder) Ensure(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&AppliedMigration{})
}

// Applied returns the applied migrations with their application time.
func (r *Recorder) Applied(ctx context.Context) (map[Key]time.Time, error) {
	var rows []AppliedMigration
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[Key]time.Time, len(rows))
	for _, row := range rows {
		out[Key{App: row.App, Name: row.Name}] = row.AppliedAt
	}
	return out, nil
}

func (r *Recorder) record(tx *gorm.DB, k Key) error {
	return tx.Create(&AppliedMigration{App: k.App, Name: k.Name, AppliedAt: time.Now().UTC()}).Error
}

func (r *Recorder) unrecord(tx *gorm.DB, k Key) error {
	return tx.Where("app = ? AND name = ?", k.App, k.Name).Delete(&AppliedMigration{}).Error
}
