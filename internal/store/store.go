package store

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/coderoomhq/coderoom-backend/internal/room"
)

// RoomSnapshot is the durable record of a destroyed room: whatever the last
// members were looking at when the grace window elapsed.
type RoomSnapshot struct {
	Code       string `gorm:"primaryKey;size:8"`
	Name       string
	Language   string
	Text       string
	Revision   uint64
	MemberPeak int
	ClosedAt   time.Time
}

type Store struct {
	db *gorm.DB
}

// Open connects and migrates. The caller decides whether a nil store (no
// persistence) is acceptable.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RoomSnapshot{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Save upserts by room code. A code can be reused after destruction; the
// newer snapshot wins.
func (s *Store) Save(ctx context.Context, snap room.Snapshot) error {
	rec := RoomSnapshot{
		Code:       snap.Code,
		Name:       snap.Name,
		Language:   snap.Language,
		Text:       snap.Text,
		Revision:   snap.Revision,
		MemberPeak: snap.MemberPeak,
		ClosedAt:   time.Now(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
}
