package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/days"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	migrationBackfillDayIndex = "2024-03-01_backfill_day_index"
	backfillBatchSize         = 500
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillDayIndex, apply: backfillDayIndex},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

type dayBucket struct {
	userID string
	day    string
}

// backfillDayIndex gives every day that has content but no index entry one,
// stamped with the newest record update time of that day.
func backfillDayIndex(db *gorm.DB) error {
	newest := make(map[dayBucket]int64)
	var batch []days.ContentRow
	result := db.Model(&days.ContentRow{}).
		Select("row_id", "user_id", "updated_at_ms", "payload").
		FindInBatches(&batch, backfillBatchSize, func(_ *gorm.DB, _ int) error {
			for _, row := range batch {
				day, _ := days.DayOfPayload(row.Payload)
				bucket := dayBucket{userID: row.UserID, day: day.String()}
				if stamp, seen := newest[bucket]; !seen || row.UpdatedAtMillis > stamp {
					newest[bucket] = row.UpdatedAtMillis
				}
			}
			return nil
		})
	if result.Error != nil {
		return result.Error
	}
	if len(newest) == 0 {
		return nil
	}

	entries := make([]days.DayEntry, 0, len(newest))
	for bucket, stamp := range newest {
		entries = append(entries, days.DayEntry{UserID: bucket.userID, Day: bucket.day, UpdatedAtMillis: stamp})
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&entries, backfillBatchSize).Error
}
