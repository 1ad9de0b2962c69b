package days

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	columnUserID      = "user_id"
	columnDay         = "day"
	columnUpdatedAtMs = "updated_at_ms"
	queryUserID       = columnUserID + " = ?"
	queryUserDay      = columnUserID + " = ? AND " + columnDay + " = ?"
)

// DayIndex maps (user, date) to the freshness stamp of the latest push. It is
// maintained by every push so freshness never requires scanning content.
type DayIndex struct{}

// Get returns the stamp for the bucket and whether the bucket was ever pushed.
func (DayIndex) Get(db *gorm.DB, userID UserID, day DayKey) (int64, bool, error) {
	var entry DayEntry
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(queryUserDay, userID.String(), day.String()).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return entry.UpdatedAtMillis, true, nil
}

// Set creates or overwrites the stamp for the bucket.
func (DayIndex) Set(db *gorm.DB, userID UserID, day DayKey, updatedAt UnixMillis) error {
	entry := DayEntry{
		UserID:          userID.String(),
		Day:             day.String(),
		UpdatedAtMillis: updatedAt.Int64(),
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: columnUserID}, {Name: columnDay}},
		DoUpdates: clause.AssignmentColumns([]string{columnUpdatedAtMs}),
	}).Create(&entry).Error
}

// ListAll returns every bucket the user has pushed, keyed by date string.
func (DayIndex) ListAll(db *gorm.DB, userID UserID) (map[string]int64, error) {
	var entries []DayEntry
	if err := db.Where(queryUserID, userID.String()).Order(columnDay + " ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	listing := make(map[string]int64, len(entries))
	for _, entry := range entries {
		listing[entry.Day] = entry.UpdatedAtMillis
	}
	return listing, nil
}
