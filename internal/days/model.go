package days

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	maxIdentifierLength = 190
	dayKeyLayout        = "2006-01-02"
	// EpochDay buckets records whose creation date cannot be read.
	EpochDay DayKey = "1970-01-01"
)

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("days: invalid user id")
	// ErrInvalidDate indicates that a day key is not a YYYY-MM-DD calendar date.
	ErrInvalidDate = errors.New("days: invalid date")
	// ErrInvalidTimestamp indicates that a millisecond timestamp is not positive.
	ErrInvalidTimestamp = errors.New("days: invalid timestamp")
	// ErrInvalidRecord indicates that a pushed task or note violates the record schema.
	ErrInvalidRecord = errors.New("days: invalid record")
	// ErrStaleTimestamp indicates a push older than the stored freshness stamp.
	ErrStaleTimestamp = errors.New("days: stale timestamp")
)

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// DayKey is a calendar date in YYYY-MM-DD form naming one day bucket.
type DayKey string

// NewDayKey validates raw input and returns a DayKey.
func NewDayKey(rawInput string) (DayKey, error) {
	trimmed := strings.TrimSpace(rawInput)
	parsed, err := time.Parse(dayKeyLayout, trimmed)
	if err != nil || parsed.Format(dayKeyLayout) != trimmed {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, rawInput)
	}
	return DayKey(trimmed), nil
}

// String returns the date string.
func (key DayKey) String() string {
	return string(key)
}

// UnixMillis is a validated, positive millisecond epoch timestamp.
type UnixMillis int64

// NewUnixMillis validates the value and returns a UnixMillis.
func NewUnixMillis(value int64) (UnixMillis, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTimestamp, value)
	}
	return UnixMillis(value), nil
}

// Int64 exposes the raw milliseconds value.
func (ts UnixMillis) Int64() int64 {
	return int64(ts)
}

// RecordKind distinguishes task rows from note rows in the content table.
type RecordKind string

const (
	// RecordKindTask marks a stored task.
	RecordKindTask RecordKind = "task"
	// RecordKindNote marks a stored note.
	RecordKindNote RecordKind = "note"
)

// ContentRow stores one task or note. The day bucket is not a column: it is
// read from create_time inside the payload.
type ContentRow struct {
	RowID           string         `gorm:"column:row_id;primaryKey;size:36;not null"`
	UserID          string         `gorm:"column:user_id;size:190;not null;index:idx_content_user_kind,priority:1"`
	Kind            RecordKind     `gorm:"column:kind;size:8;not null;index:idx_content_user_kind,priority:2"`
	ItemID          int64          `gorm:"column:item_id;not null"`
	Position        int            `gorm:"column:position;not null;default:0"`
	UpdatedAtMillis int64          `gorm:"column:updated_at_ms;not null;default:0"`
	Payload         datatypes.JSON `gorm:"column:payload;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ContentRow) TableName() string {
	return "day_content"
}

// DayEntry is one Day Index row: the freshness stamp of a (user, date) bucket.
type DayEntry struct {
	UserID          string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Day             string `gorm:"column:day;primaryKey;size:10;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DayEntry) TableName() string {
	return "day_index"
}

// TagSet is the per-user registry of known task and note tags.
type TagSet struct {
	UserID   string                      `gorm:"column:user_id;primaryKey;size:190;not null"`
	TaskTags datatypes.JSONSlice[string] `gorm:"column:task_tags;not null"`
	NoteTags datatypes.JSONSlice[string] `gorm:"column:note_tags;not null"`
}

// TableName provides the explicit table binding for GORM.
func (TagSet) TableName() string {
	return "tag_registry"
}

// Entities lists every model the days package persists, for schema migration.
func Entities() []any {
	return []any{&ContentRow{}, &DayEntry{}, &TagSet{}}
}
