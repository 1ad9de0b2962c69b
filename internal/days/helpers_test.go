package days

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testClockMillis int64 = 1709280000000

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:days_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(Entities()...), "migrate")
	return db
}

func newTestService(t *testing.T, policy FreshnessPolicy, logger *zap.Logger) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database:        db,
		Clock:           func() time.Time { return time.UnixMilli(testClockMillis) },
		Logger:          logger,
		FreshnessPolicy: policy,
	})
	require.NoError(t, err)
	return service, db
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	require.NoError(t, err)
	return id
}

func mustDay(t *testing.T, value string) DayKey {
	t.Helper()
	day, err := NewDayKey(value)
	require.NoError(t, err)
	return day
}

func mustMillis(t *testing.T, value int64) UnixMillis {
	t.Helper()
	ts, err := NewUnixMillis(value)
	require.NoError(t, err)
	return ts
}

func dateTimeOn(t *testing.T, day string) DateTime {
	t.Helper()
	parsed, err := time.Parse(dayKeyLayout, day)
	require.NoError(t, err)
	return DateTime{
		Year:      parsed.Year(),
		Month:     int(parsed.Month()),
		Day:       parsed.Day(),
		TimeStamp: parsed.UnixMilli(),
	}
}

func taskOn(t *testing.T, day string, id int64, title string, children ...Task) Task {
	t.Helper()
	created := dateTimeOn(t, day)
	return Task{
		ID:         id,
		Title:      title,
		CreateTime: created,
		UpdateTime: created,
		Priority:   defaultPriority,
		Tags:       []string{},
		Children:   children,
		Highlight:  true,
	}
}

func noteOn(t *testing.T, day string, id int64, content string) Note {
	t.Helper()
	created := dateTimeOn(t, day)
	return Note{
		ID:         id,
		Content:    content,
		CreateTime: created,
		UpdateTime: created,
		Tags:       []string{},
	}
}

func taskTitles(tasks []Task) []string {
	titles := make([]string, 0, len(tasks))
	for _, task := range tasks {
		titles = append(titles, task.Title)
	}
	return titles
}
