package days

import (
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagRegistry holds each user's task and note tag lists. A push overwrites
// both lists whole, whichever day it targets.
type TagRegistry struct{}

// Get returns the user's tag lists, creating an empty registry on first access.
func (TagRegistry) Get(db *gorm.DB, userID UserID) ([]string, []string, error) {
	registry := TagSet{}
	err := db.Where(queryUserID, userID.String()).
		Attrs(TagSet{
			UserID:   userID.String(),
			TaskTags: datatypes.JSONSlice[string]{},
			NoteTags: datatypes.JSONSlice[string]{},
		}).
		FirstOrCreate(&registry).Error
	if err != nil {
		return nil, nil, err
	}
	return nonNilStrings(registry.TaskTags), nonNilStrings(registry.NoteTags), nil
}

// Replace overwrites both tag lists for the user.
func (TagRegistry) Replace(db *gorm.DB, userID UserID, taskTags, noteTags []string) error {
	registry := TagSet{
		UserID:   userID.String(),
		TaskTags: datatypes.JSONSlice[string](normalizeTags(taskTags)),
		NoteTags: datatypes.JSONSlice[string](normalizeTags(noteTags)),
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: columnUserID}},
		DoUpdates: clause.AssignmentColumns([]string{"task_tags", "note_tags"}),
	}).Create(&registry).Error
}

// normalizeTags trims names and drops blanks and repeats, keeping first-seen order.
func normalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		name := strings.TrimSpace(tag)
		if name == "" {
			continue
		}
		if _, duplicate := seen[name]; duplicate {
			continue
		}
		seen[name] = struct{}{}
		normalized = append(normalized, name)
	}
	return normalized
}
