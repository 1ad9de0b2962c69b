package days

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	columnRowID        = "row_id"
	deleteChunkSize    = 500
	insertBatchSize    = 200
	orderContentStable = "kind ASC, position ASC, row_id ASC"
)

// ContentStore keeps task and note rows. Rows are partitioned by user only;
// day membership is read from each payload's create_time.
type ContentStore struct {
	ids    IDProvider
	logger *zap.Logger
}

// NewContentStore constructs a ContentStore.
func NewContentStore(ids IDProvider, logger *zap.Logger) *ContentStore {
	if ids == nil {
		ids = TimeOrderedIDs{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentStore{ids: ids, logger: logger}
}

type createTimeProbe struct {
	CreateTime *DateTime `json:"create_time"`
}

// DayOfPayload reads the bucket a stored payload belongs to. Payloads whose
// create_time cannot be read belong to EpochDay.
func DayOfPayload(payload []byte) (DayKey, bool) {
	var probe createTimeProbe
	if err := json.Unmarshal(payload, &probe); err != nil || probe.CreateTime == nil {
		return EpochDay, false
	}
	day, err := probe.CreateTime.DayKey()
	if err != nil {
		return EpochDay, false
	}
	return day, true
}

// ReadDay returns the user's records whose embedded creation date is day.
// Rows that fail to decode against the record schema are skipped.
func (store *ContentStore) ReadDay(db *gorm.DB, userID UserID, day DayKey) ([]TaskRecord, []NoteRecord, error) {
	var rows []ContentRow
	if err := db.Where(queryUserID, userID.String()).Order(orderContentStable).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	tasks := make([]TaskRecord, 0)
	notes := make([]NoteRecord, 0)
	for _, row := range rows {
		rowDay, readable := DayOfPayload(row.Payload)
		if rowDay != day {
			continue
		}
		if !readable {
			store.logger.Warn("content row without readable create_time bucketed at epoch day",
				zap.String("user_id", row.UserID),
				zap.String("row_id", row.RowID))
		}

		switch row.Kind {
		case RecordKindTask:
			var record TaskRecord
			if err := json.Unmarshal(row.Payload, &record); err != nil {
				store.skipCorrupt(row, err)
				continue
			}
			tasks = append(tasks, record)
		case RecordKindNote:
			var record NoteRecord
			if err := json.Unmarshal(row.Payload, &record); err != nil {
				store.skipCorrupt(row, err)
				continue
			}
			notes = append(notes, record)
		default:
			store.skipCorrupt(row, fmt.Errorf("unknown record kind %q", row.Kind))
		}
	}
	return tasks, notes, nil
}

// ReplaceDay deletes the user's records belonging to day and inserts the
// supplied ones in a single transaction.
func (store *ContentStore) ReplaceDay(db *gorm.DB, userID UserID, day DayKey, tasks []TaskRecord, notes []NoteRecord) error {
	rows := make([]ContentRow, 0, len(tasks)+len(notes))
	for position, record := range tasks {
		row, err := store.newRow(userID, RecordKindTask, record.ID, position, record.UpdateTime.TimeStamp, record)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	for position, record := range notes {
		row, err := store.newRow(userID, RecordKindNote, record.ID, position, record.UpdateTime.TimeStamp, record)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var existing []ContentRow
		if err := tx.Select(columnRowID, "payload").Where(queryUserID, userID.String()).Find(&existing).Error; err != nil {
			return err
		}
		stale := make([]string, 0)
		for _, row := range existing {
			if rowDay, _ := DayOfPayload(row.Payload); rowDay == day {
				stale = append(stale, row.RowID)
			}
		}
		for start := 0; start < len(stale); start += deleteChunkSize {
			end := min(start+deleteChunkSize, len(stale))
			if err := tx.Where(queryUserID+" AND "+columnRowID+" IN ?", userID.String(), stale[start:end]).
				Delete(&ContentRow{}).Error; err != nil {
				return err
			}
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, insertBatchSize).Error
	})
}

func (store *ContentStore) newRow(userID UserID, kind RecordKind, itemID int64, position int, updatedAt int64, record any) (ContentRow, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return ContentRow{}, err
	}
	rowID, err := store.ids.NewID()
	if err != nil {
		return ContentRow{}, err
	}
	return ContentRow{
		RowID:           rowID,
		UserID:          userID.String(),
		Kind:            kind,
		ItemID:          itemID,
		Position:        position,
		UpdatedAtMillis: updatedAt,
		Payload:         datatypes.JSON(payload),
	}, nil
}

func (store *ContentStore) skipCorrupt(row ContentRow, err error) {
	store.logger.Warn("skipping corrupt content row",
		zap.String("user_id", row.UserID),
		zap.String("row_id", row.RowID),
		zap.String("kind", string(row.Kind)),
		zap.Error(err))
}
