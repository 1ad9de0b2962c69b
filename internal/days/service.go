package days

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable dotted code naming the failed operation and reason.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "days.service.new"
	opPull       = "days.pull"
	opPush       = "days.push"
	opListDays   = "days.list_days"
	opDigest     = "days.digest"

	reasonMissingDatabase   = "missing_database"
	reasonInvalidPolicy     = "invalid_policy"
	reasonInvalidRecord     = "invalid_record"
	reasonInvalidTimestamp  = "invalid_timestamp"
	reasonStaleTimestamp    = "stale_timestamp"
	reasonTagRegistryFailed = "tag_registry_failed"
	reasonDayIndexFailed    = "day_index_failed"
	reasonContentFailed     = "content_failed"
	reasonEncodeFailed      = "encode_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the sync engine.
type ServiceConfig struct {
	Database        *gorm.DB
	Clock           func() time.Time
	IDProvider      IDProvider
	Logger          *zap.Logger
	FreshnessPolicy FreshnessPolicy
}

// Service synchronizes day buckets: Pull reads one day, Push replaces one day,
// ListDays reports every day's freshness stamp. It keeps no state between
// calls; the database transaction is the only concurrency control.
type Service struct {
	db      *gorm.DB
	clock   func() time.Time
	logger  *zap.Logger
	policy  FreshnessPolicy
	index   DayIndex
	content *ContentStore
	tags    TagRegistry
}

// NewService constructs the sync engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	policy, err := ParseFreshnessPolicy(string(cfg.FreshnessPolicy))
	if err != nil {
		return nil, newServiceError(opServiceNew, reasonInvalidPolicy, err)
	}

	return &Service{
		db:      cfg.Database,
		clock:   clock,
		logger:  logger,
		policy:  policy,
		content: NewContentStore(cfg.IDProvider, logger),
	}, nil
}

// PushRequest is one client's replacement of one day bucket.
type PushRequest struct {
	Day        DayKey
	ClientTime UnixMillis
	Tasks      []Task
	Notes      []Note
	TaskTags   []string
	NoteTags   []string
}

// Pull returns the day's tasks and notes, the user's tag lists and the day's
// freshness stamp. A day that was never pushed yields empty collections and
// the current time as its stamp.
func (s *Service) Pull(ctx context.Context, userID UserID, day DayKey) (SyncContent, error) {
	if s.db == nil {
		s.logError(opPull, reasonMissingDatabase, errMissingDatabase)
		return SyncContent{}, newServiceError(opPull, reasonMissingDatabase, errMissingDatabase)
	}

	var result SyncContent
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taskTags, noteTags, err := s.tags.Get(tx, userID)
		if err != nil {
			s.logError(opPull, reasonTagRegistryFailed, err, zap.String("user_id", userID.String()))
			return newServiceError(opPull, reasonTagRegistryFailed, err)
		}

		stamp, found, err := s.index.Get(tx, userID, day)
		if err != nil {
			s.logError(opPull, reasonDayIndexFailed, err,
				zap.String("user_id", userID.String()),
				zap.String("day", day.String()))
			return newServiceError(opPull, reasonDayIndexFailed, err)
		}
		if !found {
			stamp = s.clock().UnixMilli()
		}

		tasks, notes, err := s.content.ReadDay(tx, userID, day)
		if err != nil {
			s.logError(opPull, reasonContentFailed, err,
				zap.String("user_id", userID.String()),
				zap.String("day", day.String()))
			return newServiceError(opPull, reasonContentFailed, err)
		}

		result = SyncContent{
			Tasks:    nestTasks(tasks),
			Notes:    normalizeNotes(notes),
			TaskTags: taskTags,
			NoteTags: noteTags,
			Time:     stamp,
		}
		return nil
	})
	if txErr != nil {
		return SyncContent{}, txErr
	}
	return result, nil
}

// Push replaces the day's records, overwrites the user's tag lists and sets
// the day's stamp to the client time, all in one transaction. Other days keep
// their records; the tag lists are shared by every day.
func (s *Service) Push(ctx context.Context, userID UserID, request PushRequest) error {
	if s.db == nil {
		s.logError(opPush, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opPush, reasonMissingDatabase, errMissingDatabase)
	}

	if request.ClientTime <= 0 {
		return newServiceError(opPush, reasonInvalidTimestamp,
			fmt.Errorf("%w: %d", ErrInvalidTimestamp, request.ClientTime.Int64()))
	}
	tasks, notes, err := validatePush(request)
	if err != nil {
		return newServiceError(opPush, reasonInvalidRecord, err)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, found, err := s.index.Get(tx, userID, request.Day)
		if err != nil {
			s.logError(opPush, reasonDayIndexFailed, err,
				zap.String("user_id", userID.String()),
				zap.String("day", request.Day.String()))
			return newServiceError(opPush, reasonDayIndexFailed, err)
		}
		decision := decideFreshness(s.policy, stored, found, request.ClientTime)
		if decision.regressed {
			s.loggerOrDefault().Warn("push regresses day freshness stamp",
				zap.String("user_id", userID.String()),
				zap.String("day", request.Day.String()),
				zap.Int64("stored_time", stored),
				zap.Int64("client_time", request.ClientTime.Int64()),
				zap.Bool("accepted", decision.accepted))
		}
		if !decision.accepted {
			return newServiceError(opPush, reasonStaleTimestamp,
				fmt.Errorf("%w: %d < %d", ErrStaleTimestamp, request.ClientTime.Int64(), stored))
		}

		if err := s.content.ReplaceDay(tx, userID, request.Day, tasks, notes); err != nil {
			s.logError(opPush, reasonContentFailed, err,
				zap.String("user_id", userID.String()),
				zap.String("day", request.Day.String()))
			return newServiceError(opPush, reasonContentFailed, err)
		}
		if err := s.tags.Replace(tx, userID, request.TaskTags, request.NoteTags); err != nil {
			s.logError(opPush, reasonTagRegistryFailed, err, zap.String("user_id", userID.String()))
			return newServiceError(opPush, reasonTagRegistryFailed, err)
		}
		if err := s.index.Set(tx, userID, request.Day, request.ClientTime); err != nil {
			s.logError(opPush, reasonDayIndexFailed, err,
				zap.String("user_id", userID.String()),
				zap.String("day", request.Day.String()))
			return newServiceError(opPush, reasonDayIndexFailed, err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.loggerOrDefault().Debug("day pushed",
		zap.String("user_id", userID.String()),
		zap.String("day", request.Day.String()),
		zap.Int("tasks", len(tasks)),
		zap.Int("notes", len(notes)),
		zap.Int64("time", request.ClientTime.Int64()))
	return nil
}

// ListDays returns every pushed date of the user with its freshness stamp.
func (s *Service) ListDays(ctx context.Context, userID UserID) (map[string]int64, error) {
	if s.db == nil {
		s.logError(opListDays, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opListDays, reasonMissingDatabase, errMissingDatabase)
	}

	listing, err := s.index.ListAll(s.db.WithContext(ctx), userID)
	if err != nil {
		s.logError(opListDays, reasonDayIndexFailed, err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListDays, reasonDayIndexFailed, err)
	}
	return listing, nil
}

// validatePush flattens the pushed tasks and checks that every record belongs
// to the target day.
func validatePush(request PushRequest) ([]TaskRecord, []NoteRecord, error) {
	if _, err := NewDayKey(request.Day.String()); err != nil {
		return nil, nil, err
	}

	tasks, err := flattenTasks(request.Tasks)
	if err != nil {
		return nil, nil, err
	}
	for _, task := range tasks {
		if err := checkRecordDay("task", task.ID, task.CreateTime, request.Day); err != nil {
			return nil, nil, err
		}
		if task.Priority < minPriority || task.Priority > maxPriority {
			return nil, nil, fmt.Errorf("%w: task %d priority %d outside %d-%d", ErrInvalidRecord, task.ID, task.Priority, minPriority, maxPriority)
		}
	}

	notes := make([]NoteRecord, 0, len(request.Notes))
	seen := make(map[int64]struct{}, len(request.Notes))
	for _, note := range request.Notes {
		if _, duplicate := seen[note.ID]; duplicate {
			return nil, nil, fmt.Errorf("%w: duplicate note id %d", ErrInvalidRecord, note.ID)
		}
		seen[note.ID] = struct{}{}
		if err := checkRecordDay("note", note.ID, note.CreateTime, request.Day); err != nil {
			return nil, nil, err
		}
		note.Tags = nonNilStrings(note.Tags)
		notes = append(notes, note)
	}
	return tasks, notes, nil
}

func checkRecordDay(kind string, id int64, created DateTime, day DayKey) error {
	createdDay, err := created.DayKey()
	if err != nil {
		return fmt.Errorf("%w: %s %d has no valid create_time", ErrInvalidRecord, kind, id)
	}
	if createdDay != day {
		return fmt.Errorf("%w: %s %d was created on %s, not %s", ErrInvalidRecord, kind, id, createdDay, day)
	}
	return nil
}

func normalizeNotes(notes []NoteRecord) []Note {
	normalized := make([]Note, 0, len(notes))
	for _, note := range notes {
		note.Tags = nonNilStrings(note.Tags)
		normalized = append(normalized, note)
	}
	return normalized
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("days service error", attrs...)
}
