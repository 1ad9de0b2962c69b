package days

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	defaultPriority = 5
	minPriority     = 0
	maxPriority     = 9
)

// DateTime expresses a moment both as calendar fields and as epoch milliseconds.
type DateTime struct {
	Year      int   `json:"year"`
	Month     int   `json:"month"`
	Day       int   `json:"day"`
	TimeStamp int64 `json:"time_stamp"`
}

// DayKey returns the bucket named by the calendar fields.
func (dt DateTime) DayKey() (DayKey, error) {
	return NewDayKey(fmt.Sprintf("%04d-%02d-%02d", dt.Year, dt.Month, dt.Day))
}

// RepeatDays holds either a single interval or a list of weekdays.
type RepeatDays struct {
	values []int
	isList bool
}

// SingleRepeatDay builds an interval specification.
func SingleRepeatDay(value int) RepeatDays {
	return RepeatDays{values: []int{value}}
}

// RepeatWeekdays builds a day-of-week specification.
func RepeatWeekdays(values ...int) RepeatDays {
	return RepeatDays{values: append([]int{}, values...), isList: true}
}

// IsList reports whether the specification is a weekday list.
func (days RepeatDays) IsList() bool {
	return days.isList
}

// Values returns the configured values.
func (days RepeatDays) Values() []int {
	return append([]int(nil), days.values...)
}

// MarshalJSON emits a bare number or an array, mirroring the input shape.
func (days RepeatDays) MarshalJSON() ([]byte, error) {
	if days.isList {
		values := days.values
		if values == nil {
			values = []int{}
		}
		return json.Marshal(values)
	}
	if len(days.values) == 0 {
		return []byte("0"), nil
	}
	return json.Marshal(days.values[0])
}

// UnmarshalJSON accepts a number or an array of numbers.
func (days *RepeatDays) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var values []int
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return err
		}
		*days = RepeatWeekdays(values...)
		return nil
	}
	var value int
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return fmt.Errorf("repeat days must be a number or a list of numbers: %w", err)
	}
	*days = SingleRepeatDay(value)
	return nil
}

// Repeat describes how a task recurs and what happens when it is missed.
type Repeat struct {
	Times      int        `json:"times"`
	Days       RepeatDays `json:"days"`
	Punishment string     `json:"punishment"`
}

// Task is a task as exchanged with clients, children nested.
type Task struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	IsDone     bool      `json:"is_done"`
	Content    string    `json:"content"`
	CreateTime DateTime  `json:"create_time"`
	UpdateTime DateTime  `json:"update_time"`
	BeginTime  *DateTime `json:"begin_time"`
	DueTime    *DateTime `json:"due_time"`
	Priority   int       `json:"priority"`
	Tags       []string  `json:"tags"`
	Children   []Task    `json:"children"`
	Repeat     *Repeat   `json:"repeat,omitempty"`
	Delete     bool      `json:"delete"`
	Highlight  bool      `json:"highlight"`
}

// UnmarshalJSON fills the priority and highlight defaults for absent fields.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plainTask Task
	decoded := plainTask{Priority: defaultPriority, Highlight: true}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*t = Task(decoded)
	return nil
}

// Note is a note as exchanged with clients.
type Note struct {
	ID         int64    `json:"id"`
	Content    string   `json:"content"`
	CreateTime DateTime `json:"create_time"`
	UpdateTime DateTime `json:"update_time"`
	Tags       []string `json:"tags"`
}

// TaskRecord is the stored form of a task: children are referenced by id
// and resolved within the same day bucket on read.
type TaskRecord struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	IsDone     bool      `json:"is_done"`
	Content    string    `json:"content"`
	CreateTime DateTime  `json:"create_time"`
	UpdateTime DateTime  `json:"update_time"`
	BeginTime  *DateTime `json:"begin_time"`
	DueTime    *DateTime `json:"due_time"`
	Priority   int       `json:"priority"`
	Tags       []string  `json:"tags"`
	ChildIDs   []int64   `json:"child_ids"`
	Repeat     *Repeat   `json:"repeat,omitempty"`
	Delete     bool      `json:"delete"`
	Highlight  bool      `json:"highlight"`
}

// NoteRecord is the stored form of a note.
type NoteRecord = Note

// SyncContent is the body of a day pull and a day push.
type SyncContent struct {
	Tasks    []Task   `json:"tasks"`
	Notes    []Note   `json:"notes"`
	TaskTags []string `json:"task_tag"`
	NoteTags []string `json:"note_tag"`
	Time     int64    `json:"time"`
}
