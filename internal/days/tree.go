package days

import "fmt"

const maxTaskDepth = 32

// flattenTasks turns nested client tasks into records that reference their
// children by id. Every nested child becomes a record of its own.
func flattenTasks(tasks []Task) ([]TaskRecord, error) {
	records := make([]TaskRecord, 0, len(tasks))
	seen := make(map[int64]struct{}, len(tasks))

	var walk func(task Task, depth int) error
	walk = func(task Task, depth int) error {
		if depth > maxTaskDepth {
			return fmt.Errorf("%w: task %d nested deeper than %d levels", ErrInvalidRecord, task.ID, maxTaskDepth)
		}
		if _, duplicate := seen[task.ID]; duplicate {
			return fmt.Errorf("%w: duplicate task id %d", ErrInvalidRecord, task.ID)
		}
		seen[task.ID] = struct{}{}

		record := taskRecordOf(task)
		records = append(records, record)
		for _, child := range task.Children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, task := range tasks {
		if err := walk(task, 1); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func taskRecordOf(task Task) TaskRecord {
	childIDs := make([]int64, 0, len(task.Children))
	for _, child := range task.Children {
		childIDs = append(childIDs, child.ID)
	}
	return TaskRecord{
		ID:         task.ID,
		Title:      task.Title,
		IsDone:     task.IsDone,
		Content:    task.Content,
		CreateTime: task.CreateTime,
		UpdateTime: task.UpdateTime,
		BeginTime:  task.BeginTime,
		DueTime:    task.DueTime,
		Priority:   task.Priority,
		Tags:       nonNilStrings(task.Tags),
		ChildIDs:   childIDs,
		Repeat:     task.Repeat,
		Delete:     task.Delete,
		Highlight:  task.Highlight,
	}
}

// nestTasks rebuilds the client tree from one bucket's records. Child ids that
// do not resolve inside the bucket are dropped and every record is emitted
// exactly once, so reference cycles cannot recurse forever.
func nestTasks(records []TaskRecord) []Task {
	byID := make(map[int64]int, len(records))
	for index, record := range records {
		if _, exists := byID[record.ID]; !exists {
			byID[record.ID] = index
		}
	}
	referenced := make(map[int64]struct{})
	for _, record := range records {
		for _, childID := range record.ChildIDs {
			if childID != record.ID {
				referenced[childID] = struct{}{}
			}
		}
	}

	emitted := make(map[int]struct{}, len(records))
	var build func(index int) Task
	build = func(index int) Task {
		emitted[index] = struct{}{}
		record := records[index]
		task := Task{
			ID:         record.ID,
			Title:      record.Title,
			IsDone:     record.IsDone,
			Content:    record.Content,
			CreateTime: record.CreateTime,
			UpdateTime: record.UpdateTime,
			BeginTime:  record.BeginTime,
			DueTime:    record.DueTime,
			Priority:   record.Priority,
			Tags:       nonNilStrings(record.Tags),
			Children:   []Task{},
			Repeat:     record.Repeat,
			Delete:     record.Delete,
			Highlight:  record.Highlight,
		}
		for _, childID := range record.ChildIDs {
			childIndex, ok := byID[childID]
			if !ok {
				continue
			}
			if _, done := emitted[childIndex]; done {
				continue
			}
			task.Children = append(task.Children, build(childIndex))
		}
		return task
	}

	roots := make([]Task, 0, len(records))
	for index, record := range records {
		if _, isChild := referenced[record.ID]; isChild {
			continue
		}
		if _, done := emitted[index]; done {
			continue
		}
		roots = append(roots, build(index))
	}
	// Records reachable only through a cycle have no root; surface them at the top level.
	for index := range records {
		if _, done := emitted[index]; !done {
			roots = append(roots, build(index))
		}
	}
	return roots
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
