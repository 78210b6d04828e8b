package store

import (
	"slices"
	"strconv"
	"strings"
)

// Priority is the urgency of a task.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

var priorityLevels = []Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}

// PriorityFromLevel maps 1..4 to urgent..low.
func PriorityFromLevel(level int) (Priority, bool) {
	if level < 1 || level > len(priorityLevels) {
		return "", false
	}
	return priorityLevels[level-1], true
}

// ParsePriority accepts a level ("1".."4") or a word. "medium" reads as normal.
func ParsePriority(s string) (Priority, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return PriorityFromLevel(n)
	}
	switch s {
	case "urgent", "critical":
		return PriorityUrgent, true
	case "high":
		return PriorityHigh, true
	case "normal", "medium":
		return PriorityNormal, true
	case "low":
		return PriorityLow, true
	}
	return "", false
}

// Level returns 1..4, or 0 when unset.
func (p Priority) Level() int {
	return slices.Index(priorityLevels, p) + 1
}

// TaskRecord is a structured task recovered from free text.
type TaskRecord struct {
	Title       string   `json:"task_title" jsonschema:"title=Task title,description=Short imperative summary of the task"`
	Description string   `json:"task_description,omitempty" jsonschema:"description=What needs to be done and any context from the message"`
	Priority    Priority `json:"priority,omitempty" jsonschema:"enum=urgent,enum=high,enum=normal,enum=low"`
	DueDate     *int64   `json:"due_date,omitempty" jsonschema:"description=Due date as epoch milliseconds"`
	Tags        []string `json:"tags,omitempty" jsonschema:"description=Short lowercase labels"`
}

// Usable reports whether the record has a non-empty title.
func (t *TaskRecord) Usable() bool {
	return t != nil && strings.TrimSpace(t.Title) != ""
}

// Clone returns a deep copy.
func (t *TaskRecord) Clone() *TaskRecord {
	if t == nil {
		return nil
	}
	c := *t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	c.Tags = slices.Clone(t.Tags)
	return &c
}

// DedupTags trims tags and removes empties and repeats, keeping first
// occurrence order. Repeats are detected case-insensitively.
func DedupTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		k := strings.ToLower(tag)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
