package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hrygo/autotask/store"
)

type label int

const (
	labelNone label = iota
	labelTitle
	labelDescription
	labelPriority
	labelDue
	labelTags
)

var (
	// A label line may start with bullets, emoji, heading marks or bold
	// markers, and the colon may sit inside or outside the bold span.
	labelLine = regexp.MustCompile(`(?i)^[^\p{L}\p{N}]*?(task\s*title|suggested\s*task|task\s*description|description|priority\s*level|priority|due\s*date|tags?|task)\s*\**\s*:\s*\**\s*(.*)$`)

	priorityValue = regexp.MustCompile(`(?i)\b([1-4])\b|\b(urgent|critical|high|normal|medium|low)\b`)
	dueValue      = regexp.MustCompile(`\b(\d{13})\b`)
)

func classify(name string) label {
	name = strings.Join(strings.Fields(strings.ToLower(name)), "")
	switch name {
	case "tasktitle", "suggestedtask", "task":
		return labelTitle
	case "taskdescription", "description":
		return labelDescription
	case "prioritylevel", "priority":
		return labelPriority
	case "duedate":
		return labelDue
	case "tag", "tags":
		return labelTags
	}
	return labelNone
}

// ParseLabeled reads "Task Title:", "Description:", "Priority Level:",
// "Due Date:" and "Tags:" lines from prose. Only the title decides success.
func ParseLabeled(raw string) (*store.TaskRecord, bool) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	values := map[label]string{}
	var description []string

	current := labelNone
	for _, line := range lines {
		if m := labelLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			l := classify(m[1])
			if _, seen := values[l]; seen {
				current = labelNone
				continue
			}
			value := cleanValue(m[2])
			values[l] = value
			current = l
			if l == labelDescription && value != "" {
				description = append(description, value)
			}
			continue
		}

		trimmed := cleanValue(line)
		switch current {
		case labelDescription:
			description = append(description, strings.TrimSpace(line))
		case labelTitle, labelPriority, labelDue, labelTags:
			if values[current] == "" && trimmed != "" {
				values[current] = trimmed
				current = labelNone
			}
		}
	}

	title := strings.Trim(values[labelTitle], `"'`)
	if strings.TrimSpace(title) == "" {
		return nil, false
	}

	rec := &store.TaskRecord{
		Title:       title,
		Description: strings.TrimSpace(strings.Join(description, "\n")),
	}
	if m := priorityValue.FindStringSubmatch(values[labelPriority]); m != nil {
		if m[1] != "" {
			n, _ := strconv.Atoi(m[1])
			rec.Priority, _ = store.PriorityFromLevel(n)
		} else {
			rec.Priority, _ = store.ParsePriority(m[2])
		}
	}
	if m := dueValue.FindStringSubmatch(values[labelDue]); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			rec.DueDate = &n
		}
	}
	if tags := values[labelTags]; tags != "" {
		rec.Tags = splitTags(tags)
	}
	return rec, true
}

// cleanValue drops markdown emphasis left around a value.
func cleanValue(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_`")
	return strings.TrimSpace(s)
}
