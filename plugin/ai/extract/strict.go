package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hrygo/autotask/store"
)

var (
	titleKeys       = []string{"task_title", "title", "name"}
	descriptionKeys = []string{"task_description", "description"}
	dueKeys         = []string{"due_date", "due_date_ms", "dueDate"}

	epochMillis = regexp.MustCompile(`^\d{13}$`)
)

// ParseStrict reads a JSON object, optionally nested under "task".
func ParseStrict(raw string) (*store.TaskRecord, bool) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "{") || !gjson.Valid(s) {
		return nil, false
	}
	obj := gjson.Parse(s)
	if inner := obj.Get("task"); inner.IsObject() {
		obj = inner
	}
	return recordFromJSON(obj)
}

func recordFromJSON(obj gjson.Result) (*store.TaskRecord, bool) {
	rec := &store.TaskRecord{
		Title:       firstString(obj, titleKeys),
		Description: firstString(obj, descriptionKeys),
	}
	if strings.TrimSpace(rec.Title) == "" {
		return nil, false
	}

	if p := obj.Get("priority"); p.Exists() {
		switch p.Type {
		case gjson.Number:
			rec.Priority, _ = store.PriorityFromLevel(int(p.Int()))
		case gjson.String:
			rec.Priority, _ = store.ParsePriority(p.String())
		}
	}

	for _, key := range dueKeys {
		if due, ok := parseDue(obj.Get(key)); ok {
			rec.DueDate = &due
			break
		}
	}

	tags := obj.Get("tags")
	switch {
	case tags.IsArray():
		for _, tag := range tags.Array() {
			rec.Tags = append(rec.Tags, tag.String())
		}
	case tags.Type == gjson.String:
		rec.Tags = splitTags(tags.String())
	}

	return rec, true
}

func firstString(obj gjson.Result, keys []string) string {
	for _, key := range keys {
		if v := obj.Get(key); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			return v.String()
		}
	}
	return ""
}

func parseDue(v gjson.Result) (int64, bool) {
	switch v.Type {
	case gjson.Number:
		if n := v.Int(); n > 0 {
			return n, true
		}
	case gjson.String:
		s := strings.TrimSpace(v.String())
		if epochMillis.MatchString(s) {
			n, err := strconv.ParseInt(s, 10, 64)
			return n, err == nil
		}
	}
	return 0, false
}

func splitTags(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `#"'[]`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
