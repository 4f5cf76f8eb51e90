package automation

import (
	"strings"
	"time"

	"flowboard/internal/domain"
)

// RenderMessage substitutes the first occurrence of each supported
// placeholder in a notification template. The due-date placeholder is only
// replaced when the task has a due date; unmatched placeholders stay
// verbatim.
func RenderMessage(template string, t domain.Task) string {
	msg := strings.Replace(template, "{task.title}", t.Title, 1)
	msg = strings.Replace(msg, "{task.status}", t.Status, 1)
	if t.DueDate != nil {
		msg = strings.Replace(msg, "{task.dueDate}", formatDueDate(*t.DueDate), 1)
	}
	return msg
}

// formatDueDate renders a stored RFC3339 timestamp as a calendar date.
func formatDueDate(raw string) string {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return ts.UTC().Format("2006-01-02")
}
