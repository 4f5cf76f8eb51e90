package automation

import "flowboard/internal/domain"

// Event is a transient record of something observable happening to a task.
// Kind is one of the trigger type constants in domain.
type Event struct {
	Kind       string
	Task       domain.Task
	FromStatus string
	ToStatus   string
	AssigneeID string
}

// Detect diffs a task's before and after state and returns the lifecycle
// events the mutation produced. Pure function; a single update changing
// both status and assignee yields two events.
func Detect(previous, updated domain.Task) []Event {
	var evts []Event
	if previous.Status != updated.Status {
		evts = append(evts, Event{
			Kind:       domain.TriggerStatusChange,
			Task:       updated,
			FromStatus: previous.Status,
			ToStatus:   updated.Status,
		})
	}
	// Assignment fires only when the task gains an assignee or moves to a
	// different one. Unassignment and same-user reassignment stay silent.
	if updated.AssigneeID != nil {
		if previous.AssigneeID == nil || *previous.AssigneeID != *updated.AssigneeID {
			evts = append(evts, Event{
				Kind:       domain.TriggerAssignment,
				Task:       updated,
				AssigneeID: *updated.AssigneeID,
			})
		}
	}
	return evts
}

// Matches reports whether the automation's trigger fits the event. Absent
// trigger conditions mean "any"; a trigger never matches an event of a
// different kind.
func Matches(a domain.Automation, evt Event) bool {
	if a.Trigger.Type != evt.Kind {
		return false
	}
	switch evt.Kind {
	case domain.TriggerStatusChange:
		if a.Trigger.FromStatus != nil && *a.Trigger.FromStatus != evt.FromStatus {
			return false
		}
		if a.Trigger.ToStatus != nil && *a.Trigger.ToStatus != evt.ToStatus {
			return false
		}
		return true
	case domain.TriggerAssignment:
		return a.Trigger.UserID == nil || *a.Trigger.UserID == evt.AssigneeID
	case domain.TriggerDueDatePassed:
		return true
	default:
		return false
	}
}
