package domain

import "github.com/google/uuid"

const (
	TaskCreated   = "task-created"
	TaskUpdated   = "task-updated"
	TaskCompleted = "task-completed"
	TaskReopened  = "task-reopened"
	TaskDeleted   = "task-deleted"
)

// EntityTask is the entity type carried by task events.
const EntityTask = "task"

// Event notifies subscribers of a committed change to the collection.
type Event struct {
	ID         string `json:"id"`
	EntityID   string `json:"entityId"`
	EntityType string `json:"entityType"`
	Type       string `json:"type"`
	Data       Task   `json:"data"`
	Time       int64  `json:"time"`
}

// NewTaskEvent builds an event for t stamped at ts.
func NewTaskEvent(typ string, t Task, ts int64) Event {
	return Event{
		ID:         uuid.NewString(),
		EntityID:   t.ID,
		EntityType: EntityTask,
		Type:       typ,
		Data:       t,
		Time:       ts,
	}
}
