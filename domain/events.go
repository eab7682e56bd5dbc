package domain

import "encoding/json"

// Event names pushed over the realtime channel. JoinUser is the only
// client-to-server event.
const (
	TaskCreated = "task:created"
	TaskUpdated = "task:updated"
	TaskDeleted = "task:deleted"
	JoinUser    = "join:user"
)

// AllRooms addresses every connected client regardless of room membership.
const AllRooms = "*"

// Event is the wire envelope delivered to clients and carried between
// instances by the redis bridge. Data holds the full task for created and
// updated events and the bare identifier string for deleted events.
type Event struct {
	Name string          `json:"event"`
	Room string          `json:"room,omitempty"`
	Data json.RawMessage `json:"data"`
}

// NewEvent builds an event envelope for the given room and payload.
func NewEvent(name, room string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Room: room, Data: data}, nil
}

// Task decodes the event payload as a task.
func (e Event) Task() (Task, error) {
	var t Task
	err := json.Unmarshal(e.Data, &t)
	return t, err
}

// TaskID decodes the event payload as a bare task identifier.
func (e Event) TaskID() (string, error) {
	var id string
	err := json.Unmarshal(e.Data, &id)
	return id, err
}
