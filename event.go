package pikav

import (
	"encoding/json"

	"github.com/timayz/pikav/topic"
)

// Event is a single published event, addressed to a topic within a user's
// namespace. Data and Metadata are JSON-compatible values; see
// SanitizeValue for the NaN/Infinity handling applied before serialization.
type Event struct {
	Topic    topic.Name `json:"-"`
	Name     string     `json:"name"`
	Data     any        `json:"data"`
	Metadata any        `json:"metadata,omitempty"`
}

// Message addresses an Event to a user; Publisher.Publish fans it out to
// every live session belonging to that user whose filters match the topic.
type Message struct {
	UserID string
	Event  Event
}

// outgoingFrame is the JSON body of an SSE "message" frame (spec §6). It is
// marshaled once per delivered frame, carrying the subset of a session's
// filters that matched.
type outgoingFrame struct {
	Topic    string   `json:"topic"`
	Name     string   `json:"name"`
	Data     any      `json:"data"`
	Metadata any      `json:"metadata,omitempty"`
	Filters  []string `json:"filters"`
}

func (e Event) frame(filters []string) ([]byte, error) {
	body, err := json.Marshal(outgoingFrame{
		Topic:    e.Topic.String(),
		Name:     e.Name,
		Data:     SanitizeValue(e.Data),
		Metadata: SanitizeValue(e.Metadata),
		Filters:  filters,
	})
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(body)+32)
	out = append(out, "event: message\ndata: "...)
	out = append(out, body...)
	out = append(out, "\n\n"...)
	return out, nil
}

// pingFrame is the keepalive frame sent as part of the normal frame stream;
// receivers ignore it. A failed non-blocking send of this frame is the
// reaper's signal that a session is stale (spec §4.2, §9).
var pingFrame = []byte("data: ping\n\n")

// bootstrapFrame builds the "$SYS/session Created" frame sent immediately
// after a session is registered.
func bootstrapFrame(sessionID string) []byte {
	body, _ := json.Marshal(outgoingFrame{
		Topic:   "$SYS/session",
		Name:    "Created",
		Data:    sessionID,
		Filters: []string{},
	})
	out := make([]byte, 0, len(body)+32)
	out = append(out, "event: message\ndata: "...)
	out = append(out, body...)
	out = append(out, "\n\n"...)
	return out
}
