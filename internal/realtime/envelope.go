package realtime

import "encoding/json"

// Frame types sent to clients
const (
	FrameAck   = "ack"
	FrameEvent = "event"
)

// Request is an inbound action frame: {"id": "...", "action": "...", "data": {...}}
type Request struct {
	ID     string          `json:"id,omitempty"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Frame is an outbound frame. Acks echo the request id and action;
// events carry the event name.
type Frame struct {
	Type   string      `json:"type"`
	ID     string      `json:"id,omitempty"`
	Action string      `json:"action,omitempty"`
	Event  string      `json:"event,omitempty"`
	Data   interface{} `json:"data"`
}

func ackFrame(req Request, ack interface{}) ([]byte, error) {
	return json.Marshal(Frame{Type: FrameAck, ID: req.ID, Action: req.Action, Data: ack})
}

func eventFrame(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(Frame{Type: FrameEvent, Event: event, Data: payload})
}

// malformed is the ack returned for frames that are not valid requests
type malformed struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
