package event

import (
	"encoding/json"
	"time"
)

type Type string

// Event is one outbound frame. It is built once per dispatch and shared
// read-only between every recipient.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

func New(t Type, payload any) Event {
	return Event{Type: t, CreatedAt: time.Now().UTC(), Payload: payload}
}

// MarshalJSON writes the payload fields next to "type" and "timestamp" (epoch milliseconds).
func (e Event) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage)
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	typ, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	ts, err := json.Marshal(e.CreatedAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	fields["timestamp"] = ts
	return json.Marshal(fields)
}

// Envelope is the part of an inbound frame the routers dispatch on.
// Raw keeps the whole frame so each handler decodes its own fields.
type Envelope struct {
	Type Type            `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	env.Raw = raw
	return env, nil
}

// Bind decodes the frame into a typed request.
func (e Envelope) Bind(v any) error {
	return json.Unmarshal(e.Raw, v)
}

const ErrorType Type = "error"

type Error struct {
	Message string `json:"message"`
}

func NewError(message string) Event {
	return New(ErrorType, Error{Message: message})
}
