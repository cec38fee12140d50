package conduit

import (
	"bytes"
	"encoding/json"
)

// Message is the unit exchanged with clients. On the wire it is a UTF-8 JSON
// text frame of the form:
//
//	{"method": "chat", "data": {"text": "hello"}}
//
// Method is used to pick a handler, Data is left encoded so handlers can
// unmarshal it into whatever type they expect.
type Message struct {
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Unmarshal decodes the message data into the given value.
func (m *Message) Unmarshal(into any) error {
	if len(m.Data) == 0 {
		return json.Unmarshal([]byte("null"), into)
	}
	return json.Unmarshal(m.Data, into)
}

func (m *Message) clone() Message {
	c := Message{Method: m.Method}
	if m.Data != nil {
		c.Data = bytes.Clone(m.Data)
	}
	return c
}

// DecodeMessage parses a raw text frame into a Message. Frames that are not
// JSON objects, or that lack a non-empty string method, produce a
// *MalformedMessageError.
func DecodeMessage(raw []byte) (*Message, error) {
	var envelope struct {
		Method *string         `json:"method"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &MalformedMessageError{Raw: raw, Err: err}
	}
	if envelope.Method == nil || *envelope.Method == "" {
		return nil, &MalformedMessageError{Raw: raw, Err: errMissingMethod}
	}
	return &Message{
		Method: *envelope.Method,
		Data:   envelope.Data,
	}, nil
}

// EncodeMessage builds the wire frame for the given method and data. The
// returned Message holds the encoded data so it can be logged without
// keeping a reference to the caller's value.
func EncodeMessage(method string, data any) ([]byte, *Message, error) {
	encodedData, err := json.Marshal(data)
	if err != nil {
		return nil, nil, &ValidationError{Field: "data", Reason: "must be JSON serializable", Err: err}
	}
	message := &Message{
		Method: method,
		Data:   encodedData,
	}
	frame, err := json.Marshal(message)
	if err != nil {
		return nil, nil, &ValidationError{Field: "data", Reason: "must be JSON serializable", Err: err}
	}
	return frame, message, nil
}
