package relay

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/randalmurphal/claude-relay/claudecontract"
)

// EventType discriminates the events sent to a Sink.
type EventType string

// Event types as they appear in the "type" field on the wire.
const (
	EventSessionCreated EventType = "session-created"
	EventResponse       EventType = "claude-response"
	EventComplete       EventType = "claude-complete"
	EventError          EventType = "claude-error"
)

// Event is one message to a Sink. The set of implementations is closed.
type Event interface {
	json.Marshaler
	Type() EventType
	isEvent()
}

// SessionCreated announces the real session ID of a new session. It is sent
// at most once per run and only when the caller did not supply an ID.
type SessionCreated struct {
	SessionID string `json:"sessionId" jsonschema:"required"`
}

// Response forwards one line of CLI output.
type Response struct {
	Data Payload `json:"data" jsonschema:"required"`
}

// Complete reports a run that exited successfully.
type Complete struct {
	SessionID    string `json:"sessionId"`
	ExitCode     int    `json:"exitCode"`
	IsNewSession bool   `json:"isNewSession"`
}

// ErrorEvent reports a run that failed. Error is human readable.
type ErrorEvent struct {
	Error string `json:"error" jsonschema:"required"`
}

func (SessionCreated) Type() EventType { return EventSessionCreated }
func (Response) Type() EventType { return EventResponse }
func (Complete) Type() EventType { return EventComplete }
func (ErrorEvent) Type() EventType { return EventError }

func (SessionCreated) isEvent() {}
func (Response) isEvent() {}
func (Complete) isEvent() {}
func (ErrorEvent) isEvent() {}

// MarshalJSON implements json.Marshaler.
func (e SessionCreated) MarshalJSON() ([]byte, error) {
	type body SessionCreated
	return json.Marshal(struct {
		Type EventType `json:"type"`
		body
	}{e.Type(), body(e)})
}

// MarshalJSON implements json.Marshaler.
func (e Response) MarshalJSON() ([]byte, error) {
	type body Response
	return json.Marshal(struct {
		Type EventType `json:"type"`
		body
	}{e.Type(), body(e)})
}

// MarshalJSON implements json.Marshaler.
func (e Complete) MarshalJSON() ([]byte, error) {
	type body Complete
	return json.Marshal(struct {
		Type EventType `json:"type"`
		body
	}{e.Type(), body(e)})
}

// MarshalJSON implements json.Marshaler.
func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type body ErrorEvent
	return json.Marshal(struct {
		Type EventType `json:"type"`
		body
	}{e.Type(), body(e)})
}

// errNotObject is returned by ParseRecord for valid JSON that is not an object.
var errNotObject = errors.New("stream line is not a JSON object")

// Record is one structured line of CLI output. Only the fields the relay acts
// on are decoded; Raw keeps the line verbatim for forwarding.
type Record struct {
	Type         string
	Subtype      string
	SessionID    string
	TotalCostUSD *float64
	Raw          json.RawMessage
}

// IsResult reports whether this is the final result line of a run.
func (r *Record) IsResult() bool {
	return r.Type == claudecontract.EventTypeResult
}

// ParseRecord decodes a stream line. Lines that are not a JSON object return
// an error. Fields of an unexpected JSON type are left empty rather than
// failing the line.
func ParseRecord(line []byte) (*Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNotObject
	}

	rec := &Record{Raw: bytes.Clone(line)}
	rec.Type = stringField(fields, claudecontract.FieldType)
	rec.Subtype = stringField(fields, claudecontract.FieldSubtype)
	rec.SessionID = stringField(fields, claudecontract.FieldSessionID)
	if raw, ok := fields[claudecontract.FieldTotalCostUSD]; ok {
		var cost float64
		if err := json.Unmarshal(raw, &cost); err == nil {
			rec.TotalCostUSD = &cost
		}
	}
	return rec, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// textPayloadType is the type given to lines forwarded as plain text.
const textPayloadType = "text"

// Payload is the body of a Response: either a parsed Record, forwarded
// verbatim, or a line that did not parse, wrapped as {"type":"text",...}.
type Payload struct {
	Record *Record
	Text   string
}

// RecordPayload wraps a parsed line.
func RecordPayload(rec *Record) Payload {
	return Payload{Record: rec}
}

// TextPayload wraps an unparsed line.
func TextPayload(line string) Payload {
	return Payload{Text: line}
}

// IsText reports whether the payload is an unparsed line.
func (p Payload) IsText() bool {
	return p.Record == nil
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Record != nil {
		return p.Record.Raw, nil
	}
	return json.Marshal(struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}{textPayloadType, p.Text})
}
