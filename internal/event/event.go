// Package event defines the typed change events that flow from producers,
// through the bus, to every connected consumer.
//
// # Wire Protocol Overview
//
// Every event is JSON-encoded with the following envelope:
//
//	{
//	    "type": "message.updated",
//	    "properties": { ... }  // kind-specific payload
//	}
//
// The envelope is the unit of transport: the bus fans it out verbatim, the
// stream transports frame it, and the reconciler decodes the payload based on
// the type tag. Unknown types must be carried and delivered unchanged so that
// older consumers keep working when new kinds are introduced.
package event

import (
	"encoding/json"
	"fmt"
)

// Event is the envelope for a single state change.
// Properties holds the kind-specific payload, still JSON-encoded so the
// envelope can be forwarded without understanding every kind.
type Event struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// Event kinds understood by the reconciler. Producers may emit additional
// kinds; consumers ignore what they do not recognize.
const (
	// KindServerConnected is the synthetic first frame on every stream.
	// It is emitted by the transport, never published on the bus.
	// Properties: {}
	KindServerConnected = "server.connected"

	// KindSessionUpdated creates or updates a session.
	// Properties: { "info": Session }
	KindSessionUpdated = "session.updated"

	// KindSessionDeleted removes a session.
	// Properties: { "info": Session }
	KindSessionDeleted = "session.deleted"

	// KindSessionCompacted signals that a session's history was compacted.
	// Properties: { "sessionID": string }
	KindSessionCompacted = "session.compacted"

	// KindSessionIdle signals that a session finished its current work.
	// Properties: { "sessionID": string }
	KindSessionIdle = "session.idle"

	// KindSessionError reports an error scoped to a session (or global when
	// sessionID is empty).
	// Properties: { "sessionID": string (optional), "error": string }
	KindSessionError = "session.error"

	// KindMessageUpdated creates or updates a message envelope.
	// Properties: { "info": Message }
	KindMessageUpdated = "message.updated"

	// KindMessageRemoved removes a message from a session.
	// Properties: { "messageID": string, "sessionID": string }
	KindMessageRemoved = "message.removed"

	// KindPartUpdated creates or updates one part of a message.
	// Properties: { "part": Part }
	KindPartUpdated = "message.part.updated"

	// KindPartRemoved removes one part of a message.
	// Properties: { "messageID": string, "partID": string, "sessionID": string }
	KindPartRemoved = "message.part.removed"

	// KindPermissionUpdated creates or updates a pending permission request.
	// Properties: Permission
	KindPermissionUpdated = "permission.updated"

	// KindPermissionReplied resolves a pending permission request.
	// Properties: { "permissionID": string, "sessionID": string, "response": string }
	KindPermissionReplied = "permission.replied"

	// KindInstallationUpdated is auxiliary; carries no ordering obligation.
	// Properties: { "version": string }
	KindInstallationUpdated = "installation.updated"

	// KindFileEdited is auxiliary; carries no ordering obligation.
	// Properties: { "file": string }
	KindFileEdited = "file.edited"

	// KindTodoUpdated is auxiliary; carries no ordering obligation.
	// Properties: { "sessionID": string, "todos": []Todo }
	KindTodoUpdated = "todo.updated"
)

// Session is the mutable session entity carried by session.* events.
type Session struct {
	ID        string      `json:"id"`
	Title     string      `json:"title,omitempty"`
	Directory string      `json:"directory,omitempty"`
	Version   string      `json:"version,omitempty"`
	ParentID  string      `json:"parentID,omitempty"`
	Time      SessionTime `json:"time"`
}

// SessionTime holds session timestamps in Unix milliseconds. Timestamps are
// informational only; ordering decisions are always made on IDs.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// Message is the mutable message envelope carried by message.updated.
// Parts are not embedded; they travel in their own events.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Role      string `json:"role"`
	Model     string `json:"model,omitempty"`
	Created   int64  `json:"created,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// Part is one piece of a message: a text chunk, a tool invocation, a
// reasoning step. The Type tag determines which optional fields are set.
type Part struct {
	ID        string          `json:"id"`
	MessageID string          `json:"messageID"`
	SessionID string          `json:"sessionID"`
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	State     json.RawMessage `json:"state,omitempty"`
}

// Part types.
const (
	PartTypeText      = "text"
	PartTypeReasoning = "reasoning"
	PartTypeTool      = "tool"
	PartTypeFile      = "file"
)

// Permission is a pending permission request carried by permission.updated.
type Permission struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionID"`
	MessageID string          `json:"messageID,omitempty"`
	Title     string          `json:"title,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Created   int64           `json:"created,omitempty"`
}

// Todo is one entry of a session's todo list (auxiliary payload).
type Todo struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

// SessionPayload is the properties shape of session.updated / session.deleted.
type SessionPayload struct {
	Info Session `json:"info"`
}

// SessionIDPayload is the properties shape of session.compacted / session.idle.
type SessionIDPayload struct {
	SessionID string `json:"sessionID"`
}

// SessionErrorPayload is the properties shape of session.error.
type SessionErrorPayload struct {
	SessionID string `json:"sessionID,omitempty"`
	Error     string `json:"error"`
}

// MessagePayload is the properties shape of message.updated.
type MessagePayload struct {
	Info Message `json:"info"`
}

// MessageRemovedPayload is the properties shape of message.removed.
type MessageRemovedPayload struct {
	MessageID string `json:"messageID"`
	SessionID string `json:"sessionID"`
}

// PartPayload is the properties shape of message.part.updated.
type PartPayload struct {
	Part Part `json:"part"`
}

// PartRemovedPayload is the properties shape of message.part.removed.
type PartRemovedPayload struct {
	MessageID string `json:"messageID"`
	PartID    string `json:"partID"`
	SessionID string `json:"sessionID"`
}

// PermissionRepliedPayload is the properties shape of permission.replied.
type PermissionRepliedPayload struct {
	PermissionID string `json:"permissionID"`
	SessionID    string `json:"sessionID"`
	Response     string `json:"response"`
}

// New builds an event from a kind and its payload.
// The payload must be JSON-marshalable; a marshal failure is a programming
// error at the call site and is returned rather than swallowed.
func New(kind string, payload any) (Event, error) {
	props, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s properties: %w", kind, err)
	}
	return Event{Type: kind, Properties: props}, nil
}

// ServerConnected returns the synthetic frame a transport emits on attach.
func ServerConnected() Event {
	return Event{Type: KindServerConnected, Properties: json.RawMessage(`{}`)}
}

// SessionUpdated builds a session.updated event.
func SessionUpdated(info Session) (Event, error) {
	return New(KindSessionUpdated, SessionPayload{Info: info})
}

// SessionDeleted builds a session.deleted event.
func SessionDeleted(info Session) (Event, error) {
	return New(KindSessionDeleted, SessionPayload{Info: info})
}

// SessionIdle builds a session.idle event.
func SessionIdle(sessionID string) (Event, error) {
	return New(KindSessionIdle, SessionIDPayload{SessionID: sessionID})
}

// SessionError builds a session.error event.
func SessionError(sessionID, message string) (Event, error) {
	return New(KindSessionError, SessionErrorPayload{SessionID: sessionID, Error: message})
}

// MessageUpdated builds a message.updated event.
func MessageUpdated(info Message) (Event, error) {
	return New(KindMessageUpdated, MessagePayload{Info: info})
}

// MessageRemoved builds a message.removed event.
func MessageRemoved(sessionID, messageID string) (Event, error) {
	return New(KindMessageRemoved, MessageRemovedPayload{MessageID: messageID, SessionID: sessionID})
}

// PartUpdated builds a message.part.updated event.
func PartUpdated(part Part) (Event, error) {
	return New(KindPartUpdated, PartPayload{Part: part})
}

// PartRemoved builds a message.part.removed event.
func PartRemoved(sessionID, messageID, partID string) (Event, error) {
	return New(KindPartRemoved, PartRemovedPayload{MessageID: messageID, PartID: partID, SessionID: sessionID})
}

// PermissionUpdated builds a permission.updated event.
func PermissionUpdated(p Permission) (Event, error) {
	return New(KindPermissionUpdated, p)
}

// PermissionReplied builds a permission.replied event.
func PermissionReplied(sessionID, permissionID, response string) (Event, error) {
	return New(KindPermissionReplied, PermissionRepliedPayload{
		PermissionID: permissionID,
		SessionID:    sessionID,
		Response:     response,
	})
}

// Encode serializes the event envelope to a single JSON document.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return data, nil
}

// Decode parses a raw JSON envelope.
// An envelope without a type tag is malformed; properties may be empty.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type tag")
	}
	return ev, nil
}

// DecodeProperties unmarshals the payload into the given destination.
func (e Event) DecodeProperties(dst any) error {
	if len(e.Properties) == 0 {
		return fmt.Errorf("%s: empty properties", e.Type)
	}
	if err := json.Unmarshal(e.Properties, dst); err != nil {
		return fmt.Errorf("%s: decode properties: %w", e.Type, err)
	}
	return nil
}
