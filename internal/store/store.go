// Package store holds the reconciled local view of sessions, messages and
// parts. The reconciler is the only writer; display logic reads snapshots.
//
// Message sequences are kept sorted ascending by message ID at all times
// (IDs are lexicographically ordered by creation), so an event for an older
// message arriving late still lands in the correct slot. Part sequences are
// append-ordered: streamed content arrives append-only and a re-sent part
// keeps its existing position.
package store

import (
	"bytes"
	"sort"
	"sync"

	"github.com/inercia/specula/internal/event"
)

// messageState is one message envelope plus its ordered parts.
type messageState struct {
	info      event.Message
	parts     []event.Part
	partIndex map[string]int // part ID -> position in parts
}

// sessionMessages is a session's message sequence, sorted ascending by ID.
type sessionMessages struct {
	order []*messageState
	index map[string]int // message ID -> position in order
}

// Store is the queryable snapshot maintained by the reconciler.
// Mutating methods must only be called from the reconciler goroutine; read
// methods are safe to call concurrently and return copies.
type Store struct {
	mu sync.RWMutex

	sessions map[string]event.Session
	bySess   map[string]*sessionMessages
	byMsg    map[string]*messageState // message ID -> state, for part routing

	permissions map[string]map[string]event.Permission // session ID -> permission ID -> request
	current     map[string]string                      // session ID -> current permission ID
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions:    make(map[string]event.Session),
		bySess:      make(map[string]*sessionMessages),
		byMsg:       make(map[string]*messageState),
		permissions: make(map[string]map[string]event.Permission),
		current:     make(map[string]string),
	}
}

// UpsertSession creates or replaces a session entity.
// Returns true if the stored state changed.
func (s *Store) UpsertSession(info event.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[info.ID]; ok && existing == info {
		return false
	}
	s.sessions[info.ID] = info
	return true
}

// DeleteSession removes a session entity if present.
// Messages of the session are deliberately kept: whether history stays
// visible after deletion is a read-side policy decision.
func (s *Store) DeleteSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// UpsertMessage creates or replaces a message envelope. An existing message
// keeps its parts, its position and its session; a new message is inserted at
// the slot that keeps the session's sequence sorted ascending by ID.
func (s *Store) UpsertMessage(info event.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ms, ok := s.byMsg[info.ID]; ok {
		// Messages never move sessions; an update naming a different
		// session keeps the one the message was created in.
		info.SessionID = ms.info.SessionID
		if ms.info == info {
			return false
		}
		ms.info = info
		return true
	}

	sm, ok := s.bySess[info.SessionID]
	if !ok {
		sm = &sessionMessages{index: make(map[string]int)}
		s.bySess[info.SessionID] = sm
	}

	ms := &messageState{info: info, partIndex: make(map[string]int)}

	// Scan backward past every neighbor with a greater ID, then insert.
	pos := len(sm.order)
	for pos > 0 && sm.order[pos-1].info.ID > info.ID {
		pos--
	}
	sm.order = append(sm.order, nil)
	copy(sm.order[pos+1:], sm.order[pos:])
	sm.order[pos] = ms
	for i := pos; i < len(sm.order); i++ {
		sm.index[sm.order[i].info.ID] = i
	}
	s.byMsg[info.ID] = ms
	return true
}

// RemoveMessage deletes a message and its parts from a session.
// Removing an absent message is a no-op.
func (s *Store) RemoveMessage(sessionID, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sm, ok := s.bySess[sessionID]
	if !ok {
		return false
	}
	pos, ok := sm.index[messageID]
	if !ok {
		return false
	}

	sm.order = append(sm.order[:pos], sm.order[pos+1:]...)
	delete(sm.index, messageID)
	for i := pos; i < len(sm.order); i++ {
		sm.index[sm.order[i].info.ID] = i
	}
	delete(s.byMsg, messageID)
	return true
}

// UpsertPart creates or replaces one part of a message. A known part is
// replaced in place; a new part is appended to the end of the message's part
// sequence. A part whose message is not present locally is dropped: that gap
// is expected when subscribing mid-stream, and the message, if it arrives
// later, starts with no parts.
func (s *Store) UpsertPart(part event.Part) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.byMsg[part.MessageID]
	if !ok {
		return false
	}

	if pos, ok := ms.partIndex[part.ID]; ok {
		if partsEqual(ms.parts[pos], part) {
			return false
		}
		ms.parts[pos] = part
		return true
	}
	ms.partIndex[part.ID] = len(ms.parts)
	ms.parts = append(ms.parts, part)
	return true
}

// RemovePart deletes a part from a message; absent message or part is a no-op.
func (s *Store) RemovePart(messageID, partID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.byMsg[messageID]
	if !ok {
		return false
	}
	pos, ok := ms.partIndex[partID]
	if !ok {
		return false
	}

	ms.parts = append(ms.parts[:pos], ms.parts[pos+1:]...)
	delete(ms.partIndex, partID)
	for i := pos; i < len(ms.parts); i++ {
		ms.partIndex[ms.parts[i].ID] = i
	}
	return true
}

// UpsertPermission creates or replaces a pending permission request and marks
// it as the session's current one.
func (s *Store) UpsertPermission(p event.Permission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.permissions[p.SessionID]
	if !ok {
		set = make(map[string]event.Permission)
		s.permissions[p.SessionID] = set
	}

	changed := true
	if existing, ok := set[p.ID]; ok && permissionsEqual(existing, p) {
		changed = false
	}
	set[p.ID] = p
	if s.current[p.SessionID] != p.ID {
		s.current[p.SessionID] = p.ID
		changed = true
	}
	return changed
}

// ResolvePermission removes a permission request, clearing the session's
// current marker when it referenced the resolved ID. Resolving an unknown
// request is a no-op.
func (s *Store) ResolvePermission(sessionID, permissionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.permissions[sessionID]
	if !ok {
		return false
	}
	if _, ok := set[permissionID]; !ok {
		return false
	}
	delete(set, permissionID)
	if s.current[sessionID] == permissionID {
		delete(s.current, sessionID)
	}
	return true
}

// Session returns the session with the given ID.
func (s *Store) Session(id string) (event.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.sessions[id]
	return info, ok
}

// Sessions returns all sessions, sorted ascending by ID.
func (s *Store) Sessions() []event.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]event.Session, 0, len(s.sessions))
	for _, info := range s.sessions {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Messages returns a session's message envelopes, ordered ascending by ID.
func (s *Store) Messages(sessionID string) []event.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sm, ok := s.bySess[sessionID]
	if !ok {
		return nil
	}
	result := make([]event.Message, len(sm.order))
	for i, ms := range sm.order {
		result[i] = ms.info
	}
	return result
}

// Parts returns a message's parts in insertion order.
func (s *Store) Parts(messageID string) []event.Part {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, ok := s.byMsg[messageID]
	if !ok {
		return nil
	}
	result := make([]event.Part, len(ms.parts))
	copy(result, ms.parts)
	return result
}

// Permissions returns a session's pending permission requests, sorted
// ascending by ID.
func (s *Store) Permissions(sessionID string) []event.Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.permissions[sessionID]
	if !ok {
		return nil
	}
	result := make([]event.Permission, 0, len(set))
	for _, p := range set {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// CurrentPermission returns the session's current (most recently requested,
// not yet replied) permission request.
func (s *Store) CurrentPermission(sessionID string) (event.Permission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.current[sessionID]
	if !ok {
		return event.Permission{}, false
	}
	p, ok := s.permissions[sessionID][id]
	return p, ok
}

// partsEqual reports whether two parts carry identical content.
func partsEqual(a, b event.Part) bool {
	return a.ID == b.ID &&
		a.MessageID == b.MessageID &&
		a.SessionID == b.SessionID &&
		a.Type == b.Type &&
		a.Text == b.Text &&
		a.Tool == b.Tool &&
		bytes.Equal(a.State, b.State)
}

// permissionsEqual reports whether two permission requests carry identical content.
func permissionsEqual(a, b event.Permission) bool {
	return a.ID == b.ID &&
		a.SessionID == b.SessionID &&
		a.MessageID == b.MessageID &&
		a.Title == b.Title &&
		a.Created == b.Created &&
		bytes.Equal(a.Metadata, b.Metadata)
}
