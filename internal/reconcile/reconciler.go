// Package reconcile merges a stream of wire frames into a local store.
//
// The reconciler is strictly single-consumer: frames are ingested in arrival
// order by one goroutine, and every frame's effect is atomic. Delivery is
// at-least-once with no replay, so ingestion is idempotent and tolerates
// duplicates, out-of-order arrival and referential gaps. A malformed frame is
// rejected and logged; it never stops processing of subsequent frames.
package reconcile

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/inercia/specula/internal/event"
	"github.com/inercia/specula/internal/store"
)

// ErrMalformedFrame is wrapped by Ingest when a frame cannot be decoded or
// its payload is missing a field required by its declared kind.
var ErrMalformedFrame = errors.New("malformed frame")

// Handler processes an event kind the reconciler has no built-in handling
// for. Handlers run on the ingest goroutine and must not block.
type Handler func(ev event.Event)

// Reconciler applies wire frames to a local store.
// It must be driven by a single goroutine.
type Reconciler struct {
	store    *store.Store
	logger   *slog.Logger
	handlers map[string]Handler
	changed  chan struct{}
}

// Option configures the reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger for rejected frames and dropped updates.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// New creates a reconciler writing into the given store.
func New(st *store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    st,
		handlers: make(map[string]Handler),
		changed:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the store the reconciler maintains. Callers must treat it
// as read-only.
func (r *Reconciler) Store() *store.Store {
	return r.store
}

// Handle registers a handler for an event kind the core does not reconcile
// itself (session.idle, file.edited, todo.updated, ...). Registering for a
// core kind runs the handler after the built-in merge.
func (r *Reconciler) Handle(kind string, h Handler) {
	r.handlers[kind] = h
}

// Changed returns a coalescing notification channel: it receives at least one
// signal after any ingested frame changed the store. Consumers read the store
// when signaled instead of polling.
func (r *Reconciler) Changed() <-chan struct{} {
	return r.changed
}

// Ingest applies one raw wire frame (stream framing already stripped).
// It returns whether a visible store change occurred. Decode and payload
// errors are reported wrapped in ErrMalformedFrame; the reconciler remains
// usable for subsequent frames.
func (r *Reconciler) Ingest(frame []byte) (bool, error) {
	ev, err := event.Decode(frame)
	if err != nil {
		r.reject(err)
		return false, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return r.IngestEvent(ev)
}

// IngestEvent applies one already-decoded event envelope.
func (r *Reconciler) IngestEvent(ev event.Event) (bool, error) {
	changed, err := r.apply(ev)
	if err != nil {
		r.reject(err)
		return false, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if h, ok := r.handlers[ev.Type]; ok {
		h(ev)
	}

	if changed {
		r.notify()
	}
	return changed, nil
}

// apply dispatches the event to its merge logic.
// Unknown kinds are not an error: they are delivered to a registered handler
// by IngestEvent, or silently ignored.
func (r *Reconciler) apply(ev event.Event) (bool, error) {
	switch ev.Type {
	case event.KindServerConnected:
		// Connectivity marker from the transport; no store effect.
		return false, nil

	case event.KindSessionUpdated:
		var p event.SessionPayload
		if err := ev.DecodeProperties(&p); err != nil {
			return false, err
		}
		if p.Info.ID == "" {
			return false, fmt.Errorf("%s: missing session id", ev.Type)
		}
		return r.store.UpsertSession(p.Info), nil

	case event.KindSessionDeleted:
		var p event.SessionPayload
		if err := ev.DecodeProperties(&p); err != nil {
			return false, err
		}
		if p.Info.ID == "" {
			return false, fmt.Errorf("%s: missing session id", ev.Type)
		}
		return r.store.DeleteSession(p.Info.ID), nil

	case event.KindMessageUpdated:
		var p event.MessagePayload
		if err := ev.DecodeProperties(&p); err != nil {
			return false, err
		}
		if p.Info.ID == "" || p.Info.SessionID == "" {
			return false, fmt.Errorf("%s: missing message or session id", ev.Type)
		}
		return r.store.UpsertMessage(p.Info), nil

	case event.KindMessageRemoved:
		var p event.MessageRemovedPayload
		if err := ev.DecodeProperties(&p); err != nil {
			return false, err
		}
		if p.MessageID == "" || p.SessionID == "" {
			return false, fmt.Errorf("%s: missing message or session id", ev.Type)
		}
		return r.store.RemoveMessage(p.SessionID, p.MessageID), nil

	case event.KindPartUpdated:
		var p event.PartPayload
		if err := ev.DecodeProperties(&p); err != nil {
			return false, err
		}
		if p.Part.ID == "" || p.Part.MessageID == "" {
			return false, fmt.Errorf("%s: missing part or message id", ev.Type)
		}
		applied := r.store.UpsertPart(p.Part)
		if !applied && r.logger != nil {
			// Either an identical duplicate or an orphan part; both are
			// expected under at-least-once delivery without replay.
			r.logger.Debug("Part update not applied",
				"part_id", p.Part.ID,
				"message_id", p.Part.MessageID)
		}
		return applied, nil

	case event.KindPartRemoved:
		var p event.PartRemovedPayload
		if err := ev.DecodeProperties(&p); err != nil {
			return false, err
		}
		if p.PartID == "" || p.MessageID == "" {
			return false, fmt.Errorf("%s: missing part or message id", ev.Type)
		}
		return r.store.RemovePart(p.MessageID, p.PartID), nil

	case event.KindPermissionUpdated:
		var p event.Permission
		if err := ev.DecodeProperties(&p); err != nil {
			return false, err
		}
		if p.ID == "" || p.SessionID == "" {
			return false, fmt.Errorf("%s: missing permission or session id", ev.Type)
		}
		return r.store.UpsertPermission(p), nil

	case event.KindPermissionReplied:
		var p event.PermissionRepliedPayload
		if err := ev.DecodeProperties(&p); err != nil {
			return false, err
		}
		if p.PermissionID == "" || p.SessionID == "" {
			return false, fmt.Errorf("%s: missing permission or session id", ev.Type)
		}
		return r.store.ResolvePermission(p.SessionID, p.PermissionID), nil

	default:
		return false, nil
	}
}

// notify signals the changed channel without blocking: a pending signal
// already covers this change.
func (r *Reconciler) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

func (r *Reconciler) reject(err error) {
	if r.logger != nil {
		r.logger.Warn("Rejected frame", "error", err)
	}
}
