package store

import (
	"testing"

	"github.com/inercia/specula/internal/event"
)

func msg(id, sessionID string) event.Message {
	return event.Message{ID: id, SessionID: sessionID, Role: "assistant"}
}

func part(id, messageID string) event.Part {
	return event.Part{ID: id, MessageID: messageID, SessionID: "s1", Type: event.PartTypeText}
}

func messageIDs(t *testing.T, s *Store, sessionID string) []string {
	t.Helper()
	msgs := s.Messages(sessionID)
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

// permutations returns every ordering of the input.
func permutations(in []string) [][]string {
	if len(in) <= 1 {
		return [][]string{append([]string(nil), in...)}
	}
	var result [][]string
	for i := range in {
		rest := make([]string, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			result = append(result, append([]string{in[i]}, p...))
		}
	}
	return result
}

func TestStore_MessageOrderConvergence(t *testing.T) {
	// Non-trivial lexicographic IDs: "0z" < "1k" even though 'z' > 'k'.
	ids := []string{"0z", "1k", "1a", "2b"}
	want := []string{"0z", "1a", "1k", "2b"}

	for _, perm := range permutations(ids) {
		s := New()
		for _, id := range perm {
			s.UpsertMessage(msg(id, "s1"))
		}

		got := messageIDs(t, s, "s1")
		if len(got) != len(want) {
			t.Fatalf("permutation %v: got %v, want %v", perm, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("permutation %v: got %v, want %v", perm, got, want)
				break
			}
		}
	}
}

func TestStore_UpsertMessagePreservesParts(t *testing.T) {
	s := New()
	s.UpsertMessage(msg("m1", "s1"))
	s.UpsertPart(part("p1", "m1"))

	// Envelope update must not touch the part sequence.
	updated := msg("m1", "s1")
	updated.Completed = 42
	if !s.UpsertMessage(updated) {
		t.Error("UpsertMessage() with new envelope = false, want true")
	}

	if got := s.Parts("m1"); len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("Parts() after envelope update = %v, want [p1]", got)
	}
	msgs := s.Messages("s1")
	if len(msgs) != 1 || msgs[0].Completed != 42 {
		t.Errorf("Messages() = %v, want completed envelope", msgs)
	}
}

func TestStore_PartAppendOrder(t *testing.T) {
	s := New()
	s.UpsertMessage(msg("m1", "s1"))
	s.UpsertPart(part("p1", "m1"))
	s.UpsertPart(part("p2", "m1"))

	got := s.Parts("m1")
	if len(got) != 2 || got[0].ID != "p1" || got[1].ID != "p2" {
		t.Fatalf("Parts() = %v, want [p1 p2]", got)
	}

	// Re-sending p1 with new content keeps its position.
	p1 := part("p1", "m1")
	p1.Text = "updated"
	if !s.UpsertPart(p1) {
		t.Error("UpsertPart() with changed content = false, want true")
	}

	got = s.Parts("m1")
	if got[0].ID != "p1" || got[0].Text != "updated" || got[1].ID != "p2" {
		t.Errorf("Parts() after update = %v, want [p1(updated) p2]", got)
	}
}

func TestStore_OrphanPartDropped(t *testing.T) {
	s := New()

	if s.UpsertPart(part("p1", "missing")) {
		t.Error("UpsertPart() for unknown message = true, want false")
	}

	// The message arriving later starts with no parts.
	s.UpsertMessage(msg("missing", "s1"))
	if got := s.Parts("missing"); len(got) != 0 {
		t.Errorf("Parts() after late message = %v, want empty", got)
	}
}

func TestStore_RemoveMessage(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		messageID string
		want      bool
		wantIDs   []string
	}{
		{"existing message", "s1", "m2", true, []string{"m1", "m3"}},
		{"unknown message", "s1", "mx", false, []string{"m1", "m2", "m3"}},
		{"unknown session", "sx", "m1", false, []string{"m1", "m2", "m3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			for _, id := range []string{"m1", "m2", "m3"} {
				s.UpsertMessage(msg(id, "s1"))
			}

			if got := s.RemoveMessage(tt.sessionID, tt.messageID); got != tt.want {
				t.Errorf("RemoveMessage() = %v, want %v", got, tt.want)
			}
			got := messageIDs(t, s, "s1")
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Messages() = %v, want %v", got, tt.wantIDs)
			}
			for i := range got {
				if got[i] != tt.wantIDs[i] {
					t.Errorf("Messages() = %v, want %v", got, tt.wantIDs)
					break
				}
			}
		})
	}
}

func TestStore_InsertAfterRemoveKeepsIndexConsistent(t *testing.T) {
	s := New()
	for _, id := range []string{"m1", "m3", "m5"} {
		s.UpsertMessage(msg(id, "s1"))
	}
	s.RemoveMessage("s1", "m3")
	s.UpsertMessage(msg("m2", "s1"))
	s.UpsertMessage(msg("m4", "s1"))

	want := []string{"m1", "m2", "m4", "m5"}
	got := messageIDs(t, s, "s1")
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Messages() = %v, want %v", got, want)
		}
	}

	// Positions in the index must still line up for removal by ID.
	if !s.RemoveMessage("s1", "m4") {
		t.Error("RemoveMessage(m4) = false, want true")
	}
	got = messageIDs(t, s, "s1")
	if len(got) != 3 || got[2] != "m5" {
		t.Errorf("Messages() = %v, want [m1 m2 m5]", got)
	}
}

func TestStore_RemovePart(t *testing.T) {
	s := New()
	s.UpsertMessage(msg("m1", "s1"))
	s.UpsertPart(part("p1", "m1"))
	s.UpsertPart(part("p2", "m1"))
	s.UpsertPart(part("p3", "m1"))

	if !s.RemovePart("m1", "p2") {
		t.Error("RemovePart(p2) = false, want true")
	}
	if s.RemovePart("m1", "p2") {
		t.Error("RemovePart(p2) again = true, want false")
	}
	if s.RemovePart("mx", "p1") {
		t.Error("RemovePart() on unknown message = true, want false")
	}

	got := s.Parts("m1")
	if len(got) != 2 || got[0].ID != "p1" || got[1].ID != "p3" {
		t.Fatalf("Parts() = %v, want [p1 p3]", got)
	}

	// p3 must still be removable through the reindexed positions.
	if !s.RemovePart("m1", "p3") {
		t.Error("RemovePart(p3) = false, want true")
	}
}

func TestStore_SessionDeleteKeepsMessages(t *testing.T) {
	s := New()
	s.UpsertSession(event.Session{ID: "s1", Title: "one"})
	s.UpsertMessage(msg("m1", "s1"))

	if !s.DeleteSession("s1") {
		t.Error("DeleteSession() = false, want true")
	}
	if s.DeleteSession("s1") {
		t.Error("DeleteSession() again = true, want false")
	}

	if _, ok := s.Session("s1"); ok {
		t.Error("Session() after delete = present, want absent")
	}
	// History survives the deletion; dropping it is a read-side policy.
	if got := messageIDs(t, s, "s1"); len(got) != 1 {
		t.Errorf("Messages() after session delete = %v, want [m1]", got)
	}
}

func TestStore_Permissions(t *testing.T) {
	s := New()
	p1 := event.Permission{ID: "per1", SessionID: "s1", Title: "first"}
	p2 := event.Permission{ID: "per2", SessionID: "s1", Title: "second"}

	s.UpsertPermission(p1)
	s.UpsertPermission(p2)

	if got := s.Permissions("s1"); len(got) != 2 {
		t.Fatalf("Permissions() = %v, want 2 entries", got)
	}
	if cur, ok := s.CurrentPermission("s1"); !ok || cur.ID != "per2" {
		t.Errorf("CurrentPermission() = %v, %v, want per2", cur, ok)
	}

	// Replying to a non-current request keeps the current marker.
	if !s.ResolvePermission("s1", "per1") {
		t.Error("ResolvePermission(per1) = false, want true")
	}
	if cur, ok := s.CurrentPermission("s1"); !ok || cur.ID != "per2" {
		t.Errorf("CurrentPermission() after resolving per1 = %v, %v, want per2", cur, ok)
	}

	// Replying to the current request clears the marker.
	if !s.ResolvePermission("s1", "per2") {
		t.Error("ResolvePermission(per2) = false, want true")
	}
	if _, ok := s.CurrentPermission("s1"); ok {
		t.Error("CurrentPermission() after resolving per2 = present, want absent")
	}
	if s.ResolvePermission("s1", "per2") {
		t.Error("ResolvePermission(per2) again = true, want false")
	}
}

func TestStore_SessionsSorted(t *testing.T) {
	s := New()
	for _, id := range []string{"1k", "0z", "2a"} {
		s.UpsertSession(event.Session{ID: id})
	}

	got := s.Sessions()
	want := []string{"0z", "1k", "2a"}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("Sessions() order = %v, want %v", got, want)
		}
	}
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	s := New()
	s.UpsertMessage(msg("m1", "s1"))
	s.UpsertPart(part("p1", "m1"))

	parts := s.Parts("m1")
	parts[0].Text = "mutated"

	if got := s.Parts("m1"); got[0].Text == "mutated" {
		t.Error("mutating a returned snapshot changed the store")
	}
}

func TestStore_UpsertMessageKeepsSession(t *testing.T) {
	s := New()
	s.UpsertMessage(event.Message{ID: "m1", SessionID: "s1", Role: "user"})

	// An update naming a different session must not detach the message
	// from the sequence it was created in.
	if !s.UpsertMessage(event.Message{ID: "m1", SessionID: "s2", Role: "assistant"}) {
		t.Fatal("update with changed role = unchanged, want changed")
	}

	msgs := s.Messages("s1")
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("Messages(s1) = %v, want [m1]", msgs)
	}
	if msgs[0].SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", msgs[0].SessionID)
	}
	if msgs[0].Role != "assistant" {
		t.Errorf("Role = %q, want assistant (other fields still update)", msgs[0].Role)
	}
	if got := s.Messages("s2"); len(got) != 0 {
		t.Errorf("Messages(s2) = %v, want empty", got)
	}

	// Same envelope again, still naming the wrong session: a no-op.
	if s.UpsertMessage(event.Message{ID: "m1", SessionID: "s2", Role: "assistant"}) {
		t.Error("repeated update = changed, want unchanged")
	}
}
