package sim

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/inercia/specula/internal/event"
)

// recorder captures published events in order.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Type
	}
	return kinds
}

func TestProducer_ConversationEventSequence(t *testing.T) {
	rec := &recorder{}
	p := New(rec, WithChunkDelay(0))

	sessionID, err := p.RunConversation(context.Background(), "t", "hi", []string{"a", "b"})
	if err != nil {
		t.Fatalf("RunConversation() error = %v", err)
	}
	if !strings.HasPrefix(sessionID, "ses_") {
		t.Errorf("session id = %q", sessionID)
	}

	want := []string{
		event.KindSessionUpdated,
		event.KindMessageUpdated,     // user envelope
		event.KindPartUpdated,        // user prompt
		event.KindMessageUpdated,     // assistant envelope
		event.KindPartUpdated,        // chunk 1
		event.KindPartUpdated,        // chunk 2
		event.KindMessageUpdated,     // assistant completed
		event.KindSessionIdle,
	}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("event count = %d (%v), want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestProducer_StreamedChunksAccumulate(t *testing.T) {
	rec := &recorder{}
	p := New(rec, WithChunkDelay(0))

	if _, err := p.RunConversation(context.Background(), "t", "q", []string{"one", " two"}); err != nil {
		t.Fatalf("RunConversation() error = %v", err)
	}

	var texts []string
	var partIDs []string
	for _, ev := range rec.events {
		if ev.Type != event.KindPartUpdated {
			continue
		}
		var pl event.PartPayload
		if err := ev.DecodeProperties(&pl); err != nil {
			t.Fatalf("decode part: %v", err)
		}
		texts = append(texts, pl.Part.Text)
		partIDs = append(partIDs, pl.Part.ID)
	}

	// First part is the prompt, then each chunk re-publishes the same part
	// with the text so far.
	if len(texts) != 3 {
		t.Fatalf("part event count = %d, want 3", len(texts))
	}
	if texts[1] != "one" || texts[2] != "one two" {
		t.Errorf("streamed texts = %v", texts[1:])
	}
	if partIDs[1] != partIDs[2] {
		t.Errorf("streamed chunks used different part ids: %q vs %q", partIDs[1], partIDs[2])
	}
}

func TestProducer_PermissionRoundTrip(t *testing.T) {
	rec := &recorder{}
	p := New(rec, WithChunkDelay(0), WithPermission(true))

	if _, err := p.RunConversation(context.Background(), "t", "q", []string{"ok"}); err != nil {
		t.Fatalf("RunConversation() error = %v", err)
	}

	var sawRequest, sawReply bool
	for _, ev := range rec.events {
		switch ev.Type {
		case event.KindPermissionUpdated:
			sawRequest = true
			if sawReply {
				t.Error("permission reply published before request")
			}
		case event.KindPermissionReplied:
			sawReply = true
			var pl event.PermissionRepliedPayload
			if err := ev.DecodeProperties(&pl); err != nil {
				t.Fatalf("decode reply: %v", err)
			}
			if pl.Response != "once" {
				t.Errorf("response = %q, want once", pl.Response)
			}
		}
	}
	if !sawRequest || !sawReply {
		t.Errorf("permission events missing: request=%v reply=%v", sawRequest, sawReply)
	}
}

func TestProducer_CanceledContext(t *testing.T) {
	rec := &recorder{}
	p := New(rec, WithChunkDelay(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.RunConversation(ctx, "t", "q", []string{"a"}); err == nil {
		t.Error("RunConversation() = nil, want context error")
	}
}

func TestProducer_DuplicatesDoubleEveryEvent(t *testing.T) {
	single := &recorder{}
	if _, err := New(single, WithChunkDelay(0)).RunConversation(context.Background(), "t", "q", []string{"a"}); err != nil {
		t.Fatalf("RunConversation() error = %v", err)
	}

	doubled := &recorder{}
	if _, err := New(doubled, WithChunkDelay(0), WithDuplicates(true)).RunConversation(context.Background(), "t", "q", []string{"a"}); err != nil {
		t.Fatalf("RunConversation() error = %v", err)
	}

	if got, want := len(doubled.events), 2*len(single.events); got != want {
		t.Fatalf("doubled event count = %d, want %d", got, want)
	}
	kinds := doubled.kinds()
	for i := 0; i < len(kinds); i += 2 {
		if kinds[i] != kinds[i+1] {
			t.Errorf("events %d,%d differ: %q vs %q", i, i+1, kinds[i], kinds[i+1])
		}
	}
}
