package eventbus

import "testing"

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeDispatched})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != TypeDispatched {
			t.Fatalf("type = %q", e.Type)
		}
		if e.Time.IsZero() {
			t.Fatal("expected publish to stamp time")
		}
	}
}

func TestSubscribeFiltersTypes(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4, TypeTerminated, TypeSendFailed)
	defer unsub()

	b.Publish(Event{Type: TypeDispatched})
	b.Publish(Event{Type: TypeSendFailed})
	b.Publish(Event{Type: TypeSent})
	b.Publish(Event{Type: TypeTerminated})

	if got := len(ch); got != 2 {
		t.Fatalf("buffered = %d, want 2", got)
	}
	if e := <-ch; e.Type != TypeSendFailed {
		t.Fatalf("first = %q", e.Type)
	}
	if e := <-ch; e.Type != TypeTerminated {
		t.Fatalf("second = %q", e.Type)
	}
	if b.Missed() != 0 {
		t.Fatalf("missed = %d", b.Missed())
	}
}

func TestSlowSubscriberMisses(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TypeDropped})
	b.Publish(Event{Type: TypeDropped}) // buffer full, must not block

	if got := len(ch); got != 1 {
		t.Fatalf("buffered = %d, want 1", got)
	}
	if got := b.Missed(); got != 1 {
		t.Fatalf("missed = %d, want 1", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	b.Publish(Event{Type: TypeSent})
}
