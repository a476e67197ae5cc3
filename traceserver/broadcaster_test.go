package traceserver

import (
	"testing"
	"time"
)

func TestBroadcastDeliversToMatchingSubscription(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe("sess-1", []EventType{EventFetch})
	time.Sleep(10 * time.Millisecond)
	b.BroadcastFetch("sess-1", 0x1000, 0x10, "add")
	time.Sleep(10 * time.Millisecond)

	select {
	case ev := <-sub.Channel:
		if ev.Type != EventFetch || ev.SessionID != "sess-1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected an event on the channel")
	}
}

func TestBroadcastFiltersBySessionAndType(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe("sess-1", []EventType{EventHalt})
	time.Sleep(10 * time.Millisecond)
	b.BroadcastFetch("sess-1", 0, 0, "add")
	b.BroadcastFetch("sess-2", 0, 0, "add")
	b.BroadcastHalt("sess-1", nil)
	time.Sleep(10 * time.Millisecond)

	select {
	case ev := <-sub.Channel:
		if ev.Type != EventHalt {
			t.Fatalf("expected only halt events, got %+v", ev)
		}
	default:
		t.Fatal("expected the halt event to arrive")
	}

	select {
	case ev := <-sub.Channel:
		t.Fatalf("expected no further events, got %+v", ev)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe("", nil)
	time.Sleep(10 * time.Millisecond)
	b.Unsubscribe(sub)
	time.Sleep(10 * time.Millisecond)

	if _, ok := <-sub.Channel; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestCloseClosesAllSubscriptions(t *testing.T) {
	b := NewBroadcaster()
	subA := b.Subscribe("", nil)
	subB := b.Subscribe("", nil)
	time.Sleep(10 * time.Millisecond)
	b.Close()

	if _, ok := <-subA.Channel; ok {
		t.Fatal("expected subA channel closed")
	}
	if _, ok := <-subB.Channel; ok {
		t.Fatal("expected subB channel closed")
	}
}

func TestSubscriptionCount(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	if got := b.SubscriptionCount(); got != 0 {
		t.Fatalf("expected 0 subscriptions, got %d", got)
	}
	sub := b.Subscribe("", nil)
	time.Sleep(10 * time.Millisecond)
	if got := b.SubscriptionCount(); got != 1 {
		t.Fatalf("expected 1 subscription, got %d", got)
	}
	b.Unsubscribe(sub)
}
