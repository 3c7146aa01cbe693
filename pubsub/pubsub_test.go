package pubsub

import (
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for an event")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for an event")
	}
	return Event{}
}

func TestSubscribePublishDelivery(t *testing.T) {
	r := New(nil)
	ch := r.Subscribe("client-1", Transaction|Block)

	r.Publish(Transaction, []byte("tx-payload"))
	ev := recv(t, ch)
	if ev.Topic != Transaction || string(ev.Payload) != "tx-payload" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	r.Publish(ContractEvents, []byte("ignored"))
	select {
	case ev := <-ch:
		t.Fatalf("did not expect an event for an unsubscribed topic: %+v", ev)
	default:
	}
}

func TestSubscribeReplacesTopicMask(t *testing.T) {
	r := New(nil)
	ch := r.Subscribe("client-1", Transaction)
	ch2 := r.Subscribe("client-1", Block)
	if ch != ch2 {
		t.Fatalf("expected the same channel across re-subscribes of the same id")
	}

	r.Publish(Transaction, []byte("x"))
	select {
	case ev := <-ch:
		t.Fatalf("expected Transaction to no longer be subscribed, got %+v", ev)
	default:
	}

	r.Publish(Block, []byte("y"))
	ev := recv(t, ch)
	if ev.Topic != Block {
		t.Fatalf("expected a Block event, got %+v", ev)
	}
}

func TestUnsubscribeClosesChannelWhenMaskEmpty(t *testing.T) {
	r := New(nil)
	ch := r.Subscribe("client-1", Transaction)
	r.Unsubscribe("client-1", Transaction)

	_, ok := <-ch
	if ok {
		t.Fatalf("expected the channel to be closed after the last topic is unsubscribed")
	}
}

func TestUnsubscribePartialMaskKeepsChannelOpen(t *testing.T) {
	r := New(nil)
	ch := r.Subscribe("client-1", Transaction|Block)
	r.Unsubscribe("client-1", Transaction)

	r.Publish(Block, []byte("still-here"))
	ev := recv(t, ch)
	if ev.Topic != Block {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestDropClosesChannelRegardlessOfMask(t *testing.T) {
	r := New(nil)
	ch := r.Subscribe("client-1", Transaction|Block|ContractEvents)
	r.Drop("client-1")

	_, ok := <-ch
	if ok {
		t.Fatalf("expected the channel to be closed after Drop")
	}
}

func TestPublishSkipsFullSubscriberWithoutBlocking(t *testing.T) {
	r := New(nil)
	ch := r.Subscribe("client-1", Transaction)

	for i := 0; i < subscriberBuffer+10; i++ {
		r.Publish(Transaction, []byte("x"))
	}

	// Must not have blocked above; draining confirms the channel is
	// still usable and at most subscriberBuffer entries deep.
	drained := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				t.Fatalf("channel unexpectedly closed")
			}
			drained++
		default:
			if drained == 0 || drained > subscriberBuffer {
				t.Fatalf("unexpected drained count: %d", drained)
			}
			return
		}
	}
}

func TestPublishDeliversOnlyToMatchingTopic(t *testing.T) {
	r := New(nil)
	chA := r.Subscribe("a", Transaction)
	chB := r.Subscribe("b", Block)

	r.Publish(Transaction, []byte("only-for-a"))

	ev := recv(t, chA)
	if string(ev.Payload) != "only-for-a" {
		t.Fatalf("unexpected payload for a: %s", ev.Payload)
	}
	select {
	case ev := <-chB:
		t.Fatalf("did not expect b to receive a Transaction event: %+v", ev)
	default:
	}
}
