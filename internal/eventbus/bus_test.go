package eventbus

import "testing"

func TestPublishFanout(t *testing.T) {
	t.Parallel()

	b := New[int]()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	if n := b.Publish(7); n != 2 {
		t.Fatalf("delivered=%d want 2", n)
	}
	if v := <-a; v != 7 {
		t.Fatalf("a got %d", v)
	}
	if v := <-c; v != 7 {
		t.Fatalf("c got %d", v)
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()

	b := New[string]()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish("one")
	if n := b.Publish("two"); n != 0 {
		t.Fatalf("delivered=%d want 0", n)
	}
	if b.Dropped() != 1 {
		t.Fatalf("dropped=%d want 1", b.Dropped())
	}
	if v := <-ch; v != "one" {
		t.Fatalf("got %q", v)
	}
}

func TestUnsubscribeAndClose(t *testing.T) {
	t.Parallel()

	b := New[int]()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers=%d", b.Subscribers())
	}

	ch2, unsub2 := b.Subscribe(1)
	b.Close()
	if _, ok := <-ch2; ok {
		t.Fatal("channel should be closed after Close")
	}
	unsub2()
	if n := b.Publish(1); n != 0 {
		t.Fatalf("publish after close delivered %d", n)
	}
	late, _ := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatal("subscribe after close should yield a closed channel")
	}
}
