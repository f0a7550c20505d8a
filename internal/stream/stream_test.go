package stream

import (
	"context"
	"testing"
	"time"
)

// TestBroadcaster tests fan-out, cancellation and close.
func TestBroadcaster(t *testing.T) {
	t.Parallel()

	t.Run("publishes to every subscriber", func(t *testing.T) {
		t.Parallel()

		b := NewBroadcaster[int]()
		a, cancelA := b.Subscribe(1)
		c, cancelC := b.Subscribe(1)
		defer cancelA()
		defer cancelC()

		if n := b.Publish(7); n != 2 {
			t.Errorf("expected 2 deliveries, got %d", n)
		}
		if v := <-a; v != 7 {
			t.Errorf("got %d", v)
		}
		if v := <-c; v != 7 {
			t.Errorf("got %d", v)
		}
	})

	t.Run("full subscriber misses values without blocking", func(t *testing.T) {
		t.Parallel()

		b := NewBroadcaster[string]()
		ch, cancel := b.Subscribe(1)
		defer cancel()

		b.Publish("first")
		if n := b.Publish("second"); n != 0 {
			t.Errorf("expected 0 deliveries to full subscriber, got %d", n)
		}
		if v := <-ch; v != "first" {
			t.Errorf("got %q", v)
		}
	})

	t.Run("cancel closes the channel", func(t *testing.T) {
		t.Parallel()

		b := NewBroadcaster[int]()
		ch, cancel := b.Subscribe(0)
		cancel()
		cancel()
		if _, ok := <-ch; ok {
			t.Error("expected closed channel")
		}
		if b.Len() != 0 {
			t.Errorf("expected no subscribers, got %d", b.Len())
		}
	})

	t.Run("close ends all subscriptions", func(t *testing.T) {
		t.Parallel()

		b := NewBroadcaster[int]()
		ch, cancel := b.Subscribe(0)
		b.Close()
		b.Close()
		cancel()
		if _, ok := <-ch; ok {
			t.Error("expected closed channel")
		}
		late, _ := b.Subscribe(1)
		if _, ok := <-late; ok {
			t.Error("expected closed channel for late subscriber")
		}
		if n := b.Publish(1); n != 0 {
			t.Errorf("expected no deliveries after close, got %d", n)
		}
	})
}

// TestFilter tests that only matching values are forwarded.
func TestFilter(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan int)
	out := Filter(ctx, in, func(v int) bool { return v%2 == 0 })

	go func() {
		for i := 1; i <= 6; i++ {
			in <- i
		}
		close(in)
	}()

	var got []int
	for v := range out {
		got = append(got, v)
	}
	if len(got) != 3 || got[0] != 2 || got[1] != 4 || got[2] != 6 {
		t.Errorf("unexpected values %v", got)
	}
}

// TestDebounce tests that bursts collapse into one trigger.
func TestDebounce(t *testing.T) {
	t.Parallel()

	t.Run("burst yields one trigger", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		in := make(chan int)
		out := Debounce(ctx, in, 30*time.Millisecond)

		for i := 0; i < 5; i++ {
			in <- i
			time.Sleep(5 * time.Millisecond)
		}

		select {
		case <-out:
		case <-time.After(time.Second):
			t.Fatal("expected a trigger")
		}

		select {
		case <-out:
			t.Error("expected exactly one trigger for the burst")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("quiet stream yields nothing", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := Debounce(ctx, make(chan int), 10*time.Millisecond)
		select {
		case <-out:
			t.Error("unexpected trigger")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("separate bursts yield separate triggers", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		in := make(chan int)
		out := Debounce(ctx, in, 10*time.Millisecond)

		for burst := 0; burst < 2; burst++ {
			in <- burst
			select {
			case <-out:
			case <-time.After(time.Second):
				t.Fatalf("expected trigger for burst %d", burst)
			}
		}
	})

	t.Run("cancel closes the output", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		out := Debounce(ctx, make(chan int), time.Hour)
		cancel()

		select {
		case _, ok := <-out:
			if ok {
				t.Error("expected closed channel")
			}
		case <-time.After(time.Second):
			t.Fatal("output not closed after cancel")
		}
	})
}
