package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func booked(doctorID uuid.UUID, slot time.Time) Event {
	return Event{Kind: KindSlotBooked, DoctorID: doctorID, SlotStart: slot}
}

func TestBusDeliversToDoctorWatchers(t *testing.T) {
	bus := NewBus()
	doctorID := uuid.New()
	other := uuid.New()

	ch, cancel := bus.Subscribe(doctorID)
	defer cancel()
	otherCh, otherCancel := bus.Subscribe(other)
	defer otherCancel()

	slot := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(context.Background(), booked(doctorID, slot)))

	select {
	case ev := <-ch:
		assert.Equal(t, KindSlotBooked, ev.Kind)
		assert.Equal(t, doctorID, ev.DoctorID)
		assert.True(t, ev.SlotStart.Equal(slot))
	case <-time.After(time.Second):
		t.Fatal("watcher never received the event")
	}

	select {
	case ev := <-otherCh:
		t.Fatalf("watcher of another doctor received %v", ev)
	default:
	}
}

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewBus()
	doctorID := uuid.New()

	ch, cancel := bus.Subscribe(doctorID)
	defer cancel()

	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(),
			booked(doctorID, base.Add(time.Duration(i)*30*time.Minute))))
	}

	for i := 0; i < 5; i++ {
		ev := <-ch
		assert.True(t, ev.SlotStart.Equal(base.Add(time.Duration(i)*30*time.Minute)))
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	doctorID := uuid.New()

	ch, cancel := bus.Subscribe(doctorID)
	require.Equal(t, 1, bus.SubscriberCount(doctorID))

	cancel()
	cancel() // second call is a no-op

	assert.Equal(t, 0, bus.SubscriberCount(doctorID))
	_, open := <-ch
	assert.False(t, open, "channel must be closed after cancel")

	// Publishing to a doctor with no watchers is fine.
	require.NoError(t, bus.Publish(context.Background(), booked(doctorID, time.Now())))
}

func TestBusDropsWhenWatcherFallsBehind(t *testing.T) {
	bus := NewBus()
	doctorID := uuid.New()

	slow, slowCancel := bus.Subscribe(doctorID)
	defer slowCancel()

	// Never drain the slow watcher; publishing well past its buffer must
	// not block the booking path.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*4; i++ {
			_ = bus.Publish(context.Background(), booked(doctorID, time.Now()))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow watcher")
	}

	assert.Len(t, slow, subscriberBuffer, "overflow events are dropped, not queued")
}

func TestBusIndependentWatchersSameDoctor(t *testing.T) {
	bus := NewBus()
	doctorID := uuid.New()

	a, cancelA := bus.Subscribe(doctorID)
	b, cancelB := bus.Subscribe(doctorID)
	defer cancelB()

	require.NoError(t, bus.Publish(context.Background(), booked(doctorID, time.Now())))
	<-a
	<-b

	cancelA()
	require.Equal(t, 1, bus.SubscriberCount(doctorID))

	require.NoError(t, bus.Publish(context.Background(), booked(doctorID, time.Now())))
	select {
	case ev, open := <-b:
		require.True(t, open)
		assert.Equal(t, KindSlotBooked, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("remaining watcher stopped receiving")
	}
}
