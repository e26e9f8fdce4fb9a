package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/scheduling/internal/events"
)

func dialCalendar(t *testing.T, bus *events.Bus) (*websocket.Conn, func()) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/calendar", NewHandler(bus, zerolog.Nop()).ServeCalendar)
	srv := httptest.NewServer(mux)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/calendar"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func sendAction(t *testing.T, conn *websocket.Conn, action string, doctorID uuid.UUID) {
	t.Helper()
	frame, err := json.Marshal(map[string]string{"action": action, "doctorId": doctorID.String()})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func waitForWatchers(t *testing.T, bus *events.Bus, doctorID uuid.UUID, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return bus.SubscriberCount(doctorID) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCalendarJoinReceivesEvents(t *testing.T) {
	bus := events.NewBus()
	conn, teardown := dialCalendar(t, bus)
	defer teardown()

	doctorID := uuid.New()
	sendAction(t, conn, "join", doctorID)
	waitForWatchers(t, bus, doctorID, 1)

	slot := time.Date(2026, time.March, 2, 10, 30, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(context.Background(), events.Event{
		Kind:      events.KindSlotBooked,
		DoctorID:  doctorID,
		SlotStart: slot,
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev events.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, events.KindSlotBooked, ev.Kind)
	assert.Equal(t, doctorID, ev.DoctorID)
	assert.True(t, ev.SlotStart.Equal(slot))
}

func TestCalendarLeaveStopsEvents(t *testing.T) {
	bus := events.NewBus()
	conn, teardown := dialCalendar(t, bus)
	defer teardown()

	doctorID := uuid.New()
	sendAction(t, conn, "join", doctorID)
	waitForWatchers(t, bus, doctorID, 1)

	sendAction(t, conn, "leave", doctorID)
	waitForWatchers(t, bus, doctorID, 0)

	require.NoError(t, bus.Publish(context.Background(), events.Event{
		Kind:      events.KindSlotFreed,
		DoctorID:  doctorID,
		SlotStart: time.Now(),
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no event should arrive after leaving")
}

func TestCalendarIgnoresMalformedFrames(t *testing.T) {
	bus := events.NewBus()
	conn, teardown := dialCalendar(t, bus)
	defer teardown()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"join","doctorId":"nope"}`)))

	// The connection survives and a well-formed join still works.
	doctorID := uuid.New()
	sendAction(t, conn, "join", doctorID)
	waitForWatchers(t, bus, doctorID, 1)
}

func TestCalendarDisconnectUnsubscribes(t *testing.T) {
	bus := events.NewBus()
	conn, teardown := dialCalendar(t, bus)
	defer teardown()

	first := uuid.New()
	second := uuid.New()
	sendAction(t, conn, "join", first)
	sendAction(t, conn, "join", second)
	waitForWatchers(t, bus, first, 1)
	waitForWatchers(t, bus, second, 1)

	require.NoError(t, conn.Close())
	waitForWatchers(t, bus, first, 0)
	waitForWatchers(t, bus, second, 0)
}
