package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cchat/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticMembers map[string][]string

func (m staticMembers) ParticipantIDs(_ context.Context, id string) ([]string, error) {
	ids, ok := m[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return ids, nil
}

func startHub(t *testing.T) (*Hub, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	h := NewHub(staticMembers{"c1": {"u1", "u2"}}, NewMetrics(reg), logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h, reg
}

func connect(t *testing.T, h *Hub, userID string) *Client {
	t.Helper()
	before := h.ClientCount()
	c := NewClient(userID, nil, h)
	h.Register <- c
	require.Eventually(t, func() bool { return h.ClientCount() == before+1 }, time.Second, time.Millisecond)
	return c
}

// metricValue sums every series of the named metric.
func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return sum
}

func join(t *testing.T, c *Client, id string) {
	t.Helper()
	payload, _ := json.Marshal(RoomPayload{ConversationID: id})
	c.HandleIncoming(context.Background(), IncomingMessage{Type: EventJoinConversation, Payload: payload})
}

func recv(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case data := <-c.Send:
		var m WSMessage
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no frame")
		return WSMessage{}
	}
}

func TestBroadcastReachesJoinedClientsOnly(t *testing.T) {
	h, reg := startHub(t)
	a, b := connect(t, h, "u1"), connect(t, h, "u2")
	join(t, a, "c1")

	h.BroadcastToConversation("c1", NewMessage(EventNewMessage, map[string]string{"id": "m1"}))

	assert.Equal(t, EventNewMessage, recv(t, a).Type)
	select {
	case <-b.Send:
		t.Fatal("client that did not join received a frame")
	default:
	}
	assert.Equal(t, float64(1), metricValue(t, reg, "cchat_ws_frames_sent_total"))
	assert.Equal(t, 1, h.RoomSize("c1"))
}

func TestJoinRequiresMembership(t *testing.T) {
	h, _ := startHub(t)
	outsider := connect(t, h, "u9")
	join(t, outsider, "c1")

	m := recv(t, outsider)
	assert.Equal(t, EventError, m.Type)
	assert.Equal(t, 0, h.RoomSize("c1"))
}

func TestLeaveAndUnregister(t *testing.T) {
	h, reg := startHub(t)
	a := connect(t, h, "u1")
	join(t, a, "c1")
	require.Equal(t, 1, h.RoomSize("c1"))

	payload, _ := json.Marshal(RoomPayload{ConversationID: "c1"})
	a.HandleIncoming(context.Background(), IncomingMessage{Type: EventLeaveConversation, Payload: payload})
	assert.Equal(t, 0, h.RoomSize("c1"))

	join(t, a, "c1")
	h.Unregister <- a
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.RoomSize("c1"))
	assert.Equal(t, float64(0), metricValue(t, reg, "cchat_ws_connections"))
	_, open := <-a.Send
	assert.False(t, open)
}

func TestFullBufferDropsFrame(t *testing.T) {
	h, reg := startHub(t)
	a := connect(t, h, "u1")
	join(t, a, "c1")
	for i := 0; i < sendBuffer; i++ {
		a.Send <- []byte("{}")
	}

	h.BroadcastToConversation("c1", NewMessage(EventNewMessage, nil))
	assert.Equal(t, float64(1), metricValue(t, reg, "cchat_ws_frames_dropped_total"))
}
