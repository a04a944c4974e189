package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func detachedConn() *Conn {
	return newConn(nil, ClientInfo{ID: "kiosk"}, AuthResult{OK: true, Method: "none"}, testLog())
}

func TestListenAddr(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GatewayConfig
		want string
	}{
		{"loopback", config.GatewayConfig{Bind: "loopback", Port: 18790}, "127.0.0.1:18790"},
		{"default", config.GatewayConfig{Port: 18790}, "127.0.0.1:18790"},
		{"lan", config.GatewayConfig{Bind: "lan", Port: 18790}, "0.0.0.0:18790"},
		{"auto", config.GatewayConfig{Bind: "auto", Port: 80}, "0.0.0.0:80"},
		{"custom", config.GatewayConfig{Bind: "custom", CustomBindHost: "10.0.0.5", Port: 9000}, "10.0.0.5:9000"},
		{"custom without host", config.GatewayConfig{Bind: "custom", Port: 9000}, "0.0.0.0:9000"},
		{"ipv6 host", config.GatewayConfig{Bind: "custom", CustomBindHost: "::1", Port: 9000}, "[::1]:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, listenAddr(tt.cfg))
		})
	}
}

func TestConn_Identity(t *testing.T) {
	a, b := detachedConn(), detachedConn()
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "kiosk", a.Client.ID)
	assert.False(t, a.ConnectedAt.IsZero())
}

func TestConn_Conversation(t *testing.T) {
	c := detachedConn()
	assert.Equal(t, c.ID, c.conversation(""))
	assert.Equal(t, "kiosk-7", c.conversation("kiosk-7"))
}

func TestConn_LimitTurns(t *testing.T) {
	c := detachedConn()
	for range 100 {
		require.True(t, c.allowTurn(), "no cap by default")
	}

	c.limitTurns(1, 3)
	for range 3 {
		assert.True(t, c.allowTurn())
	}
	assert.False(t, c.allowTurn())

	c.limitTurns(0, 0)
	assert.True(t, c.allowTurn())

	c.limitTurns(1, 0)
	assert.True(t, c.allowTurn(), "burst is at least one")
	assert.False(t, c.allowTurn())
}

func TestConn_SendAfterClose(t *testing.T) {
	c := detachedConn()
	f, err := resultFrame("r1", nil)
	require.NoError(t, err)

	require.NoError(t, c.send(f))
	assert.True(t, c.offer(f))

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.send(f), ErrConnClosed)
	assert.False(t, c.offer(f))
}

func TestConn_OfferDropsWhenFull(t *testing.T) {
	c := detachedConn()
	f, err := eventFrame(eventBookingCancelled, BookingEvent{ConversationID: "c1"}, 1)
	require.NoError(t, err)

	for range sendQueue {
		require.True(t, c.offer(f))
	}
	assert.False(t, c.offer(f))
}

func TestHub(t *testing.T) {
	h := newHub(testLog())
	a, b := detachedConn(), detachedConn()
	h.add(a)
	h.add(b)
	assert.Equal(t, 2, h.count())

	f, err := eventFrame(eventBookingConfirmed, BookingEvent{ConversationID: "c1", BookingID: 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, h.broadcast(f))
	assert.Len(t, a.out, 1)

	h.remove(b)
	assert.Equal(t, 1, h.count())
	assert.Equal(t, 1, h.broadcast(f))

	h.closeAll()
	assert.ErrorIs(t, a.send(f), ErrConnClosed)
	assert.Equal(t, 0, h.broadcast(f))
}
