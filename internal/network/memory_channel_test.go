package network

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/netcode/internal/protocol"
)

func buildMessage(t *testing.T, payload interface{}) *protocol.Message {
	t.Helper()
	serializer, err := protocol.NewMessageSerializer()
	require.NoError(t, err)
	msg, err := serializer.BuildEnvelope(protocol.MsgInput, payload)
	require.NoError(t, err)
	return msg
}

func TestMemoryChannel_RoundTrip(t *testing.T) {
	a, b := NewMemoryChannelPair()
	defer a.Close()

	received := make(chan *protocol.Message, 1)
	b.OnMessage(func(msg *protocol.Message) { received <- msg })

	require.NoError(t, a.Send(buildMessage(t, map[string]int{"seq": 7})))

	select {
	case msg := <-received:
		assert.Equal(t, protocol.MsgInput, msg.Type)
		serializer, _ := protocol.NewMessageSerializer()
		var payload map[string]int
		require.NoError(t, serializer.DeserializePayload(msg, &payload))
		assert.Equal(t, 7, payload["seq"])
	case <-time.After(time.Second):
		t.Fatal("сообщение не доставлено")
	}
}

func TestMemoryChannel_CompressedPayloadSurvivesWire(t *testing.T) {
	a, b := NewMemoryChannelPair()
	defer a.Close()

	received := make(chan *protocol.Message, 1)
	b.OnMessage(func(msg *protocol.Message) { received <- msg })

	// Крупная нагрузка сжимается на отправке и распаковывается на доставке
	big := map[string]string{"blob": strings.Repeat("снимок ", 200)}
	require.NoError(t, a.Send(buildMessage(t, big)))

	select {
	case msg := <-received:
		assert.False(t, msg.Compressed, "доставляется уже распакованным")
		serializer, _ := protocol.NewMessageSerializer()
		var payload map[string]string
		require.NoError(t, serializer.DeserializePayload(msg, &payload))
		assert.Equal(t, big["blob"], payload["blob"])
	case <-time.After(time.Second):
		t.Fatal("сообщение не доставлено")
	}
}

func TestMemoryChannel_SimulatedLatencyKeepsOrder(t *testing.T) {
	a, b := NewMemoryChannelPair()
	defer a.Close()

	var mu sync.Mutex
	var order []int64
	b.OnMessage(func(msg *protocol.Message) {
		serializer, _ := protocol.NewMessageSerializer()
		var payload map[string]int64
		if err := serializer.DeserializePayload(msg, &payload); err == nil {
			mu.Lock()
			order = append(order, payload["seq"])
			mu.Unlock()
		}
	})

	b.SetSimulatedLatency(10 * time.Millisecond)

	start := time.Now()
	for i := int64(0); i < 5; i++ {
		require.NoError(t, a.Send(buildMessage(t, map[string]int64{"seq": i})))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, 2*time.Second, 5*time.Millisecond)

	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond, "задержка реально применялась")

	mu.Lock()
	defer mu.Unlock()
	for i := int64(0); i < 5; i++ {
		assert.Equal(t, i, order[i], "порядок доставки сохранён")
	}
}

func TestMemoryChannel_CloseNotifiesBothSides(t *testing.T) {
	a, b := NewMemoryChannelPair()

	aDisconnected := make(chan error, 1)
	bDisconnected := make(chan error, 1)
	a.OnDisconnect(func(err error) { aDisconnected <- err })
	b.OnDisconnect(func(err error) { bDisconnected <- err })

	require.NoError(t, a.Close())

	select {
	case err := <-aDisconnected:
		assert.NoError(t, err, "локальное закрытие — без ошибки")
	case <-time.After(time.Second):
		t.Fatal("локальный обработчик не вызван")
	}

	select {
	case err := <-bDisconnected:
		assert.Error(t, err, "пир видит разрыв")
	case <-time.After(time.Second):
		t.Fatal("обработчик пира не вызван")
	}

	assert.False(t, a.IsConnected())
	assert.False(t, b.IsConnected())
	assert.Error(t, a.Send(buildMessage(t, map[string]int{})), "отправка в закрытый канал")
}

func TestMemoryChannel_Stats(t *testing.T) {
	a, b := NewMemoryChannelPair()
	defer a.Close()

	received := make(chan struct{}, 1)
	b.OnMessage(func(*protocol.Message) { received <- struct{}{} })

	require.NoError(t, a.Send(buildMessage(t, map[string]int{"seq": 1})))
	<-received

	sent := a.Stats()
	assert.Equal(t, uint64(1), sent.MessagesSent)
	assert.Greater(t, sent.BytesSent, uint64(0))

	got := b.Stats()
	assert.Equal(t, uint64(1), got.MessagesReceived)
}
