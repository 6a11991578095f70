package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope(eventType, source string) *Envelope {
	return &Envelope{
		ID:        "test-id",
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   1,
		Payload:   []byte(`{}`),
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(16)

	received := make(chan *Envelope, 1)
	_, err := bus.Subscribe(context.Background(), Filter{}, func(_ context.Context, ev *Envelope) {
		received <- ev
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), testEnvelope("netcode.player_join", "server")))

	select {
	case ev := <-received:
		assert.Equal(t, "netcode.player_join", ev.EventType)
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
	}
}

func TestMemoryBus_FilterByTypeAndSource(t *testing.T) {
	bus := NewMemoryBus(16)

	var mu sync.Mutex
	var got []string
	_, err := bus.Subscribe(context.Background(),
		Filter{Types: []string{"netcode.tick_error"}, Sources: []string{"server"}},
		func(_ context.Context, ev *Envelope) {
			mu.Lock()
			got = append(got, ev.EventType)
			mu.Unlock()
		})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, testEnvelope("netcode.tick_error", "server")))
	require.NoError(t, bus.Publish(ctx, testEnvelope("netcode.player_join", "server")))
	require.NoError(t, bus.Publish(ctx, testEnvelope("netcode.tick_error", "other")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	// Даём шине время убедиться, что лишнего не пришло
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"netcode.tick_error"}, got)
}

func TestMemoryBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryBus(16)

	received := make(chan struct{}, 4)
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(_ context.Context, _ *Envelope) {
		received <- struct{}{}
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), testEnvelope("a", "s")))
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("первое событие не доставлено")
	}

	sub.Unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), testEnvelope("b", "s")))

	select {
	case <-received:
		t.Fatal("событие доставлено после отписки")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryBus_LowPriorityDroppedWhenFull(t *testing.T) {
	// Без подписчиков диспетчер всё равно разбирает буфер, поэтому
	// берём буфер 1 и публикуем пачкой: часть низкоприоритетных дропается
	bus := NewMemoryBus(1)

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		ev := testEnvelope("netcode.telemetry", "server")
		ev.Priority = 0
		require.NoError(t, bus.Publish(ctx, ev))
	}

	stats := bus.Metrics()
	assert.Equal(t, uint64(50), stats.Published+stats.Dropped)
}

func TestMemoryBus_MetricsCountPublished(t *testing.T) {
	bus := NewMemoryBus(16)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, testEnvelope("a", "s")))
	require.NoError(t, bus.Publish(ctx, testEnvelope("b", "s")))

	require.Eventually(t, func() bool {
		return bus.Metrics().Published == 2
	}, time.Second, 5*time.Millisecond)
}

func TestGlobalPublish_StampsEnvelope(t *testing.T) {
	bus := NewMemoryBus(16)
	Init(bus)
	t.Cleanup(func() { Init(nil) })

	received := make(chan *Envelope, 1)
	_, err := bus.Subscribe(context.Background(), Filter{}, func(_ context.Context, ev *Envelope) {
		received <- ev
	})
	require.NoError(t, err)

	// ID и Timestamp не заданы: глобальная шина проставляет их сама
	require.NoError(t, Publish(context.Background(), &Envelope{
		Source:    "netcode-server",
		EventType: "netcode.player_join",
		Version:   1,
		Payload:   []byte(`{}`),
	}))

	select {
	case ev := <-received:
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
	}
}

func TestGlobalPublish_NoopWithoutInit(t *testing.T) {
	Init(nil)
	assert.NoError(t, Publish(context.Background(), testEnvelope("netcode.tick_error", "netcode-server")))
}
