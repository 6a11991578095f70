package netcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputQueue_OrderAndDedupe(t *testing.T) {
	iq := NewInputQueue[testInput]()
	iq.AddClient("p1")

	// Неупорядоченная доставка с дубликатом
	iq.Enqueue("p1", InputMessage[testInput]{Seq: 2, Input: testInput{Dx: 2}})
	iq.Enqueue("p1", InputMessage[testInput]{Seq: 0, Input: testInput{Dx: 0}})
	iq.Enqueue("p1", InputMessage[testInput]{Seq: 1, Input: testInput{Dx: 1}})
	iq.Enqueue("p1", InputMessage[testInput]{Seq: 1, Input: testInput{Dx: 99}})

	pending := iq.GetPendingInputs("p1")
	require.Len(t, pending, 3)
	for i, msg := range pending {
		assert.Equal(t, int64(i), msg.Seq)
	}
	// Дубликат отброшен, выжил первый экземпляр
	assert.Equal(t, 1.0, pending[1].Input.Dx)
}

func TestInputQueue_AcknowledgeRemovesProcessed(t *testing.T) {
	iq := NewInputQueue[testInput]()
	for seq := int64(0); seq < 5; seq++ {
		iq.Enqueue("p1", InputMessage[testInput]{Seq: seq})
	}

	iq.Acknowledge("p1", 2)

	pending := iq.GetPendingInputs("p1")
	require.Len(t, pending, 2)
	assert.Equal(t, int64(3), pending[0].Seq)
	assert.Equal(t, int64(2), iq.LastAcked("p1"))
}

func TestInputQueue_AckIsMonotonic(t *testing.T) {
	iq := NewInputQueue[testInput]()
	iq.Enqueue("p1", InputMessage[testInput]{Seq: 0})

	iq.Acknowledge("p1", 5)
	iq.Acknowledge("p1", 3) // Запоздавшее подтверждение не откатывает курсор

	assert.Equal(t, int64(5), iq.LastAcked("p1"))
}

func TestInputQueue_DropsStaleAfterAck(t *testing.T) {
	iq := NewInputQueue[testInput]()
	iq.Acknowledge("p1", 4)

	// Запоздавший дубликат уже подтверждённого ввода
	iq.Enqueue("p1", InputMessage[testInput]{Seq: 3})
	iq.Enqueue("p1", InputMessage[testInput]{Seq: 5})

	pending := iq.GetPendingInputs("p1")
	require.Len(t, pending, 1)
	assert.Equal(t, int64(5), pending[0].Seq)
}

func TestInputQueue_LastAckedDefault(t *testing.T) {
	iq := NewInputQueue[testInput]()
	assert.Equal(t, int64(-1), iq.LastAcked("unknown"))
}

func TestInputQueue_BatchedSnapshot(t *testing.T) {
	iq := NewInputQueue[testInput]()
	iq.Enqueue("p1", InputMessage[testInput]{Seq: 0})
	iq.Enqueue("p2", InputMessage[testInput]{Seq: 7})
	iq.AddClient("silent")

	batch := iq.GetAllPendingInputsBatched()
	require.Len(t, batch, 2, "молчащие клиенты не попадают в батч")
	assert.Len(t, batch["p1"], 1)
	assert.Equal(t, int64(7), batch["p2"][0].Seq)
}

func TestInputQueue_RemoveClient(t *testing.T) {
	iq := NewInputQueue[testInput]()
	iq.Enqueue("p1", InputMessage[testInput]{Seq: 0})
	iq.Acknowledge("p1", 0)

	iq.RemoveClient("p1")
	iq.RemoveClient("p1") // Повтор — no-op

	assert.Equal(t, 0, iq.PendingCount())
	// Курсор подтверждений тоже удалён: seq 0 снова принимается
	iq.Enqueue("p1", InputMessage[testInput]{Seq: 0})
	assert.Len(t, iq.GetPendingInputs("p1"), 1)
}
