package netcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAction struct {
	Kind string `json:"kind"`
}

func TestActionQueue_FIFOOrder(t *testing.T) {
	aq := NewActionQueue[testAction]()
	aq.Enqueue("p1", ActionMessage[testAction]{Seq: 0, Action: testAction{Kind: "a"}})
	aq.Enqueue("p2", ActionMessage[testAction]{Seq: 0, Action: testAction{Kind: "b"}})
	aq.Enqueue("p1", ActionMessage[testAction]{Seq: 1, Action: testAction{Kind: "c"}})

	drained := aq.DrainAll()
	require.Len(t, drained, 3)
	assert.Equal(t, "a", drained[0].msg.Action.Kind)
	assert.Equal(t, "b", drained[1].msg.Action.Kind)
	assert.Equal(t, "c", drained[2].msg.Action.Kind)

	assert.Equal(t, 0, aq.Len())
	assert.Nil(t, aq.DrainAll(), "повторный дрен пустой очереди")
}

func TestActionQueue_RemoveClient(t *testing.T) {
	aq := NewActionQueue[testAction]()
	aq.Enqueue("p1", ActionMessage[testAction]{Seq: 0})
	aq.Enqueue("p2", ActionMessage[testAction]{Seq: 0})
	aq.Enqueue("p1", ActionMessage[testAction]{Seq: 1})

	aq.RemoveClient("p1")

	drained := aq.DrainAll()
	require.Len(t, drained, 1)
	assert.Equal(t, PlayerID("p2"), drained[0].playerID)
}
