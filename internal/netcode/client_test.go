package netcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/netcode/internal/network"
	"github.com/annel0/netcode/internal/protocol"
)

// sendRaw отправляет сообщение в канал от имени рукодельного "сервера"
func sendRaw(t *testing.T, channel network.NetChannel, msgType protocol.MessageType, payload interface{}) {
	t.Helper()
	serializer, err := protocol.NewMessageSerializer()
	require.NoError(t, err)
	msg, err := serializer.BuildEnvelope(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, channel.Send(msg))
}

// connectedClient поднимает сервер и подключённого к нему клиента
func connectedClient(t *testing.T) (*GameServer[testWorld, testInput, struct{}], *Client[testWorld, testInput, struct{}]) {
	t.Helper()

	gs := newServerForTest(t)
	clientSide, serverSide := network.NewMemoryChannelPair()

	client, err := NewClient[testWorld, testInput, struct{}](clientSide, testScope{}, DefaultClientConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Destroy() })

	require.NoError(t, gs.AddClient("p1", serverSide))
	require.NoError(t, client.WaitReady())

	require.Eventually(t, func() bool {
		_, ok := client.GetPlayerID()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	return gs, client
}

func TestClient_HandshakeCompletes(t *testing.T) {
	_, client := connectedClient(t)

	assert.InDelta(t, 1000.0/60.0, client.TickIntervalMs(), 1e-9)

	id, ok := client.GetPlayerID()
	require.True(t, ok)
	assert.Equal(t, PlayerID("p1"), id)
}

func TestClient_HandshakeRejectsIncompatibleInterval(t *testing.T) {
	gs := newServerForTest(t)
	clientSide, serverSide := network.NewMemoryChannelPair()

	cfg := DefaultClientConfig()
	cfg.ExpectedTickIntervalMs = 20 // Сервер работает на ~16.67
	client, err := NewClient[testWorld, testInput, struct{}](clientSide, testScope{}, cfg)
	require.NoError(t, err)
	defer client.Destroy()

	require.NoError(t, gs.AddClient("p1", serverSide))

	err = client.WaitReady()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "несовместим")

	// Несовместимый клиент не может отправлять вводы
	assert.Error(t, client.SendInput(testInput{Dx: 1}))
}

func TestClient_HandshakeTimeout(t *testing.T) {
	clientSide, _ := network.NewMemoryChannelPair()

	cfg := DefaultClientConfig()
	cfg.HandshakeTimeout = 50 * time.Millisecond
	client, err := NewClient[testWorld, testInput, struct{}](clientSide, testScope{}, cfg)
	require.NoError(t, err)
	defer client.Destroy()

	assert.Error(t, client.WaitReady(), "молчащий сервер — таймаут")
}

func TestClient_SendInputBeforeReadyFails(t *testing.T) {
	clientSide, _ := network.NewMemoryChannelPair()

	client, err := NewClient[testWorld, testInput, struct{}](clientSide, testScope{}, DefaultClientConfig())
	require.NoError(t, err)
	defer client.Destroy()

	assert.Error(t, client.SendInput(testInput{Dx: 1}))
}

func TestClient_PredictionAndReconciliationConverge(t *testing.T) {
	gs, client := connectedClient(t)

	require.NoError(t, client.SendInput(testInput{Dx: 1}))
	assert.Equal(t, 1, client.PendingInputs())

	// Ввод доехал до сервера, тик его обработал и подтвердил
	require.Eventually(t, func() bool {
		return gs.inputs.PendingCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	gs.runTick()

	require.Eventually(t, func() bool {
		return client.PendingInputs() == 0
	}, 2*time.Second, 5*time.Millisecond)

	// После реконсиляции предсказание совпадает с авторитетным миром
	serverX := gs.CurrentWorld().Players["p1"].X
	state, ok := client.GetStateForRendering(16)
	require.True(t, ok)
	assert.InDelta(t, serverX, state.World.Players["p1"].X, 1e-9)
	assert.True(t, state.HasLocal)
}

func TestClient_RemoteSmoothersFollowSnapshot(t *testing.T) {
	gs, client := connectedClient(t)

	// Второй игрок появляется в мире
	_, serverSide2 := network.NewMemoryChannelPair()
	defer serverSide2.Close()
	require.NoError(t, gs.AddClient("p2", serverSide2))

	gs.runTick()
	gs.runTick()

	require.Eventually(t, func() bool {
		state, ok := client.GetStateForRendering(1)
		if !ok {
			return false
		}
		_, hasRemote := state.Remote["p2"]
		return hasRemote
	}, 2*time.Second, 5*time.Millisecond)

	// Игрок ушёл — смузер вычищается
	gs.RemoveClient("p2")
	gs.runTick()

	require.Eventually(t, func() bool {
		state, ok := client.GetStateForRendering(1)
		if !ok {
			return false
		}
		_, hasRemote := state.Remote["p2"]
		return !hasRemote
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClient_StaleSnapshotIgnored(t *testing.T) {
	clientSide, fakeServer := network.NewMemoryChannelPair()
	defer fakeServer.Close()

	client, err := NewClient[testWorld, testInput, struct{}](clientSide, testScope{}, DefaultClientConfig())
	require.NoError(t, err)
	defer client.Destroy()

	sendRaw(t, fakeServer, protocol.MsgConfig, protocol.ConfigMessage{TickIntervalMs: 1000.0 / 60.0, TickRate: 60})
	require.NoError(t, client.WaitReady())
	sendRaw(t, fakeServer, protocol.MsgJoin, protocol.JoinMessage{PlayerID: "p1"})

	sendRaw(t, fakeServer, protocol.MsgSnapshot, Snapshot[testWorld]{Tick: 200, Timestamp: 2000, State: newTestWorld("p1")})
	require.Eventually(t, func() bool {
		snap, ok := client.GetLastServerSnapshot()
		return ok && snap.Tick == 200
	}, 2*time.Second, 5*time.Millisecond)

	// Небольшой откат — устаревший снимок, игнорируется
	sendRaw(t, fakeServer, protocol.MsgSnapshot, Snapshot[testWorld]{Tick: 195, Timestamp: 1950, State: newTestWorld("p1")})
	time.Sleep(100 * time.Millisecond)
	snap, _ := client.GetLastServerSnapshot()
	assert.Equal(t, int64(200), snap.Tick)
}

func TestClient_TickRegressionTriggersReset(t *testing.T) {
	clientSide, fakeServer := network.NewMemoryChannelPair()
	defer fakeServer.Close()

	client, err := NewClient[testWorld, testInput, struct{}](clientSide, testScope{}, DefaultClientConfig())
	require.NoError(t, err)
	defer client.Destroy()

	sendRaw(t, fakeServer, protocol.MsgConfig, protocol.ConfigMessage{TickIntervalMs: 1000.0 / 60.0, TickRate: 60})
	require.NoError(t, client.WaitReady())
	sendRaw(t, fakeServer, protocol.MsgJoin, protocol.JoinMessage{PlayerID: "p1"})

	sendRaw(t, fakeServer, protocol.MsgSnapshot, Snapshot[testWorld]{Tick: 500, Timestamp: 5000, State: newTestWorld("p1")})
	require.Eventually(t, func() bool {
		snap, ok := client.GetLastServerSnapshot()
		return ok && snap.Tick == 500
	}, 2*time.Second, 5*time.Millisecond)

	// Глубокий откат счётчика — сервер перезапущен, клиент начинает заново
	sendRaw(t, fakeServer, protocol.MsgSnapshot, Snapshot[testWorld]{Tick: 10, Timestamp: 100, State: newTestWorld("p1")})
	require.Eventually(t, func() bool {
		snap, ok := client.GetLastServerSnapshot()
		return ok && snap.Tick == 10
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClient_ActionRoundTrip(t *testing.T) {
	def := GameDef[testWorld, testInput, testAction]{
		InitialWorld:    newTestWorld(),
		Simulate:        testSimulate,
		AddPlayer:       testAddPlayer,
		RemovePlayer:    testRemovePlayer,
		MergeInputs:     testMergeInputs,
		CreateIdleInput: testCreateIdleInput,
		TickIntervalMs:  testTickIntervalMs,
		ValidateAction: func(a testAction, rewound, current testWorld, attackerID PlayerID) ActionResult {
			return ActionResult{Success: a.Kind == "dash"}
		},
	}
	gs, err := NewGameServer(def)
	require.NoError(t, err)

	clientSide, serverSide := network.NewMemoryChannelPair()
	client, err := NewClient[testWorld, testInput, testAction](clientSide, testScope{}, DefaultClientConfig())
	require.NoError(t, err)
	defer client.Destroy()

	results := make(chan ActionResult, 4)
	client.OnActionResult(func(res ActionResult) { results <- res })

	require.NoError(t, gs.AddClient("p1", serverSide))
	require.NoError(t, client.WaitReady())
	require.Eventually(t, func() bool {
		_, ok := client.GetPlayerID()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	seq, err := client.SendAction(testAction{Kind: "dash"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return gs.actions.Len() == 1
	}, 2*time.Second, 5*time.Millisecond)
	gs.runTick()

	select {
	case res := <-results:
		assert.Equal(t, seq, res.Seq)
		assert.True(t, res.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("результат действия не пришёл")
	}
}

func TestClient_SetSimulatedLatency(t *testing.T) {
	clientSide, _ := network.NewMemoryChannelPair()
	client, err := NewClient[testWorld, testInput, struct{}](clientSide, testScope{}, DefaultClientConfig())
	require.NoError(t, err)
	defer client.Destroy()

	assert.True(t, client.SetSimulatedLatency(10*time.Millisecond), "memory-канал умеет задержку")
}
