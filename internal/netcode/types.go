// Package netcode реализует серверно-авторитетную симуляцию с фиксированным
// тиком, клиентским предсказанием, реконсиляцией и графическим сглаживанием.
// Ядро параметризовано типами мира (W), ввода (I) и действия (A) и никогда
// не заглядывает внутрь мира напрямую — только через пользовательские хуки.
package netcode

import (
	"github.com/annel0/netcode/internal/vec"
)

// PlayerID идентифицирует игрока в рамках сессии сервера
type PlayerID = string

// InputMessage ввод одного тика с клиентским порядковым номером.
// Seq монотонно растёт и назначается клиентом; Timestamp — клиентские
// wall-clock миллисекунды, информационное поле.
type InputMessage[I any] struct {
	Seq       int64 `json:"seq"`
	Input     I     `json:"input"`
	Timestamp int64 `json:"timestamp"`
}

// Snapshot авторитетное состояние мира на конец одного серверного тика.
// InputAcks перечисляет только игроков, чьи вводы были обработаны в этом тике.
type Snapshot[W any] struct {
	Tick      int64              `json:"tick"`
	Timestamp int64              `json:"timestamp"`
	State     W                  `json:"state"`
	InputAcks map[PlayerID]int64 `json:"inputAcks"`
}

// ActionMessage дискретное событие (выстрел, атака), ортогональное потиковым
// вводам; передаётся по надёжному каналу.
type ActionMessage[A any] struct {
	Seq             int64 `json:"seq"`
	Action          A     `json:"action"`
	ClientTimestamp int64 `json:"clientTimestamp"`
}

// ActionResult ответ один-к-одному на каждое ActionMessage
type ActionResult struct {
	Seq     int64       `json:"seq"`
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SimulateFunc продвигает мир ровно на один фиксированный тик.
// Контракт: функция чистая и детерминированная — одинаковый мир, одинаковая
// карта вводов и одинаковая дельта дают бит-идентичный следующий мир.
// Мутировать разрешено только игроков, присутствующих в inputs.
type SimulateFunc[W, I any] func(world W, inputs map[PlayerID]I, deltaMs float64) W

// InputMergerFunc схлопывает несколько вводов одного тика в один, сохраняя
// edge-triggered поля (нажатие прыжка переживает слияние, даже если его нет
// в последнем вводе).
type InputMergerFunc[I any] func(inputs []I) I

// CreateIdleInputFunc создаёт ввод-заглушку "ничего не делать" для молчащих
// клиентов, чтобы Simulate единообразно применял пассивную физику.
type CreateIdleInputFunc[I any] func(playerID PlayerID) I

// ValidateActionFunc проверяет действие против отмотанного мира.
// rewound — исторический снимок на момент действия клиента, current — текущий
// мир. Валидация не должна изменять состояние.
type ValidateActionFunc[W, A any] func(action A, rewound W, current W, attackerID PlayerID) ActionResult

// ApplyActionFunc применяет эффект валидного действия к текущему миру
type ApplyActionFunc[W, A any] func(world W, action A, attackerID PlayerID) W

// GameDef описывает игру для конструирования сервера.
// Simulate, AddPlayer, RemovePlayer, MergeInputs и CreateIdleInput обязательны;
// ValidateAction/ApplyAction нужны только играм с дискретными действиями.
type GameDef[W, I, A any] struct {
	InitialWorld W
	Simulate     SimulateFunc[W, I]

	// Мир обновляется только через эти хуки, никогда напрямую
	AddPlayer    func(world W, playerID PlayerID) W
	RemovePlayer func(world W, playerID PlayerID) W

	MergeInputs     InputMergerFunc[I]
	CreateIdleInput CreateIdleInputFunc[I]

	ValidateAction ValidateActionFunc[W, A]
	ApplyAction    ApplyActionFunc[W, A]

	// OnSimulateError вызывается при панике Simulate; тик при этом
	// отброшен, мир и счётчик тиков не изменены
	OnSimulateError func(tick int64, err error)

	TickIntervalMs      float64
	SnapshotHistorySize int
}

// PredictionScope пользовательские возможности, через которые ядро работает
// с непрозрачным миром на клиенте.
type PredictionScope[W, I any] interface {
	// StepLocalOnly применяет ввод только к названному игроку; остальные
	// продвигаются детерминированным idle-шагом (гравитация, затухание
	// скорости), чтобы не протухать во время локального реплея
	StepLocalOnly(world W, localPlayerID PlayerID, input I, deltaMs float64) W

	// ExtractLocalPlayer/ReplaceLocalPlayer используются MergeWithServer
	ExtractLocalPlayer(world W, localPlayerID PlayerID) (interface{}, bool)
	ReplaceLocalPlayer(world W, localPlayerID PlayerID, player interface{}) W

	// LocalPlayerPosition опциональна: возвращает false, если позиция
	// недоступна — тогда визуальное сглаживание коррекций отключено
	LocalPlayerPosition(world W, playerID PlayerID) (vec.Vec2, bool)
}

// PlayerLister опциональное расширение PredictionScope: перечисляет игроков
// непрозрачного мира. Без него клиент не сглаживает удалённых игроков.
type PlayerLister[W any] interface {
	ListPlayers(world W) []PlayerID
}
