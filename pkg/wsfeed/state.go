// pkg/wsfeed/state.go
package wsfeed

// State — состояние логического соединения.
// Idle → Connecting → Open → Closed; из Closed обратно в Connecting
// ведёт только путь реконнекта.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Snapshot — read-only проекция состояния фида для потребителей.
// Потребитель обязан трактовать Data как снимок: каждое успешно
// декодированное сообщение замещает его целиком.
type Snapshot[T any] struct {
	// Data — последнее успешно декодированное значение; nil, пока
	// ничего не принято.
	Data *T

	// Connected строго выводится из state == StateOpen.
	Connected bool

	// Err — описание последней ошибки; пусто после успешного открытия.
	Err string

	// State — текущее состояние соединения.
	State State

	// Attempts — число последовательных попыток реконнекта с момента
	// последнего успешного открытия.
	Attempts int
}
