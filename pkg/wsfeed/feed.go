// pkg/wsfeed/feed.go
package wsfeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/logger"
)

// authEnvelope — управляющий конверт аутентификации, уходит первым
// сообщением после открытия соединения.
type authEnvelope struct {
	Type   string `json:"type"`
	APIKey string `json:"apiKey"`
}

// Feed управляет одним логическим соединением: владеет сокетом и
// счётчиком реконнектов, транслирует события транспорта в переходы
// состояний. Попытка N+1 никогда не начинается до полной обработки
// закрытия попытки N: весь жизненный цикл ведёт одна горутина run.
type Feed[T any] struct {
	cfg    Config
	pol    policy
	decode DecodeFunc[T]
	log    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	updates chan Snapshot[T]

	// сериализация записи: gorilla допускает одного писателя
	writeMu sync.Mutex

	mu            sync.RWMutex
	started       bool
	closed        bool
	updatesClosed bool
	state         State
	conn          *websocket.Conn
	data          *T
	errMsg        string
	attempts      int
}

// New создаёт Feed для пары (url, config). Ошибки конструирования
// (пустой или не-ws URL, отрицательный лимит попыток) возвращаются
// сразу, соединение при этом не открывается.
func New[T any](cfg Config, decode DecodeFunc[T], log *logger.Logger) (*Feed[T], error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if decode == nil {
		decode = DecodeJSON[T]
	}
	return &Feed[T]{
		cfg:     cfg,
		pol:     newPolicy(cfg),
		decode:  decode,
		log:     log.Named("wsfeed"),
		done:    make(chan struct{}),
		updates: make(chan Snapshot[T], cfg.UpdateBuffer),
		state:   StateIdle,
	}, nil
}

// Start запускает цикл соединения. Повторный вызов — ошибка;
// вызов после Close — ошибка.
func (f *Feed[T]) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.started {
		f.mu.Unlock()
		return ErrAlreadyStarted
	}
	f.started = true
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	go f.run()
	return nil
}

// Close — teardown: синхронно отменяет ожидающий таймер реконнекта,
// закрывает сокет и запрещает любые дальнейшие попытки. Безопасен
// при повторных вызовах и до Start.
func (f *Feed[T]) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	started := f.started
	cancel := f.cancel
	conn := f.conn
	f.conn = nil
	if f.state != StateIdle {
		f.state = StateClosed
	}
	// без запущенного run некому закрыть каналы
	if !started {
		f.updatesClosed = true
	}
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}
	if !started {
		close(f.updates)
		close(f.done)
	}
	return nil
}

// Updates возвращает канал снапшотов. Буфер коалесцирующий: при
// медленном потребителе старый снапшот вытесняется новым. Канал
// закрывается после остановки запущенного фида.
func (f *Feed[T]) Updates() <-chan Snapshot[T] { return f.updates }

// Done закрывается, когда цикл соединения завершился (teardown или
// терминальное исчерпание ретраев).
func (f *Feed[T]) Done() <-chan struct{} { return f.done }

// Snapshot возвращает текущую проекцию состояния.
func (f *Feed[T]) Snapshot() Snapshot[T] {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshotLocked()
}

// Send сериализует msg в JSON и отправляет, если соединение открыто.
// Иначе передача не выполняется, а ошибка фиксируется в снапшоте.
func (f *Feed[T]) Send(msg any) error {
	f.mu.RLock()
	conn := f.conn
	open := f.state == StateOpen
	f.mu.RUnlock()

	if !open || conn == nil {
		f.recordErr(ErrNotConnected)
		return ErrNotConnected
	}
	if err := f.writeJSON(conn, msg); err != nil {
		err = fmt.Errorf("wsfeed: send: %w", err)
		f.recordErr(err)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Цикл соединения
// -----------------------------------------------------------------------------

func (f *Feed[T]) run() {
	defer close(f.done)
	defer func() {
		f.mu.Lock()
		f.updatesClosed = true
		f.mu.Unlock()
		close(f.updates)
	}()

	for {
		if f.ctx.Err() != nil {
			return
		}

		f.setConnecting()
		conn, err := f.dial()
		if err == nil {
			f.onOpen(conn)
			if cerr := f.sendControlEnvelopes(conn); cerr != nil {
				err = cerr
			} else {
				err = f.readLoop(conn)
			}
			_ = conn.Close()
		}

		if f.ctx.Err() != nil {
			// teardown, не сбой
			return
		}

		delay, retry := f.onClosed(err)
		if !retry {
			f.log.Error("ws: terminally closed", zap.Error(err))
			return
		}

		f.log.Warn("ws: reconnect scheduled",
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-f.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (f *Feed[T]) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: f.cfg.HandshakeTimeout,
		Subprotocols:     f.cfg.SubProtocols,
	}
	conn, _, err := dialer.DialContext(f.ctx, f.cfg.URL, nil)
	return conn, err
}

// onOpen: переход в Open, сброс ошибки и счётчика реконнектов.
func (f *Feed[T]) onOpen(conn *websocket.Conn) {
	f.mu.Lock()
	f.state = StateOpen
	f.conn = conn
	f.errMsg = ""
	f.attempts = 0
	f.publishLocked()
	f.mu.Unlock()

	f.log.Info("ws: connected", zap.String("url", f.cfg.URL))
}

// sendControlEnvelopes отправляет auth и subscribe, строго в этом
// порядке. Ошибка отправки трактуется как транспортная и уводит
// соединение в закрытие.
func (f *Feed[T]) sendControlEnvelopes(conn *websocket.Conn) error {
	if f.cfg.AuthToken != "" {
		if err := f.writeJSON(conn, authEnvelope{Type: "auth", APIKey: f.cfg.AuthToken}); err != nil {
			return fmt.Errorf("wsfeed: auth: %w", err)
		}
	}
	if f.cfg.SubscribePayload != nil {
		if err := f.writeJSON(conn, f.cfg.SubscribePayload); err != nil {
			return fmt.Errorf("wsfeed: subscribe: %w", err)
		}
	}
	return nil
}

func (f *Feed[T]) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.onMessage(data)
	}
}

// onMessage: успешный декод замещает данные целиком; сбой декода
// фиксирует ошибку, не трогая ни данные, ни состояние соединения.
func (f *Feed[T]) onMessage(data []byte) {
	v, err := f.decode(data)

	f.mu.Lock()
	if err != nil {
		f.errMsg = err.Error()
	} else {
		f.data = &v
	}
	f.publishLocked()
	f.mu.Unlock()
}

// onClosed: переход в Closed и решение о реконнекте. Счётчик попыток
// участвует в решении и в показателе степени ДО инкремента.
func (f *Feed[T]) onClosed(cause error) (time.Duration, bool) {
	if cause == nil {
		cause = errors.New("connection closed by peer")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = StateClosed
	f.conn = nil

	delay, retry := f.pol.next(f.attempts)
	switch {
	case retry:
		f.errMsg = cause.Error()
		f.attempts++
	case f.pol.enabled:
		f.errMsg = fmt.Sprintf("%v (after %d attempts): %v", ErrRetriesExhausted, f.attempts, cause)
	default:
		f.errMsg = cause.Error()
	}
	f.publishLocked()
	return delay, retry
}

// -----------------------------------------------------------------------------
// Вспомогательные
// -----------------------------------------------------------------------------

func (f *Feed[T]) setConnecting() {
	f.mu.Lock()
	f.state = StateConnecting
	f.publishLocked()
	f.mu.Unlock()
}

func (f *Feed[T]) recordErr(err error) {
	f.mu.Lock()
	f.errMsg = err.Error()
	f.publishLocked()
	f.mu.Unlock()
}

func (f *Feed[T]) writeJSON(conn *websocket.Conn, v any) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
	return conn.WriteJSON(v)
}

func (f *Feed[T]) snapshotLocked() Snapshot[T] {
	return Snapshot[T]{
		Data:      f.data,
		Connected: f.state == StateOpen,
		Err:       f.errMsg,
		State:     f.state,
		Attempts:  f.attempts,
	}
}

// publishLocked кладёт снапшот в канал; при заполненном буфере
// вытесняет самый старый (потребителю нужен только последний).
// Вызывать строго под f.mu.
func (f *Feed[T]) publishLocked() {
	if f.updatesClosed {
		return
	}
	snap := f.snapshotLocked()
	select {
	case f.updates <- snap:
		return
	default:
	}
	select {
	case <-f.updates:
	default:
	}
	select {
	case f.updates <- snap:
	default:
	}
}
