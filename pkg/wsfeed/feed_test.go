// pkg/wsfeed/feed_test.go
package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/logger"
)

type tick struct {
	Price float64 `json:"price"`
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "debug", DevMode: true})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// waitFor читает из канала снапшотов до первого, удовлетворяющего pred.
func waitFor[T any](t *testing.T, ch <-chan Snapshot[T], d time.Duration, pred func(Snapshot[T]) bool) Snapshot[T] {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatalf("updates channel closed before condition met")
			}
			if pred(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timeout waiting for snapshot condition")
		}
	}
}

func TestNew_ConstructionErrors(t *testing.T) {
	log := testLogger(t)
	cases := []struct {
		name string
		cfg  Config
	}{
		{"emptyURL", Config{}},
		{"badScheme", Config{URL: "http://example.com"}},
		{"negativeMax", Config{URL: "ws://example.com", MaxReconnectAttempts: intPtr(-1)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := New[tick](c.cfg, nil, log); err == nil {
				t.Errorf("New(%+v): expected error", c.cfg)
			}
		})
	}
}

// Порядок управляющих конвертов: auth строго до subscribe, полезная
// нагрузка подписки уходит как есть.
func TestFeed_AuthThenSubscribe(t *testing.T) {
	upg := websocket.Upgrader{}
	gotFrames := make(chan string, 2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			gotFrames <- string(msg)
		}
	}))
	defer server.Close()

	cfg := Config{
		URL:              wsURL(server),
		AuthToken:        "secret-token",
		SubscribePayload: map[string]any{"op": "subscribe", "channel": "ticker"},
		Reconnect:        boolPtr(false),
	}
	feed, err := New[tick](cfg, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer feed.Close()
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var first, second string
	select {
	case first = <-gotFrames:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for auth frame")
	}
	select {
	case second = <-gotFrames:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscribe frame")
	}

	var auth map[string]string
	if err := json.Unmarshal([]byte(first), &auth); err != nil {
		t.Fatalf("auth frame not JSON: %v", err)
	}
	if auth["type"] != "auth" || auth["apiKey"] != "secret-token" {
		t.Errorf("auth frame = %s; want type=auth apiKey=secret-token", first)
	}
	if !strings.Contains(second, `"op":"subscribe"`) || !strings.Contains(second, `"channel":"ticker"`) {
		t.Errorf("subscribe frame = %s; want original payload", second)
	}
}

// Успешный декод замещает данные; сбой декода сохраняет прежние данные
// и не рвёт соединение.
func TestFeed_DecodeFailureKeepsData(t *testing.T) {
	upg := websocket.Upgrader{}
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"price": 42.5}`)); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{oops`)); err != nil {
			return
		}
		<-release
	}))
	defer server.Close()
	defer close(release)

	// буфер с запасом, чтобы ни один промежуточный снапшот не вытеснился
	cfg := Config{URL: wsURL(server), Reconnect: boolPtr(false), UpdateBuffer: 64}
	feed, err := New[tick](cfg, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer feed.Close()
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	good := waitFor(t, feed.Updates(), 2*time.Second, func(s Snapshot[tick]) bool {
		return s.Data != nil
	})
	if good.Data.Price != 42.5 {
		t.Errorf("Data.Price = %v; want 42.5", good.Data.Price)
	}

	bad := waitFor(t, feed.Updates(), 2*time.Second, func(s Snapshot[tick]) bool {
		return s.Err != ""
	})
	if !strings.Contains(bad.Err, "decode") {
		t.Errorf("Err = %q; want decode error", bad.Err)
	}
	if bad.Data == nil || bad.Data.Price != 42.5 {
		t.Errorf("Data after decode failure = %+v; want previous value kept", bad.Data)
	}
	if !bad.Connected {
		t.Error("Connected = false after decode failure; want connection intact")
	}
}

// Send до открытия соединения: передачи нет, ошибка фиксируется.
func TestFeed_SendWhileDisconnected(t *testing.T) {
	cfg := Config{URL: "ws://127.0.0.1:1"}
	feed, err := New[tick](cfg, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer feed.Close()

	if err := feed.Send(map[string]string{"ping": "1"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send = %v; want ErrNotConnected", err)
	}
	snap := feed.Snapshot()
	if snap.Err == "" {
		t.Error("Snapshot().Err empty after failed Send; want recorded error")
	}
	if snap.Connected {
		t.Error("Connected = true; want false")
	}
}

func TestFeed_SendWhileOpen(t *testing.T) {
	upg := websocket.Upgrader{}
	got := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		got <- string(msg)
	}))
	defer server.Close()

	cfg := Config{URL: wsURL(server), Reconnect: boolPtr(false)}
	feed, err := New[tick](cfg, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer feed.Close()
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, feed.Updates(), 2*time.Second, func(s Snapshot[tick]) bool { return s.Connected })
	if err := feed.Send(map[string]string{"op": "ping"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-got:
		if !strings.Contains(msg, `"op":"ping"`) {
			t.Errorf("server received %s; want op=ping", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the message")
	}
}

// Реконнект выключен: ровно одна попытка соединения, терминальное Closed.
func TestFeed_ReconnectDisabled(t *testing.T) {
	upg := websocket.Upgrader{}
	var dials atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	cfg := Config{URL: wsURL(server), Reconnect: boolPtr(false)}
	feed, err := New[tick](cfg, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer feed.Close()
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-feed.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("feed did not terminate")
	}
	if n := dials.Load(); n != 1 {
		t.Errorf("dial count = %d; want exactly 1", n)
	}
	snap := feed.Snapshot()
	if snap.Connected {
		t.Error("Connected = true after terminal close")
	}
	if snap.Err == "" {
		t.Error("Err empty after terminal close; want close reason")
	}
	if strings.Contains(snap.Err, ErrRetriesExhausted.Error()) {
		t.Errorf("Err = %q; disabled reconnect must not read as retries exhausted", snap.Err)
	}
}

// Лимит реконнектов: initial + max попыток с удвоением задержки,
// затем терминальное исчерпание с различимым текстом ошибки.
func TestFeed_RetriesExhausted(t *testing.T) {
	var mu sync.Mutex
	var dialTimes []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dialTimes = append(dialTimes, time.Now())
		mu.Unlock()
		http.Error(w, "no", http.StatusInternalServerError)
	}))
	defer server.Close()

	const base = 50 * time.Millisecond
	cfg := Config{
		URL:                  wsURL(server),
		MaxReconnectAttempts: intPtr(2),
		BaseReconnectDelay:   base,
	}
	feed, err := New[tick](cfg, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer feed.Close()
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-feed.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("feed did not terminate")
	}

	mu.Lock()
	times := append([]time.Time(nil), dialTimes...)
	mu.Unlock()
	if len(times) != 3 {
		t.Fatalf("dial count = %d; want 3 (initial + 2 retries)", len(times))
	}
	// первая пауза >= base, вторая >= 2*base
	if gap := times[1].Sub(times[0]); gap < base {
		t.Errorf("first retry delay = %v; want >= %v", gap, base)
	}
	if gap := times[2].Sub(times[1]); gap < 2*base {
		t.Errorf("second retry delay = %v; want >= %v", gap, 2*base)
	}

	snap := feed.Snapshot()
	if !strings.Contains(snap.Err, ErrRetriesExhausted.Error()) {
		t.Errorf("Err = %q; want exhaustion marker", snap.Err)
	}
}

// Счётчик попыток сбрасывается в ноль при каждом успешном открытии.
func TestFeed_CounterResetOnOpen(t *testing.T) {
	upg := websocket.Upgrader{}
	var dials atomic.Int32
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		if n <= 2 {
			http.Error(w, "no", http.StatusInternalServerError)
			return
		}
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	defer server.Close()
	defer close(release)

	cfg := Config{
		URL:                  wsURL(server),
		MaxReconnectAttempts: intPtr(5),
		BaseReconnectDelay:   5 * time.Millisecond,
		UpdateBuffer:         64,
	}
	feed, err := New[tick](cfg, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer feed.Close()
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := waitFor(t, feed.Updates(), 3*time.Second, func(s Snapshot[tick]) bool {
		return s.Connected
	})
	if snap.Attempts != 0 {
		t.Errorf("Attempts = %d after open; want 0", snap.Attempts)
	}
	if snap.Err != "" {
		t.Errorf("Err = %q after open; want cleared", snap.Err)
	}
}

// Teardown во время ожидания реконнекта синхронно снимает таймер.
func TestFeed_CloseCancelsPendingRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := Config{
		URL:                  wsURL(server),
		MaxReconnectAttempts: intPtr(5),
		BaseReconnectDelay:   time.Minute,
	}
	feed, err := New[tick](cfg, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// ждём, пока первая попытка провалится и таймер будет взведён
	waitFor(t, feed.Updates(), 3*time.Second, func(s Snapshot[tick]) bool {
		return s.Attempts == 1
	})

	start := time.Now()
	if err := feed.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-feed.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not exit after Close")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("teardown took %v; retry timer was not cancelled", elapsed)
	}

	if err := feed.Close(); err != nil {
		t.Errorf("second Close: %v; want nil", err)
	}
}

// Close без Start: Done и Updates закрываются, ожидающий не виснет.
func TestFeed_CloseBeforeStart(t *testing.T) {
	feed, err := New[tick](Config{URL: "ws://example.com"}, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := feed.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-feed.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed after Close on unstarted feed")
	}
	select {
	case _, ok := <-feed.Updates():
		if ok {
			t.Error("Updates() delivered a snapshot; want closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("Updates() not closed after Close on unstarted feed")
	}

	if err := feed.Close(); err != nil {
		t.Errorf("second Close: %v; want nil", err)
	}
}

func TestFeed_StartTwice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := Config{URL: wsURL(server), Reconnect: boolPtr(false)}
	feed, err := New[tick](cfg, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer feed.Close()

	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := feed.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v; want ErrAlreadyStarted", err)
	}

	feed.Close()
	if err := feed.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v; want ErrClosed", err)
	}
}
