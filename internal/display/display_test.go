// internal/display/display_test.go
package display

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/exchange"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/logger"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/wsfeed"
)

func TestDisplay_ObserveAndHandler(t *testing.T) {
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	d := New(log)

	// пустое состояние
	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/feed", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	var empty feedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &empty); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if empty.Data != nil || empty.Connected {
		t.Errorf("empty response = %+v; want no data, disconnected", empty)
	}

	tick := exchange.Tick{Exchange: "binance", Symbol: "BTCUSDT", Price: 42000, EventTime: time.Now()}
	d.Observe(wsfeed.Snapshot[exchange.Tick]{
		Data:      &tick,
		Connected: true,
		State:     wsfeed.StateOpen,
	})

	rec = httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/feed", nil))
	var got feedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Data == nil || got.Data.Symbol != "BTCUSDT" || got.Data.Price != 42000 {
		t.Errorf("Data = %+v; want BTCUSDT@42000", got.Data)
	}
	if !got.Connected || got.State != "open" {
		t.Errorf("response = %+v; want connected/open", got)
	}
}

func TestDisplay_MethodNotAllowed(t *testing.T) {
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	d := New(log)

	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/feed", nil))
	if rec.Code != 405 {
		t.Errorf("status = %d; want 405", rec.Code)
	}
}
