// internal/transport/feed/stream_test.go
package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/exchange"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/logger"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/wsfeed"
)

// Счётчики фида живут в цикле пересылки снапшотов, а не в Kafka-пайплайне:
// они растут и когда публикация выключена.
func TestStreamWithMetrics_CountsUpdatesAndDecodeErrors(t *testing.T) {
	RegisterMetrics(prometheus.NewRegistry())
	metrics.Register(prometheus.NewRegistry())

	updatesBefore := testutil.ToFloat64(metrics.UpdatesTotal)
	decodeBefore := testutil.ToFloat64(metrics.DecodeErrors)

	upg := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil { // subscribe
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"e":"trade","s":"BTCUSDT","p":"1.5","q":"2","T":1700000000000}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{broken`))
		<-r.Context().Done()
	}))
	defer server.Close()

	preset, err := exchange.ByName("binance")
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	log, err := logger.New(logger.Config{Level: "debug", DevMode: true})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	off := false
	cfg := wsfeed.Config{
		URL:              "ws" + strings.TrimPrefix(server.URL, "http"),
		SubscribePayload: preset.Subscribe([]string{"btcusdt@trade"}),
		Reconnect:        &off,
		UpdateBuffer:     64,
	}
	f, err := wsfeed.New[exchange.Tick](cfg, preset.Decode, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, err := StreamWithMetrics(ctx, f)
	if err != nil {
		t.Fatalf("StreamWithMetrics: %v", err)
	}
	go func() {
		for range out {
		}
	}()

	deadline := time.After(3 * time.Second)
	for {
		updates := testutil.ToFloat64(metrics.UpdatesTotal) - updatesBefore
		decodes := testutil.ToFloat64(metrics.DecodeErrors) - decodeBefore
		if updates >= 2 && decodes >= 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("counters not incremented: updates=%v decode errors=%v", updates, decodes)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
