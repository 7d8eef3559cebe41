// internal/display/display.go
//
// Пакет display держит последний снапшот фида и отдаёт его по HTTP:
// GET /feed → {"data":..., "connected":..., "error":...}.
package display

import (
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/exchange"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/logger"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/wsfeed"
)

// Display — потребитель снапшотов с HTTP-представлением.
type Display struct {
	log *logger.Logger

	mu   sync.RWMutex
	last wsfeed.Snapshot[exchange.Tick]
}

func New(log *logger.Logger) *Display {
	return &Display{log: log.Named("display")}
}

// Observe фиксирует очередной снапшот.
func (d *Display) Observe(snap wsfeed.Snapshot[exchange.Tick]) {
	d.mu.Lock()
	prev := d.last
	d.last = snap
	d.mu.Unlock()

	switch {
	case snap.Data != nil && (prev.Data == nil || *prev.Data != *snap.Data):
		d.log.Debug("tick",
			zap.String("exchange", snap.Data.Exchange),
			zap.String("symbol", snap.Data.Symbol),
			zap.Float64("price", snap.Data.Price),
		)
	case snap.Err != "" && snap.Err != prev.Err:
		d.log.Warn("feed error", zap.String("error", snap.Err))
	case snap.State != prev.State:
		d.log.Info("feed state", zap.String("state", snap.State.String()))
	}
}

// Last возвращает последний наблюдавшийся снапшот.
func (d *Display) Last() wsfeed.Snapshot[exchange.Tick] {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

type feedResponse struct {
	Data      *exchange.Tick `json:"data"`
	Connected bool           `json:"connected"`
	Error     string         `json:"error,omitempty"`
	State     string         `json:"state"`
	Attempts  int            `json:"attempts"`
}

// Handler отдаёт последний снапшот в JSON.
func (d *Display) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := d.Last()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(feedResponse{
			Data:      snap.Data,
			Connected: snap.Connected,
			Error:     snap.Err,
			State:     snap.State.String(),
			Attempts:  snap.Attempts,
		}); err != nil {
			d.log.Error("encode feed response", zap.Error(err))
		}
	})
}
