// internal/exchange/binance.go
package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// binancePreset описывает Binance spot WS.
// Подписка: {"method":"SUBSCRIBE","params":[...],"id":1}.
var binancePreset = Preset{
	Name: "binance",
	URL:  "wss://stream.binance.com:9443/ws",
	Subscribe: func(streams []string) any {
		return map[string]any{
			"method": "SUBSCRIBE",
			"params": streams,
			"id":     1,
		}
	},
	Decode: decodeBinance,
}

// decodeBinance разбирает trade-событие Binance. Кадры других типов
// (подтверждение подписки, иные события) не ошибка: возвращается
// нулевой Tick, который потребитель отбрасывает.
func decodeBinance(data []byte) (Tick, error) {
	var evt struct {
		EventType string `json:"e"` // тип события
		EventTime int64  `json:"E"` // event time, ms
		Symbol    string `json:"s"`
		Price     string `json:"p"`
		Quantity  string `json:"q"`
		TradeTime int64  `json:"T"` // trade time, ms
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		return Tick{}, fmt.Errorf("binance: decode: %w", err)
	}
	if evt.EventType != "trade" {
		return Tick{}, nil
	}

	price, err := strconv.ParseFloat(evt.Price, 64)
	if err != nil {
		return Tick{}, fmt.Errorf("binance: parse price %q: %w", evt.Price, err)
	}
	qty, err := strconv.ParseFloat(evt.Quantity, 64)
	if err != nil {
		return Tick{}, fmt.Errorf("binance: parse quantity %q: %w", evt.Quantity, err)
	}

	ts := evt.TradeTime
	if ts == 0 {
		ts = evt.EventTime
	}
	return Tick{
		Exchange:  "binance",
		Symbol:    evt.Symbol,
		Price:     price,
		Quantity:  qty,
		EventTime: time.UnixMilli(ts),
	}, nil
}
