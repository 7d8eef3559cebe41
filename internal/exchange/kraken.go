// internal/exchange/kraken.go
package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// krakenPreset описывает Kraken WS v1.
// Подписка: {"event":"subscribe","pair":[...],"subscription":{"name":"ticker"}}.
var krakenPreset = Preset{
	Name: "kraken",
	URL:  "wss://ws.kraken.com",
	Subscribe: func(pairs []string) any {
		return map[string]any{
			"event":        "subscribe",
			"pair":         pairs,
			"subscription": map[string]string{"name": "ticker"},
		}
	},
	Decode: decodeKraken,
}

// decodeKraken разбирает ticker-кадр Kraken v1:
// [channelID, {"c":["price","lot"],"v":["today","24h"],...}, "ticker", "XBT/USD"].
// Событийные JSON-объекты (heartbeat, systemStatus, subscriptionStatus)
// приходят объектами, не массивами, и молча пропускаются.
func decodeKraken(data []byte) (Tick, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		if !json.Valid(data) {
			return Tick{}, fmt.Errorf("kraken: decode: %w", err)
		}
		// валидный JSON, но не массив: служебное событие
		return Tick{}, nil
	}
	if len(frame) < 4 {
		return Tick{}, fmt.Errorf("kraken: short frame: %d elements", len(frame))
	}

	var channel, pair string
	if err := json.Unmarshal(frame[2], &channel); err != nil {
		return Tick{}, fmt.Errorf("kraken: channel name: %w", err)
	}
	if channel != "ticker" {
		return Tick{}, nil
	}
	if err := json.Unmarshal(frame[len(frame)-1], &pair); err != nil {
		return Tick{}, fmt.Errorf("kraken: pair: %w", err)
	}

	var body struct {
		C []string `json:"c"` // close: [price, lot volume]
		V []string `json:"v"` // volume: [today, last 24h]
	}
	if err := json.Unmarshal(frame[1], &body); err != nil {
		return Tick{}, fmt.Errorf("kraken: ticker body: %w", err)
	}
	if len(body.C) == 0 {
		return Tick{}, fmt.Errorf("kraken: ticker without close price")
	}

	price, err := strconv.ParseFloat(body.C[0], 64)
	if err != nil {
		return Tick{}, fmt.Errorf("kraken: parse price %q: %w", body.C[0], err)
	}
	var qty float64
	if len(body.C) > 1 {
		if qty, err = strconv.ParseFloat(body.C[1], 64); err != nil {
			return Tick{}, fmt.Errorf("kraken: parse lot %q: %w", body.C[1], err)
		}
	}

	// ticker Kraken не несёт серверного времени события
	return Tick{
		Exchange:  "kraken",
		Symbol:    pair,
		Price:     price,
		Quantity:  qty,
		EventTime: time.Now().UTC(),
	}, nil
}
