// internal/exchange/exchange.go
//
// Пакет exchange описывает поддерживаемые биржевые источники:
// адрес WebSocket, формат конверта подписки и декодер кадров.
package exchange

import (
	"fmt"
	"sort"
	"time"

	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/wsfeed"
)

// Tick — нормализованное рыночное событие, общее для всех бирж.
type Tick struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	EventTime time.Time `json:"event_time"`
}

// Zero сообщает, что кадр не содержал рыночного события
// (служебный ответ, heartbeat, подтверждение подписки).
func (t Tick) Zero() bool { return t.Symbol == "" }

// Preset связывает имя биржи с её транспортными соглашениями.
type Preset struct {
	// Name — ключ пресета ("binance", "kraken").
	Name string

	// URL — адрес WebSocket по умолчанию.
	URL string

	// SubProtocols — запрашиваемые sub-протоколы, если биржа их требует.
	SubProtocols []string

	// Subscribe строит конверт подписки на перечисленные стримы.
	Subscribe func(streams []string) any

	// Decode разбирает сырой кадр в Tick.
	Decode wsfeed.DecodeFunc[Tick]
}

var presets = map[string]Preset{
	"binance": binancePreset,
	"kraken":  krakenPreset,
}

// ByName возвращает пресет биржи или ошибку со списком известных имён.
func ByName(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		known := make([]string, 0, len(presets))
		for k := range presets {
			known = append(known, k)
		}
		sort.Strings(known)
		return Preset{}, fmt.Errorf("exchange: unknown exchange %q (known: %v)", name, known)
	}
	return p, nil
}
