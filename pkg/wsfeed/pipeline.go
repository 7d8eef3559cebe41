// pkg/wsfeed/pipeline.go
package wsfeed

import (
	"encoding/json"
	"fmt"
)

// DecodeFunc превращает сырой кадр в типизированное значение T.
// Ошибка декодирования не фатальна: соединение остаётся открытым,
// предыдущее значение сохраняется.
type DecodeFunc[T any] func(data []byte) (T, error)

// DecodeJSON — декодер по умолчанию: структурный разбор JSON в T
// без дополнительной валидации формы (форма полезной нагрузки
// доверяется транспорту).
func DecodeJSON[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("wsfeed: decode: %w", err)
	}
	return v, nil
}
