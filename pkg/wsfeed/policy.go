// pkg/wsfeed/policy.go
package wsfeed

import (
	"math"
	"time"
)

// policy — чистая функция решения о реконнекте.
// Счётчик attempts передаётся ДО инкремента за текущую попытку;
// он же служит показателем степени задержки.
type policy struct {
	enabled bool
	max     int
	base    time.Duration
}

func newPolicy(cfg Config) policy {
	return policy{
		enabled: cfg.reconnectEnabled(),
		max:     cfg.maxAttempts(),
		base:    cfg.BaseReconnectDelay,
	}
}

// next возвращает (задержка, true), если попытка разрешена,
// иначе (0, false): ретраи запрещены или исчерпаны.
func (p policy) next(attempts int) (time.Duration, bool) {
	if !p.enabled || attempts >= p.max {
		return 0, false
	}
	// base * 2^attempts; сдвиг больше 62 переполнил бы int64
	if attempts > 62 {
		return time.Duration(math.MaxInt64), true
	}
	return p.base << uint(attempts), true
}
