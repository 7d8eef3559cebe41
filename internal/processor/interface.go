package processor

import (
	"context"

	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/exchange"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/wsfeed"
)

// Processor определяет контракт на обработку снапшотов фида.
type Processor interface {
	// Process обрабатывает один снапшот и публикует результат в Kafka.
	Process(ctx context.Context, snap wsfeed.Snapshot[exchange.Tick]) error
}
