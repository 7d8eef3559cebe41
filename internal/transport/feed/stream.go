// internal/transport/feed/stream.go
package feed

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/exchange"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/wsfeed"
)

var tracer = otel.Tracer("feed/transport")

// StreamWithMetrics запускает фид и оборачивает его канал снапшотов
// трассировкой и метриками.
func StreamWithMetrics(ctx context.Context, f *wsfeed.Feed[exchange.Tick]) (<-chan wsfeed.Snapshot[exchange.Tick], error) {
	ctx, span := tracer.Start(ctx, "feed.stream")
	defer span.End()

	if err := f.Start(ctx); err != nil {
		IncError("start")
		span.RecordError(err)
		return nil, err
	}
	IncState(wsfeed.StateConnecting.String())

	out := make(chan wsfeed.Snapshot[exchange.Tick], 1)
	go func() {
		defer close(out)
		prev := wsfeed.StateIdle
		for snap := range f.Updates() {
			_, span := tracer.Start(ctx, "feed.update")
			span.SetAttributes(
				attribute.String("state", snap.State.String()),
				attribute.Int("attempts", snap.Attempts),
			)
			if snap.State != prev {
				IncState(snap.State.String())
				prev = snap.State
			}
			SetAttempts(snap.Attempts)
			metrics.UpdatesTotal.Inc()
			if snap.Err != "" {
				IncError("snapshot")
				// ошибка при открытом сокете — это битый кадр
				if snap.Connected {
					metrics.DecodeErrors.Inc()
				}
			}
			if snap.Data != nil {
				IncUpdate("data")
			} else {
				IncUpdate("state")
			}
			// потребителю важен только последний снапшот: при
			// отставании старый вытесняется
			select {
			case out <- snap:
			default:
				IncUpdate("drop")
				select {
				case <-out:
				default:
				}
				select {
				case out <- snap:
				default:
				}
			}
			span.End()
		}
	}()
	return out, nil
}
