// internal/processor/publisher.go
package processor

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/exchange"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/kafka"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/logger"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/wsfeed"
)

var tracer = otel.Tracer("feed/processor")

// tickPublisher публикует тики фида в Kafka. Снапшоты без новых
// данных (смена состояния, ошибки декодирования) пропускаются.
type tickPublisher struct {
	producer kafka.Producer
	topic    string
	log      *logger.Logger

	lastData *exchange.Tick
}

// NewTickPublisher создаёт Processor, публикующий тики в topic.
func NewTickPublisher(p kafka.Producer, topic string, log *logger.Logger) Processor {
	return &tickPublisher{producer: p, topic: topic, log: log.Named("tick-publisher")}
}

// Process публикует тик из снапшота, если он новый.
// Идентичность указателя Data отличает свежие данные от повторов:
// каждое успешно декодированное сообщение несёт новый указатель.
func (tp *tickPublisher) Process(ctx context.Context, snap wsfeed.Snapshot[exchange.Tick]) error {
	if snap.Data == nil || snap.Data == tp.lastData {
		return nil
	}
	tp.lastData = snap.Data

	tick := *snap.Data
	if tick.Zero() {
		// служебный кадр без рыночного события
		return nil
	}

	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithAttributes(
			attribute.String("exchange", tick.Exchange),
			attribute.String("symbol", tick.Symbol),
		))
	defer span.End()

	payload, err := json.Marshal(tick)
	if err != nil {
		tp.log.WithContext(ctx).Error("marshal tick failed", zap.Error(err))
		span.RecordError(err)
		return err
	}

	start := time.Now()
	if err := tp.producer.Publish(ctx, tp.topic, []byte(tick.Symbol), payload); err != nil {
		metrics.PublishErrors.Inc()
		tp.log.WithContext(ctx).Error("publish tick failed",
			zap.String("symbol", tick.Symbol),
			zap.Error(err),
		)
		span.RecordError(err)
		return err
	}
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	return nil
}
