// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/config"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/display"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/exchange"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/internal/processor"
	transportfeed "github.com/YaganovValera/analytics-system/services/market-data-feed/internal/transport/feed"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/backoff"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/httpserver"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/kafka"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/logger"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/telemetry"
	"github.com/YaganovValera/analytics-system/services/market-data-feed/pkg/wsfeed"
)

func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	backoff.SetServiceLabel(cfg.ServiceName)
	kafka.SetServiceLabel(cfg.ServiceName)
	metrics.Register(nil)
	transportfeed.RegisterMetrics(prometheus.DefaultRegisterer)

	// Трассировка
	cfg.Telemetry.ServiceName = cfg.ServiceName
	cfg.Telemetry.ServiceVersion = cfg.ServiceVersion
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownSafe(ctx, "telemetry", func() error { return shutdownTracer(ctx) }, log)

	// 1) Пресет биржи и конфиг фида
	preset, err := exchange.ByName(cfg.Feed.Exchange)
	if err != nil {
		return err
	}
	url := preset.URL
	if cfg.Feed.URL != "" {
		url = cfg.Feed.URL
	}
	reconnect := cfg.Feed.Reconnect
	maxAttempts := cfg.Feed.MaxReconnectAttempts
	feedCfg := wsfeed.Config{
		URL:                  url,
		AuthToken:            cfg.Feed.AuthToken,
		SubscribePayload:     preset.Subscribe(cfg.Feed.Streams),
		SubProtocols:         preset.SubProtocols,
		Reconnect:            &reconnect,
		MaxReconnectAttempts: &maxAttempts,
		BaseReconnectDelay:   cfg.Feed.BaseReconnectDelay,
		HandshakeTimeout:     cfg.Feed.HandshakeTimeout,
		WriteTimeout:         cfg.Feed.WriteTimeout,
		UpdateBuffer:         64,
	}
	f, err := wsfeed.New(feedCfg, preset.Decode, log)
	if err != nil {
		return fmt.Errorf("feed init: %w", err)
	}
	defer shutdownSafe(ctx, "feed", f.Close, log)

	// 2) Kafka Producer (опционально)
	var kafkaProd kafka.Producer
	var procs []processor.Processor
	if cfg.Kafka.Enabled {
		kafkaProd, err = kafka.NewProducer(ctx, kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			RequiredAcks:   cfg.Kafka.Acks,
			Timeout:        cfg.Kafka.Timeout,
			Compression:    cfg.Kafka.Compression,
			FlushFrequency: cfg.Kafka.FlushFrequency,
			FlushMessages:  cfg.Kafka.FlushMessages,
			Backoff:        cfg.Kafka.Backoff,
		}, log)
		if err != nil {
			return fmt.Errorf("kafka producer init: %w", err)
		}
		defer shutdownSafe(ctx, "kafka-producer", kafkaProd.Close, log)
		procs = append(procs, processor.NewTickPublisher(kafkaProd, cfg.Kafka.TicksTopic, log))
	}

	// 3) Состояние для HTTP
	disp := display.New(log)

	readiness := func() error {
		if !f.Snapshot().Connected {
			return errors.New("feed not connected")
		}
		if kafkaProd != nil {
			return kafkaProd.Ping(ctx)
		}
		return nil
	}
	httpSrv, err := httpserver.New(
		httpserver.Config{
			Addr:            fmt.Sprintf(":%d", cfg.HTTP.Port),
			ReadTimeout:     cfg.HTTP.ReadTimeout,
			WriteTimeout:    cfg.HTTP.WriteTimeout,
			IdleTimeout:     cfg.HTTP.IdleTimeout,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
			MetricsPath:     cfg.HTTP.MetricsPath,
			HealthzPath:     cfg.HTTP.HealthzPath,
			ReadyzPath:      cfg.HTTP.ReadyzPath,
		},
		readiness,
		log,
		map[string]http.Handler{cfg.HTTP.FeedPath: disp.Handler()},
		httpserver.RecoverMiddleware,
		httpserver.CORSMiddleware(),
	)
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	// HTTP
	g.Go(func() error { return httpSrv.Start(ctx) })

	// Основной цикл: фид → display (+ Kafka)
	g.Go(func() error {
		updates, err := transportfeed.StreamWithMetrics(ctx, f)
		if err != nil {
			return fmt.Errorf("feed start: %w", err)
		}
		for snap := range updates {
			disp.Observe(snap)
			for _, p := range procs {
				if err := p.Process(ctx, snap); err != nil {
					log.WithContext(ctx).Error("process snapshot", zap.Error(err))
				}
			}
		}

		// канал закрыт: либо teardown, либо терминальное состояние фида
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if snap := f.Snapshot(); snap.Err != "" {
			return fmt.Errorf("feed terminated: %s", snap.Err)
		}
		return errors.New("feed terminated")
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.WithContext(ctx).Info("feed service stopped by context")
			return nil
		}
		return err
	}
	return nil
}

// shutdownSafe оборачивает вызов Close()/Shutdown() с логированием
func shutdownSafe(ctx context.Context, name string, fn func() error, log *logger.Logger) {
	log.WithContext(ctx).Info(fmt.Sprintf("%s: shutting down", name))
	if err := fn(); err != nil {
		log.WithContext(ctx).Error(fmt.Sprintf("%s shutdown error", name), zap.Error(err))
	} else {
		log.WithContext(ctx).Info(fmt.Sprintf("%s: shutdown complete", name))
	}
}
