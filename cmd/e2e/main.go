package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"redstream/internal/stream"
	"redstream/internal/stream/broker"
	"redstream/internal/stream/consumer"
	"redstream/internal/stream/metrics"
	"redstream/internal/stream/producer"
	"redstream/internal/stream/tracing"
)

type Config struct {
	RedisAddr             string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword         string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB               int           `env:"REDIS_DB" envDefault:"0"`
	StreamName            string        `env:"STREAM_NAME" envDefault:"orders"`
	GroupName             string        `env:"GROUP_NAME" envDefault:"order-processors"`
	ConsumerCount         int           `env:"CONSUMER_COUNT" envDefault:"3"`
	EventCount            int           `env:"EVENT_COUNT" envDefault:"100"`
	NewCount              int64         `env:"NEW_MESSAGES_COUNT" envDefault:"10"`
	NewBlock              time.Duration `env:"NEW_MESSAGES_BLOCK" envDefault:"500ms"`
	PendingCount          int64         `env:"PENDING_MESSAGES_COUNT" envDefault:"10"`
	ClaimCount            int64         `env:"CLAIM_COUNT" envDefault:"10"`
	ClaimMinIdle          time.Duration `env:"CLAIM_MIN_IDLE" envDefault:"3s"`
	ConsumerMaxEmptyCount int           `env:"CONSUMER_MAX_EMPTY_COUNT" envDefault:"10"`
	SkipAckEvery          int           `env:"SKIP_ACK_EVERY" envDefault:"10"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`
	MetricsPort           int           `env:"METRICS_PORT" envDefault:"9090"`
	MetricsTimeout        time.Duration `env:"METRICS_TIMEOUT" envDefault:"30s"`
	TracingServiceName    string        `env:"TRACING_SERVICE_NAME" envDefault:"redstream-e2e"`
	TracingServiceVersion string        `env:"TRACING_SERVICE_VERSION" envDefault:"1.0.0"`
	JaegerEndpoint        string        `env:"JAEGER_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate     float64       `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse environment variables: %v", err)
	}

	config := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Printf("invalid log level %q, defaulting to info: %v", cfg.LogLevel, err)
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	logger, err := config.Build(zap.AddCaller())
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	metricsRegistry := metrics.NewRegistry()
	metricsRegistry.SetSystemInfo("e2e-test", time.Now().Format(time.RFC3339))

	metricsServer := metrics.NewServer(
		metrics.ServerConfig{
			Port:    cfg.MetricsPort,
			Timeout: cfg.MetricsTimeout,
		},
		metricsRegistry,
		logger,
	)

	go func() {
		if err := metricsServer.Start(context.Background()); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("metrics server started",
		zap.String("endpoint", fmt.Sprintf("http://localhost:%d/metrics", cfg.MetricsPort)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.MetricsPort)),
	)

	tracingConfig := tracing.Config{
		ServiceName:    cfg.TracingServiceName,
		ServiceVersion: cfg.TracingServiceVersion,
		JaegerEndpoint: cfg.JaegerEndpoint,
		SampleRate:     cfg.TracingSampleRate,
	}
	tracer, tracingCleanup, err := tracing.NewTracer(tracingConfig)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingCleanup(shutdownCtx); err != nil {
			logger.Error("failed to cleanup tracing", zap.Error(err))
		}
	}()

	logger.Info("tracing initialized",
		zap.String("service", cfg.TracingServiceName),
		zap.String("jaeger_endpoint", cfg.JaegerEndpoint),
		zap.Float64("sample_rate", cfg.TracingSampleRate),
	)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	policies := stream.Policies{
		New:     stream.NewMessagesPolicy{Count: cfg.NewCount, Block: cfg.NewBlock},
		Pending: stream.PendingMessagesPolicy{Count: cfg.PendingCount},
		Claim:   stream.ClaimPolicy{Count: cfg.ClaimCount, MinIdle: cfg.ClaimMinIdle},
	}

	diag, err := newDiagnostics(client, cfg, metricsRegistry, tracer)
	if err != nil {
		log.Fatalf("failed to create diagnostics broker: %v", err)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := diag.Ping(startupCtx); err != nil {
		startupCancel()
		log.Fatalf("failed to reach log service: %v", err)
	}
	exists, err := diag.StreamExists(startupCtx)
	if err != nil {
		startupCancel()
		log.Fatalf("failed to check stream: %v", err)
	}
	created, err := diag.EnsureGroup(startupCtx, stream.StartFrom(stream.ZeroID))
	if err != nil {
		startupCancel()
		log.Fatalf("failed to ensure group: %v", err)
	}
	startupCancel()

	logger.Info("log service ready",
		zap.String("stream", cfg.StreamName),
		zap.Bool("stream_existed", exists),
		zap.Bool("group_created", created),
	)

	prd, err := newProducer(client, cfg, logger, metricsRegistry, tracer)
	if err != nil {
		log.Fatalf("failed to create producer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
	}()

	now := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := 0; i < cfg.EventCount; i++ {
			id, err := prd.Append(gctx, orderFields(i))
			if err != nil {
				logger.Error("failed to append event", zap.Error(err))
				return fmt.Errorf("failed to append event: %w", err)
			}
			logger.Debug("appended event", zap.Stringer("id", id))
		}

		logger.Info("producer complete", zap.Int("events", cfg.EventCount))
		return nil
	})

	time.Sleep(10 * time.Millisecond)
	for i := 0; i < cfg.ConsumerCount; i++ {
		name := fmt.Sprintf("worker-%d", i)
		// the first worker periodically skips acks so its peers exercise
		// the claim path once the idle threshold elapses
		skipEvery := 0
		if i == 0 {
			skipEvery = cfg.SkipAckEvery
		}

		g.Go(func() error {
			cns, err := newConsumer(client, cfg, name, policies, logger, metricsRegistry, tracer)
			if err != nil {
				return fmt.Errorf("failed to create consumer %s: %w", name, err)
			}
			return consume(gctx, logger.With(zap.String("consumer", name)), cns, skipEvery, cfg.ConsumerMaxEmptyCount)
		})
	}

	observeCtx, observeCancel := context.WithCancel(ctx)
	go observeGroup(observeCtx, logger, diag, cfg, metricsRegistry)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("error in goroutine", zap.Error(err))
	}
	observeCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	reportGroupState(shutdownCtx, logger, diag, cfg)

	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop metrics server", zap.Error(err))
	}

	fmt.Printf("\n\n TEST COMPLETE IN %.2f seconds\n", time.Since(now).Seconds())
}

func newDiagnostics(client *redis.Client, cfg Config, registry *metrics.Registry, tracer *tracing.Tracer) (stream.Broker, error) {
	identity := stream.Identity{Stream: cfg.StreamName, Group: cfg.GroupName, Consumer: "diagnostics"}

	base, err := broker.New(client, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}

	return broker.NewTracedBroker(broker.NewMetricsBroker(base, registry), tracer), nil
}

// observeGroup periodically polls group metadata and keeps the pending
// gauge current while the workers run.
func observeGroup(ctx context.Context, logger *zap.Logger, diag stream.Broker, cfg Config, registry *metrics.Registry) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			groups, err := diag.GroupInfo(ctx)
			if err != nil {
				logger.Warn("failed to fetch group info", zap.Error(err))
				continue
			}

			for _, g := range groups {
				if g.Name != cfg.GroupName {
					continue
				}
				registry.UpdateGroupPending(cfg.StreamName, g.Name, float64(g.Pending))
				logger.Debug("observed group state",
					zap.Int64("consumers", g.Consumers),
					zap.Int64("pending", g.Pending),
					zap.Stringer("last_delivered", g.LastDeliveredID),
				)
			}
		}
	}
}

// reportGroupState logs a final snapshot of group and per-consumer state.
func reportGroupState(ctx context.Context, logger *zap.Logger, diag stream.Broker, cfg Config) {
	groups, err := diag.GroupInfo(ctx)
	if err != nil {
		logger.Error("failed to fetch final group info", zap.Error(err))
		return
	}
	for _, g := range groups {
		logger.Info("group state",
			zap.String("group", g.Name),
			zap.Int64("consumers", g.Consumers),
			zap.Int64("pending", g.Pending),
			zap.Stringer("last_delivered", g.LastDeliveredID),
		)
	}

	consumers, err := diag.ConsumersInfo(ctx)
	if err != nil {
		logger.Error("failed to fetch final consumer info", zap.Error(err))
		return
	}
	for _, c := range consumers {
		logger.Info("consumer state",
			zap.String("consumer", c.Name),
			zap.Int64("pending", c.Pending),
			zap.Duration("idle", c.Idle),
		)
	}
}

func newProducer(client *redis.Client, cfg Config, logger *zap.Logger, registry *metrics.Registry, tracer *tracing.Tracer) (stream.Producer, error) {
	identity := stream.Identity{Stream: cfg.StreamName, Group: cfg.GroupName, Consumer: "producer"}

	base, err := broker.New(client, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}
	brk := broker.NewTracedBroker(broker.NewMetricsBroker(base, registry), tracer)

	p, err := producer.New(brk, logger)
	if err != nil {
		return nil, err
	}

	return producer.NewTracedProducer(
		producer.NewMetricsProducer(p, cfg.StreamName, registry),
		cfg.StreamName,
		tracer,
	), nil
}

func newConsumer(
	client *redis.Client,
	cfg Config,
	name string,
	policies stream.Policies,
	logger *zap.Logger,
	registry *metrics.Registry,
	tracer *tracing.Tracer,
) (stream.Consumer, error) {
	identity := stream.Identity{Stream: cfg.StreamName, Group: cfg.GroupName, Consumer: name}

	base, err := broker.New(client, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}
	brk := broker.NewTracedBroker(broker.NewMetricsBroker(base, registry), tracer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := brk.EnsureGroup(ctx, stream.StartFrom(stream.ZeroID)); err != nil {
		return nil, fmt.Errorf("failed to ensure group: %w", err)
	}

	c, err := consumer.New(brk, logger, identity, policies, stream.ZeroID)
	if err != nil {
		return nil, err
	}

	return consumer.NewTracedConsumer(
		consumer.NewMetricsConsumer(c, identity, registry),
		identity,
		tracer,
	), nil
}

func consume(ctx context.Context, logger *zap.Logger, cns stream.Consumer, skipEvery, maxEmpty int) error {
	var empty, processed int

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := cns.Consume(ctx)
		if err != nil {
			logger.Error("failed to consume", zap.Error(err))
			return err
		}

		if len(batch) == 0 {
			empty++
			if empty >= maxEmpty {
				logger.Info("no messages after max empty cycles, stopping consumer", zap.Int("processed", processed))
				return nil
			}
			continue
		}
		empty = 0

		for _, d := range batch {
			processed++
			if skipEvery > 0 && processed%skipEvery == 0 {
				logger.Info("skipping ack to simulate a crashed worker", zap.Stringer("id", d.Message.ID))
				continue
			}

			ownership, err := cns.StillMine(ctx, d.Message.ID)
			if err != nil {
				logger.Error("failed to verify ownership", zap.Error(err))
				return err
			}
			if !ownership.Mine {
				logger.Info("message no longer mine, skipping",
					zap.Stringer("id", d.Message.ID),
					zap.String("owner", ownership.Owner),
				)
				continue
			}

			// Simulate message processing
			time.Sleep(time.Duration(5+rand.Intn(45)) * time.Millisecond)

			removed, err := cns.Ack(ctx, d.Message.ID)
			if err != nil {
				logger.Error("failed to ack message", zap.Stringer("id", d.Message.ID), zap.Error(err))
				return err
			}
			if !removed {
				logger.Info("ack removed nothing, message was already acked", zap.Stringer("id", d.Message.ID))
			}
		}

		logger.Debug("processed batch",
			zap.Int("size", len(batch)),
			zap.Int("claimed", batch.CountByPhase(stream.PhaseClaimed)),
		)
	}
}

func orderFields(i int) []stream.Field {
	customers := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}

	return []stream.Field{
		{Key: "order_id", Value: fmt.Sprintf("ORD-%04d", i+1)},
		{Key: "customer_id", Value: customers[rand.Intn(len(customers))]},
		{Key: "amount", Value: strconv.FormatFloat(10.0+rand.Float64()*990.0, 'f', 2, 64)},
		{Key: "timestamp", Value: time.Now().Format(time.RFC3339)},
	}
}
