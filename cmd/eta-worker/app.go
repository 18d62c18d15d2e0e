package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/shiplog/vesseltrack/config"
	"github.com/shiplog/vesseltrack/internal/broker/kafka"
	"github.com/shiplog/vesseltrack/internal/broker/messages"
	"github.com/shiplog/vesseltrack/internal/cache/rediscache"
	"github.com/shiplog/vesseltrack/internal/ingest"
	"github.com/shiplog/vesseltrack/internal/integrations/terminal"
	"github.com/shiplog/vesseltrack/internal/integrations/terminal/fake"
	"github.com/shiplog/vesseltrack/internal/integrations/terminal/porthttp"
	"github.com/shiplog/vesseltrack/internal/integrations/terminal/schedstore"
	"github.com/shiplog/vesseltrack/internal/models"
	"github.com/shiplog/vesseltrack/internal/services/chatbot"
	"github.com/shiplog/vesseltrack/internal/services/checker"
	"github.com/shiplog/vesseltrack/internal/storage/pgeta"
)

// storageBundle — всё, что воркер хочет от постгреса, одним интерфейсом.
// pgeta.Storage реализует его целиком.
type storageBundle interface {
	checker.Repository
	chatbot.Repository
	ingest.Repository
	schedstore.SnapshotFinder

	CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error)
	GetShipmentByID(ctx context.Context, id uint64) (*models.Shipment, error)
	ListCheckLogs(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.EtaCheckLog, error)
}

type chatConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

type workerFactories struct {
	newStorage        func(cfg *config.Config) (storageBundle, func(), error)
	newProducer       func(cfg *config.Config) checker.Producer
	newRateLimiter    func(cfg *config.Config) checker.RateLimiter
	newProgressFeed   func(cfg *config.Config) *rediscache.ProgressFeed
	newTerminalClient func(cfg *config.Config, store schedstore.SnapshotFinder) terminal.Client
	newChatConsumer   func(cfg *config.Config) chatConsumer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (storageBundle, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgeta.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) checker.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) checker.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newProgressFeed: func(cfg *config.Config) *rediscache.ProgressFeed {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			retention := time.Duration(cfg.VesselTrack.ProgressRetentionHours) * time.Hour
			return rediscache.NewProgressFeed(redisAddr, retention)
		},
		newTerminalClient: func(cfg *config.Config, store schedstore.SnapshotFinder) terminal.Client {
			// "porthttp" ходит на live-шлюз, "schedstore" отвечает из кэша
			// расписаний. Иначе — fallback на локальный fake.
			switch cfg.VesselTrack.TerminalLookupMode {
			case "porthttp":
				if cfg.VesselTrack.TerminalGatewayBaseURL != "" {
					return porthttp.New(cfg.VesselTrack.TerminalGatewayBaseURL, cfg.VesselTrack.TerminalGatewayAPIKey)
				}
				return fake.New()
			case "schedstore":
				var cache schedstore.BytesCache
				if cfg.Redis.Host != "" {
					cache = rediscache.New(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
				}
				ttl := time.Duration(cfg.VesselTrack.LookupCacheTTLSeconds) * time.Second
				return schedstore.New(store, cache, ttl)
			default:
				return fake.New()
			}
		},
		newChatConsumer: func(cfg *config.Config) chatConsumer {
			topic := cfg.Kafka.ChatRepliesTopicName
			if topic == "" {
				topic = "chat.replies"
			}
			group := cfg.Kafka.ConsumerGroup
			if group == "" {
				group = "vesseltrack-worker"
			}
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, topic, group)
		},
	}
}

func RunEtaWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	topic := cfg.Kafka.EtaCheckedTopicName
	if topic == "" {
		topic = "eta.checked"
	}

	tick := time.Duration(cfg.VesselTrack.CheckerTickSeconds) * time.Second
	if tick <= 0 {
		tick = time.Minute
	}
	batchLimit := cfg.VesselTrack.CheckerBatchLimit
	if batchLimit <= 0 {
		batchLimit = 50
	}
	checkDelay := time.Duration(cfg.VesselTrack.CheckerDelaySeconds) * time.Second
	if cfg.VesselTrack.CheckerDelaySeconds <= 0 {
		checkDelay = 5 * time.Second
	}
	rlPerMin := int64(cfg.VesselTrack.CheckerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 30
	}
	chatWindow := time.Duration(cfg.VesselTrack.ChatRateLimitHours) * time.Hour

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	terminalClient := f.newTerminalClient(cfg, st)

	progressFeed := f.newProgressFeed(cfg)
	var progress checker.Progress
	if progressFeed != nil {
		progress = progressFeed
	}

	book := checker.NewScheduleBook(scheduleConfigs(cfg.VesselTrack.CheckSchedules))

	chk := checker.New(st, terminalClient, producer, rl, progress, topic).
		WithSettings(tick, batchLimit, checkDelay, rlPerMin).
		WithScheduleBook(book)

	chat := chatbot.New(st, chatWindow)
	ingestSvc := ingest.New(st)

	if cfg.VesselTrack.HTTPAddr != "" {
		go func() {
			err := runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr:    cfg.VesselTrack.HTTPAddr,
				swaggerPath: cfg.VesselTrack.SwaggerPath,
				store:       st,
				checker:     chk,
				progress:    progressFeed,
				ingest:      ingestSvc,
				chat:        chat,
				cfg:         cfg,
			})
			if err != nil && ctx.Err() == nil {
				slog.Error("worker http server", "error", err.Error())
			}
		}()
	}

	if c := f.newChatConsumer(cfg); c != nil {
		go consumeChatReplies(ctx, c, chat)
	}

	go runDailySweep(ctx, ingestSvc, cfg.VesselTrack.IngestHourUTC)

	return chk.Run(ctx)
}

func scheduleConfigs(in []config.CheckScheduleConfig) []checker.ScheduleConfig {
	out := make([]checker.ScheduleConfig, 0, len(in))
	for _, s := range in {
		out = append(out, checker.ScheduleConfig{At: s.At, Days: s.Days, Active: s.Active})
	}
	return out
}

// consumeChatReplies слушает ответы операторов из внешнего чат-воркфлоу.
// Битый payload и ответ без активного запроса коммитим и едем дальше,
// остальные ошибки — ретрай с паузой.
func consumeChatReplies(ctx context.Context, c chatConsumer, chat *chatbot.Service) {
	defer c.Close()
	for {
		err := c.Consume(ctx, func(key, value []byte) error {
			var reply messages.ChatReply
			if err := json.Unmarshal(value, &reply); err != nil {
				slog.Error("bad chat reply payload", "error", err.Error())
				return nil
			}
			if err := chat.ReceiveResult(ctx, reply); err != nil {
				if errors.Is(err, chatbot.ErrNoActiveRequest) {
					slog.Warn("chat reply without active request",
						"conversation_id", reply.ConversationID, "vessel", reply.VesselName)
					return nil
				}
				return err
			}
			return nil
		})
		if ctx.Err() != nil {
			return
		}
		slog.Error("chat replies consumer", "error", err.Error())
		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}

// runDailySweep раз в сутки чистит протухшие снапшоты расписаний.
// Сами строки приходят снаружи через POST /ingest/{terminal}.
func runDailySweep(ctx context.Context, svc *ingest.Service, hourUTC int) {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			svc.RunCycle(ctx, nil)
		}
	}
}
