package bootstrap

import (
	"context"
	"fmt"

	"zkcred-be/internal/config"
	"zkcred-be/internal/controller"
	"zkcred-be/internal/handler"
	"zkcred-be/internal/pkg/logger"
	"zkcred-be/internal/repository/contract"
	"zkcred-be/internal/repository/implementation"
	"zkcred-be/internal/repository/memory"
	"zkcred-be/internal/service"
	"zkcred-be/internal/session"
	"zkcred-be/internal/websocket"

	pktNats "zkcred-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Logger logger.ILogger

	// Controllers & Handlers
	VerificationController controller.IVerificationController
	VerificationHandler    *handler.VerificationHandler

	// Sessions
	Orchestrator *session.Orchestrator
	Registry     *session.Registry
	Gatherer     prometheus.Gatherer

	// Background Services (Exposed for main.go to run)
	ConsumerService     service.IConsumerService
	NotificationService *service.NotificationService // nil without NATS
	WebSocketHub        *websocket.Hub

	closers []func()
}

// NewContainer wires every dependency. Sessions run on ctx: cancelling it
// aborts extractions still in progress.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	channelLogger := logger.NewIsolatedLogger(cfg.App.ChannelLogFilePath)
	c := &Container{Logger: sysLogger}

	// 2. Stores. No DSN keeps everything in process memory.
	var (
		records contract.VerificationRepository
		audit   contract.SessionEventRepository
	)
	if db != nil {
		records = implementation.NewVerificationRepository(db)
		audit = implementation.NewSessionEventRepository(db)
	} else {
		sysLogger.Warn("Bootstrap", "No database configured, records are kept in memory", nil)
		records = memory.NewVerificationRepository()
		audit = memory.NewSessionEventRepository()
	}

	// 3. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })
	publisherService := service.NewPublisherService(pubSub, cfg.App.AuditTopic)
	c.ConsumerService = service.NewConsumerService(pubSub, cfg.App.AuditTopic, audit, sysLogger)

	// NATS
	var events session.EventPublisher
	var natsSub *pktNats.Subscriber
	if cfg.App.NatsURL != "" {
		nc, js, err := pktNats.Connect(cfg.App.NatsURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS, events disabled", map[string]interface{}{"error": err.Error()})
		} else {
			c.closers = append(c.closers, func() { closeNats(nc) })
			if err := pktNats.EnsureStream(ctx, js); err != nil {
				sysLogger.Warn("Bootstrap", "Stream not ready", map[string]interface{}{"error": err.Error()})
			}
			events = pktNats.NewPublisher(js)
			natsSub = pktNats.NewSubscriber(js, sysLogger)
		}
	}

	// Redis
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// WebSocket Hub
	c.WebSocketHub = websocket.NewHub(rdb, channelLogger)
	if natsSub != nil {
		c.NotificationService = service.NewNotificationService(natsSub, c.WebSocketHub, channelLogger)
	}

	// 4. Domain
	catalogue, err := NewCatalogue(cfg)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("portal catalogue: %w", err)
	}
	prover, err := NewProofService(cfg.Proof, sysLogger)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Registry = session.NewRegistry()
	c.Gatherer = prometheus.DefaultGatherer
	deps := session.Deps{
		Portals:     catalogue,
		Prover:      prover,
		Records:     records,
		Events:      events,
		Transitions: publisherService,
		Registry:    c.Registry,
		Metrics:     session.NewMetrics(prometheus.DefaultRegisterer),
		Logger:      channelLogger,
	}
	c.Orchestrator = session.NewOrchestrator(ctx, session.Config{}, deps)

	// 5. Controllers
	c.VerificationHandler = handler.NewVerificationHandler(c.Orchestrator, c.WebSocketHub, cfg.Auth.JWTSecret, channelLogger)
	c.VerificationController = controller.NewVerificationController(service.NewVerificationService(records, catalogue), cfg.Auth.JWTSecret)

	c.closers = append(c.closers, func() {
		_ = channelLogger.Sync()
		_ = sysLogger.Sync()
	})
	return c, nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func closeNats(nc *natsgo.Conn) {
	_ = nc.Drain()
}
