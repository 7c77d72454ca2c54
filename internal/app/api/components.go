package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Apurer/worktrack/internal/clients/http/mailrelay"
	casememory "github.com/Apurer/worktrack/internal/domains/cases/adapters/memory"
	caseobs "github.com/Apurer/worktrack/internal/domains/cases/adapters/observability"
	casepostgres "github.com/Apurer/worktrack/internal/domains/cases/adapters/persistence/postgres"
	caseapp "github.com/Apurer/worktrack/internal/domains/cases/application"
	caseports "github.com/Apurer/worktrack/internal/domains/cases/ports"
	eventmemory "github.com/Apurer/worktrack/internal/domains/eventlog/adapters/memory"
	eventpostgres "github.com/Apurer/worktrack/internal/domains/eventlog/adapters/persistence/postgres"
	eventports "github.com/Apurer/worktrack/internal/domains/eventlog/ports"
	maintapp "github.com/Apurer/worktrack/internal/domains/maintenance/application"
	projmemory "github.com/Apurer/worktrack/internal/domains/projections/adapters/memory"
	projpostgres "github.com/Apurer/worktrack/internal/domains/projections/adapters/persistence/postgres"
	projapp "github.com/Apurer/worktrack/internal/domains/projections/application"
	projports "github.com/Apurer/worktrack/internal/domains/projections/ports"
	sla "github.com/Apurer/worktrack/internal/domains/sla/domain"
	"github.com/Apurer/worktrack/internal/domains/webhooks/adapters/mailer"
	webhookmemory "github.com/Apurer/worktrack/internal/domains/webhooks/adapters/memory"
	webhookpostgres "github.com/Apurer/worktrack/internal/domains/webhooks/adapters/persistence/postgres"
	webhookredis "github.com/Apurer/worktrack/internal/domains/webhooks/adapters/redis"
	webhookapp "github.com/Apurer/worktrack/internal/domains/webhooks/application"
	webhookports "github.com/Apurer/worktrack/internal/domains/webhooks/ports"
	wimemory "github.com/Apurer/worktrack/internal/domains/workitems/adapters/memory"
	wiobs "github.com/Apurer/worktrack/internal/domains/workitems/adapters/observability"
	wipostgres "github.com/Apurer/worktrack/internal/domains/workitems/adapters/persistence/postgres"
	wiapp "github.com/Apurer/worktrack/internal/domains/workitems/application"
	wiports "github.com/Apurer/worktrack/internal/domains/workitems/ports"
	"github.com/Apurer/worktrack/internal/platform/messaging"
	"github.com/Apurer/worktrack/internal/platform/metrics"
	"github.com/Apurer/worktrack/internal/platform/migrations"
	platformobservability "github.com/Apurer/worktrack/internal/platform/observability"
	platformpostgres "github.com/Apurer/worktrack/internal/platform/postgres"
)

// Components is the fully wired application shared by the api, worker and
// sweeper processes.
type Components struct {
	Metrics     *metrics.Collector
	Events      eventports.EventStore
	Runner      *projapp.Runner
	WorkItems   wiports.Service
	Cases       caseports.Service
	Responder   *webhookapp.AutoResponder
	Maintenance *maintapp.Service
	Calendar    *webhookapp.Calendar
	Inbound     *webhookapp.Inbound
	// Wake fires after local appends and, with NATS, after appends in any process.
	Wake *messaging.ChannelNotifier
	// Durable is true when state lives in PostgreSQL and is therefore
	// shared with other processes.
	Durable bool

	closers []func()
}

// Close releases connections in reverse order of acquisition.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

type stores struct {
	events      eventports.EventStore
	checkpoints projports.CheckpointStore
	workItems   wiports.Store
	cases       caseports.Store
	claims      webhookports.ClaimStore
	effects     webhookports.SideEffectLog
}

// Build wires every component from cfg. Infrastructure that is not
// configured or not reachable falls back to in-memory adapters.
func Build(ctx context.Context, cfg Config, instruments *platformobservability.Instruments) (*Components, error) {
	logger := instruments.Log()
	c := &Components{
		Metrics: metrics.New(metrics.WithLogger(logger), metrics.WithCapacity(cfg.RecentLogCapacity)),
		Wake:    messaging.NewChannelNotifier(),
	}

	notifier := messaging.Fanout{c.Wake}
	if conn := c.connectNATS(cfg, logger); conn != nil {
		notifier = append(notifier, messaging.NewNATSNotifier(conn, logger))
	}

	db, closeDB := platformpostgres.ConnectOrFallback(ctx, cfg.PostgresDSN, platformpostgres.Pool{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}, logger)
	c.closers = append(c.closers, closeDB)

	var st stores
	if db != nil {
		if err := migrations.Run(db); err != nil {
			c.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		st = postgresStores(db, notifier)
		c.Durable = true
		logger.Info("stores configured with postgres")
	} else {
		st = memoryStores(notifier)
	}
	if claims := c.connectRedis(ctx, cfg, logger); claims != nil {
		st.claims = claims
	}
	c.Events = st.events

	coreWorkItems := wiapp.NewService(st.events, st.workItems, wiapp.WithMetrics(c.Metrics), wiapp.WithLogger(logger))
	coreCases := caseapp.NewService(st.events, st.cases, caseapp.WithMetrics(c.Metrics), caseapp.WithLogger(logger))
	c.WorkItems = wiobs.New(coreWorkItems,
		wiobs.WithLogger(logger),
		wiobs.WithTracer(instruments.Tracer("internal.workitems.application")),
		wiobs.WithMeter(instruments.Meter("internal.workitems.application")),
	)
	c.Cases = caseobs.New(coreCases,
		caseobs.WithLogger(logger),
		caseobs.WithTracer(instruments.Tracer("internal.cases.application")),
		caseobs.WithMeter(instruments.Meter("internal.cases.application")),
	)

	c.Responder = webhookapp.NewAutoResponder(st.claims, st.effects, buildMailer(cfg, logger),
		webhookapp.WithWindow(cfg.AutoReplyWindow),
		webhookapp.WithMetrics(c.Metrics),
	)
	coreCases.SetReplyListener(c.Responder)
	c.Calendar = webhookapp.NewCalendar(st.claims, c.WorkItems, c.Metrics, nil)
	c.Inbound = webhookapp.NewInbound(st.claims, c.Cases)

	c.Runner = projapp.NewRunner(st.events, st.checkpoints, []projports.Projector{
		wiapp.NewProjector(st.workItems, c.Metrics),
		caseapp.NewProjector(st.cases, sla.DefaultPolicy(), c.Metrics),
	},
		projapp.WithBatchSize(cfg.ProjectorBatchSize),
		projapp.WithMetrics(c.Metrics),
		projapp.WithLogger(logger),
	)
	c.Maintenance = maintapp.NewService(
		caseapp.NewSweeper(coreCases, st.cases, c.Metrics, nil),
		c.Responder,
		c.Runner,
		c.Metrics,
		nil,
	)
	return c, nil
}

func postgresStores(db *gorm.DB, notifier eventports.AppendNotifier) stores {
	return stores{
		events:      eventpostgres.NewStore(db, eventpostgres.WithNotifier(notifier)),
		checkpoints: projpostgres.NewCheckpointStore(db),
		workItems:   wipostgres.NewStore(db),
		cases:       casepostgres.NewStore(db),
		claims:      webhookpostgres.NewClaimStore(db),
		effects:     webhookpostgres.NewSideEffectLog(db),
	}
}

func memoryStores(notifier eventports.AppendNotifier) stores {
	events := eventmemory.NewStore()
	events.WithNotifier(notifier)
	return stores{
		events:      events,
		checkpoints: projmemory.NewCheckpointStore(),
		workItems:   wimemory.NewStore(),
		cases:       casememory.NewStore(),
		claims:      webhookmemory.NewClaimStore(),
		effects:     webhookmemory.NewSideEffectLog(),
	}
}

// connectNATS subscribes the local wake channel to appends from every
// process. Returns nil when NATS is not configured or not reachable.
func (c *Components) connectNATS(cfg Config, logger *slog.Logger) *nats.Conn {
	if cfg.NATSURL == "" {
		logger.Info("NATS_URL not set, append notifications stay in process")
		return nil
	}
	conn, err := messaging.Connect(messaging.DefaultConfig(cfg.NATSURL), logger)
	if err != nil {
		logger.Warn("nats unavailable, append notifications stay in process", slog.String("error", err.Error()))
		return nil
	}
	sub, err := messaging.SubscribeWake(conn, c.Wake)
	if err != nil {
		logger.Warn("nats subscribe failed", slog.String("error", err.Error()))
		conn.Close()
		return nil
	}
	c.closers = append(c.closers, func() {
		_ = sub.Unsubscribe()
		conn.Close()
	})
	logger.Info("nats append notifications enabled", slog.String("subject", messaging.SubjectEventsAppended))
	return conn
}

// connectRedis returns a Redis claim store, or nil to keep the default.
func (c *Components) connectRedis(ctx context.Context, cfg Config, logger *slog.Logger) webhookports.ClaimStore {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, keeping default claim store", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, keeping default claim store", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	c.closers = append(c.closers, func() { _ = client.Close() })
	logger.Info("webhook claims configured with redis")
	return webhookredis.NewClaimStore(client)
}

func buildMailer(cfg Config, logger *slog.Logger) webhookports.Mailer {
	if cfg.MailRelayURL == "" {
		logger.Warn("MAIL_RELAY_URL not set, auto-acknowledgements are only logged")
		return mailer.NewLog(logger)
	}
	client, err := mailrelay.NewClient(cfg.MailRelayURL, &http.Client{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("mail relay misconfigured, auto-acknowledgements are only logged", slog.String("error", err.Error()))
		return mailer.NewLog(logger)
	}
	return mailer.NewRelay(client)
}
