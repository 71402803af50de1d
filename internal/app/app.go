// Package app wires the coordinator: config, logging, metrics, tracing, the
// bulk transaction store, the message bus and the enabled roles.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/bulkflow/internal/config"
	"github.com/yungbote/bulkflow/internal/data/statestore"
	"github.com/yungbote/bulkflow/internal/handlers/fspiop"
	httpx "github.com/yungbote/bulkflow/internal/http"
	"github.com/yungbote/bulkflow/internal/observability"
	"github.com/yungbote/bulkflow/internal/platform/logger"
	"github.com/yungbote/bulkflow/internal/realtime/bus"
)

const collectorInterval = 15 * time.Second

type App struct {
	Log       *logger.Logger
	Cfg       *config.Config
	Metrics   *observability.Metrics
	Clients   Clients
	Store     statestore.Repository
	Transport Transport
	Handlers  Handlers
	Server    *httpx.Server

	roles        []role
	otelShutdown func(context.Context) error
}

type role struct {
	name     string
	consumer bus.Consumer
	handle   bus.HandlerFunc
}

type Option func(*options)

type options struct {
	requester fspiop.Requester
}

// WithRequester replaces the HTTP switch client used by the FSPIOP role.
func WithRequester(r fspiop.Requester) Option {
	return func(o *options) { o.requester = r }
}

// New loads the config from file and environment and builds the app.
func New(ctx context.Context, opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := NewWithConfig(ctx, log, cfg, opts...)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

// NewWithConfig builds the app from an already loaded config. On error every
// resource opened so far is released.
func NewWithConfig(ctx context.Context, log *logger.Logger, cfg *config.Config, opts ...Option) (_ *App, err error) {
	if log == nil {
		return nil, errors.New("logger required")
	}
	if cfg == nil {
		return nil, errors.New("config required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Log: log, Cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.Observability.MetricsEnabled {
		a.Metrics = observability.NewMetrics()
	}
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfigFrom(cfg))

	if a.Clients, err = wireClients(ctx, log, cfg); err != nil {
		return nil, err
	}
	if a.Store, err = wireStore(ctx, log, cfg, a.Clients, a.Metrics); err != nil {
		return nil, err
	}
	if a.Transport, err = wireTransport(log, cfg, a.Clients); err != nil {
		return nil, err
	}
	if a.Handlers, err = wireHandlers(log, cfg, a.Store, a.Transport, a.Metrics, o.requester); err != nil {
		return nil, err
	}
	if err = a.wireRoles(); err != nil {
		return nil, err
	}
	if cfg.Roles.API {
		a.Server = wireServer(log, cfg, a.Store, a.Transport, a.Metrics)
	}
	return a, nil
}

// wireRoles registers one consumer group per enabled bus role. Consumers are
// created up front so nothing sent before Run is lost on the in-process bus.
func (a *App) wireRoles() error {
	cmdTopic, domainTopic := a.Cfg.Bus.CommandTopic, a.Cfg.Bus.DomainTopic
	add := func(name, topic, group string, concurrency int, h bus.HandlerFunc) error {
		c, err := a.Transport.Consumer(topic, group, concurrency)
		if err != nil {
			return fmt.Errorf("init %s consumer: %w", name, err)
		}
		a.roles = append(a.roles, role{name: name, consumer: c, handle: h})
		return nil
	}
	if h := a.Handlers.Command; h != nil {
		if err := add("command", cmdTopic, groupCommandHandler, 1, h.Handle); err != nil {
			return err
		}
	}
	if h := a.Handlers.Domain; h != nil {
		if err := add("domain", domainTopic, groupDomainHandler, 1, h.Handle); err != nil {
			return err
		}
	}
	if h := a.Handlers.FSPIOP; h != nil {
		if err := add("fspiop", domainTopic, groupFSPIOPHandler, a.Cfg.Bus.FSPIOPConcurrency, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Run starts every enabled role and blocks until ctx is done or one of them
// fails.
func (a *App) Run(ctx context.Context) error {
	if len(a.roles) == 0 && a.Server == nil {
		return errors.New("no roles enabled")
	}
	g, gctx := errgroup.WithContext(ctx)

	a.Metrics.StartStoreCollector(gctx, a.Store, collectorInterval)
	a.Metrics.StartRedisCollector(gctx, a.Log, a.Clients.Redis, collectorInterval)
	if a.Cfg.Observability.MetricsEnabled && a.Cfg.Observability.MetricsAddr != "" {
		a.Metrics.StartServer(gctx, a.Log, a.Cfg.Observability.MetricsAddr)
	}

	for _, r := range a.roles {
		g.Go(func() error {
			a.Log.Info("role started", "role", r.name)
			if err := r.consumer.Run(gctx, r.handle); err != nil {
				return fmt.Errorf("%s role: %w", r.name, err)
			}
			return nil
		})
	}
	if a.Server != nil {
		g.Go(func() error { return a.Server.Run(gctx) })
	}
	return g.Wait()
}

// Close releases resources in reverse order of creation. It is safe to call
// on a partially built app.
func (a *App) Close() {
	for i := len(a.roles) - 1; i >= 0; i-- {
		if err := a.roles[i].consumer.Close(); err != nil {
			a.Log.Warn("consumer close failed", "role", a.roles[i].name, "error", err)
		}
	}
	if a.Transport.Producer != nil {
		if err := a.Transport.Producer.Close(); err != nil {
			a.Log.Warn("producer close failed", "error", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Log.Warn("store close failed", "error", err)
		}
	}
	a.Clients.Close(a.Log)
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
