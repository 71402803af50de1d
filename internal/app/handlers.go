package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/bulkflow/internal/config"
	"github.com/yungbote/bulkflow/internal/data/aggregates"
	"github.com/yungbote/bulkflow/internal/data/statestore"
	"github.com/yungbote/bulkflow/internal/handlers/command"
	"github.com/yungbote/bulkflow/internal/handlers/domain"
	"github.com/yungbote/bulkflow/internal/handlers/fspiop"
	httpx "github.com/yungbote/bulkflow/internal/http"
	httpH "github.com/yungbote/bulkflow/internal/http/handlers"
	httpMW "github.com/yungbote/bulkflow/internal/http/middleware"
	"github.com/yungbote/bulkflow/internal/observability"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

// Handlers holds the bus handlers of the enabled roles. Disabled roles are nil.
type Handlers struct {
	Command *command.Handler
	Domain  *domain.Handler
	FSPIOP  *fspiop.Handler
}

func aggregateDeps(log *logger.Logger, cfg *config.Config, store statestore.Repository, metrics *observability.Metrics) aggregates.BaseDeps {
	var sink aggregates.MetricsSink
	if metrics != nil {
		sink = metrics
	}
	return aggregates.BaseDeps{
		Repo:                  store,
		Log:                   log,
		Hooks:                 aggregates.MetricsHooks(sink),
		BatchMaxEntries:       cfg.Workflow.BatchMaxEntries,
		ChildWriteConcurrency: cfg.Workflow.ChildWriteConcurrency,
	}
}

func wireHandlers(log *logger.Logger, cfg *config.Config, store statestore.Repository, transport Transport, metrics *observability.Metrics, requester fspiop.Requester) (Handlers, error) {
	log.Info("Wiring handlers...")
	var out Handlers

	if cfg.Roles.CommandHandler {
		h, err := command.New(command.Deps{
			Log:       log,
			Producer:  transport.Producer,
			Aggregate: aggregateDeps(log, cfg, store, metrics),
			Metrics:   metrics,
		})
		if err != nil {
			return Handlers{}, fmt.Errorf("init command handler: %w", err)
		}
		out.Command = h
	}

	if cfg.Roles.DomainHandler {
		h, err := domain.New(domain.Deps{Log: log, Producer: transport.Producer, Metrics: metrics})
		if err != nil {
			return Handlers{}, fmt.Errorf("init domain handler: %w", err)
		}
		out.Domain = h
	}

	if cfg.Roles.FSPIOPHandler {
		if requester == nil {
			r, err := fspiop.NewHTTPRequester(log, fspiop.HTTPRequesterConfig{
				BaseURL:    cfg.Switch.BaseURL,
				DfspID:     cfg.Switch.DfspID,
				Timeout:    cfg.Switch.Timeout,
				MaxRetries: 2,
			})
			if err != nil {
				return Handlers{}, fmt.Errorf("init switch requester: %w", err)
			}
			requester = r
		}
		h, err := fspiop.New(fspiop.Deps{
			Log:        log,
			Producer:   transport.Producer,
			Requester:  requester,
			Subscriber: transport.Replies,
			Cache:      transport.Replies,
			Timeout:    cfg.Workflow.RequestTimeout,
			Metrics:    metrics,
		})
		if err != nil {
			return Handlers{}, fmt.Errorf("init fspiop handler: %w", err)
		}
		out.FSPIOP = h
	}
	return out, nil
}

func wireServer(log *logger.Logger, cfg *config.Config, store statestore.Repository, transport Transport, metrics *observability.Metrics) *httpx.Server {
	log.Info("Wiring API server...", "addr", cfg.HTTP.Addr)
	var auth *httpMW.AuthMiddleware
	if strings.TrimSpace(cfg.HTTP.JWTSecret) != "" {
		auth = httpMW.NewAuthMiddleware(log, cfg.HTTP.JWTSecret)
	}
	return httpx.NewServer(log, httpx.ServerConfig{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ShutdownTimeout:   cfg.HTTP.ShutdownTimeout,
	}, httpx.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		Metrics:         metrics,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		MaxRequestBytes: cfg.HTTP.MaxRequestBytes,
		RateLimitRPS:    cfg.HTTP.RateLimitRPS,
		RateLimitBurst:  cfg.HTTP.RateLimitBurst,
		AuthMiddleware:  auth,
		BulkHandler:     httpH.NewBulkTransactionHandler(log, transport.Producer, aggregateDeps(log, cfg, store, metrics)),
		CallbackHandler: httpH.NewCallbackHandler(log, transport.Replies),
		HealthHandler:   httpH.NewHealthHandler(store),
	})
}
