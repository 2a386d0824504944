package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/citycab/dispatch/api/rides"
	"github.com/citycab/dispatch/config"
	"github.com/citycab/dispatch/core/dispatch"
	"github.com/citycab/dispatch/core/pool"
	"github.com/citycab/dispatch/core/ridelog"
	"github.com/citycab/dispatch/core/scheduler"
	"github.com/citycab/dispatch/infra/logger"
	"github.com/citycab/dispatch/internal/eventbus"
	"github.com/citycab/dispatch/metrics"
)

// Service orchestrates the dispatch manager, the completion scheduler and
// the presentation boundary.
type Service struct {
	Manager   *dispatch.Manager
	Scheduler *scheduler.Scheduler
	Audit     *ridelog.Log
	Drivers   *eventbus.Bus[pool.Event]

	log         logger.Logger
	apiAddr     string
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	p, err := pool.New(cfg.Roster())
	if err != nil {
		return nil, fmt.Errorf("fleet: %w", err)
	}
	driverBus := eventbus.New[pool.Event]()
	p.SetBus(driverBus)

	var auditOpts []ridelog.Option
	if cfg.Audit.Enabled {
		store, err := ridelog.NewJSONLStore(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		auditOpts = append(auditOpts, ridelog.WithStore(store))
	}
	auditOpts = append(auditOpts, ridelog.WithLogger(logg))
	audit := ridelog.New(auditOpts...)

	var sinks []metrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(nil)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink metrics.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	manager, err := dispatch.NewManager(
		p,
		dispatch.NewRandomSelector(seedOrNow(cfg.Dispatch.Seed)),
		audit,
		sink,
		logg,
		cfg.Dispatch.MaxRetries,
		cfg.Dispatch.Seed,
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch manager: %w", err)
	}

	sched, err := scheduler.New(cfg.Completion.MinDelay, cfg.Completion.MaxDelay, cfg.Dispatch.Seed, manager.CompleteRide)
	if err != nil {
		return nil, fmt.Errorf("completion scheduler: %w", err)
	}
	manager.SetArmFunc(func(rideID, driverID string) { sched.Arm(rideID, driverID) })

	return &Service{
		Manager:     manager,
		Scheduler:   sched,
		Audit:       audit,
		Drivers:     driverBus,
		log:         logg,
		apiAddr:     cfg.API.Addr,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}, nil
}

// Run serves the HTTP boundary until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	mux := rides.NewMux(s.Manager, s.Audit)
	srv := &http.Server{Addr: s.apiAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	s.log.Infof("ride API listening on %s", s.apiAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close tears the service down: outstanding completion handles are
// cancelled before the manager and log shut down.
func (s *Service) Close() error {
	s.Scheduler.Close()
	if err := s.Manager.Close(); err != nil {
		return err
	}
	s.Drivers.Close()
	return s.Audit.Close()
}

func seedOrNow(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}
