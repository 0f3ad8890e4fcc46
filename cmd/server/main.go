package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	admissionmetrics "edgegate/internal/admission/metrics"
	admissionmw "edgegate/internal/admission/middleware"
	admissionservice "edgegate/internal/admission/service"
	"edgegate/internal/admission/store/window"
	"edgegate/internal/admission/workers/cleanup"
	"edgegate/internal/pipeline"
	"edgegate/internal/platform/config"
	"edgegate/internal/platform/health"
	"edgegate/internal/platform/logger"
	platformmetrics "edgegate/internal/platform/metrics"
	platformredis "edgegate/internal/platform/redis"
	"edgegate/internal/proxy"
	"edgegate/internal/proxy/tracer"
	telemetryalert "edgegate/internal/telemetry/alert"
	telemetryhandler "edgegate/internal/telemetry/handler"
	telemetrymetrics "edgegate/internal/telemetry/metrics"
	telemetrymodels "edgegate/internal/telemetry/models"
	telemetrystore "edgegate/internal/telemetry/store"
	"edgegate/internal/threat"
	httptransport "edgegate/internal/transport/http"
	"edgegate/pkg/platform/circuit"
	"edgegate/pkg/platform/middleware/auth"
)

// main wires dependencies and owns the process lifecycle. Everything with
// behavior lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing edgegate",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"backend", cfg.Backend.BaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Telemetry sink shared by every stage.
	events := telemetrystore.New(cfg.Telemetry.Capacity,
		telemetrystore.WithLogger(log),
		telemetrystore.WithAlerter(telemetryalert.NewLogAlerter(log)),
		telemetrystore.WithMetrics(telemetrymetrics.New()),
	)

	// Window store: local by default, Redis when configured.
	var windowStore admissionservice.WindowStore
	var sweepStore cleanup.SweepStore
	var redisClient *platformredis.Client

	memStore := window.NewMemoryStore(window.WithMaxEntries(cfg.WindowMaxEntries))
	windowStore, sweepStore = memStore, memStore

	if cfg.RedisURL != "" {
		client, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		redisClient = client
		windowStore = window.NewRedisStore(client.Client)
		sweepStore = nil // redis expires keys itself
		log.Info("rate windows shared via redis")
	}

	admissionSvc, err := admissionservice.New(windowStore, admissionservice.WithLogger(log))
	if err != nil {
		log.Error("admission service init failed", "error", err)
		os.Exit(1)
	}

	admMetrics := admissionmetrics.New()
	admission := admissionmw.New(admissionSvc,
		admissionmw.WithLogger(log),
		admissionmw.WithMetrics(admMetrics),
		admissionmw.WithRecorder(events),
		admissionmw.WithCredentialChecker(auth.NewCredentialChecker(cfg.ServiceCredentialHash)),
	)

	translator := proxy.NewTranslator(cfg.Backend.APIPrefix, cfg.Backend.Routes)
	breaker := circuit.New()
	forwarder := proxy.NewForwarder(translator, cfg.Backend.BaseURL, cfg.BackendCredential,
		cfg.Backend.Timeout, cfg.Backend.MaxBodyBytes,
		proxy.WithLogger(log),
		proxy.WithRecorder(events),
		proxy.WithMetrics(proxy.NewMetrics()),
		proxy.WithTracer(tracer.NewOTel()),
		proxy.WithProduction(cfg.IsProduction()),
		proxy.WithBreaker(breaker),
	)

	gateway := pipeline.New(cfg.Backend, cfg.Policies, admission,
		threat.NewSanitizer(cfg.SanitizeMaxLen), forwarder,
		pipeline.WithLogger(log),
		pipeline.WithRecorder(events),
	)

	healthHandler := health.New(cfg.Environment)
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", redisClient.Health)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:           log,
		Config:           cfg,
		Pipeline:         gateway.Handler(),
		Telemetry:        telemetryhandler.New(events, cfg.Telemetry.HighRiskScore, log),
		Health:           healthHandler,
		Metrics:          platformmetrics.New(),
		AdmissionMetrics: admMetrics,
		Verifier:         auth.NewVerifier(cfg.JWTSigningKey, log),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	events.Record(ctx, telemetrymodels.NewServerStart())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if sweepStore != nil {
		worker := cleanup.New(sweepStore,
			cleanup.WithLogger(log),
			cleanup.WithInterval(cfg.SweepInterval),
			cleanup.WithMetrics(admMetrics),
		)
		g.Go(func() error {
			err := worker.Start(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if redisClient != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					redisClient.RecordPoolStats()
				case <-gctx.Done():
					return nil
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down gracefully")
		events.Record(context.Background(), telemetrymodels.NewServerShutdown())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("gateway stopped")
}
