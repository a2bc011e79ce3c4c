package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xao-fun/xao-go/internal/auth"
	"github.com/xao-fun/xao-go/internal/config"
	"github.com/xao-fun/xao-go/internal/db"
	"github.com/xao-fun/xao-go/internal/handlers"
	"github.com/xao-fun/xao-go/internal/llm"
	"github.com/xao-fun/xao-go/internal/ratelimit"
	"github.com/xao-fun/xao-go/internal/referral"
	"github.com/xao-fun/xao-go/internal/server"
	"github.com/xao-fun/xao-go/internal/sse"
	xaotls "github.com/xao-fun/xao-go/internal/tls"
	"github.com/xao-fun/xao-go/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default $XAO_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := server.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completer, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		logger.Error("failed to create llm client", "err", err)
		os.Exit(1)
	}

	// Storage is optional; without it history endpoints answer 501.
	var (
		store    handlers.Store
		history  ws.History
		pipeOpts []referral.PipelineOption
	)
	if cfg.Database.URL != "" {
		database, err := db.Connect(ctx, cfg.Database.URL, logger)
		if err != nil {
			logger.Error("failed to connect to database", "err", err)
			os.Exit(1)
		}
		defer database.Close()
		store, history = database, database
		pipeOpts = append(pipeOpts, referral.WithRecorder(database))
	} else {
		logger.Warn("DATABASE_URL not set, verifications will not be stored")
	}

	wsManager := ws.NewManager(history, logger)
	sseHub := sse.NewHub(logger)
	limiter := ratelimit.New()

	pipeOpts = append(pipeOpts,
		referral.WithNotifier(referral.Notifiers(wsManager, sseHub)),
		referral.WithMaxRetries(cfg.Verify.MaxRetries),
		referral.WithConcurrency(cfg.Verify.BatchConcurrency),
	)
	pipeline := referral.NewPipeline(referral.NewVerifier(completer), logger, pipeOpts...)

	referralHandler := handlers.NewReferralHandler(pipeline, store, cfg.Verify.MaxBatchSize, logger)
	streamHandler := handlers.NewStreamHandler(sseHub, store, logger)
	qrHandler := handlers.NewQRHandler(cfg.Assets.QRData, logger)

	// Build router
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pong"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Live feed (no auth)
	r.Get("/ws", wsManager.HandleWS)

	r.Route("/v1", func(api chi.Router) {
		api.Use(auth.RequireToken(cfg.Server.APIToken))

		api.With(limiter.Middleware("verify")).Post("/referrals/verify", referralHandler.Verify)
		api.With(limiter.Middleware("batch")).Post("/referrals/verify/batch", referralHandler.VerifyBatch)
		api.Get("/referrals", referralHandler.List)
		api.Get("/referrals/stream", streamHandler.HandleSSE)
		api.Get("/referrals/{id}", referralHandler.Get)
		api.With(limiter.Middleware("qr")).Get("/qr", qrHandler.Generate)
	})

	go server.RunWithRecovery(ctx, logger, "ratelimit-sweep", func(ctx context.Context) {
		server.Every(ctx, time.Minute, func() {
			if n := limiter.Sweep(); n > 0 {
				logger.Debug("rate limiter swept", "keys", n)
			}
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE + WebSocket need unlimited write time
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
	}()

	logger.Info("server starting",
		"port", cfg.Server.Port,
		"provider", completer.Provider(),
		"model", completer.Model(),
		"auth", cfg.Server.APIToken != "",
	)
	if err := serve(ctx, cfg.Server, srv, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// serve uses ACME-managed TLS when a domain is configured, plain HTTP otherwise.
func serve(ctx context.Context, sc config.ServerConfig, srv *http.Server, logger *slog.Logger) error {
	if sc.Domain == "" {
		return srv.ListenAndServe()
	}
	cm, err := xaotls.NewCertManager(sc, logger)
	if err != nil {
		return err
	}
	return cm.Serve(ctx, srv)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
