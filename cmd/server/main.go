package main

import (
	"context"
	"log"
	"net"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/logging"
	"github.com/Tyrowin/roomchat/internal/metrics"
	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	// Local .env is optional.
	_ = godotenv.Load()

	config, err := server.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(config.Env, config.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	service := chat.NewService(
		chat.WithLogger(logger.Named("chat")),
		chat.WithMetrics(m),
		chat.WithHistorySize(config.HistorySize),
		chat.WithHistoryReplay(config.HistoryReplay),
	)

	hub := server.NewHub(service, logger.Named("hub"))
	handlers := server.NewHandlers(config, hub, service, logger.Named("http"))
	mux := server.SetupRoutes(handlers, m.Handler())
	httpServer := server.CreateServer(config.Port, mux)

	logger.Info("starting room chat server",
		zap.String("addr", config.Port),
		zap.Strings("allowed_origins", config.AllowedOrigins),
		zap.Int("history_size", config.HistorySize))

	listener, err := net.Listen("tcp", config.Port)
	if err != nil {
		logger.Fatal("bind listener", zap.String("addr", config.Port), zap.Error(err))
	}

	g, serveCtx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		return server.Serve(httpServer, listener, logger)
	})

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer, logger)
			},
			"hub": func(ctx context.Context) error {
				return hub.Shutdown(remaining(ctx, config.ShutdownTimeout))
			},
		},
	)

	exitCode := awaitExit(serveCtx, wait, func() {
		logger.Error("http server stopped unexpectedly, shutting down")
		if err := hub.Shutdown(config.ShutdownTimeout); err != nil {
			logger.Warn("hub shutdown", zap.Error(err))
		}
	})
	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		if exitCode == 0 {
			exitCode = 1
		}
	}
	logger.Info("server exited", zap.Int("code", exitCode))
	_ = logger.Sync()
	os.Exit(exitCode)
}

// awaitExit returns the exit code reported by the shutdown sequence. If the
// serve group fails first, stop runs and the exit code is 1.
func awaitExit(serveCtx context.Context, wait <-chan int, stop func()) int {
	select {
	case code := <-wait:
		return code
	case <-serveCtx.Done():
		stop()
		return 1
	}
}

// remaining returns the time left before ctx expires, or fallback when ctx
// has no deadline.
func remaining(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return fallback
}
