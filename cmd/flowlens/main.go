package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	app "github.com/flowlens/flowlens"
	"github.com/flowlens/flowlens/internal/client"
	"github.com/flowlens/flowlens/internal/config"
	"github.com/flowlens/flowlens/internal/frame"
	"github.com/flowlens/flowlens/internal/monitor"
	"github.com/flowlens/flowlens/internal/sampler"
	"github.com/flowlens/flowlens/internal/server"
	"github.com/flowlens/flowlens/internal/snapshot"
	"github.com/flowlens/flowlens/pkg/log"
	"github.com/flowlens/flowlens/pkg/util"
)

type flowlens struct {
	cfg        *config.Config
	store      *snapshot.Store
	frames     *frame.Manager
	monitor    *monitor.Monitor
	emitter    *sampler.Emitter
	wsServer   *server.Server
	wsClient   *client.Client
	httpServer *http.Server
	unsubs     []func()
	quit       chan os.Signal
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	f := &flowlens{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	f.setupLogging()
	f.run()
}

func (f *flowlens) run() {
	f.initializePipeline()
	f.startServer()
	f.startClient()

	signal.Notify(f.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(f.quit)
	<-f.quit

	f.shutdown()
}

func (f *flowlens) setupLogging() {
	level, ok := logLevels[f.cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Flowlens starting",
		slog.String("log_level", f.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("api_host", f.cfg.APIHost),
		slog.Int("api_port", f.cfg.APIPort),
		slog.String("admin_root", f.cfg.AdminRoot),
		slog.Duration("heartbeat", f.cfg.WebSocket.HeartbeatInterval),
		slog.Int("max_connections", f.cfg.WebSocket.MaxConnections),
		slog.Duration("idle_timeout", f.cfg.Frame.IdleTimeout))
}

func (f *flowlens) initializePipeline() {
	registry := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(registry)

	f.store = snapshot.NewStore(f.cfg.Frame.MaxSnapshots)
	f.frames = frame.NewManager(f.store, f.cfg.Frame, nil)
	f.monitor = monitor.NewMonitor(monitor.WithMetrics(metrics))
	f.wsServer = server.NewServer(f.cfg.AdminRoot, f.cfg.WebSocket)
	f.wsServer.OnConnectionChange(f.monitor.SetConnections)

	f.emitter = sampler.NewEmitter(
		sampler.New(f.cfg.Sampling),
		sampler.NewPreviewBuilder(f.cfg.Limits, f.cfg.Redaction),
		f.wsServer.Broadcast,
	)

	router := f.wsServer.SetupRoutes()
	router.POST(
		util.JoinPath(f.cfg.AdminRoot, server.IngestPath),
		server.NewIngestHandler(f.emitter),
	)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		registry, promhttp.HandlerOpts{},
	)))

	f.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", f.cfg.APIHost, f.cfg.APIPort),
		Handler: router,
	}
}

func (f *flowlens) startServer() {
	f.wsServer.Start()

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", f.httpServer.Addr))
		err := f.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (f *flowlens) startClient() {
	baseURL := fmt.Sprintf("http://%s:%d", f.cfg.APIHost, f.cfg.APIPort)
	f.wsClient = client.NewClient(
		baseURL, f.cfg.AdminRoot, f.cfg.Client, nil,
	)
	f.unsubs = append(f.unsubs,
		f.wsClient.OnEvent(f.frames.HandleEvent),
		f.wsClient.OnEvent(f.monitor.HandleEvent),
	)
	f.wsClient.Connect()
}

func (f *flowlens) shutdown() {
	slog.Info("Shutting down")

	for _, unsub := range f.unsubs {
		unsub()
	}
	f.wsClient.Close()
	f.frames.Stop()
	f.wsServer.Stop()

	ctx, cancel := context.WithTimeout(
		context.Background(), f.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := f.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	slog.Info("Server exited")
}
