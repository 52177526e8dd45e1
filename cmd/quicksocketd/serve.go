package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"quicksocket"
	"quicksocket/internal/config"
	"quicksocket/internal/engine"
	controlgrpc "quicksocket/internal/grpc"
	httpapi "quicksocket/internal/http"
	"quicksocket/internal/logging"
	"quicksocket/internal/metrics"
)

const opsShutdownTimeout = 5 * time.Second

var errEngineStopped = errors.New("engine stopped")

func serveCmd() *cobra.Command {
	var (
		configPath string
		port       int
		relay      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket engine",
		Long: `Run the WebSocket engine with a polling host loop.

Configuration is read from the optional YAML file, then overridden by
QUICKSOCKET_* environment variables, then by flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("relay") {
				cfg.Relay = relay
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "WebSocket port (0 picks an ephemeral port)")
	cmd.Flags().BoolVar(&relay, "relay", true, "Rebroadcast client messages to every client")

	return cmd
}

// runServe starts the engine and its companions and blocks until ctx ends
// and the engine has drained.
func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	collector := metrics.New()
	server := quicksocket.New(
		quicksocket.WithConfig(cfg),
		quicksocket.WithLogger(logger),
		quicksocket.WithMetrics(collector),
	)
	logger.Info("starting websocket engine", logging.String("addr", cfg.Address()), logging.String("path", cfg.Path))
	if !server.Start(cfg.Port) {
		msg, _ := server.LastError()
		return fmt.Errorf("start engine: %s", msg)
	}
	logger.Info("websocket engine listening", logging.String("url", listenerURL("ws", server.Addr(), cfg.Path)))

	g, gctx := errgroup.WithContext(ctx)

	//1.- Host loop drains events and messages until shutdown begins.
	g.Go(func() error {
		return newHostLoop(server, cfg.PollInterval, cfg.Relay, logger).Run(gctx)
	})

	//2.- Ops HTTP server for health, stats and metrics.
	if cfg.OpsAddr != "" {
		handlers := httpapi.NewHandlerSet(httpapi.Options{
			Logger:   logger,
			Status:   server,
			Gatherer: collector.Gatherer(),
		})
		ops := &http.Server{Addr: cfg.OpsAddr, Handler: handlers.Router(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("ops server listening", logging.String("url", listenerURL("http", cfg.OpsAddr, "/")))
			if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), opsShutdownTimeout)
			defer cancel()
			return ops.Shutdown(shutdownCtx)
		})
	}

	//3.- Optional gRPC control bridge.
	if cfg.ControlAddr != "" {
		lis, err := net.Listen("tcp", cfg.ControlAddr)
		if err != nil {
			server.RequestShutdown()
			_ = server.Wait(context.Background())
			return fmt.Errorf("control listener: %w", err)
		}
		grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(controlgrpc.NewLoggingInterceptor(logger)))
		controlgrpc.Register(grpcServer, controlgrpc.NewService(server, controlgrpc.WithLogger(logger)))
		g.Go(func() error {
			logger.Info("control bridge listening", logging.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("control bridge: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	//4.- An engine stopped from the control bridge ends the daemon too;
	// otherwise shutdown follows the group context and waits for the drain.
	g.Go(func() error {
		if engineFinished(gctx, server, cfg.PollInterval) {
			logger.Warn("engine stopped, exiting")
			return errEngineStopped
		}
		logger.Info("shutting down")
		server.RequestShutdown()
		waitCtx, cancel := context.WithTimeout(context.Background(), 2*engine.DefaultShutdownGrace)
		defer cancel()
		if err := server.Wait(waitCtx); err != nil {
			return fmt.Errorf("engine drain: %w", err)
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, errEngineStopped) {
		err = nil
	}
	logger.Info("stopped", logging.Bool("running", server.IsRunning()))
	return err
}

// engineFinished blocks until the engine drains on its own (true) or ctx ends
// (false). A nil Wait only counts once Stats confirms the drain, since both
// go through the try-locked registry.
func engineFinished(ctx context.Context, server *quicksocket.Server, retry time.Duration) bool {
	for {
		if err := server.Wait(ctx); err != nil {
			return false
		}
		if server.Stats().Shutdown == engine.Acknowledged.String() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(retry):
		}
	}
}
