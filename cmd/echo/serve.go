package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/config"
	"github.com/Atharva-Kanherkar/echo/internal/daemon"
	"github.com/Atharva-Kanherkar/echo/internal/market"
	"github.com/Atharva-Kanherkar/echo/internal/platform"
	"github.com/Atharva-Kanherkar/echo/internal/server"
	"github.com/Atharva-Kanherkar/echo/internal/sonar"
	"github.com/Atharva-Kanherkar/echo/internal/workspace"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr     string
	serveLocal    bool
	serveSimulate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket API and dashboard",
	Long: `Run the API server. Sensors started over HTTP read this machine's keyboard,
mouse and window. With --local the full local daemon runs alongside.

The dashboard is served at http://<addr>/?user=<id>.`,
	RunE: runServe,
}

var senseCmd = &cobra.Command{
	Use:   "sense",
	Short: "Run the local daemon",
	Long: `Run the sensor for the configured user together with the unix socket,
state file, interruption guard, message delivery and the optional features
(IDE worker, Socratic questions, intents, harmonizer, clipboard notes).`,
	RunE: runSense,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveLocal, "local", false, "also run the local daemon for the configured user")
	serveCmd.Flags().BoolVar(&serveSimulate, "simulate", false, "simulate teammates even when disabled in config")
	rootCmd.AddCommand(serveCmd, senseCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	client := newClient()
	plat := platform.Detect()

	var model daemon.Model
	if cfg.LLM.APIKey != "" {
		model = client
	}
	mgr := daemon.NewManager(cfg, plat, st, model, logger)
	if serveLocal {
		mgr.Start(ctx)
	} else {
		mgr.StartInputs(ctx)
	}
	defer mgr.Stop()

	srv, err := server.New(server.Options{
		Store:          st,
		TeamID:         cfg.TeamID,
		Sensors:        func(string) (cognition.SignalSource, error) { return mgr.NewSource(), nil },
		SensorInterval: cfg.SensorInterval(),
		Thresholds:     daemon.Thresholds(cfg),
		Canvas:         workspace.NewCanvas(st, logger),
		Market:         market.NewValidator(st, client, cfg.Market.PagesDir, cfg.Market.Platforms, logger),
		Sonars: func(userID string) *sonar.Manager {
			m := sonar.NewManager(st, client, userID, cfg.Workspace.Dir, logger)
			if userID == cfg.UserID {
				m.OnComplete = mgr.SonarFinished
			}
			return m
		},
		Harmonizer:   daemon.HarmonizerThresholds(cfg),
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		SimulateTeam: cfg.Server.SimulateTeam || serveSimulate,
	}, logger)
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Addr()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, addr) })

	if !serveLocal {
		// The local daemon runs these itself.
		g.Go(func() error { return mgr.RunDelivery(gctx) })
		if model != nil {
			g.Go(func() error { return mgr.IDEWorker().Run(gctx) })
		}
	}

	onChange := func(c *config.Config) {
		t := daemon.Thresholds(c)
		srv.SetThresholds(t)
		mgr.Sensor().SetThresholds(t)
		logger.Info("thresholds reloaded")
	}
	if w, err := config.NewWatcher(cfgPath, onChange, logger); err != nil {
		logger.Warn("config hot reload disabled", zap.Error(err))
	} else {
		g.Go(func() error { return w.Run(gctx) })
	}

	logger.Info("ECHO API running",
		zap.String("addr", addr),
		zap.String("team", cfg.TeamID),
		zap.Bool("llm", model != nil))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("ECHO API stopped")
	return nil
}

func runSense(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	plat := platform.Detect()
	for _, missing := range plat.CheckRequirements() {
		logger.Warn("missing requirement", zap.String("requirement", missing))
	}

	var model daemon.Model
	if cfg.LLM.APIKey != "" {
		model = newClient()
	}

	mgr := daemon.NewManager(cfg, plat, st, model, logger)
	mgr.Start(ctx)

	if w, err := config.NewWatcher(cfgPath, func(c *config.Config) {
		mgr.Sensor().SetThresholds(daemon.Thresholds(c))
		logger.Info("thresholds reloaded")
	}, logger); err != nil {
		logger.Warn("config hot reload disabled", zap.Error(err))
	} else {
		go w.Run(ctx)
	}

	logger.Info("ECHO sensing. Press Ctrl+C to stop.",
		zap.String("user", cfg.UserID),
		zap.String("socket", mgr.SocketPath()))
	<-ctx.Done()
	mgr.Stop()
	return nil
}
