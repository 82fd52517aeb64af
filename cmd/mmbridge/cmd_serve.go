package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kuuji/mmbridge/internal/calls"
	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/control"
	"github.com/kuuji/mmbridge/internal/eventcache"
	"github.com/kuuji/mmbridge/internal/hostlink"
	"github.com/kuuji/mmbridge/internal/looper"
	"github.com/kuuji/mmbridge/internal/module"
	"github.com/kuuji/mmbridge/internal/sdk"
	"github.com/kuuji/mmbridge/internal/sdk/sim"
	"github.com/kuuji/mmbridge/internal/service"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge with a simulated native SDK",
	Long: `Start the bridge service against the simulated SDK and serve the host
link a JS runtime connects to. Native events can be raised with
'mmbridge emit'; 'mmbridge status' and 'mmbridge cache' inspect the
running bridge through its control socket.

A persisted app configuration is restored at start, as a device does when
a push wakes the app before the JS layer loads.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "host link listen address (overrides bridge.listen)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Bridge.Listen = serveListen
	}

	dataDir, err := config.DefaultDataDir()
	if err != nil {
		return err
	}
	cache, err := eventcache.Open(cfg.Cache, dataDir)
	if err != nil {
		return fmt.Errorf("opening event cache: %w", err)
	}
	defer cache.Close()
	configurations, err := config.OpenStore(cfg.Persist, dataDir)
	if err != nil {
		return fmt.Errorf("opening configuration store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	native := sim.New(cfg.Bridge.Platform, globalLogger)
	defer native.Shutdown()
	mainThread := looper.New(globalLogger)
	defer mainThread.Close()

	var rtc sdk.WebRTC
	var preflight *calls.Preflighter
	if cfg.Calls.Enabled {
		rtc = native
		preflight = calls.NewPreflighter(cfg.Calls, globalLogger)
	}
	deps := service.NativeDeps(native, native, rtc, preflight)
	deps.Cache = cache
	deps.Configurations = configurations
	deps.Poster = mainThread

	link := hostlink.NewServer(cfg.Bridge.AuthToken, globalLogger)
	defer link.Close()

	svc := service.New(service.Config{
		Platform:   cfg.Bridge.Platform,
		Emitter:    link,
		CacheLimit: cfg.Cache.Limit,
		Storage:    cfg.Storage,
		Logger:     globalLogger,
	}, deps)
	defer svc.Destroy()
	if err := svc.RegisterReceivers(); err != nil {
		return fmt.Errorf("registering receivers: %w", err)
	}
	link.Bind(module.New(svc, globalLogger))

	if restored, err := svc.Restore(ctx); err != nil {
		globalLogger.Warn("persisted configuration not restored", "error", err)
	} else if restored {
		globalLogger.Info("persisted configuration restored")
	}

	ctl := control.NewServer(controlSocket(cfg), &serveBackend{
		svc:     svc,
		link:    link,
		native:  native,
		listen:  cfg.Bridge.Listen,
		started: time.Now(),
	}, globalLogger)
	if err := ctl.Start(); err != nil {
		return fmt.Errorf("starting control server: %w", err)
	}
	defer ctl.Stop() //nolint:errcheck

	mux := http.NewServeMux()
	mux.Handle(cfg.Bridge.Path, link)
	httpServer := &http.Server{
		Addr:              cfg.Bridge.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		globalLogger.Info("host link listening", "addr", cfg.Bridge.Listen, "path", cfg.Bridge.Path, "platform", cfg.Bridge.Platform, "auth", cfg.Bridge.AuthToken != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("host link server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		link.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	globalLogger.Info("mmbridge stopped")
	return nil
}

// serveBackend exposes the running bridge to the control socket.
type serveBackend struct {
	svc     *service.Service
	link    *hostlink.Server
	native  *sim.SDK
	listen  string
	started time.Time
}

func (b *serveBackend) Status(ctx context.Context) control.Status {
	st := control.Status{
		Service:       b.svc.Status(ctx),
		Listen:        b.listen,
		UptimeSeconds: time.Since(b.started).Seconds(),
	}
	if hello, ok := b.link.Session(); ok {
		st.Session = &hello
	}
	return st
}

func (b *serveBackend) Pending(ctx context.Context) ([]eventcache.Entry, error) {
	return b.svc.Pending(ctx)
}

func (b *serveBackend) Flush(ctx context.Context) (int, error) {
	return b.svc.Flush(ctx)
}

func (b *serveBackend) Inject(br sdk.Broadcast) {
	n := b.native.Send(br)
	globalLogger.Debug("broadcast injected", "action", br.Action, "receivers", n)
}
