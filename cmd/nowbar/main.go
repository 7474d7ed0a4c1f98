package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/benbjohnson/clock"
	"github.com/genricoloni/nowbar/internal/config"
	"github.com/genricoloni/nowbar/internal/domain"
	"github.com/genricoloni/nowbar/internal/engine"
	"github.com/genricoloni/nowbar/internal/monitor"
	"github.com/genricoloni/nowbar/internal/output"
	"github.com/genricoloni/nowbar/internal/pidfile"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// AppOptions wires every component. The caller supplies config.Config.
var AppOptions = fx.Options(
	// Provide dependencies
	fx.Provide(
		newLogger,
		clock.New,
		fx.Annotate(monitor.NewMprisMonitor, fx.As(new(domain.Monitor))),
		fx.Annotate(output.NewStdoutWriter, fx.As(new(domain.Output))),
		engine.NewEngine,
	),

	// Lifecycle hooks
	fx.Invoke(registerHooks),
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if config.IsHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	app := fx.New(
		fx.Supply(cfg),
		AppOptions,

		// Logger configuration
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer cancel()

	// Start the application
	if err := app.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Wait for an interrupt or a fatal component error
	exitCode := 0
	select {
	case <-ctx.Done():
	case sig := <-app.Wait():
		exitCode = sig.ExitCode
	}

	// Stop the application gracefully
	if err := app.Stop(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitCode = 1
	}
	os.Exit(exitCode)
}

// newLogger creates a production zap logger at the configured level.
// Logs go to stderr since stdout carries the render lines.
func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// registerHooks sets up application lifecycle hooks
func registerHooks(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	logger *zap.Logger,
	cfg config.Config,
	clk clock.Clock,
	mon domain.Monitor,
	eng *engine.Engine,
) {
	// The monitor outlives the OnStart context, so it gets its own
	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	var pidPath string

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Nowbar started", zap.Int("pid", unix.Getpid()))

			if cfg.PIDDir != "" {
				path, err := pidfile.Write(cfg.PIDDir, clk.Now())
				if err != nil {
					logger.Warn("Failed to write pid file", zap.Error(err))
				} else {
					pidPath = path
					logger.Debug("Pid file written", zap.String("path", path))
				}
			}

			go func() {
				err := mon.Start(monitorCtx)
				if err == nil || errors.Is(err, context.Canceled) {
					return
				}
				logger.Error("Monitor failed", zap.Error(err))
				if err := shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
					logger.Warn("Failed to request shutdown", zap.Error(err))
				}
			}()

			return eng.Start(monitorCtx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")

			engErr := eng.Stop(ctx)
			cancelMonitor()
			monErr := mon.Stop(ctx)

			if pidPath != "" {
				if err := pidfile.Remove(pidPath); err != nil {
					logger.Warn("Failed to remove pid file", zap.Error(err))
				}
			}
			return multierr.Append(engErr, monErr)
		},
	})
}
