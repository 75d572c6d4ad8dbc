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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aura/internal/bus"
	"aura/internal/config"
	"aura/internal/engines"
	"aura/internal/intent"
	"aura/internal/logging"
	"aura/internal/metrics"
	"aura/internal/qa"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the intent service against the platform messagebus",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	bootLog := logging.Named(logger, logging.CategoryBoot)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	bootLog.Info("configuration loaded",
		zap.String("path", configPath),
		zap.String("lang", cfg.Lang),
		zap.String("bus", cfg.BusURL()))

	client, err := bus.DialWS(cfg.BusURL(), logging.Named(logger, logging.CategoryBus))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var qaEngine intent.QAEngine
	if cfg.QA.APIKey != "" {
		persona, err := qa.NewPersona(ctx, cfg.QA.APIKey, cfg.QA.Model,
			logging.Named(logger, logging.CategoryQA))
		if err != nil {
			// The service runs degraded without question answering, same as
			// with any other missing engine.
			bootLog.Warn("persona engine unavailable", zap.Error(err))
		} else {
			qaEngine = persona
		}
	}

	svc, err := intent.New(intent.Params{
		Bus:    client,
		Config: cfg,
		Adapt:  engines.NewKeywordAdapt(),
		QA:     qaEngine,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	watcher, err := config.NewWatcher(configPath,
		logging.Named(logger, logging.CategoryBoot), svc.ApplyConfig)
	if err != nil {
		bootLog.Warn("config watcher disabled", zap.Error(err))
	} else if err := watcher.Start(); err != nil {
		bootLog.Warn("config watcher disabled", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler()}
		g.Go(func() error {
			bootLog.Info("metrics listener up", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	bootLog.Info("intent service running")
	err = g.Wait()
	bootLog.Info("intent service stopped")
	return err
}
