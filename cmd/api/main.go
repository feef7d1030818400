package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/weirdling/internal/app"
	"github.com/suPer8Hu/weirdling/internal/config"
	"github.com/suPer8Hu/weirdling/internal/db"
	"github.com/suPer8Hu/weirdling/internal/httpapi"
	"github.com/suPer8Hu/weirdling/internal/httpapi/handlers"
	"github.com/suPer8Hu/weirdling/internal/logging"
	"github.com/suPer8Hu/weirdling/internal/store/rabbitmq"
	"github.com/suPer8Hu/weirdling/internal/store/redisstore"
	"github.com/suPer8Hu/weirdling/internal/weirdling"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("api exited")
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb, &weirdling.Job{}); err != nil {
		return err
	}

	var rds *redisstore.Store
	if app.NeedsRedis(cfg) {
		rds = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			return err
		}
	}

	// async submission is optional: without a broker the endpoint answers 503
	var dispatcher weirdling.Dispatcher
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.WithError(err).Warn("rabbitmq unavailable, async generation disabled")
		} else {
			defer pub.Close()
			dispatcher = pub
		}
	}

	svc, repo, err := app.NewService(ctx, cfg, gdb, rds, dispatcher, log)
	if err != nil {
		return err
	}

	h := handlers.NewHandler(svc, repo, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg.JWTSecret, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "provider": cfg.AIProvider}).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("api shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
