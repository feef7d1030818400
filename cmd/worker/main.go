package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/suPer8Hu/weirdling/internal/app"
	"github.com/suPer8Hu/weirdling/internal/config"
	"github.com/suPer8Hu/weirdling/internal/db"
	"github.com/suPer8Hu/weirdling/internal/logging"
	"github.com/suPer8Hu/weirdling/internal/store/rabbitmq"
	"github.com/suPer8Hu/weirdling/internal/store/redisstore"
	"github.com/suPer8Hu/weirdling/internal/weirdling"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		log.WithError(err).Fatal("db open")
	}
	if err := db.Migrate(gdb, &weirdling.Job{}); err != nil {
		log.WithError(err).Fatal("db migrate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rds *redisstore.Store
	if app.NeedsRedis(cfg) {
		rds = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			log.WithError(err).Fatal("redis")
		}
	}

	// the worker never submits, so no dispatcher
	svc, _, err := app.NewService(ctx, cfg, gdb, rds, nil, log)
	if err != nil {
		log.WithError(err).Fatal("build service")
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.WithError(err).Fatal("rabbit dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Fatal("rabbit channel")
	}
	defer ch.Close()

	if err := rabbitmq.Declare(ch, rabbitmq.QueuesFor(cfg.RabbitQueue)); err != nil {
		log.WithError(err).Fatal("queue declare")
	}

	// parks busy messages on the retry queue
	retries, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.WithError(err).Fatal("retry publisher")
	}
	defer retries.Close()

	// strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.WithError(err).Fatal("qos")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.WithError(err).Fatal("consume")
	}

	log.WithFields(logrus.Fields{"queue": cfg.RabbitQueue, "concurrency": concurrency}).Info("worker started")

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.WithField("worker", workerID)
			for d := range jobs {
				settle(ctx, d, handleDelivery(ctx, svc, wlog, d.Body), retries, wlog)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				stop()
				msgs = nil
				continue
			}
			jobs <- d
		}
	}
}

type outcome int

const (
	ack outcome = iota
	// dead-letter to the DLQ
	reject
	// another delivery holds the idempotency lock; try again later
	retry
)

const retryDelay = 5 * time.Second

type retrier interface {
	Retry(ctx context.Context, body []byte, delay time.Duration) error
}

func settle(ctx context.Context, d amqp.Delivery, o outcome, r retrier, log logrus.FieldLogger) {
	if o == retry {
		if err := r.Retry(ctx, d.Body, retryDelay); err != nil {
			log.WithError(err).Warn("park for retry")
			o = reject
		} else {
			o = ack
		}
	}

	var err error
	if o == ack {
		err = d.Ack(false)
	} else {
		err = d.Nack(false, false)
	}
	if err != nil {
		log.WithError(err).Warn("settle delivery")
	}
}

// handleDelivery runs one queued generation. Failures the job already records
// are acked; only messages that could not be processed at all go to the DLQ.
func handleDelivery(ctx context.Context, svc *weirdling.Service, log logrus.FieldLogger, body []byte) outcome {
	var msg weirdling.QueuedGeneration
	if err := json.Unmarshal(body, &msg); err != nil || msg.OwnerID == "" {
		log.WithError(err).Warn("bad message")
		return reject
	}

	start := time.Now()
	p, err := svc.Process(ctx, msg)
	entry := log.WithFields(logrus.Fields{"owner_id": msg.OwnerID, "cost": time.Since(start)})
	if err != nil {
		switch weirdling.KindOf(err) {
		case weirdling.KindGenerationFailed, weirdling.KindInvalidRequest:
			entry.WithError(err).Warn("queued generation failed")
			return ack
		case weirdling.KindInProgress:
			entry.Info("queued generation busy, retrying later")
			return retry
		default:
			entry.WithError(err).Error("queued generation not processed")
			return reject
		}
	}
	entry.WithFields(logrus.Fields{"job_id": p.JobID, "replayed": p.Replayed}).Info("queued generation done")
	return ack
}
