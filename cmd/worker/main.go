// cmd/worker runs the out-of-process behavior re-aggregation consumer: it
// drains the behavior-reaggregation Redis stream and calls
// BehaviorAggregator.Update for each job. It is the cross-process sibling of
// coordinator.ChannelDispatcher, used when the API server and the
// aggregation workers are scaled independently.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/configs"
	"github.com/enterprise/fraudscore/internal/behavior"
	"github.com/enterprise/fraudscore/internal/queue"
	"github.com/enterprise/fraudscore/internal/store"
)

const consumeBatchSize = 20
const consumeBlock = 5 * time.Second

func main() {
	_ = godotenv.Load()
	cfg := configs.Load()
	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Int("concurrency", cfg.Worker.Concurrency).
		Msg("starting behavior re-aggregation worker")

	db, err := store.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	aggQueue, err := queue.NewAggregationQueue(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to aggregation stream")
	}
	defer aggQueue.Close()

	postgresStore := store.NewPostgresStore(db)
	aggregator := behavior.New(postgresStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	consumerName := "worker-" + uuid.NewString()[:8]

	done := make(chan struct{})
	go func() {
		defer close(done)
		runLoop(ctx, aggQueue, aggregator, consumerName, cfg.Worker.Concurrency)
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	case <-ctx.Done():
	}

	<-done
	log.Info().Msg("worker shutdown complete")
}

func runLoop(ctx context.Context, aggQueue *queue.AggregationQueue, aggregator *behavior.Aggregator, consumerName string, concurrency int) {
	sem := make(chan struct{}, concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := aggQueue.Consume(ctx, consumerName, consumeBatchSize, consumeBlock)
		if err != nil {
			log.Error().Err(err).Msg("failed to consume aggregation jobs")
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			userID, err := uuid.Parse(msg.Job.UserID)
			if err != nil {
				log.Error().Err(err).Str("message_id", msg.ID).Msg("invalid user id in aggregation job, acking and skipping")
				_ = aggQueue.Acknowledge(ctx, msg.ID)
				continue
			}

			sem <- struct{}{}
			go func(messageID string, userID uuid.UUID) {
				defer func() { <-sem }()
				if err := aggregator.Update(ctx, userID); err != nil {
					log.Warn().Err(err).Str("user_id", userID.String()).Msg("aggregation failed, job left unacked")
					return
				}
				if err := aggQueue.Acknowledge(ctx, messageID); err != nil {
					log.Error().Err(err).Str("message_id", messageID).Msg("failed to acknowledge aggregation job")
				}
			}(msg.ID, userID)
		}
	}
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
