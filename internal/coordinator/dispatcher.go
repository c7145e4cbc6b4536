package coordinator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/internal/behavior"
)

const aggregationQueueDepth = 1024

// AggregationScheduler hands a userID off to asynchronous
// BehaviorAggregator processing without making the caller wait.
type AggregationScheduler interface {
	Schedule(userID uuid.UUID)
}

// ChannelDispatcher is a bounded, in-process task queue consumed by a small
// pool of worker goroutines. It is the default AggregationScheduler; a
// deployment that wants cross-process fan-out swaps in the Redis Streams
// publisher from internal/queue instead.
type ChannelDispatcher struct {
	jobs       chan uuid.UUID
	aggregator *behavior.Aggregator
	wg         sync.WaitGroup
	stopCh     chan struct{}
}

// NewChannelDispatcher starts numWorkers goroutines draining a bounded job
// queue.
func NewChannelDispatcher(aggregator *behavior.Aggregator, numWorkers int) *ChannelDispatcher {
	d := &ChannelDispatcher{
		jobs:       make(chan uuid.UUID, aggregationQueueDepth),
		aggregator: aggregator,
		stopCh:     make(chan struct{}),
	}
	for i := 0; i < numWorkers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

func (d *ChannelDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case userID := <-d.jobs:
			if err := d.aggregator.Update(context.Background(), userID); err != nil {
				log.Warn().Err(err).Str("user_id", userID.String()).Msg("coordinator: aggregation failed, next run will retry")
			}
		}
	}
}

// Schedule enqueues userID for aggregation. If the queue is full the job is
// dropped — the aggregator reads the latest committed history, so the next
// transaction's scheduling attempt converges the profile regardless.
func (d *ChannelDispatcher) Schedule(userID uuid.UUID) {
	select {
	case d.jobs <- userID:
	default:
		log.Warn().Str("user_id", userID.String()).Msg("coordinator: aggregation queue full, dropping job")
	}
}

// Stop signals the workers to exit and waits for any in-flight Update to
// return. Jobs still queued are not processed, and Schedule still enqueues
// (or drops, once the queue is full) after Stop.
func (d *ChannelDispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}
