package alerting

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/observability/metrics"
)

const (
	defaultShards     = 8
	defaultShardQueue = 256
)

// Drop reasons recorded in metrics.
const (
	dropQueueFull = "queue_full"
	dropStopped   = "stopped"
)

// ReadingHandler processes one reading.
type ReadingHandler func(ctx context.Context, reading SensorReading)

// ReadingBus queues readings into shards keyed by device id. Each shard has
// one worker, so a device's readings are handled in arrival order while
// different devices proceed in parallel. Publish never blocks: when a shard
// buffer is full the reading is dropped.
type ReadingBus struct {
	shards  []chan SensorReading
	handler ReadingHandler
	metrics *metrics.Metrics
	log     logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders Publish against Stop; a reading is enqueued only while
	// the workers are still guaranteed to drain it.
	mu       sync.RWMutex
	stopped  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReadingBus creates a bus and starts one worker per shard.
func NewReadingBus(shards, buffer int, handler ReadingHandler, m *metrics.Metrics, log logger.Logger) *ReadingBus {
	if shards <= 0 {
		shards = defaultShards
	}
	if buffer <= 0 {
		buffer = defaultShardQueue
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &ReadingBus{
		shards:  make([]chan SensorReading, shards),
		handler: handler,
		metrics: m,
		log:     log.Module("ingest"),
		ctx:     ctx,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
	}
	for i := range b.shards {
		b.shards[i] = make(chan SensorReading, buffer)
		b.wg.Add(1)
		go b.processLoop(b.shards[i])
	}
	return b
}

// Publish enqueues a reading and reports whether it was accepted.
func (b *ReadingBus) Publish(reading SensorReading) bool {
	if reading.ReceivedAt.IsZero() {
		reading.ReceivedAt = time.Now()
	}

	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		b.metrics.RecordIngestDropped(dropStopped)
		return false
	}
	var accepted bool
	select {
	case b.shardFor(reading.DeviceID) <- reading:
		accepted = true
	default:
	}
	b.mu.RUnlock()

	if !accepted {
		b.metrics.RecordIngestDropped(dropQueueFull)
		b.log.Warn("ingest queue full, dropping reading",
			logger.String("device_id", reading.DeviceID),
			logger.String("system_type", reading.SystemType))
	}
	return accepted
}

func (b *ReadingBus) shardFor(deviceID string) chan SensorReading {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return b.shards[h.Sum32()%uint32(len(b.shards))]
}

// Stop drains queued readings and waits for the workers. Safe to call
// multiple times.
func (b *ReadingBus) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()
		close(b.stopCh)
		b.wg.Wait()
		b.cancel()
	})
}

// processLoop drains one shard.
func (b *ReadingBus) processLoop(ch chan SensorReading) {
	defer b.wg.Done()
	for {
		select {
		case reading := <-ch:
			b.safeCall(reading)
		case <-b.stopCh:
			// Drain remaining readings before exiting
			for {
				select {
				case reading := <-ch:
					b.safeCall(reading)
				default:
					return
				}
			}
		}
	}
}

// safeCall invokes the handler with panic recovery so one bad reading
// cannot kill a shard worker.
func (b *ReadingBus) safeCall(reading SensorReading) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("reading handler panicked",
				logger.String("device_id", reading.DeviceID),
				logger.Any("panic", r))
		}
	}()
	b.handler(b.ctx, reading)
}
