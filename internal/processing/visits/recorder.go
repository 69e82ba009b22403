package visits

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/linksight/linksight/internal/infrastructure/logger"
	"github.com/linksight/linksight/internal/processing/links"
)

// Sink receives finished visit records. Implementations are the storage
// ledger itself or a broker publisher in front of it.
type Sink interface {
	Insert(ctx context.Context, visit *links.Visit) error
}

var (
	visitsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linksight_visits_recorded_total",
		Help: "Visits accepted onto the recording queue",
	})
	visitsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linksight_visits_dropped_total",
		Help: "Visits dropped because the recording queue was full",
	})
	visitsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linksight_visits_failed_total",
		Help: "Visits that failed to persist",
	})
)

// Recorder decouples redirect latency from visit persistence. Record never
// blocks: when the queue is full the newest visit is dropped and counted.
// Visits are best-effort telemetry, not billing data.
type Recorder struct {
	sink    Sink
	queue   chan *links.Visit
	timeout time.Duration
	dropped atomic.Int64

	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewRecorder(sink Sink, queueSize, workers int, timeout time.Duration) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}

	r := &Recorder{
		sink:    sink,
		queue:   make(chan *links.Visit, queueSize),
		timeout: timeout,
	}

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker()
	}

	return r
}

// Record enqueues a visit without blocking the caller. Returns false when
// the visit was dropped because the queue is full.
func (r *Recorder) Record(visit *links.Visit) bool {
	select {
	case r.queue <- visit:
		visitsRecorded.Inc()
		return true
	default:
		n := r.dropped.Add(1)
		visitsDropped.Inc()
		logger.Warn("visit dropped, queue full",
			zap.String("urlId", visit.URLID),
			zap.Int64("totalDropped", n),
		)
		return false
	}
}

// Dropped reports how many visits were discarded since startup.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for visit := range r.queue {
		r.persist(visit)
	}
}

func (r *Recorder) persist(visit *links.Visit) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.sink.Insert(ctx, visit); err != nil {
		visitsFailed.Inc()
		logger.Error("failed to persist visit",
			zap.String("urlId", visit.URLID),
			zap.Error(err),
		)
	}
}

// Shutdown stops accepting visits and drains the queue. It returns early
// with the context's error if draining outlasts the deadline.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.queue) })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
