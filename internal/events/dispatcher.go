package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_events_total",
	Help: "Events handed to the dispatcher, by outcome",
}, []string{"outcome"})

// Publisher delivers one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Dispatcher decouples publishing from the money path: Notify never blocks,
// and a full queue drops the event with a warning.
type Dispatcher struct {
	queue     chan Event
	publisher Publisher
	logger    *zap.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewDispatcher(publisher Publisher, bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Dispatcher{
		queue:     make(chan Event, bufferSize),
		publisher: publisher,
		logger:    logger,
		timeout:   5 * time.Second,
	}
}

func (d *Dispatcher) Start(workerCount int) {
	if workerCount <= 0 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.publisher.Publish(ctx, e)
		cancel()
		if err != nil {
			eventsTotal.WithLabelValues("failed").Inc()
			d.logger.Warn("event publish failed",
				zap.String("event_id", e.ID),
				zap.String("type", string(e.Type)),
				zap.Error(err),
			)
			continue
		}
		eventsTotal.WithLabelValues("published").Inc()
	}
}

// Notify stamps and enqueues e.
func (d *Dispatcher) Notify(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	select {
	case d.queue <- e:
	default:
		eventsTotal.WithLabelValues("dropped").Inc()
		d.logger.Warn("event queue full; dropping event",
			zap.String("type", string(e.Type)),
			zap.Int64("account_id", e.AccountID),
		)
	}
}

// Shutdown drains queued events and closes the publisher.
func (d *Dispatcher) Shutdown() {
	d.closeOnce.Do(func() {
		close(d.queue)
		d.wg.Wait()
		if err := d.publisher.Close(); err != nil {
			d.logger.Warn("event publisher close failed", zap.Error(err))
		}
	})
}
