package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
	"github.com/jdziat/paid-deploy-jobs/pkg/queue"
)

// Source is the event and status surface of a queue.
type Source interface {
	Events() <-chan core.Event
	Unsubscribe(ch <-chan core.Event)
	Status() queue.Status
}

// Collector subscribes to queue events and periodically samples queue depth.
type Collector struct {
	source   Source
	metrics  *Metrics
	interval time.Duration
	slaCount func() int

	ready     chan struct{}
	readyOnce sync.Once
}

// CollectorOption configures the Collector.
type CollectorOption interface {
	apply(*Collector)
}

type collectorOptionFunc func(*Collector)

func (f collectorOptionFunc) apply(c *Collector) { f(c) }

// SampleInterval sets how often gauges are refreshed. Default: 5 seconds.
func SampleInterval(d time.Duration) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		if d > 0 {
			c.interval = d
		}
	})
}

// SlaActiveFunc reports the number of tracked SLA jobs on each sample.
func SlaActiveFunc(fn func() int) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		c.slaCount = fn
	})
}

// NewCollector creates a Collector feeding m from src.
func NewCollector(src Source, m *Metrics, opts ...CollectorOption) *Collector {
	c := &Collector{
		source:   src,
		metrics:  m,
		interval: 5 * time.Second,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c
}

// WaitReady blocks until the collector has subscribed to events.
func (c *Collector) WaitReady() {
	<-c.ready
}

// Start consumes events until ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	events := c.source.Events()
	defer c.source.Unsubscribe(events)

	c.readyOnce.Do(func() { close(c.ready) })
	c.sample()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			c.handleEvent(e)
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *Collector) handleEvent(e core.Event) {
	switch ev := e.(type) {
	case *core.JobEnqueued:
		c.metrics.Enqueued.Inc()
	case *core.JobStarted:
		c.metrics.InFlight.Set(1)
	case *core.JobCompleted:
		c.metrics.Completed.Inc()
		c.metrics.JobDuration.Observe(ev.Duration.Seconds())
		c.metrics.InFlight.Set(0)
	case *core.JobFailed:
		c.metrics.Failed.Inc()
		c.metrics.InFlight.Set(0)
	case *core.JobRetrying:
		c.metrics.Retried.Inc()
		c.metrics.InFlight.Set(0)
	case *core.JobExpired:
		c.metrics.Expired.Inc()
	case *core.PaymentConfirmed:
		c.metrics.PaymentsConfirmed.Inc()
	}
}

func (c *Collector) sample() {
	st := c.source.Status()
	c.metrics.QueueDepth.Set(float64(st.Length))
	if st.InFlight != nil {
		c.metrics.InFlight.Set(1)
	} else {
		c.metrics.InFlight.Set(0)
	}
	if c.slaCount != nil {
		c.metrics.SlaActive.Set(float64(c.slaCount()))
	}
}
