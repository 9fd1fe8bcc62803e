package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/medrex/booking/pkg/interfaces"
	"github.com/medrex/booking/pkg/logger"
	"github.com/medrex/booking/pkg/monitoring"
	"github.com/medrex/booking/pkg/types"
)

// Notifier accepts notifications without blocking the caller
type Notifier interface {
	Notify(n *types.Notification)
}

// DispatcherConfig tunes the async dispatcher
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// Dispatcher delivers notifications to a sink from a bounded queue. When the
// queue is full the notification is dropped and logged; booking writes never
// wait on delivery.
type Dispatcher struct {
	sink    interfaces.NotificationSink
	queue   chan *types.Notification
	workers int
	timeout time.Duration
	logger  *logrus.Entry
	metrics *monitoring.MetricsCollector

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher; call Start before use
func NewDispatcher(sink interfaces.NotificationSink, cfg DispatcherConfig, log *logger.Logger, metrics *monitoring.MetricsCollector) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan *types.Notification, cfg.QueueSize),
		workers: cfg.Workers,
		timeout: cfg.SendTimeout,
		logger:  log.WithComponent("notification_dispatcher"),
		metrics: metrics,
	}
}

// Start launches the worker goroutines
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Notify enqueues n. It never blocks.
func (d *Dispatcher) Notify(n *types.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(n, "dispatcher stopped")
		return
	}

	select {
	case d.queue <- n:
		if d.metrics != nil {
			d.metrics.SetNotificationQueueDepth(len(d.queue))
		}
	default:
		d.drop(n, "queue full")
	}
}

// Stop stops accepting notifications and waits for queued ones to be
// delivered, or for ctx to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification drain interrupted: %w", ctx.Err())
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n *types.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if d.metrics != nil {
		d.metrics.SetNotificationQueueDepth(len(d.queue))
	}

	if err := d.sink.Send(ctx, n); err != nil {
		d.logger.WithFields(logrus.Fields{
			"notification_id": n.ID,
			"user_id":         n.UserID,
			"type":            n.Type,
			"booking_id":      n.RelatedBookingID,
		}).WithError(err).Warn("Failed to deliver notification")
		d.record(n, monitoring.NotificationFailed)
		return
	}
	d.record(n, monitoring.NotificationSent)
}

func (d *Dispatcher) drop(n *types.Notification, reason string) {
	d.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"type":            n.Type,
		"booking_id":      n.RelatedBookingID,
		"reason":          reason,
	}).Warn("Dropped notification")
	d.record(n, monitoring.NotificationDropped)
}

func (d *Dispatcher) record(n *types.Notification, result string) {
	if d.metrics != nil {
		d.metrics.RecordNotification(string(n.Type), result)
	}
}

// LogSink writes notifications to the service log
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a sink backed by the logger
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Send logs the notification
func (s *LogSink) Send(ctx context.Context, n *types.Notification) error {
	s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"type":            n.Type,
		"title":           n.Title,
		"booking_id":      n.RelatedBookingID,
	}).Info(n.Message)
	return nil
}

// Publisher is the part of the redis client the sink uses
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes notifications as JSON on a Redis Pub/Sub channel
type RedisSink struct {
	client  Publisher
	channel string
}

// NewRedisSink creates a Pub/Sub notification sink
func NewRedisSink(client Publisher, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// Send publishes the notification
func (s *RedisSink) Send(ctx context.Context, n *types.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
