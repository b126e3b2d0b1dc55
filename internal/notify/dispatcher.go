// Package notify delivers booking notifications off the request path.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/lessons/pkg/booking"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the dispatcher cannot accept more work.
	ErrQueueFull = errors.New("notification queue full")
	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// Sender performs the actual delivery of one notification.
type Sender interface {
	Deliver(ctx context.Context, notification booking.Notification) error
}

// Dispatcher implements booking.Notifier with a bounded queue drained by workers.
type Dispatcher struct {
	sender    Sender
	logger    *zap.Logger
	timeout   time.Duration
	queue     chan booking.Notification
	mutex     sync.RWMutex
	closed    bool
	waitGroup sync.WaitGroup
}

// NewDispatcher starts the workers; Close stops them after the queue drains.
func NewDispatcher(sender Sender, logger *zap.Logger, config Config) (*Dispatcher, error) {
	if sender == nil {
		return nil, fmt.Errorf("notification sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	dispatcher := &Dispatcher{
		sender:  sender,
		logger:  logger,
		timeout: config.DeliveryTimeout,
		queue:   make(chan booking.Notification, config.QueueSize),
	}
	for worker := 0; worker < config.Workers; worker++ {
		dispatcher.waitGroup.Add(1)
		go dispatcher.run()
	}
	return dispatcher, nil
}

// Send enqueues the notification without waiting for delivery.
func (dispatcher *Dispatcher) Send(_ context.Context, notification booking.Notification) error {
	dispatcher.mutex.RLock()
	defer dispatcher.mutex.RUnlock()
	if dispatcher.closed {
		return ErrDispatcherClosed
	}
	select {
	case dispatcher.queue <- notification:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued notifications to be delivered.
func (dispatcher *Dispatcher) Close() {
	dispatcher.mutex.Lock()
	if !dispatcher.closed {
		dispatcher.closed = true
		close(dispatcher.queue)
	}
	dispatcher.mutex.Unlock()
	dispatcher.waitGroup.Wait()
}

func (dispatcher *Dispatcher) run() {
	defer dispatcher.waitGroup.Done()
	for notification := range dispatcher.queue {
		dispatcher.deliver(notification)
	}
}

func (dispatcher *Dispatcher) deliver(notification booking.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatcher.timeout)
	defer cancel()
	if err := dispatcher.sender.Deliver(ctx, notification); err != nil {
		dispatcher.logger.Warn("notification delivery failed",
			zap.String("to", notification.To),
			zap.String("subject", notification.Subject),
			zap.Error(err),
		)
		return
	}
	dispatcher.logger.Debug("notification delivered",
		zap.String("to", notification.To),
		zap.String("subject", notification.Subject),
	)
}
