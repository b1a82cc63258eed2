package projections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ripkitten-co/procview"
)

type DaemonOption func(*daemonConfig)

type daemonConfig struct {
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	logger          *slog.Logger
	deadLetters     DeadLetterSink
	listen          bool
}

func WithPollingInterval(d time.Duration) DaemonOption {
	return func(c *daemonConfig) { c.pollingInterval = d }
}

func WithBatchSize(n int) DaemonOption {
	return func(c *daemonConfig) { c.batchSize = n }
}

// WithMaxRetries sets how many times a failing batch is attempted before its
// failed events are dead-lettered.
func WithMaxRetries(n int) DaemonOption {
	return func(c *daemonConfig) { c.maxRetries = n }
}

func WithLogger(l *slog.Logger) DaemonOption {
	return func(c *daemonConfig) { c.logger = l }
}

func WithDeadLetters(sink DeadLetterSink) DaemonOption {
	return func(c *daemonConfig) { c.deadLetters = sink }
}

// WithNotifications toggles LISTEN/NOTIFY wakeups. Polling still runs.
func WithNotifications(on bool) DaemonOption {
	return func(c *daemonConfig) { c.listen = on }
}

type Daemon struct {
	store       *procview.Store
	config      daemonConfig
	subscribers []Subscriber
}

func NewDaemon(store *procview.Store, opts ...DaemonOption) *Daemon {
	cfg := daemonConfig{
		pollingInterval: 5 * time.Second,
		batchSize:       100,
		maxRetries:      5,
		logger:          slog.Default(),
		listen:          true,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Daemon{store: store, config: cfg}
}

// Add registers a subscriber. Names must be unique, they key checkpoints
// and advisory locks.
func (d *Daemon) Add(sub Subscriber) error {
	for _, s := range d.subscribers {
		if s.Name() == sub.Name() {
			return fmt.Errorf("daemon: subscriber %q: %w", sub.Name(), procview.ErrDuplicateHandler)
		}
	}
	d.subscribers = append(d.subscribers, sub)
	return nil
}

func (d *Daemon) newWorker(sub Subscriber) *Worker {
	w := NewWorker(d.store, sub)
	w.SetBatchSize(d.config.batchSize)
	w.SetMaxRetries(d.config.maxRetries)
	w.SetLogger(d.config.logger)
	if d.config.deadLetters != nil {
		w.SetDeadLetters(d.config.deadLetters)
	}
	return w
}

// Run drives every subscriber until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wakes := make([]chan struct{}, len(d.subscribers))

	for i, sub := range d.subscribers {
		wake := make(chan struct{}, 1)
		wakes[i] = wake
		w := d.newWorker(sub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.runWorker(ctx, w, wake)
		}()
	}

	if d.config.listen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.listen(ctx, wakes)
		}()
	}

	wg.Wait()
}

func (d *Daemon) listen(ctx context.Context, wakes []chan struct{}) {
	poller := NewPoller(d.store, d.config.batchSize)
	notify := func() {
		for _, wake := range wakes {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
	for ctx.Err() == nil {
		if err := poller.Listen(ctx, notify); err != nil {
			d.config.logger.Error("listen for journal notifications", "error", err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(d.config.pollingInterval):
		}
	}
}

func (d *Daemon) runWorker(ctx context.Context, w *Worker, wake <-chan struct{}) {
	defer func() {
		if err := w.ReleaseLock(context.Background()); err != nil {
			d.config.logger.Error("release lock", "worker", w.subscriber.Name(), "error", err)
		}
	}()

	d.drainBatches(ctx, w)

	ticker := time.NewTicker(d.config.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
		d.drainBatches(ctx, w)
	}
}

// drainBatches processes batches while the worker holds its lock. The lock
// is kept between drains so another daemon cannot interleave.
func (d *Daemon) drainBatches(ctx context.Context, w *Worker) {
	acquired, err := w.TryAcquireLock(ctx)
	if err != nil {
		d.config.logger.Error("acquire lock", "worker", w.subscriber.Name(), "error", err)
		return
	}
	if !acquired {
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}
		n, err := w.ProcessBatch(ctx)
		if err != nil {
			var retry *RetryError
			if errors.As(err, &retry) {
				d.config.logger.Warn("process batch, will retry", "worker", w.subscriber.Name(),
					"attempt", retry.Attempt, "max", retry.Max, "error", retry.Err)
				return
			}
			d.config.logger.Error("process batch", "worker", w.subscriber.Name(), "error", err)
			return
		}
		if n == 0 {
			return
		}
	}
}

// Rebuild wipes a subscriber's read model (when it implements Resetter),
// rewinds its checkpoint and replays the whole journal through it.
func (d *Daemon) Rebuild(ctx context.Context, name string) error {
	var sub Subscriber
	for _, s := range d.subscribers {
		if s.Name() == name {
			sub = s
			break
		}
	}
	if sub == nil {
		return fmt.Errorf("daemon: subscriber %q not found", name)
	}

	w := d.newWorker(sub)
	acquired, err := w.TryAcquireLock(ctx)
	if err != nil {
		return fmt.Errorf("daemon: rebuild %s: %w", name, err)
	}
	if !acquired {
		return fmt.Errorf("daemon: rebuild %s: subscriber is running elsewhere", name)
	}
	defer func() { _ = w.ReleaseLock(context.Background()) }()

	if r, ok := sub.(Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			return fmt.Errorf("daemon: rebuild %s: %w", name, err)
		}
	}

	cs := NewCheckpointStore(d.store)
	if err := cs.Reset(ctx, name); err != nil {
		return fmt.Errorf("daemon: reset checkpoint %s: %w", name, err)
	}
	d.config.logger.Info("rebuild started", "worker", name)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := w.ProcessBatch(ctx)
		if err != nil {
			var retry *RetryError
			if errors.As(err, &retry) {
				continue
			}
			return fmt.Errorf("daemon: rebuild %s: %w", name, err)
		}
		if n == 0 {
			break
		}
	}

	if err := cs.SetStatus(ctx, name, StatusRunning); err != nil {
		return fmt.Errorf("daemon: rebuild %s set status: %w", name, err)
	}
	d.config.logger.Info("rebuild finished", "worker", name)
	return nil
}
