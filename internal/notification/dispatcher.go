// Package notification delivers workflow e-mails through the mail gateway off
// the request path. Workflows enqueue after their transaction commits; a worker
// pool drains the queue with a rate limit and exponential backoff, and every
// attempt is written to the action log.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dipr-ads/be-release-orders/internal/client"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/metrics"
	"github.com/dipr-ads/be-release-orders/internal/repository"
	"github.com/dipr-ads/be-release-orders/internal/requestinfo"
)

// Notification is one e-mail to one recipient.
type Notification struct {
	Template      string
	To            string
	Body          map[string]any
	ActorRef      *string
	AdvertiseRef  *string
	InvoiceRef    *string
	AllocationRef *string
	NoteSheetRef  *string
}

// Mailer sends one template e-mail.
type Mailer interface {
	Send(ctx context.Context, template string, body map[string]any) error
}

// EventPublisher mirrors delivery outcomes to the event bus.
type EventPublisher interface {
	PublishNotification(ctx context.Context, event *client.NotificationEvent)
}

// AuditSink stores delivery audit records.
type AuditSink interface {
	Append(ctx context.Context, entry *repository.ActionLog) error
}

// Config controls queue size, concurrency and retry policy.
type Config struct {
	Workers       int
	QueueSize     int
	MaxAttempts   int
	Backoff       time.Duration
	RatePerSecond float64
}

type envelope struct {
	n      Notification
	body   map[string]any
	origin requestinfo.Info
}

// Dispatcher is the in-process notification queue.
type Dispatcher struct {
	cfg     Config
	mailer  Mailer
	events  EventPublisher
	audit   AuditSink
	limiter *rate.Limiter
	log     *logger.Logger

	queue   chan envelope
	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher. events may be nil.
func NewDispatcher(cfg Config, mailer Mailer, events EventPublisher, audit AuditSink, log *logger.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:     cfg,
		mailer:  mailer,
		events:  events,
		audit:   audit,
		limiter: rate.NewLimiter(limit, cfg.Workers),
		log:     log.Component("notification"),
		queue:   make(chan envelope, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		sleep:   sleepCtx,
	}
}

// Start launches the worker pool. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.log.Info().Int("workers", d.cfg.Workers).Int("queue_size", d.cfg.QueueSize).Msg("Notification dispatcher started")
}

// Stop stops accepting notifications and waits for the queue to drain. When
// ctx expires first, in-flight retries are abandoned and audited as failed.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	// Queued work still drains when the pool was never started.
	d.Start()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// Enqueue schedules n for delivery. It never blocks and never fails the caller:
// a full queue, a stopped dispatcher or a template the gateway does not serve
// drops n with a Failed audit record.
func (d *Dispatcher) Enqueue(ctx context.Context, n Notification) {
	env := envelope{n: n, body: withRecipient(n), origin: requestinfo.From(ctx)}

	if n.To == "" {
		d.drop(env, "no recipient address")
		return
	}
	if !Known(n.Template) {
		d.drop(env, "unknown mail template")
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(env, "dispatcher stopped")
		return
	}
	select {
	case d.queue <- env:
		metrics.SetQueueDepth(len(d.queue))
	default:
		d.drop(env, "notification queue full")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for env := range d.queue {
		metrics.SetQueueDepth(len(d.queue))
		d.deliver(env)
	}
}

func (d *Dispatcher) deliver(env envelope) {
	template := env.n.Template
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := d.limiter.Wait(d.ctx); err != nil {
			d.record(env, attempt, fmt.Errorf("dispatcher stopped: %w", err))
			metrics.RecordDelivery(template, "failed")
			return
		}

		err := d.mailer.Send(d.ctx, template, env.body)
		d.record(env, attempt, err)
		if err == nil {
			metrics.RecordDelivery(template, "delivered")
			return
		}

		if attempt == d.cfg.MaxAttempts || d.ctx.Err() != nil {
			metrics.RecordDelivery(template, "failed")
			d.log.Warn().Err(err).
				Str("template", template).
				Str("to", env.n.To).
				Int("attempts", attempt).
				Msg("Notification delivery failed")
			return
		}

		metrics.RecordDelivery(template, "retry")
		if err := d.sleep(d.ctx, d.backoff(attempt)); err != nil {
			return
		}
	}
}

// backoff doubles the base delay after every failed attempt.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	return d.cfg.Backoff << (attempt - 1)
}

func (d *Dispatcher) drop(env envelope, reason string) {
	metrics.RecordDelivery(env.n.Template, "dropped")
	d.log.Warn().
		Str("template", env.n.Template).
		Str("to", env.n.To).
		Str("reason", reason).
		Msg("Notification dropped")
	d.record(env, 0, fmt.Errorf("%s", reason))
}

// record writes the audit entry for one attempt and mirrors it to the event bus.
func (d *Dispatcher) record(env envelope, attempt int, sendErr error) {
	n := env.n
	status := repository.LogSuccess
	message := fmt.Sprintf("%s e-mail to %s delivered (attempt %d/%d)", n.Template, n.To, attempt, d.cfg.MaxAttempts)
	if sendErr != nil {
		status = repository.LogFailed
		message = fmt.Sprintf("%s e-mail to %s failed (attempt %d/%d): %v", n.Template, n.To, attempt, d.cfg.MaxAttempts, sendErr)
	}

	snapshot, err := json.Marshal(map[string]any{
		"template": n.Template,
		"to":       n.To,
		"attempt":  attempt,
		"body":     env.body,
	})
	if err != nil {
		snapshot = nil
	}

	entry := &repository.ActionLog{
		ActorRef:      n.ActorRef,
		Action:        repository.ActionEmailDelivery,
		After:         snapshot,
		Status:        status,
		Platform:      env.origin.Platform,
		IP:            env.origin.IP,
		Message:       message,
		RequestPath:   env.origin.Path,
		AdvertiseRef:  n.AdvertiseRef,
		InvoiceRef:    n.InvoiceRef,
		AllocationRef: n.AllocationRef,
		NoteSheetRef:  n.NoteSheetRef,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.audit.Append(ctx, entry); err != nil {
		d.log.Warn().Err(err).
			Str("template", n.Template).
			Msg("Failed to write delivery audit entry")
	}

	if d.events != nil {
		event := &client.NotificationEvent{
			Template:   n.Template,
			Recipients: []string{n.To},
			Delivered:  sendErr == nil,
			Attempt:    attempt,
			Refs:       refs(n),
			Payload:    env.body,
		}
		if sendErr != nil {
			event.Error = sendErr.Error()
		}
		d.events.PublishNotification(ctx, event)
	}
}

// withRecipient copies the body and sets the gateway's "email" field.
func withRecipient(n Notification) map[string]any {
	body := make(map[string]any, len(n.Body)+1)
	for k, v := range n.Body {
		body[k] = v
	}
	if _, ok := body["email"]; !ok && n.To != "" {
		body["email"] = n.To
	}
	return body
}

func refs(n Notification) map[string]string {
	out := make(map[string]string)
	put := func(key string, v *string) {
		if v != nil {
			out[key] = *v
		}
	}
	put("advertisement", n.AdvertiseRef)
	put("invoice", n.InvoiceRef)
	put("allocation", n.AllocationRef)
	put("notesheet", n.NoteSheetRef)
	put("actor", n.ActorRef)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
