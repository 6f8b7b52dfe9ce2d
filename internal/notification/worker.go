package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"timeoff-scheduler-backend/internal/model"
	"timeoff-scheduler-backend/internal/store"
)

// EventKind names what happened to a request.
type EventKind string

const (
	EventSubmitted EventKind = "submitted"
	EventApproved  EventKind = "approved"
	EventRejected  EventKind = "rejected"
)

// Event is a request lifecycle change worth telling administrators about.
type Event struct {
	Kind    EventKind
	Request model.TimeOffRequest
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(ev Event)
}

// Nop discards every event. It is used when push is not configured.
type Nop struct{}

func (Nop) Notify(Event) {}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool fans request events out to subscribed administrators.
type WorkerPool struct {
	size    int
	jobs    chan Event
	subs    store.SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWorkerPool creates a new worker pool with a buffered queue of queueSize events.
func NewWorkerPool(size, queueSize int, subs store.SubscriptionStore, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Event, queueSize),
		subs:    subs,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.With(zap.Int("worker", id))
	log.Debug("notification worker started")
	for {
		select {
		case ev := <-wp.jobs:
			wp.deliver(ctx, ev)
		case <-ctx.Done():
			log.Debug("notification worker shutting down")
			return
		}
	}
}

// Notify queues ev. When the queue is full the event is dropped, since a
// missed push must never hold up a request mutation.
func (wp *WorkerPool) Notify(ev Event) {
	select {
	case wp.jobs <- ev:
	default:
		wp.log.Warn("notification queue full, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.String("request_id", ev.Request.ID))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

type payload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	RequestID string `json:"request_id"`
	Date      string `json:"date"`
	Role      string `json:"role"`
	Status    string `json:"status"`
}

// Message renders the notification text for ev.
func Message(ev Event) (title, body string) {
	r := ev.Request
	switch ev.Kind {
	case EventSubmitted:
		return "New time-off request", fmt.Sprintf("%s (%s) requested %s off: %s", r.RequesterName, r.Role, r.Date, r.DisplayReason())
	case EventApproved:
		return "Time-off approved", fmt.Sprintf("%s is off on %s", r.RequesterName, r.Date)
	case EventRejected:
		return "Time-off rejected", fmt.Sprintf("%s's request for %s was rejected", r.RequesterName, r.Date)
	default:
		return "Time-off update", fmt.Sprintf("%s, %s", r.RequesterName, r.Date)
	}
}

func (wp *WorkerPool) deliver(ctx context.Context, ev Event) {
	subscriptions, err := wp.subs.SubscriptionsForRole(ctx, ev.Request.Role)
	if err != nil {
		wp.log.Error("failed to fetch subscriptions", zap.String("request_id", ev.Request.ID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	title, body := Message(ev)
	data, err := json.Marshal(payload{
		Title:     title,
		Body:      body,
		RequestID: ev.Request.ID,
		Date:      ev.Request.Date,
		Role:      string(ev.Request.Role),
		Status:    string(ev.Request.Status),
	})
	if err != nil {
		wp.log.Error("failed to encode notification", zap.Error(err))
		return
	}

	wp.log.Debug("sending notifications",
		zap.Int("subscriptions", len(subscriptions)),
		zap.String("kind", string(ev.Kind)))
	for _, sub := range subscriptions {
		wp.send(ctx, sub, data)
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, data []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(data, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("push send failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// 410 Gone: the browser dropped the subscription.
	if resp.StatusCode == http.StatusGone {
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
