package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"timeoff-scheduler-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// memSubs is an in-memory SubscriptionStore.
type memSubs struct {
	mu      sync.Mutex
	subs    map[string]model.PushSubscription
	deleted chan string
	findErr error
}

func newMemSubs(subs ...model.PushSubscription) *memSubs {
	m := &memSubs{subs: map[string]model.PushSubscription{}, deleted: make(chan string, 8)}
	for _, s := range subs {
		m.subs[s.Endpoint] = s
	}
	return m
}

func (m *memSubs) PutSubscription(_ context.Context, sub *model.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.Endpoint] = *sub
	return nil
}

func (m *memSubs) GetSubscription(_ context.Context, endpoint string) (*model.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[endpoint]
	if !ok {
		return nil, errors.New("not found")
	}
	return &s, nil
}

func (m *memSubs) DeleteSubscription(_ context.Context, endpoint string) error {
	m.mu.Lock()
	delete(m.subs, endpoint)
	m.mu.Unlock()
	m.deleted <- endpoint
	return nil
}

func (m *memSubs) SubscriptionsForRole(_ context.Context, role model.Role) ([]model.PushSubscription, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PushSubscription
	for _, s := range m.subs {
		if role == model.RoleAll || s.Role == role || s.Role == model.RoleAll {
			out = append(out, s)
		}
	}
	return out, nil
}

func okResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(""))}
}

func sampleEvent(kind EventKind) Event {
	return Event{Kind: kind, Request: model.TimeOffRequest{
		ID:            "req-1",
		RequesterName: "Ana",
		Date:          "2025-03-10",
		Role:          model.RoleCaregiver,
		Status:        model.StatusPending,
	}}
}

func TestWorkerPool_NotifyQueuesEvent(t *testing.T) {
	wp := NewWorkerPool(1, 1, newMemSubs(), &webpush.Options{}, zap.NewNop())

	wp.Notify(sampleEvent(EventSubmitted))

	select {
	case ev := <-wp.Jobs():
		assert.Equal(t, EventSubmitted, ev.Kind)
		assert.Equal(t, "req-1", ev.Request.ID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event to be queued")
	}
}

func TestWorkerPool_NotifyDropsWhenFull(t *testing.T) {
	wp := NewWorkerPool(1, 1, newMemSubs(), &webpush.Options{}, zap.NewNop())

	wp.Notify(sampleEvent(EventSubmitted))
	wp.Notify(sampleEvent(EventApproved)) // must not block

	assert.Len(t, wp.Jobs(), 1)
}

func TestWorkerPool_Delivery(t *testing.T) {
	t.Run("sends to subscribers of the request role", func(t *testing.T) {
		subs := newMemSubs(
			model.PushSubscription{Endpoint: "https://push/caregiver", P256DH: "k", Auth: "a", Role: model.RoleCaregiver},
			model.PushSubscription{Endpoint: "https://push/office", P256DH: "k", Auth: "a", Role: model.RoleOffice},
		)
		wp := NewWorkerPool(1, 4, subs, &webpush.Options{}, zap.NewNop())

		var wg sync.WaitGroup
		wg.Add(1)
		var endpoints []string
		var mu sync.Mutex
		wp.sender = &mockSender{
			SendFunc: func(data []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				mu.Lock()
				endpoints = append(endpoints, sub.Endpoint)
				mu.Unlock()

				var p payload
				assert.NoError(t, json.Unmarshal(data, &p))
				assert.Equal(t, "New time-off request", p.Title)
				assert.Equal(t, "Ana (caregiver) requested 2025-03-10 off: not provided", p.Body)
				assert.Equal(t, "req-1", p.RequestID)
				wg.Done()
				return okResponse(http.StatusCreated), nil
			},
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp.Start(ctx)

		wp.Notify(sampleEvent(EventSubmitted))
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"https://push/caregiver"}, endpoints)
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		subs := newMemSubs(model.PushSubscription{Endpoint: "https://push/expired", P256DH: "k", Auth: "a", Role: model.RoleAll})
		wp := NewWorkerPool(1, 4, subs, &webpush.Options{}, zap.NewNop())
		wp.sender = &mockSender{
			SendFunc: func(data []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return okResponse(http.StatusGone), nil
			},
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp.Start(ctx)

		wp.Notify(sampleEvent(EventApproved))

		select {
		case endpoint := <-subs.deleted:
			assert.Equal(t, "https://push/expired", endpoint)
		case <-time.After(2 * time.Second):
			t.Fatal("expired subscription was not deleted")
		}
		_, err := subs.GetSubscription(context.Background(), "https://push/expired")
		require.Error(t, err)
	})
}

func TestMessage(t *testing.T) {
	ev := sampleEvent(EventRejected)
	title, body := Message(ev)
	assert.Equal(t, "Time-off rejected", title)
	assert.Equal(t, "Ana's request for 2025-03-10 was rejected", body)

	ev.Request.Reason = "wedding"
	_, body = Message(Event{Kind: EventSubmitted, Request: ev.Request})
	assert.Contains(t, body, "wedding")
}
