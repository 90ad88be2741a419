package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/oakmarket/api/internal/domain"
)

func TestNotificationServiceOrderConfirmedPublishesJob(t *testing.T) {
	now := time.Date(2026, 4, 7, 8, 0, 0, 0, time.UTC)
	var published NotificationJobMessage

	publisher := &stubNotificationPublisher{
		publishFunc: func(ctx context.Context, msg NotificationJobMessage) (string, error) {
			published = msg
			return "msg-1", nil
		},
	}

	service, err := NewNotificationService(NotificationServiceDeps{
		Publisher:   publisher,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "FIXEDULID" },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing notification service: %v", err)
	}

	order := domain.Order{
		ID:          "order-1",
		OrderNumber: "ORD-2026-000042",
		UserID:      "user-1",
		Currency:    "USD",
		Totals:      domain.OrderTotals{Total: 4200},
		Contact:     &domain.OrderContact{Email: "buyer@example.com"},
	}
	if err := service.OrderConfirmed(context.Background(), order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if published.JobID != "nj_FIXEDULID" {
		t.Fatalf("unexpected job id %q", published.JobID)
	}
	if published.Kind != NotificationKindOrderConfirmation {
		t.Fatalf("unexpected kind %q", published.Kind)
	}
	if published.Email != "buyer@example.com" {
		t.Fatalf("unexpected email %q", published.Email)
	}
	if published.Amount != 4200 || published.Currency != "USD" {
		t.Fatalf("unexpected amount fields %+v", published)
	}
	if !published.QueuedAt.Equal(now) {
		t.Fatalf("unexpected queue time %v", published.QueuedAt)
	}
}

func TestNotificationServiceRequiresOrderID(t *testing.T) {
	service, err := NewNotificationService(NotificationServiceDeps{
		Publisher: &stubNotificationPublisher{},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing notification service: %v", err)
	}

	if err := service.OrderAlert(context.Background(), domain.Order{}); !errors.Is(err, ErrNotificationInvalidInput) {
		t.Fatalf("expected ErrNotificationInvalidInput, got %v", err)
	}
}

func TestNotificationServicePropagatesPublishError(t *testing.T) {
	publisher := &stubNotificationPublisher{
		publishFunc: func(ctx context.Context, msg NotificationJobMessage) (string, error) {
			return "", errors.New("topic unavailable")
		},
	}

	service, err := NewNotificationService(NotificationServiceDeps{Publisher: publisher})
	if err != nil {
		t.Fatalf("unexpected error constructing notification service: %v", err)
	}

	if err := service.OrderConfirmed(context.Background(), domain.Order{ID: "order-1"}); err == nil {
		t.Fatal("expected publish error to propagate")
	}
}

type stubNotificationPublisher struct {
	publishFunc func(ctx context.Context, msg NotificationJobMessage) (string, error)
}

func (s *stubNotificationPublisher) PublishNotificationJob(ctx context.Context, msg NotificationJobMessage) (string, error) {
	if s.publishFunc != nil {
		return s.publishFunc(ctx, msg)
	}
	return "msg", nil
}
