package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/oakmarket/api/internal/domain"
)

const (
	// NotificationKindOrderConfirmation is the customer-facing confirmation email job.
	NotificationKindOrderConfirmation = "order_confirmation"
	// NotificationKindOrderAlert is the back-office alert for a newly paid order.
	NotificationKindOrderAlert = "order_alert"
)

// ErrNotificationInvalidInput indicates required fields were missing from the command.
var ErrNotificationInvalidInput = errors.New("notifications: invalid input")

// NotificationPublisher publishes notification job messages to the background queue.
type NotificationPublisher interface {
	PublishNotificationJob(ctx context.Context, message NotificationJobMessage) (string, error)
}

// NotificationJobMessage is the payload delivered to background workers via Pub/Sub.
type NotificationJobMessage struct {
	JobID       string    `json:"jobId"`
	Kind        string    `json:"kind"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email,omitempty"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	QueuedAt    time.Time `json:"queuedAt"`
}

// NotificationServiceDeps enumerates collaborators required to construct the service.
type NotificationServiceDeps struct {
	Publisher   NotificationPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	publisher NotificationPublisher
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a NotificationService implementation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification service: publisher is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationService{
		publisher: deps.Publisher,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// OrderConfirmed enqueues the customer confirmation email job.
func (s *notificationService) OrderConfirmed(ctx context.Context, order Order) error {
	return s.publish(ctx, NotificationKindOrderConfirmation, order)
}

// OrderAlert enqueues the back-office alert job.
func (s *notificationService) OrderAlert(ctx context.Context, order Order) error {
	return s.publish(ctx, NotificationKindOrderAlert, order)
}

func (s *notificationService) publish(ctx context.Context, kind string, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return fmt.Errorf("%w: order id is required", ErrNotificationInvalidInput)
	}

	msg := NotificationJobMessage{
		JobID:       "nj_" + s.newID(),
		Kind:        kind,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Amount:      order.Totals.Total,
		Currency:    order.Currency,
		QueuedAt:    s.now(),
	}
	if order.Contact != nil {
		msg.Email = order.Contact.Email
	}

	messageID, err := s.publisher.PublishNotificationJob(ctx, msg)
	if err != nil {
		return fmt.Errorf("publish notification job: %w", err)
	}

	s.logger(ctx, "notifications.job.queued", map[string]any{
		"jobId":     msg.JobID,
		"kind":      kind,
		"orderId":   order.ID,
		"messageId": messageID,
	})
	return nil
}

var _ NotificationService = (*notificationService)(nil)
