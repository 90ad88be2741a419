package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/oakmarket/api/internal/domain"
	pfirestore "github.com/oakmarket/api/internal/platform/firestore"
	"github.com/oakmarket/api/internal/platform/pagination"
	"github.com/oakmarket/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order documents with their embedded payment record.
// Reconciliation transitions run inside Firestore transactions so that exactly
// one caller can move a pending payment forward.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the order document, failing when the ID already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// FindByID loads the order document by its internal ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data), nil
}

// FindByExternalOrderID resolves an order through its provider-side order reference.
func (r *OrderRepository) FindByExternalOrderID(ctx context.Context, externalOrderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	external := strings.TrimSpace(externalOrderID)
	if external == "" {
		return domain.Order{}, errors.New("order repository: external order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("externalOrderId", "==", external).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByExternalOrderId", status.Errorf(codes.NotFound, "order with external reference %s not found", external))
	}
	return decodeOrderDocument(docs[0].ID, docs[0].Data), nil
}

// List returns the caller's orders ordered by creation time descending.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if len(filter.Status) > 0 {
			q = q.Where("status", "in", filter.Status)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if after, ok := decodeOrderCursor(cursor); ok {
			q = q.StartAfter(after.createdAt, after.docID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.Data.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, decodeOrderDocument(doc.ID, doc.Data))
	}
	return page, nil
}

// CompletePaymentIfPending atomically settles the payment and moves the order
// to processing. The guard runs inside a transaction: an already completed
// payment (or a cancelled order) is left untouched and returned with
// applied=false, while a payment that an earlier denial marked failed can
// still complete when a later success event arrives.
func (r *OrderRepository) CompletePaymentIfPending(ctx context.Context, externalOrderID string, completion repositories.PaymentCompletion) (domain.Order, bool, error) {
	external := strings.TrimSpace(externalOrderID)
	if external == "" {
		return domain.Order{}, false, errors.New("order repository: external order id is required")
	}

	completedAt := completion.CompletedAt.UTC()
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	var (
		applied bool
		result  domain.Order
	)
	err := r.runGuardedByExternalID(ctx, external, func(tx *firestore.Transaction, ref *firestore.DocumentRef, doc orderDocument) error {
		if !completionApplies(doc) {
			applied = false
			result = decodeOrderDocument(ref.ID, doc)
			return nil
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(domain.OrderStatusProcessing)},
			{Path: "payment.status", Value: string(domain.PaymentStatusCompleted)},
			{Path: "payment.capturedAt", Value: completedAt},
			{Path: "payment.updatedAt", Value: completedAt},
			{Path: "payment.failedAt", Value: firestore.Delete},
			{Path: "payment.failureReason", Value: firestore.Delete},
			{Path: "completedAt", Value: completedAt},
			{Path: "updatedAt", Value: completedAt},
		}
		if captureID := strings.TrimSpace(completion.CaptureID); captureID != "" {
			updates = append(updates, firestore.Update{Path: "payment.captureId", Value: captureID})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}

		applied = true
		doc.Status = string(domain.OrderStatusProcessing)
		doc.Payment.Status = string(domain.PaymentStatusCompleted)
		doc.Payment.CaptureID = strings.TrimSpace(completion.CaptureID)
		doc.Payment.CapturedAt = &completedAt
		doc.Payment.UpdatedAt = completedAt
		doc.Payment.FailedAt = nil
		doc.Payment.FailureReason = nil
		doc.CompletedAt = &completedAt
		doc.UpdatedAt = completedAt
		result = decodeOrderDocument(ref.ID, doc)
		return nil
	})
	if err != nil {
		return domain.Order{}, false, err
	}
	return result, applied, nil
}

// completionApplies reports whether a success event may still settle the
// payment. Pending and failed payments complete; a completed or refunded
// payment is a duplicate delivery, and a cancelled order never resurrects.
func completionApplies(doc orderDocument) bool {
	if doc.Status == string(domain.OrderStatusCancelled) {
		return false
	}
	switch doc.Payment.Status {
	case string(domain.PaymentStatusPending), string(domain.PaymentStatusFailed):
		return true
	default:
		return false
	}
}

// FailPaymentIfPending marks the payment failed while leaving the order pending.
func (r *OrderRepository) FailPaymentIfPending(ctx context.Context, externalOrderID string, failure repositories.PaymentFailure) (domain.Order, bool, error) {
	external := strings.TrimSpace(externalOrderID)
	if external == "" {
		return domain.Order{}, false, errors.New("order repository: external order id is required")
	}

	failedAt := failure.FailedAt.UTC()
	if failedAt.IsZero() {
		failedAt = time.Now().UTC()
	}

	var (
		applied bool
		result  domain.Order
	)
	err := r.runGuardedByExternalID(ctx, external, func(tx *firestore.Transaction, ref *firestore.DocumentRef, doc orderDocument) error {
		if doc.Payment.Status != string(domain.PaymentStatusPending) {
			applied = false
			result = decodeOrderDocument(ref.ID, doc)
			return nil
		}

		updates := []firestore.Update{
			{Path: "payment.status", Value: string(domain.PaymentStatusFailed)},
			{Path: "payment.failedAt", Value: failedAt},
			{Path: "payment.updatedAt", Value: failedAt},
			{Path: "updatedAt", Value: failedAt},
		}
		if reason := strings.TrimSpace(failure.Reason); reason != "" {
			updates = append(updates, firestore.Update{Path: "payment.failureReason", Value: reason})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}

		applied = true
		doc.Payment.Status = string(domain.PaymentStatusFailed)
		doc.Payment.FailedAt = &failedAt
		doc.Payment.UpdatedAt = failedAt
		if reason := strings.TrimSpace(failure.Reason); reason != "" {
			doc.Payment.FailureReason = &reason
		}
		doc.UpdatedAt = failedAt
		result = decodeOrderDocument(ref.ID, doc)
		return nil
	})
	if err != nil {
		return domain.Order{}, false, err
	}
	return result, applied, nil
}

// CancelIfPending cancels the order only while it has not left the pending
// state. Racing completions surface as a conflict so the caller can report
// the post-transition status.
func (r *OrderRepository) CancelIfPending(ctx context.Context, orderID string, cancellation repositories.OrderCancellation) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	cancelledAt := cancellation.CancelledAt.UTC()
	if cancelledAt.IsZero() {
		cancelledAt = time.Now().UTC()
	}

	var result domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", id, err)
		}

		if doc.Status != string(domain.OrderStatusPending) {
			return status.Errorf(codes.FailedPrecondition, "order %s is %s and can no longer be cancelled", id, doc.Status)
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(domain.OrderStatusCancelled)},
			{Path: "cancelledAt", Value: cancelledAt},
			{Path: "updatedAt", Value: cancelledAt},
		}
		if reason := strings.TrimSpace(cancellation.Reason); reason != "" {
			updates = append(updates, firestore.Update{Path: "cancelReason", Value: reason})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}

		doc.Status = string(domain.OrderStatusCancelled)
		doc.CancelledAt = &cancelledAt
		if reason := strings.TrimSpace(cancellation.Reason); reason != "" {
			doc.CancelReason = &reason
		}
		doc.UpdatedAt = cancelledAt
		result = decodeOrderDocument(id, doc)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.cancel", err)
	}
	return result, nil
}

// UpdateStatus applies a fulfilment transition guarded on the expected current status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, now time.Time) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	at := now.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var result domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", id, err)
		}

		if doc.Status != string(from) {
			return status.Errorf(codes.FailedPrecondition, "order %s is %s, expected %s", id, doc.Status, from)
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: at},
		}
		switch to {
		case domain.OrderStatusShipped:
			updates = append(updates, firestore.Update{Path: "shippedAt", Value: at})
			doc.ShippedAt = &at
		case domain.OrderStatusDelivered:
			updates = append(updates, firestore.Update{Path: "deliveredAt", Value: at})
			doc.DeliveredAt = &at
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}

		doc.Status = string(to)
		doc.UpdatedAt = at
		result = decodeOrderDocument(id, doc)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updateStatus", err)
	}
	return result, nil
}

// runGuardedByExternalID looks up the order by its provider reference inside a
// transaction and hands the decoded document to fn for conditional mutation.
func (r *OrderRepository) runGuardedByExternalID(ctx context.Context, externalOrderID string, fn func(tx *firestore.Transaction, ref *firestore.DocumentRef, doc orderDocument) error) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		query := client.Collection(ordersCollection).
			Where("externalOrderId", "==", externalOrderID).
			Limit(1)

		iter := tx.Documents(query)
		defer iter.Stop()

		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return status.Errorf(codes.NotFound, "order with external reference %s not found", externalOrderID)
		}
		if err != nil {
			return err
		}

		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", snapshot.Ref.ID, err)
		}
		return fn(tx, snapshot.Ref, doc)
	})
	return pfirestore.WrapError("orders.reconcile", err)
}

type orderCursor struct {
	createdAt time.Time
	docID     string
}

func decodeOrderCursor(cursor pagination.Cursor) (orderCursor, bool) {
	if len(cursor.StartAfter) != 2 {
		return orderCursor{}, false
	}
	raw, ok := cursor.StartAfter[0].(string)
	if !ok {
		return orderCursor{}, false
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return orderCursor{}, false
	}
	docID, ok := cursor.StartAfter[1].(string)
	if !ok || docID == "" {
		return orderCursor{}, false
	}
	return orderCursor{createdAt: createdAt, docID: docID}, true
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		UserID:          strings.TrimSpace(order.UserID),
		CartRef:         order.CartRef,
		Status:          string(order.Status),
		Currency:        strings.ToUpper(strings.TrimSpace(order.Currency)),
		ExternalOrderID: strings.TrimSpace(order.Payment.ExternalOrderID),
		Totals: orderTotalsDocument{
			Subtotal: order.Totals.Subtotal,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		Payment: orderPaymentDocument{
			ID:              order.Payment.ID,
			Provider:        order.Payment.Provider,
			ExternalOrderID: strings.TrimSpace(order.Payment.ExternalOrderID),
			CaptureID:       order.Payment.CaptureID,
			Status:          string(order.Payment.Status),
			Amount:          order.Payment.Amount,
			Currency:        strings.ToUpper(strings.TrimSpace(order.Payment.Currency)),
			ApprovalURL:     order.Payment.ApprovalURL,
			CapturedAt:      order.Payment.CapturedAt,
			FailedAt:        order.Payment.FailedAt,
			RefundedAt:      order.Payment.RefundedAt,
			FailureReason:   order.Payment.FailureReason,
			CreatedAt:       order.Payment.CreatedAt,
			UpdatedAt:       order.Payment.UpdatedAt,
		},
		Metadata:     cloneAnyMap(order.Metadata),
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
		PlacedAt:     order.PlacedAt,
		CompletedAt:  order.CompletedAt,
		ShippedAt:    order.ShippedAt,
		DeliveredAt:  order.DeliveredAt,
		CancelledAt:  order.CancelledAt,
		CancelReason: order.CancelReason,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductRef: item.ProductRef,
			SKU:        item.SKU,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.Total,
			Metadata:   cloneAnyMap(item.Metadata),
		})
	}
	if order.ShippingAddress != nil {
		doc.ShippingAddress = &orderAddressDocument{
			Recipient:  order.ShippingAddress.Recipient,
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
			Phone:      order.ShippingAddress.Phone,
		}
	}
	if order.Contact != nil {
		doc.Contact = &orderContactDocument{
			Email: order.Contact.Email,
			Phone: order.Contact.Phone,
		}
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: doc.OrderNumber,
		UserID:      doc.UserID,
		CartRef:     doc.CartRef,
		Status:      domain.OrderStatus(doc.Status),
		Currency:    doc.Currency,
		Totals: domain.OrderTotals{
			Subtotal: doc.Totals.Subtotal,
			Shipping: doc.Totals.Shipping,
			Total:    doc.Totals.Total,
		},
		Payment: domain.Payment{
			ID:              doc.Payment.ID,
			Provider:        doc.Payment.Provider,
			ExternalOrderID: doc.Payment.ExternalOrderID,
			CaptureID:       doc.Payment.CaptureID,
			Status:          domain.PaymentStatus(doc.Payment.Status),
			Amount:          doc.Payment.Amount,
			Currency:        doc.Payment.Currency,
			ApprovalURL:     doc.Payment.ApprovalURL,
			CapturedAt:      doc.Payment.CapturedAt,
			FailedAt:        doc.Payment.FailedAt,
			RefundedAt:      doc.Payment.RefundedAt,
			FailureReason:   doc.Payment.FailureReason,
			CreatedAt:       doc.Payment.CreatedAt,
			UpdatedAt:       doc.Payment.UpdatedAt,
		},
		Metadata:     cloneAnyMap(doc.Metadata),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		PlacedAt:     doc.PlacedAt,
		CompletedAt:  doc.CompletedAt,
		ShippedAt:    doc.ShippedAt,
		DeliveredAt:  doc.DeliveredAt,
		CancelledAt:  doc.CancelledAt,
		CancelReason: doc.CancelReason,
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderLineItem{
			ProductRef: item.ProductRef,
			SKU:        item.SKU,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.Total,
			Metadata:   cloneAnyMap(item.Metadata),
		})
	}
	if doc.ShippingAddress != nil {
		order.ShippingAddress = &domain.Address{
			Recipient:  doc.ShippingAddress.Recipient,
			Line1:      doc.ShippingAddress.Line1,
			Line2:      doc.ShippingAddress.Line2,
			City:       doc.ShippingAddress.City,
			State:      doc.ShippingAddress.State,
			PostalCode: doc.ShippingAddress.PostalCode,
			Country:    doc.ShippingAddress.Country,
			Phone:      doc.ShippingAddress.Phone,
		}
	}
	if doc.Contact != nil {
		order.Contact = &domain.OrderContact{
			Email: doc.Contact.Email,
			Phone: doc.Contact.Phone,
		}
	}
	return order
}

type orderDocument struct {
	OrderNumber     string                `firestore:"orderNumber"`
	UserID          string                `firestore:"userId"`
	CartRef         *string               `firestore:"cartRef,omitempty"`
	Status          string                `firestore:"status"`
	Currency        string                `firestore:"currency"`
	ExternalOrderID string                `firestore:"externalOrderId"`
	Totals          orderTotalsDocument   `firestore:"totals"`
	Items           []orderItemDocument   `firestore:"items,omitempty"`
	ShippingAddress *orderAddressDocument `firestore:"shippingAddress,omitempty"`
	Contact         *orderContactDocument `firestore:"contact,omitempty"`
	Payment         orderPaymentDocument  `firestore:"payment"`
	Metadata        map[string]any        `firestore:"metadata,omitempty"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
	PlacedAt        *time.Time            `firestore:"placedAt,omitempty"`
	CompletedAt     *time.Time            `firestore:"completedAt,omitempty"`
	ShippedAt       *time.Time            `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time            `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time            `firestore:"cancelledAt,omitempty"`
	CancelReason    *string               `firestore:"cancelReason,omitempty"`
}

type orderTotalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

type orderItemDocument struct {
	ProductRef string         `firestore:"productRef"`
	SKU        string         `firestore:"sku,omitempty"`
	Name       string         `firestore:"name,omitempty"`
	Quantity   int            `firestore:"quantity"`
	UnitPrice  int64          `firestore:"unitPrice"`
	Total      int64          `firestore:"total"`
	Metadata   map[string]any `firestore:"metadata,omitempty"`
}

type orderAddressDocument struct {
	Recipient  string  `firestore:"recipient"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"state,omitempty"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

type orderContactDocument struct {
	Email string `firestore:"email,omitempty"`
	Phone string `firestore:"phone,omitempty"`
}

type orderPaymentDocument struct {
	ID              string     `firestore:"id"`
	Provider        string     `firestore:"provider"`
	ExternalOrderID string     `firestore:"externalOrderId"`
	CaptureID       string     `firestore:"captureId,omitempty"`
	Status          string     `firestore:"status"`
	Amount          int64      `firestore:"amount"`
	Currency        string     `firestore:"currency"`
	ApprovalURL     string     `firestore:"approvalUrl,omitempty"`
	CapturedAt      *time.Time `firestore:"capturedAt,omitempty"`
	FailedAt        *time.Time `firestore:"failedAt,omitempty"`
	RefundedAt      *time.Time `firestore:"refundedAt,omitempty"`
	FailureReason   *string    `firestore:"failureReason,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
