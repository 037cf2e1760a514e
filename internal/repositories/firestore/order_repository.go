package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/foodeli/api/internal/domain"
	pfirestore "github.com/foodeli/api/internal/platform/firestore"
	"github.com/foodeli/api/internal/repositories"
)

const (
	orderCollection = "orders"

	fieldOrderUser      = "userId"
	fieldOrderStatus    = "status"
	fieldOrderCreatedAt = "createdAt"
	fieldPaymentRef     = "payment.reference"
)

// OrderRepository persists orders and performs the payment state transitions
// inside Firestore transactions.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert stores a new order document keyed by the order ID.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Create(ctx, orderID, orderToDocument(order))
	return err
}

// FindByID loads a single order.
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
	return documentToOrder(doc.ID, doc.Data)
}

// FindByPaymentReference locates the order carrying the gateway reference.
func (r *OrderRepository) FindByPaymentReference(ctx context.Context, reference string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return domain.Order{}, errors.New("order repository: payment reference is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(fieldPaymentRef, "==", ref).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFoundError("orders.findByPaymentReference", fmt.Errorf("no order with reference %s", ref))
	}
	return documentToOrder(docs[0].ID, docs[0].Data)
}

// FindPendingDuplicate returns the newest unpaid order for the user with an
// equal total created at or after the cutoff.
func (r *OrderRepository) FindPendingDuplicate(ctx context.Context, userID string, total decimal.Decimal, cutoff time.Time) (domain.Order, bool, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, false, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Order{}, false, errors.New("order repository: user id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where(fieldOrderUser, "==", uid).
			Where(fieldOrderStatus, "==", string(domain.OrderStatusPendingPayment)).
			Where(fieldOrderCreatedAt, ">=", cutoff.UTC()).
			OrderBy(fieldOrderCreatedAt, firestore.Desc)
	})
	if err != nil {
		return domain.Order{}, false, err
	}

	// Amount equality is checked in memory; stored totals are decimal strings
	// whose scale may differ from the query input.
	for _, doc := range docs {
		order, mapErr := documentToOrder(doc.ID, doc.Data)
		if mapErr != nil {
			return domain.Order{}, false, mapErr
		}
		if order.TotalAmount.Equal(total) {
			return order, true, nil
		}
	}
	return domain.Order{}, false, nil
}

// ListByUser returns the user's orders newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("order repository: user id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(fieldOrderUser, "==", uid).OrderBy(fieldOrderCreatedAt, firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	return documentsToOrders(docs)
}

// ListAll returns every order newest first.
func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy(fieldOrderCreatedAt, firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	return documentsToOrders(docs)
}

// AttachPaymentReference records the gateway reference on an order whose
// payment is still pending. The reference is written at most once.
func (r *OrderRepository) AttachPaymentReference(ctx context.Context, orderID string, payment domain.Payment) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	reference := strings.TrimSpace(payment.Reference)
	if reference == "" {
		return domain.Order{}, errors.New("order repository: payment reference is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	docRef := client.Collection(orderCollection).Doc(id)

	var updated domain.Order
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if doc.Payment.Status != string(domain.PaymentStatusPending) {
			return pfirestore.ConflictError("orders.attachPaymentReference", errors.New("payment already decided"))
		}

		now := payment.InitializedAt
		updates := []firestore.Update{
			{Path: "payment.reference", Value: reference},
			{Path: "payment.status", Value: string(domain.PaymentStatusPending)},
			{Path: "payment.amount", Value: payment.Amount.String()},
			{Path: "updatedAt", Value: timestampOrNow(now)},
		}
		if payment.Method != "" {
			updates = append(updates, firestore.Update{Path: "payment.method", Value: payment.Method})
		}
		if url := strings.TrimSpace(payment.CheckoutURL); url != "" {
			updates = append(updates, firestore.Update{Path: "payment.checkoutUrl", Value: url})
		}
		if now != nil {
			updates = append(updates, firestore.Update{Path: "payment.initializedAt", Value: now.UTC()})
		}
		if err := tx.Update(docRef, updates); err != nil {
			return err
		}

		doc.Payment.Reference = reference
		doc.Payment.Method = payment.Method
		doc.Payment.CheckoutURL = strings.TrimSpace(payment.CheckoutURL)
		doc.Payment.Amount = payment.Amount.String()
		doc.Payment.InitializedAt = payment.InitializedAt
		doc.UpdatedAt = timestampOrNow(now)
		updated, err = documentToOrder(id, doc)
		return err
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.attachPaymentReference", err)
	}
	return updated, nil
}

// ConfirmPaymentSuccess applies the verified gateway result. The write happens
// only when the stored payment is still pending; the emptying of the owner's
// cart rides the same transaction so a crash cannot separate the two.
func (r *OrderRepository) ConfirmPaymentSuccess(ctx context.Context, orderID string, confirm repositories.PaymentConfirmation) (repositories.ConfirmResult, error) {
	if r == nil || r.provider == nil {
		return repositories.ConfirmResult{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return repositories.ConfirmResult{}, errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.ConfirmResult{}, err
	}
	docRef := client.Collection(orderCollection).Doc(id)

	var result repositories.ConfirmResult
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		switch doc.Payment.Status {
		case string(domain.PaymentStatusSuccess):
			order, mapErr := documentToOrder(id, doc)
			if mapErr != nil {
				return mapErr
			}
			result = repositories.ConfirmResult{Order: order, Outcome: repositories.PaymentAlreadySucceeded}
			return nil
		case string(domain.PaymentStatusFailed):
			order, mapErr := documentToOrder(id, doc)
			if mapErr != nil {
				return mapErr
			}
			result = repositories.ConfirmResult{Order: order, Outcome: repositories.PaymentAlreadyFailed}
			return nil
		}

		paidAt := confirm.PaidAt.UTC()
		updates := []firestore.Update{
			{Path: "payment.status", Value: string(domain.PaymentStatusSuccess)},
			{Path: "payment.paidAt", Value: paidAt},
			{Path: "status", Value: string(domain.OrderStatusPaymentDone)},
			{Path: "updatedAt", Value: paidAt},
		}
		if ext := strings.TrimSpace(confirm.ExternalReference); ext != "" {
			updates = append(updates, firestore.Update{Path: "payment.externalReference", Value: ext})
		}
		if method := strings.TrimSpace(confirm.Method); method != "" {
			updates = append(updates, firestore.Update{Path: "payment.method", Value: method})
		}
		if msg := strings.TrimSpace(confirm.GatewayMessage); msg != "" {
			updates = append(updates, firestore.Update{Path: "payment.gatewayMessage", Value: msg})
		}
		if err := tx.Update(docRef, updates); err != nil {
			return err
		}

		if uid := strings.TrimSpace(confirm.ClearCartUserID); uid != "" {
			userRef := client.Collection(userCollection).Doc(uid)
			if err := tx.Update(userRef, []firestore.Update{
				{Path: "cart", Value: []cartItemDocument{}},
				{Path: "updatedAt", Value: paidAt},
			}); err != nil {
				return err
			}
		}

		doc.Payment.Status = string(domain.PaymentStatusSuccess)
		doc.Payment.PaidAt = &paidAt
		doc.Payment.ExternalReference = strings.TrimSpace(confirm.ExternalReference)
		if method := strings.TrimSpace(confirm.Method); method != "" {
			doc.Payment.Method = method
		}
		if msg := strings.TrimSpace(confirm.GatewayMessage); msg != "" {
			doc.Payment.GatewayMessage = msg
		}
		doc.Status = string(domain.OrderStatusPaymentDone)
		doc.UpdatedAt = paidAt

		order, mapErr := documentToOrder(id, doc)
		if mapErr != nil {
			return mapErr
		}
		result = repositories.ConfirmResult{Order: order, Outcome: repositories.PaymentApplied}
		return nil
	})
	if err != nil {
		return repositories.ConfirmResult{}, pfirestore.WrapError("orders.confirmPaymentSuccess", err)
	}
	return result, nil
}

// MarkPaymentFailed records a terminal failure for a pending payment and
// cancels the order.
func (r *OrderRepository) MarkPaymentFailed(ctx context.Context, orderID string, gatewayMessage string, failedAt time.Time) (repositories.ConfirmResult, error) {
	if r == nil || r.provider == nil {
		return repositories.ConfirmResult{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return repositories.ConfirmResult{}, errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.ConfirmResult{}, err
	}
	docRef := client.Collection(orderCollection).Doc(id)

	var result repositories.ConfirmResult
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		switch doc.Payment.Status {
		case string(domain.PaymentStatusSuccess):
			order, mapErr := documentToOrder(id, doc)
			if mapErr != nil {
				return mapErr
			}
			result = repositories.ConfirmResult{Order: order, Outcome: repositories.PaymentAlreadySucceeded}
			return nil
		case string(domain.PaymentStatusFailed):
			order, mapErr := documentToOrder(id, doc)
			if mapErr != nil {
				return mapErr
			}
			result = repositories.ConfirmResult{Order: order, Outcome: repositories.PaymentAlreadyFailed}
			return nil
		}

		at := failedAt.UTC()
		updates := []firestore.Update{
			{Path: "payment.status", Value: string(domain.PaymentStatusFailed)},
			{Path: "status", Value: string(domain.OrderStatusCancelled)},
			{Path: "updatedAt", Value: at},
		}
		if msg := strings.TrimSpace(gatewayMessage); msg != "" {
			updates = append(updates, firestore.Update{Path: "payment.gatewayMessage", Value: msg})
		}
		if err := tx.Update(docRef, updates); err != nil {
			return err
		}

		doc.Payment.Status = string(domain.PaymentStatusFailed)
		doc.Payment.GatewayMessage = strings.TrimSpace(gatewayMessage)
		doc.Status = string(domain.OrderStatusCancelled)
		doc.UpdatedAt = at

		order, mapErr := documentToOrder(id, doc)
		if mapErr != nil {
			return mapErr
		}
		result = repositories.ConfirmResult{Order: order, Outcome: repositories.PaymentApplied}
		return nil
	})
	if err != nil {
		return repositories.ConfirmResult{}, pfirestore.WrapError("orders.markPaymentFailed", err)
	}
	return result, nil
}

// DeleteStalePending removes the user's other unpaid orders created at or
// after the cutoff. Best effort cleanup after a successful payment.
func (r *OrderRepository) DeleteStalePending(ctx context.Context, userID string, keepOrderID string, cutoff time.Time) (int, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return 0, errors.New("order repository: user id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where(fieldOrderUser, "==", uid).
			Where(fieldOrderStatus, "==", string(domain.OrderStatusPendingPayment)).
			Where(fieldOrderCreatedAt, ">=", cutoff.UTC())
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, doc := range docs {
		if doc.ID == keepOrderID {
			continue
		}
		if err := r.base.Delete(ctx, doc.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// UpdateStatus sets the order lifecycle status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	return r.applyUpdate(ctx, orderID, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
}

// UpdateDeliveryStatus sets the fulfilment status.
func (r *OrderRepository) UpdateDeliveryStatus(ctx context.Context, orderID string, status domain.DeliveryStatus, updatedAt time.Time) (domain.Order, error) {
	return r.applyUpdate(ctx, orderID, []firestore.Update{
		{Path: "deliveryStatus", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
}

func (r *OrderRepository) applyUpdate(ctx context.Context, orderID string, updates []firestore.Update) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	if _, err := r.base.Update(ctx, id, updates); err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, id)
}

func documentsToOrders(docs []pfirestore.Document[orderDocument]) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := documentToOrder(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func orderToDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductRef: item.ProductRef,
			Quantity:   item.Quantity,
		})
	}

	doc := orderDocument{
		UserID:         order.UserID,
		Items:          items,
		TotalAmount:    order.TotalAmount.String(),
		Address:        strings.TrimSpace(order.Address),
		Status:         string(order.Status),
		DeliveryStatus: string(order.DeliveryStatus),
		Payment: paymentDocument{
			Reference:         strings.TrimSpace(order.Payment.Reference),
			Status:            string(order.Payment.Status),
			ExternalReference: strings.TrimSpace(order.Payment.ExternalReference),
			CheckoutURL:       strings.TrimSpace(order.Payment.CheckoutURL),
			Method:            strings.TrimSpace(order.Payment.Method),
			GatewayMessage:    strings.TrimSpace(order.Payment.GatewayMessage),
			Amount:            order.Payment.Amount.String(),
		},
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
	if order.Payment.PaidAt != nil {
		paidAt := order.Payment.PaidAt.UTC()
		doc.Payment.PaidAt = &paidAt
	}
	if order.Payment.InitializedAt != nil {
		initAt := order.Payment.InitializedAt.UTC()
		doc.Payment.InitializedAt = &initAt
	}
	return doc
}

func documentToOrder(id string, doc orderDocument) (domain.Order, error) {
	total, err := parseAmount(doc.TotalAmount, "totalAmount")
	if err != nil {
		return domain.Order{}, err
	}
	paymentAmount := total
	if strings.TrimSpace(doc.Payment.Amount) != "" {
		paymentAmount, err = parseAmount(doc.Payment.Amount, "payment.amount")
		if err != nil {
			return domain.Order{}, err
		}
	}

	items := make([]domain.LineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.LineItem{
			ProductRef: item.ProductRef,
			Quantity:   item.Quantity,
		})
	}

	status := domain.PaymentStatus(doc.Payment.Status)
	if status == "" {
		status = domain.PaymentStatusPending
	}

	return domain.Order{
		ID:             id,
		UserID:         doc.UserID,
		Items:          items,
		TotalAmount:    total,
		Address:        doc.Address,
		Status:         domain.OrderStatus(doc.Status),
		DeliveryStatus: domain.DeliveryStatus(doc.DeliveryStatus),
		Payment: domain.Payment{
			Reference:         doc.Payment.Reference,
			Status:            status,
			ExternalReference: doc.Payment.ExternalReference,
			CheckoutURL:       doc.Payment.CheckoutURL,
			Method:            doc.Payment.Method,
			PaidAt:            doc.Payment.PaidAt,
			InitializedAt:     doc.Payment.InitializedAt,
			GatewayMessage:    doc.Payment.GatewayMessage,
			Amount:            paymentAmount,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func parseAmount(raw string, field string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("order repository: invalid %s %q: %w", field, raw, err)
	}
	return value, nil
}

func timestampOrNow(at *time.Time) time.Time {
	if at != nil {
		return at.UTC()
	}
	return time.Now().UTC()
}

type orderItemDocument struct {
	ProductRef string `firestore:"productRef"`
	Quantity   int    `firestore:"quantity"`
}

type paymentDocument struct {
	Reference         string     `firestore:"reference,omitempty"`
	Status            string     `firestore:"status"`
	ExternalReference string     `firestore:"externalReference,omitempty"`
	CheckoutURL       string     `firestore:"checkoutUrl,omitempty"`
	Method            string     `firestore:"method,omitempty"`
	PaidAt            *time.Time `firestore:"paidAt,omitempty"`
	InitializedAt     *time.Time `firestore:"initializedAt,omitempty"`
	GatewayMessage    string     `firestore:"gatewayMessage,omitempty"`
	Amount            string     `firestore:"amount,omitempty"`
}

type orderDocument struct {
	UserID         string              `firestore:"userId"`
	Items          []orderItemDocument `firestore:"items"`
	TotalAmount    string              `firestore:"totalAmount"`
	Address        string              `firestore:"address,omitempty"`
	Status         string              `firestore:"status"`
	DeliveryStatus string              `firestore:"deliveryStatus,omitempty"`
	Payment        paymentDocument     `firestore:"payment"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
