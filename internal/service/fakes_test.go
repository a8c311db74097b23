package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warungku/backend/internal/entity"
	"github.com/warungku/backend/internal/gateway"
)

// In-memory fakes mirroring the Postgres repositories' atomicity: every
// claim-style method takes one lock, checks and writes under it, exactly
// like the single-statement guarded UPDATEs they stand in for.

type fakeIntentRepo struct {
	mu      sync.Mutex
	intents map[string]*entity.PaymentIntent
}

func newFakeIntentRepo() *fakeIntentRepo {
	return &fakeIntentRepo{intents: make(map[string]*entity.PaymentIntent)}
}

func (r *fakeIntentRepo) Create(_ context.Context, intent *entity.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *intent
	r.intents[intent.ID] = &cp
	return nil
}

func (r *fakeIntentRepo) AttachPaymentSession(_ context.Context, intentID, paymentID, redirectURL, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent, ok := r.intents[intentID]
	if !ok {
		return fmt.Errorf("%w: payment intent %s", entity.ErrNotFound, intentID)
	}
	if intent.PaymentID != "" && intent.PaymentID != paymentID {
		return fmt.Errorf("%w: intent %s already has payment id %s", entity.ErrConflict, intentID, intent.PaymentID)
	}
	intent.PaymentID = paymentID
	intent.RedirectURL = redirectURL
	intent.SessionToken = token
	return nil
}

func (r *fakeIntentRepo) FindByID(_ context.Context, id string) (*entity.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if intent, ok := r.intents[id]; ok {
		cp := *intent
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeIntentRepo) FindByPaymentID(_ context.Context, paymentID string) (*entity.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, intent := range r.intents {
		if intent.PaymentID == paymentID {
			cp := *intent
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeIntentRepo) Settle(_ context.Context, intentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.intents, intentID)
	return nil
}

func (r *fakeIntentRepo) Cancel(_ context.Context, intentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.intents, intentID)
	return nil
}

func (r *fakeIntentRepo) FindStale(_ context.Context, olderThan time.Time) ([]entity.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []entity.PaymentIntent
	for _, intent := range r.intents {
		if intent.Status == entity.IntentCreated && intent.CreatedAt.Before(olderThan) {
			stale = append(stale, *intent)
		}
	}
	return stale, nil
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*entity.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*entity.Order)}
}

func (r *fakeOrderRepo) byPaymentID(paymentID string) *entity.Order {
	for _, order := range r.orders {
		if order.Payment.PaymentID == paymentID {
			return order
		}
	}
	return nil
}

func (r *fakeOrderRepo) Create(_ context.Context, order *entity.Order) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.Payment.PaymentID != "" && r.byPaymentID(order.Payment.PaymentID) != nil {
		return false, nil
	}
	cp := *order
	r.orders[order.ID] = &cp
	return true, nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id string) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order, ok := r.orders[id]; ok {
		cp := *order
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeOrderRepo) FindByPaymentID(_ context.Context, paymentID string) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order := r.byPaymentID(paymentID); order != nil {
		cp := *order
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeOrderRepo) FindRecent(_ context.Context, limit int) ([]entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var orders []entity.Order
	for _, order := range r.orders {
		orders = append(orders, *order)
		if len(orders) == limit {
			break
		}
	}
	return orders, nil
}

func (r *fakeOrderRepo) ClaimPayment(_ context.Context, paymentID, method string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order := r.byPaymentID(paymentID)
	if order == nil || order.Payment.Status != entity.PaymentPending {
		return false, nil
	}
	order.Payment.Status = entity.PaymentPaid
	order.Payment.Method = method
	order.Payment.PaidAt = &paidAt
	return true, nil
}

func (r *fakeOrderRepo) DeleteUnpaid(_ context.Context, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok || order.Payment.Status == entity.PaymentPaid {
		return false, nil
	}
	delete(r.orders, orderID)
	return true, nil
}

func (r *fakeOrderRepo) DeleteUnpaidByPaymentID(_ context.Context, paymentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order := r.byPaymentID(paymentID)
	if order == nil || order.Payment.Status == entity.PaymentPaid {
		return false, nil
	}
	delete(r.orders, order.ID)
	return true, nil
}

func (r *fakeOrderRepo) SetStatus(_ context.Context, orderID, status string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok || order.Status == entity.StatusDelivered {
		return false, nil
	}
	order.Status = status
	return true, nil
}

func (r *fakeOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type fakeProductRepo struct {
	mu       sync.Mutex
	products map[string]*entity.Product
}

func newFakeProductRepo(products ...entity.Product) *fakeProductRepo {
	r := &fakeProductRepo{products: make(map[string]*entity.Product)}
	for _, p := range products {
		cp := p
		r.products[p.ID] = &cp
	}
	return r
}

func (r *fakeProductRepo) FindAll(_ context.Context) ([]entity.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var products []entity.Product
	for _, p := range r.products {
		products = append(products, *p)
	}
	return products, nil
}

func (r *fakeProductRepo) FindByID(_ context.Context, id string) (*entity.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeProductRepo) Seed(_ context.Context, products []entity.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range products {
		cp := p
		r.products[p.ID] = &cp
	}
	return nil
}

func (r *fakeProductRepo) IncrementSold(_ context.Context, items []entity.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		if p, ok := r.products[item.ProductID]; ok {
			p.Sold += item.Quantity
		}
	}
	return nil
}

func (r *fakeProductRepo) stock(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].Stock
}

func (r *fakeProductRepo) sold(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].Sold
}

type fakeStockLedger struct {
	mu       sync.Mutex
	products *fakeProductRepo
	entries  map[string]map[string]bool
}

func newFakeStockLedger(products *fakeProductRepo) *fakeStockLedger {
	return &fakeStockLedger{products: products, entries: make(map[string]map[string]bool)}
}

func (l *fakeStockLedger) claim(orderID, direction string) bool {
	if l.entries[orderID] == nil {
		l.entries[orderID] = make(map[string]bool)
	}
	if l.entries[orderID][direction] {
		return false
	}
	l.entries[orderID][direction] = true
	return true
}

func (l *fakeStockLedger) Decrement(_ context.Context, orderID string, items []entity.OrderItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.claim(orderID, "decrement") {
		return nil
	}
	l.products.mu.Lock()
	defer l.products.mu.Unlock()
	for _, item := range items {
		if p, ok := l.products.products[item.ProductID]; ok && p.Stock >= item.Quantity {
			p.Stock -= item.Quantity
		}
	}
	return nil
}

func (l *fakeStockLedger) Restore(_ context.Context, orderID string, items []entity.OrderItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.claim(orderID, "restore") {
		return nil
	}
	if !l.entries[orderID]["decrement"] {
		return nil
	}
	l.products.mu.Lock()
	defer l.products.mu.Unlock()
	for _, item := range items {
		if p, ok := l.products.products[item.ProductID]; ok {
			p.Stock += item.Quantity
		}
	}
	return nil
}

type publishedEvent struct {
	topic string
	key   string
	event entity.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) PublishEvent(_ context.Context, topic, key string, event entity.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, key: key, event: event})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) countByType(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.event.EventType() == eventType {
			n++
		}
	}
	return n
}

type fakeSessions struct {
	err   error
	calls int
}

func (s *fakeSessions) CreateSession(_ context.Context, req *gateway.SessionRequest) (*gateway.Session, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &gateway.Session{
		Token:       "tok-" + req.PaymentID,
		RedirectURL: "https://pay.example.com/" + req.PaymentID,
	}, nil
}
