// Package memory is an in-process implementation of the order store. Row locks are
// real per-product locks held until the transaction ends, and writes are buffered
// and applied only on commit, so it reproduces the locking and rollback behaviour
// of the Postgres store without a database.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmehra2102/storefront/internal/order/application"
	"github.com/dmehra2102/storefront/internal/order/domain"
)

type Event struct {
	AggregateID string
	Type        string
	Payload     []byte
	Traceparent string
}

type Customer struct {
	Name  string
	Email string
}

type Store struct {
	mu        sync.Mutex
	products  map[int64]domain.Product
	rowLocks  map[int64]chan struct{}
	orders    map[int64]domain.Order
	items     map[int64][]domain.OrderItem
	customers map[int64]Customer
	events    []Event
	failures  map[string]error

	nextOrderID int64
	nextItemID  int64
}

func New() *Store {
	return &Store{
		products:  make(map[int64]domain.Product),
		rowLocks:  make(map[int64]chan struct{}),
		orders:    make(map[int64]domain.Order),
		items:     make(map[int64][]domain.OrderItem),
		customers: make(map[int64]Customer),
		failures:  make(map[string]error),
	}
}

func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) Product(id int64) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) PutCustomer(userID int64, c Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[userID] = c
}

func (s *Store) Order(id int64) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if ok {
		o.Items = slices.Clone(s.items[id])
	}
	return o, ok
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, items := range s.items {
		n += len(items)
	}
	return n
}

func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// FailOn makes the next call to the named Tx method (e.g. "DecrementStock") return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *Store) takeFailure(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.failures[method]
	delete(s.failures, method)
	return err
}

func (s *Store) rowLock(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.rowLocks[id] = l
	}
	return l
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	t := &tx{s: s, held: make(map[int64]chan struct{})}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, qty := range t.decrements {
		p, ok := s.products[id]
		if !ok {
			return fmt.Errorf("product %d vanished", id)
		}
		if p.Stock-qty < 0 {
			return fmt.Errorf("product %d: stock would go negative", id)
		}
	}

	for id, qty := range t.decrements {
		p := s.products[id]
		p.Stock -= qty
		s.products[id] = p
	}
	for _, o := range t.orders {
		items := o.Items
		o.Items = nil
		s.orders[o.ID] = o
		s.items[o.ID] = slices.Clone(items)
	}
	for id, st := range t.statuses {
		o := s.orders[id]
		o.Status = st
		s.orders[id] = o
	}
	for _, id := range t.deletes {
		delete(s.orders, id)
		delete(s.items, id)
	}
	s.events = append(s.events, t.events...)
	return nil
}

func (s *Store) ListForUser(ctx context.Context, userID int64) ([]domain.OrderSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.OrderSummary
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, domain.OrderSummary{Order: o, ItemCount: len(s.items[o.ID])})
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) ListAll(ctx context.Context) ([]domain.OrderSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.OrderSummary
	for _, o := range s.orders {
		c := s.customers[o.UserID]
		out = append(out, domain.OrderSummary{
			Order:         o,
			ItemCount:     len(s.items[o.ID]),
			CustomerName:  c.Name,
			CustomerEmail: c.Email,
		})
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) Items(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := slices.Clone(s.items[orderID])
	for i := range items {
		items[i].ProductName = s.products[items[i].ProductID].Name
	}
	return items, nil
}

func sortNewestFirst(out []domain.OrderSummary) {
	slices.SortFunc(out, func(a, b domain.OrderSummary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
}

type tx struct {
	s    *Store
	held map[int64]chan struct{}

	orders     []domain.Order
	decrements map[int64]int
	statuses   map[int64]domain.OrderStatus
	deletes    []int64
	events     []Event
}

func (t *tx) release() {
	for _, l := range t.held {
		<-l
	}
	t.held = nil
}

func (t *tx) LockProduct(ctx context.Context, id int64) (domain.Product, error) {
	if err := t.s.takeFailure("LockProduct"); err != nil {
		return domain.Product{}, err
	}
	if _, ok := t.held[id]; !ok {
		l := t.s.rowLock(id)
		select {
		case l <- struct{}{}:
			t.held[id] = l
		case <-ctx.Done():
			return domain.Product{}, domain.Transient(domain.KindLockTimeout, ctx.Err())
		}
	}

	p, ok := t.s.Product(id)
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (t *tx) InsertOrder(ctx context.Context, o *domain.Order) error {
	if err := t.s.takeFailure("InsertOrder"); err != nil {
		return err
	}
	t.s.mu.Lock()
	t.s.nextOrderID++
	o.ID = t.s.nextOrderID
	t.s.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	t.orders = append(t.orders, *o)
	return nil
}

func (t *tx) InsertItems(ctx context.Context, orderID int64, items []domain.OrderItem) error {
	if err := t.s.takeFailure("InsertItems"); err != nil {
		return err
	}
	idx := slices.IndexFunc(t.orders, func(o domain.Order) bool { return o.ID == orderID })
	if idx < 0 {
		return errors.New("insert items: unknown order")
	}

	t.s.mu.Lock()
	for i := range items {
		t.s.nextItemID++
		items[i].ID = t.s.nextItemID
		items[i].OrderID = orderID
	}
	t.s.mu.Unlock()
	t.orders[idx].Items = slices.Clone(items)
	return nil
}

func (t *tx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	if err := t.s.takeFailure("DecrementStock"); err != nil {
		return err
	}
	if _, ok := t.held[productID]; !ok {
		return fmt.Errorf("decrement of product %d without row lock", productID)
	}
	if t.decrements == nil {
		t.decrements = make(map[int64]int)
	}
	t.decrements[productID] += quantity
	return nil
}

func (t *tx) SetStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (domain.Order, error) {
	if err := t.s.takeFailure("SetStatus"); err != nil {
		return domain.Order{}, err
	}
	o, ok := t.s.Order(orderID)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if t.statuses == nil {
		t.statuses = make(map[int64]domain.OrderStatus)
	}
	t.statuses[orderID] = status
	o.Status = status
	o.Items = nil
	return o, nil
}

func (t *tx) DeleteOrder(ctx context.Context, orderID int64) error {
	if err := t.s.takeFailure("DeleteOrder"); err != nil {
		return err
	}
	if _, ok := t.s.Order(orderID); !ok {
		return domain.ErrOrderNotFound
	}
	t.deletes = append(t.deletes, orderID)
	return nil
}

func (t *tx) AppendEvent(ctx context.Context, aggregateID, eventType string, payload []byte, traceparent string) error {
	if err := t.s.takeFailure("AppendEvent"); err != nil {
		return err
	}
	t.events = append(t.events, Event{AggregateID: aggregateID, Type: eventType, Payload: payload, Traceparent: traceparent})
	return nil
}
