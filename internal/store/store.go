// Package store owns the vendor's order collection, the selected order and
// the active status filter. Every mutation is all-or-nothing.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vaidashi/vendor-order-desk/internal/lifecycle"
	"github.com/vaidashi/vendor-order-desk/internal/metrics"
	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/errors"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// Filter narrows the order list to one status, or none
type Filter string

// FilterAll shows every order
const FilterAll Filter = "all"

// ParseFilter validates a filter value
func ParseFilter(s string) (Filter, error) {
	if s == "" || s == string(FilterAll) {
		return FilterAll, nil
	}
	if models.OrderStatus(s).Valid() {
		return Filter(s), nil
	}
	return "", errors.NewInvalidInputError(fmt.Sprintf("unknown filter %q", s))
}

// Matches reports whether order passes the filter
func (f Filter) Matches(order *models.Order) bool {
	return f == "" || f == FilterAll || models.OrderStatus(f) == order.Status
}

// TerminalHook is called after an order reaches completed or cancelled
type TerminalHook func(orderID string)

// Store holds the order collection
type Store struct {
	mu         sync.RWMutex
	orders     []models.Order
	selectedID string
	filter     Filter

	hooks []TerminalHook

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int

	clock   clock.Clock
	metrics *metrics.Metrics
	logger  logger.Logger
}

// New creates an empty Store
func New(clk clock.Clock, m *metrics.Metrics, logger logger.Logger) *Store {
	return &Store{
		filter:  FilterAll,
		subs:    make(map[int]chan struct{}),
		clock:   clk,
		metrics: m,
		logger:  logger,
	}
}

// OnTerminal registers a hook for orders reaching a terminal status. Hooks
// must be registered before the store is shared.
func (s *Store) OnTerminal(h TerminalHook) {
	s.hooks = append(s.hooks, h)
}

// Subscribe returns a channel signalled after every change to the
// collection. Signals coalesce; the channel holds at most one.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) fireTerminal(ids []string) {
	for _, id := range ids {
		for _, h := range s.hooks {
			h(id)
		}
	}
}

// SetOrders replaces the whole collection
func (s *Store) SetOrders(orders []models.Order) {
	next := make([]models.Order, len(orders))
	for i := range orders {
		next[i] = orders[i].Clone()
	}

	s.mu.Lock()
	s.orders = next
	if s.selectedID != "" && s.indexOf(s.selectedID) < 0 {
		s.selectedID = ""
	}
	s.updateGauges()
	s.mu.Unlock()

	s.notify()
}

// Orders returns a copy of the collection
func (s *Store) Orders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.copyMatching(FilterAll)
}

// Len returns the number of orders held
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Get returns one order
func (s *Store) Get(id string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Order{}, errors.NewOrderNotFoundError(id)
	}
	return s.orders[i].Clone(), nil
}

// SelectOrder marks an order as the one being viewed
func (s *Store) SelectOrder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return errors.NewOrderNotFoundError(id)
	}
	s.selectedID = id
	return nil
}

// ClearSelection unselects the current order
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = ""
}

// SelectedOrder returns the current version of the selected order
func (s *Store) SelectedOrder() (models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selectedID == "" {
		return models.Order{}, false
	}
	i := s.indexOf(s.selectedID)
	if i < 0 {
		return models.Order{}, false
	}
	return s.orders[i].Clone(), true
}

// SetFilter changes the active status filter
func (s *Store) SetFilter(f Filter) error {
	if _, err := ParseFilter(string(f)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
	return nil
}

// Filter returns the active status filter
func (s *Store) Filter() Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// FilteredOrders returns the orders matching the active filter
func (s *Store) FilteredOrders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.copyMatching(s.filter)
}

// Apply performs a lifecycle operation on an order. It returns the order as
// it was before and after the change. On error nothing is modified.
func (s *Store) Apply(id string, op lifecycle.Operation, note string) (before, after models.Order, err error) {
	s.mu.Lock()

	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Order{}, models.Order{}, errors.NewOrderNotFoundError(id)
	}

	before = s.orders[i].Clone()
	working := s.orders[i].Clone()

	if err := lifecycle.Apply(&working, op, note, s.clock.Now()); err != nil {
		s.mu.Unlock()
		s.metrics.InvalidTransitions.WithLabelValues(string(op)).Inc()
		return models.Order{}, models.Order{}, err
	}

	s.orders[i] = working
	after = working.Clone()
	s.updateGauges()
	s.mu.Unlock()

	s.metrics.Transitions.WithLabelValues(string(before.Status), string(after.Status)).Inc()
	s.logger.Info("Order status changed",
		"orderID", id,
		"oldStatus", before.Status,
		"newStatus", after.Status)

	if lifecycle.IsTerminal(after.Status) {
		s.fireTerminal([]string{id})
	}
	s.notify()

	return before, after, nil
}

// Accept moves a pending order to accepted
func (s *Store) Accept(id, note string) (models.Order, error) {
	_, after, err := s.Apply(id, lifecycle.OpAccept, note)
	return after, err
}

// Reject cancels a pending order
func (s *Store) Reject(id, reason string) (models.Order, error) {
	_, after, err := s.Apply(id, lifecycle.OpReject, reason)
	return after, err
}

// StartPreparation moves an accepted order to preparing
func (s *Store) StartPreparation(id, note string) (models.Order, error) {
	_, after, err := s.Apply(id, lifecycle.OpStartPreparation, note)
	return after, err
}

// MarkReady moves a preparing order to ready
func (s *Store) MarkReady(id, note string) (models.Order, error) {
	_, after, err := s.Apply(id, lifecycle.OpMarkReady, note)
	return after, err
}

// HandOffToRider moves a ready order to handed_to_rider
func (s *Store) HandOffToRider(id, note string) (models.Order, error) {
	_, after, err := s.Apply(id, lifecycle.OpHandOffToRider, note)
	return after, err
}

// Complete moves a handed off order to completed
func (s *Store) Complete(id, note string) (models.Order, error) {
	_, after, err := s.Apply(id, lifecycle.OpComplete, note)
	return after, err
}

// Restore puts back prev if the stored order is still the version stamped at
// expectedUpdatedAt. It reports whether the rollback happened.
func (s *Store) Restore(prev models.Order, expectedUpdatedAt time.Time) bool {
	s.mu.Lock()

	i := s.indexOf(prev.ID)
	if i < 0 || !s.orders[i].UpdatedAt.Equal(expectedUpdatedAt) {
		s.mu.Unlock()
		return false
	}

	s.orders[i] = prev.Clone()
	s.updateGauges()
	s.mu.Unlock()

	s.logger.Warn("Order change rolled back", "orderID", prev.ID, "status", prev.Status)
	s.notify()
	return true
}

// Reconcile folds the server's version of an order into the collection. The
// server status wins when it differs; the change is recorded on the timeline.
// Unknown orders are added. It reports whether anything changed.
func (s *Store) Reconcile(server models.Order) (models.Order, bool) {
	s.mu.Lock()

	i := s.indexOf(server.ID)
	if i < 0 {
		added := server.Clone()
		s.orders = append([]models.Order{added}, s.orders...)
		s.updateGauges()
		s.mu.Unlock()

		s.notify()
		return added.Clone(), true
	}

	local := &s.orders[i]
	if local.Status == server.Status {
		s.mu.Unlock()
		return local.Clone(), false
	}

	old := local.Status
	now := s.clock.Now()
	adoptServer(local, &server, now)
	result := local.Clone()
	s.updateGauges()
	s.mu.Unlock()

	s.logger.Warn("Order status reconciled with server",
		"orderID", server.ID,
		"localStatus", old,
		"serverStatus", server.Status)

	if lifecycle.IsTerminal(result.Status) {
		s.fireTerminal([]string{result.ID})
	}
	s.notify()

	return result, true
}

// Merge adds unknown orders and reconciles known ones whose server copy is
// newer. It returns the orders that were added.
func (s *Store) Merge(incoming []models.Order) []models.Order {
	var added []models.Order
	var terminal []string
	changed := false
	now := s.clock.Now()

	s.mu.Lock()
	for idx := range incoming {
		server := &incoming[idx]

		i := s.indexOf(server.ID)
		if i < 0 {
			o := server.Clone()
			s.orders = append([]models.Order{o}, s.orders...)
			added = append(added, o.Clone())
			changed = true
			continue
		}

		local := &s.orders[i]
		if local.Status == server.Status || !server.UpdatedAt.After(local.UpdatedAt) {
			continue
		}

		adoptServer(local, server, now)
		changed = true
		if lifecycle.IsTerminal(local.Status) {
			terminal = append(terminal, local.ID)
		}
	}
	if changed {
		s.updateGauges()
	}
	s.mu.Unlock()

	s.fireTerminal(terminal)
	if changed {
		s.notify()
	}

	return added
}

// adoptServer moves local to the server's status while keeping the local
// timeline and any stage timestamps already set
func adoptServer(local, server *models.Order, now time.Time) {
	local.Status = server.Status
	local.UpdatedAt = now
	local.Timeline = append(local.Timeline, models.TimelineEntry{
		Status:    server.Status,
		Timestamp: now,
		Notes:     "Status updated by server",
	})

	fill := func(dst **time.Time, src *time.Time) {
		if *dst == nil && src != nil {
			t := *src
			*dst = &t
		}
	}
	fill(&local.AcceptedAt, server.AcceptedAt)
	fill(&local.PrepStartedAt, server.PrepStartedAt)
	fill(&local.ReadyAt, server.ReadyAt)
	fill(&local.HandedToRiderAt, server.HandedToRiderAt)
	fill(&local.CompletedAt, server.CompletedAt)

	if local.ActualPrepTime == nil && server.ActualPrepTime != nil {
		v := *server.ActualPrepTime
		local.ActualPrepTime = &v
	}
	if server.RiderID != "" {
		local.RiderID = server.RiderID
	}
}

// Query describes a page of the order list
type Query struct {
	Filter   Filter
	Search   string
	Page     int
	PageSize int
}

// Page is one page of matching orders
type Page struct {
	Orders     []models.Order `json:"orders"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Query returns the orders matching q, newest first. An empty filter uses
// the active one. Search matches order number or customer name.
func (s *Store) Query(q Query) Page {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	s.mu.RLock()
	filter := q.Filter
	if filter == "" {
		filter = s.filter
	}
	matching := s.copyMatching(filter)
	s.mu.RUnlock()

	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		kept := matching[:0]
		for _, o := range matching {
			if strings.Contains(strings.ToLower(o.OrderNumber), term) ||
				strings.Contains(strings.ToLower(o.Customer.Name), term) {
				kept = append(kept, o)
			}
		}
		matching = kept
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].CreatedAt.After(matching[j].CreatedAt)
	})

	total := len(matching)
	pages := (total + q.PageSize - 1) / q.PageSize

	start := (q.Page - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	return Page{
		Orders:     matching[start:end],
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: pages,
	}
}

// Stats counts orders per status
type Stats struct {
	Total    int                        `json:"total"`
	ByStatus map[models.OrderStatus]int `json:"byStatus"`
}

// Stats returns the per status counts
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.countLocked()
}

func (s *Store) countLocked() Stats {
	st := Stats{Total: len(s.orders), ByStatus: make(map[models.OrderStatus]int, len(models.AllStatuses))}
	for _, status := range models.AllStatuses {
		st.ByStatus[status] = 0
	}
	for i := range s.orders {
		st.ByStatus[s.orders[i].Status]++
	}
	return st
}

func (s *Store) updateGauges() {
	for status, n := range s.countLocked().ByStatus {
		s.metrics.OrdersByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.orders {
		if s.orders[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) copyMatching(f Filter) []models.Order {
	out := make([]models.Order, 0, len(s.orders))
	for i := range s.orders {
		if f.Matches(&s.orders[i]) {
			out = append(out, s.orders[i].Clone())
		}
	}
	return out
}
