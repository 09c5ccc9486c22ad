package execution

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/adapter"
	"github.com/arvion-labs/perpcore/internal/domain"
)

// fakeAdapter is a controllable adapter.Adapter for executor tests: orders
// can be scripted to fill after N GetOrder polls, reject outright, or never
// resolve (forcing a timeout).
type fakeAdapter struct {
	mu sync.Mutex

	placeErr            error
	fillAfterPoll       int // applies to every order kind unless overridden below
	fillAfterPollByKind map[domain.OrderKind]int
	fillSize            decimal.Decimal
	fillPrice           decimal.Decimal
	rejectOnPlace       bool

	orders map[string]*domain.Order
	polls  map[string]int
	nextID int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		orders: make(map[string]*domain.Order),
		polls:  make(map[string]int),
	}
}

func (f *fakeAdapter) Subscribe(ctx context.Context, symbols []string, updates chan<- adapter.L2Update, trades chan<- domain.Trade) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeAdapter) RequestSnapshot(ctx context.Context, symbol string) (adapter.SnapshotResponse, error) {
	return adapter.SnapshotResponse{Symbol: symbol}, nil
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, req adapter.PlaceRequest) (adapter.PlaceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return adapter.PlaceResult{}, f.placeErr
	}
	if f.rejectOnPlace {
		return adapter.PlaceResult{}, errors.New("would take / post-only violated")
	}
	f.nextID++
	id := "order-" + string(rune('A'+f.nextID))
	f.orders[id] = &domain.Order{
		ID:     id,
		Symbol: req.Symbol,
		Side:   req.Side,
		Kind:   req.Kind,
		Price:  req.Price,
		Size:   req.Size,
		Status: domain.StatusSubmitted,
	}
	f.polls[id] = 0
	return adapter.PlaceResult{OrderID: id}, nil
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok && !o.Status.IsTerminal() {
		o.Status = domain.StatusCanceled
	}
	return nil
}

func (f *fakeAdapter) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, errors.New("unknown order")
	}

	f.polls[orderID]++

	threshold := f.fillAfterPoll
	if byKind, ok := f.fillAfterPollByKind[o.Kind]; ok {
		threshold = byKind
	}
	if threshold > 0 && f.polls[orderID] >= threshold && o.Status == domain.StatusSubmitted {
		o.Status = domain.StatusFilled
		o.FilledSize = f.fillSize
		o.AvgFillPrice = f.fillPrice
	}
	return *o, nil
}

func (f *fakeAdapter) GetFills(ctx context.Context, orderID string) ([]adapter.Fill, error) {
	return nil, nil
}

var _ adapter.Adapter = (*fakeAdapter)(nil)
