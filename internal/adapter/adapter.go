// Package adapter defines the narrow contract the core talks to the venue
// through: streaming market data and an idempotent REST order surface.
// Nothing in this package decides trading logic; internal/marketdata and
// internal/execution are the callers. A concrete implementation lives in
// internal/adapter/wsrest.
package adapter

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/domain"
)

// UpdateSide distinguishes which side of the book an L2Update touches.
type UpdateSide int

const (
	SideBid UpdateSide = iota
	SideAsk
)

// L2Update is one incremental book change delivered off the stream.
type L2Update struct {
	Symbol string
	Side   UpdateSide
	Price  decimal.Decimal
	Size   decimal.Decimal
	Ts     int64
}

// SnapshotResponse is the full book state delivered on connect or on an
// explicit RequestSnapshot resync.
type SnapshotResponse struct {
	Symbol string
	Bids   []domain.Level
	Asks   []domain.Level
	Ts     int64
}

// Fill is one partial or complete execution against a resting order.
type Fill struct {
	OrderID  string
	Symbol   string
	Side     domain.Side
	Price    decimal.Decimal
	Size     decimal.Decimal
	FeeBps   float64
	IsMaker  bool
	Sequence int64
	Ts       int64
}

// PlaceRequest is the idempotent order-placement call. Nonce is a
// client-generated id the venue deduplicates on.
type PlaceRequest struct {
	Nonce    string
	Symbol   string
	Side     domain.Side
	Kind     domain.OrderKind
	Price    decimal.Decimal
	Size     decimal.Decimal
	PostOnly bool
}

// PlaceResult is the venue's immediate response to PlaceOrder.
type PlaceResult struct {
	OrderID string
}

// Adapter is the exchange connectivity contract spec §6 names as an
// external collaborator. The core depends only on this interface; wsrest
// is one concrete, swappable implementation.
type Adapter interface {
	// Subscribe streams L2Update and Trade messages for symbols until ctx is
	// canceled. updates and trades are owned by the caller (MarketDataHub);
	// Subscribe only ever sends on them.
	Subscribe(ctx context.Context, symbols []string, updates chan<- L2Update, trades chan<- domain.Trade) error

	// RequestSnapshot fetches a full book snapshot out-of-band, used both on
	// initial connect and to resync a book the core has marked stale.
	RequestSnapshot(ctx context.Context, symbol string) (SnapshotResponse, error)

	PlaceOrder(ctx context.Context, req PlaceRequest) (PlaceResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetFills(ctx context.Context, orderID string) ([]Fill, error)
}
