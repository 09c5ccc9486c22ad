// Package domain holds the core value types shared by every hard-core
// component: book levels, market snapshots, signals, orders, positions and
// attribution. Values here are constructed once and never mutated in place —
// a change is expressed as a new value with one field replaced.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is an order/trade direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderKind is a tagged variant, not a string compared at each call site.
type OrderKind int

const (
	KindLimit OrderKind = iota
	KindIOC
)

func (k OrderKind) String() string {
	switch k {
	case KindLimit:
		return "LIMIT"
	case KindIOC:
		return "IOC"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus is a terminal-or-not lifecycle state for an Order.
type OrderStatus int

const (
	StatusCreated OrderStatus = iota
	StatusSubmitted
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusRejected
	StatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusSubmitted:
		return "SUBMITTED"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCanceled:
		return "CANCELED"
	case StatusRejected:
		return "REJECTED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the status can no longer transition.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Confidence discretizes |signal value| into three bands.
type Confidence int

const (
	Low Confidence = iota
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Level is one price/size rung of an order book side. A zero Size on an
// incremental update means "remove this level" — callers must not construct
// a Level with non-positive Size for a resting level.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Trade is a single tape print.
type Trade struct {
	Ts     int64 // unix ms
	Symbol string
	Side   Side
	Price  decimal.Decimal
	Size   decimal.Decimal
}

// MarketData is the immutable snapshot handed to signals for exactly one
// iteration of the per-symbol trading loop.
type MarketData struct {
	Symbol       string
	Ts           int64 // unix ms
	Bids         []Level
	Asks         []Level
	Mid          decimal.Decimal
	RecentTrades []Trade
}

// BestBid returns the top bid level, or a zero Level if the side is empty.
func (m MarketData) BestBid() (Level, bool) {
	if len(m.Bids) == 0 {
		return Level{}, false
	}
	return m.Bids[0], true
}

// BestAsk returns the top ask level, or a zero Level if the side is empty.
func (m MarketData) BestAsk() (Level, bool) {
	if len(m.Asks) == 0 {
		return Level{}, false
	}
	return m.Asks[0], true
}

// SignalScore is the output of the aggregator: a direction-and-magnitude
// value with the confidence band and component breakdown preserved for
// attribution. Value sign encodes direction: positive means BUY.
type SignalScore struct {
	Value      float64
	Confidence Confidence
	Components []float64
	Ts         int64
}

// WithConfidence returns a copy of s with Confidence replaced — the
// dataclass-with-replace pattern expressed without mutation.
func (s SignalScore) WithConfidence(c Confidence) SignalScore {
	s.Confidence = c
	return s
}

// Order is the coordinator's view of a single working or terminal order.
// The executor that created it owns it exclusively until it reaches a
// terminal OrderStatus.
type Order struct {
	ID            string
	Symbol        string
	Side          Side
	Kind          OrderKind
	Price         decimal.Decimal
	Size          decimal.Decimal
	FilledSize    decimal.Decimal
	AvgFillPrice  decimal.Decimal
	Status        OrderStatus
	CreatedAt     time.Time
	LastUpdateAt  time.Time
	ErrorMessage  string
}

// Position is the per-symbol running position. Size is signed: positive is
// long, negative is short.
type Position struct {
	Symbol         string
	Size           decimal.Decimal
	AvgEntryPrice  decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	RealizedPnL    decimal.Decimal
	OpenedAt       time.Time
	HasOpenedAt    bool
}

// IsFlat reports whether the position is closed.
func (p Position) IsFlat() bool { return p.Size.IsZero() }

// Attribution decomposes the PnL of a single fill.
type Attribution struct {
	OrderID     string
	Symbol      string
	Alpha       decimal.Decimal
	Fee         decimal.Decimal
	Slippage    decimal.Decimal
	Impact      decimal.Decimal
	Rebate      decimal.Decimal
	Total       decimal.Decimal
	Unexplained decimal.Decimal
	Ts          int64
}

// CostEstimate is a pre-trade bps breakdown recomputed on every attempt.
type CostEstimate struct {
	FeeBps      float64
	SlippageBps float64
	ImpactBps   float64
	TotalBps    float64
}

// RiskDecision is the RiskGate's verdict on an intended order.
type RiskDecision struct {
	Approved bool
	Reason   string
}
